package render

import "testing"

func TestVisibleLength(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{in: "\x1b[31mhello\x1b[0m", want: 5},
		{in: "", want: 0},
		{in: "你好", want: 4},
	}

	for _, tt := range tests {
		if got := VisibleLength(tt.in); got != tt.want {
			t.Errorf("VisibleLength(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width int
		want  string
	}{
		{name: "fits", in: "hello", width: 10, want: "hello"},
		{name: "exact", in: "hello", width: 5, want: "hello"},
		{name: "cut", in: "hello world", width: 6, want: "hello…"},
		{name: "zero width", in: "hello", width: 0, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fit(tt.in, tt.width)
			if got != tt.want {
				t.Errorf("Fit(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
			}

			if VisibleLength(got) > tt.width {
				t.Errorf("Fit(%q, %d) is %d cells wide", tt.in, tt.width, VisibleLength(got))
			}
		})
	}
}
