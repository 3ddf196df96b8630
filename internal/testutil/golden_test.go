package testutil

import (
	"fmt"
	"os"
	"strings"
	"testing"
)

type recorder struct {
	fatal, failed []string
}

func (r *recorder) Helper() {}

func (r *recorder) Fatalf(format string, args ...any) {
	r.fatal = append(r.fatal, fmt.Sprintf(format, args...))
}

func (r *recorder) Errorf(format string, args ...any) {
	r.failed = append(r.failed, fmt.Sprintf(format, args...))
}

func TestAssertGolden(t *testing.T) {
	t.Chdir(t.TempDir())

	if err := os.Mkdir("testdata", 0o755); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile("testdata/status.golden", []byte("✓ Companion server running\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("match", func(t *testing.T) {
		var r recorder
		AssertGolden(&r, "✓ Companion server running\n", "status.golden")

		if len(r.fatal)+len(r.failed) != 0 {
			t.Fatalf("unexpected failures: %v %v", r.fatal, r.failed)
		}
	})

	t.Run("mismatch", func(t *testing.T) {
		var r recorder
		AssertGolden(&r, "✗ Companion server exited\n", "status.golden")

		if len(r.failed) != 1 || !strings.Contains(r.failed[0], "-update") {
			t.Fatalf("failures = %v, want one mentioning -update", r.failed)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		var r recorder
		AssertGolden(&r, "anything", "absent.golden")

		if len(r.fatal) != 1 {
			t.Fatalf("fatal = %v, want one", r.fatal)
		}
	})
}
