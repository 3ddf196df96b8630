package doctor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/mnemo-dev/mnemo/internal/terminal"
)

func TestRunner_RunsInOrderAndNamesResults(t *testing.T) {
	r := New()
	r.AddCheck("First", func(context.Context) Result { return Result{Status: StatusPass, Message: "ok"} })
	r.AddCheck("Second", func(context.Context) Result { return Result{Name: "ignored", Status: StatusWarn} })
	r.AddCheck("Third", func(context.Context) Result { return Result{Status: StatusFail, Detail: "fix it"} })

	results := r.Run(context.Background())

	names := make([]string, 0, len(results))
	for _, res := range results {
		names = append(names, res.Name)
	}

	if got := strings.Join(names, ","); got != "First,Second,Third" {
		t.Fatalf("names = %q", got)
	}

	if got := Count(results); got != (Tally{Passed: 1, Failed: 1, Warnings: 1}) {
		t.Fatalf("Count() = %+v, want one of each", got)
	}

	if AllPassed(results) {
		t.Fatal("AllPassed() = true with a failing check")
	}

	if !results[1].Passed() {
		t.Fatal("warnings should count as passed")
	}
}

func TestRunner_PanickingCheckFails(t *testing.T) {
	r := New()
	r.AddCheck("Boom", func(context.Context) Result { panic("kaboom") })
	r.AddCheck("After", func(context.Context) Result { return Result{Status: StatusPass} })

	results := r.Run(context.Background())
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	if results[0].Status != StatusFail || !strings.Contains(results[0].Detail, "kaboom") {
		t.Fatalf("panic result = %+v", results[0])
	}

	if results[1].Status != StatusPass {
		t.Fatalf("later checks must still run, got %+v", results[1])
	}
}

func TestStatus_MarshalsByName(t *testing.T) {
	data, err := json.Marshal(Result{Name: "X", Status: StatusWarn})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	if !strings.Contains(string(data), `"status":"warn"`) {
		t.Fatalf("json = %s", data)
	}
}

type linePrinter []string

func (p *linePrinter) add(prefix, format string, args ...any) {
	*p = append(*p, prefix+strings.TrimRight(fmt.Sprintf(format, args...), " "))
}

func (p *linePrinter) Success(format string, args ...any) { p.add("ok ", format, args...) }
func (p *linePrinter) Warning(format string, args ...any) { p.add("warn ", format, args...) }
func (p *linePrinter) Failure(format string, args ...any) { p.add("fail ", format, args...) }
func (p *linePrinter) Muted(format string, args ...any)   { p.add("muted ", format, args...) }

func TestRender_AlignsNamesAndShowsDetail(t *testing.T) {
	var lines linePrinter

	Render(&lines, []Result{
		{Name: "Short", Status: StatusPass, Message: "fine"},
		{Name: "Much Longer", Status: StatusFail, Message: "broken", Detail: "do this"},
		{Name: "Odd", Status: Status(9), Message: "unknown status"},
	})

	want := []string{
		"ok Short          fine",
		"fail Much Longer    broken",
		"muted     do this",
		"fail Odd            unknown status",
	}

	if strings.Join(lines, "\n") != strings.Join(want, "\n") {
		t.Fatalf("rendered:\n%s\nwant:\n%s", strings.Join(lines, "\n"), strings.Join(want, "\n"))
	}
}

func TestStatus_UnknownValue(t *testing.T) {
	if Status(9).String() != "unknown" || Status(-1).Symbol() != "?" {
		t.Fatalf("unknown status rendered as %q / %q", Status(9).String(), Status(-1).Symbol())
	}
}

func TestWritableDir(t *testing.T) {
	t.Run("creates and cleans up", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "config", "mnemo")

		res := WritableDir(func() (string, error) { return dir, nil })(context.Background())
		if res.Status != StatusPass {
			t.Fatalf("result = %+v", res)
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("ReadDir() error = %v", err)
		}

		if len(entries) != 0 {
			t.Fatalf("write check file left behind: %v", entries)
		}
	})

	t.Run("unresolvable", func(t *testing.T) {
		res := WritableDir(func() (string, error) { return "", errors.New("no home") })(context.Background())
		if res.Passed() || res.Detail == "" {
			t.Fatalf("result = %+v", res)
		}
	})

	t.Run("read only", func(t *testing.T) {
		if runtime.GOOS == "windows" || os.Geteuid() == 0 {
			t.Skip("permission bits are not enforced here")
		}

		dir := t.TempDir()
		if err := os.Chmod(dir, 0o500); err != nil {
			t.Fatalf("Chmod() error = %v", err)
		}

		t.Cleanup(func() { _ = os.Chmod(dir, 0o700) })

		res := WritableDir(func() (string, error) { return dir, nil })(context.Background())
		if res.Passed() || !strings.Contains(res.Detail, "chmod") {
			t.Fatalf("result = %+v", res)
		}
	})
}

func TestTerminalCheck(t *testing.T) {
	pipe, err := terminal.NewPipe(&strings.Builder{}, 100, 30)
	if err != nil {
		t.Fatalf("NewPipe() error = %v", err)
	}

	t.Cleanup(func() { _ = pipe.Close() })

	res := Terminal(pipe)(context.Background())
	if res.Status != StatusPass || res.Message != "Raw mode supported (100x30)" {
		t.Fatalf("result = %+v", res)
	}

	if pipe.IsRaw() {
		t.Fatal("raw mode left on")
	}

	devNull, err := os.Open(os.DevNull)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	t.Cleanup(func() { _ = devNull.Close() })

	res = Terminal(terminal.NewTTY(devNull, devNull))(context.Background())
	if res.Passed() || res.Detail == "" {
		t.Fatalf("non-terminal result = %+v", res)
	}
}
