// Package testutil holds helpers shared by mnemo tests.
package testutil

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
)

var update = flag.Bool("update", false, "rewrite testdata/*.golden with the current output")

// TB is the part of testing.TB AssertGolden needs.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
	Errorf(format string, args ...any)
}

// AssertGolden compares got with testdata/name, or rewrites that file when
// the test binary runs with -update.
func AssertGolden(t TB, got, name string) {
	t.Helper()

	path := filepath.Join("testdata", name)

	if *update {
		if err := os.MkdirAll("testdata", 0o755); err != nil {
			t.Fatalf("create testdata: %v", err)
		}

		if err := os.WriteFile(path, []byte(got), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}

		return
	}

	want, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s (run with -update to create it): %v", path, err)
	}

	if got != string(want) {
		t.Errorf("%s differs (run with -update to accept)\n--- got ---\n%s\n--- want ---\n%s", path, got, want)
	}
}

var _ TB = (*testing.T)(nil)
