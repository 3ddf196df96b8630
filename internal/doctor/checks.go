package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mnemo-dev/mnemo/internal/terminal"
)

// WritableDir returns a check that creates and removes a temp file in the
// directory returned by dir, creating the directory first if needed.
func WritableDir(dir func() (string, error)) Check {
	return func(context.Context) Result {
		path, err := dir()
		if err != nil {
			return Result{
				Status:  StatusFail,
				Message: "Cannot locate directory",
				Detail:  fmt.Sprintf("%v; set XDG_CONFIG_HOME to a writable location", err),
			}
		}

		if err := os.MkdirAll(path, 0o700); err != nil {
			return Result{
				Status:  StatusFail,
				Message: path,
				Detail:  fmt.Sprintf("Cannot create directory: %v", err),
			}
		}

		if err := checkAccess(path); err != nil {
			return Result{
				Status:  StatusFail,
				Message: fmt.Sprintf("%s (not writable)", path),
				Detail:  fmt.Sprintf("Fix permissions with 'chmod u+w %s'", path),
			}
		}

		f, err := os.CreateTemp(path, ".mnemo-write-check-*")
		if err != nil {
			return Result{
				Status:  StatusFail,
				Message: fmt.Sprintf("%s (not writable)", path),
				Detail:  fmt.Sprintf("Cannot create files: %v", err),
			}
		}

		name := f.Name()
		closeErr := f.Close()
		removeErr := os.Remove(name)

		if err := errors.Join(closeErr, removeErr); err != nil {
			return Result{
				Status:  StatusWarn,
				Message: fmt.Sprintf("%s (writable, cleanup failed)", path),
				Detail:  fmt.Sprintf("Remove %s manually: %v", name, err),
			}
		}

		return Result{Status: StatusPass, Message: path}
	}
}

// Terminal returns a check that t is interactive and can enter and leave raw mode.
func Terminal(t terminal.Terminal) Check {
	return func(context.Context) Result {
		if err := terminal.CheckRawMode(t); err != nil {
			if errors.Is(err, terminal.ErrNotTerminal) {
				return Result{
					Status:  StatusFail,
					Message: "Not an interactive terminal",
					Detail:  "Run mnemo directly in a terminal; use --text when piping input",
				}
			}

			return Result{
				Status:  StatusFail,
				Message: "Raw mode unavailable",
				Detail:  fmt.Sprintf("%v; try a different terminal emulator", err),
			}
		}

		width, height := t.Size()

		return Result{
			Status:  StatusPass,
			Message: fmt.Sprintf("Raw mode supported (%dx%d)", width, height),
		}
	}
}
