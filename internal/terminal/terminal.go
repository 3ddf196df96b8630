// Package terminal detects what the attached terminal can do and owns the
// raw-mode and cancellable-reader plumbing used by the inline editor.
package terminal

import (
	"os"

	"golang.org/x/term"
)

// Info describes stdout as seen by the output package.
type Info struct {
	IsTTY bool
	// NoColor is set by NO_COLOR (https://no-color.org/) or TERM=dumb.
	NoColor bool
	// ForceFlag is set by --no-color.
	ForceFlag bool
}

// Detect inspects stdout and the environment.
func Detect() *Info {
	_, noColor := os.LookupEnv("NO_COLOR")

	return &Info{
		IsTTY:   term.IsTerminal(int(os.Stdout.Fd())),
		NoColor: noColor || os.Getenv("TERM") == "dumb",
	}
}

// ColorEnabled reports whether output may use ANSI colors.
func (t *Info) ColorEnabled() bool {
	return t.IsTTY && !t.NoColor && !t.ForceFlag
}

// SpinnersEnabled reports whether animated progress may be drawn.
func (t *Info) SpinnersEnabled() bool {
	return t.IsTTY && !t.NoColor
}
