// Package output writes what mnemo commands print.
//
// Human output goes through status helpers that add a symbol and, on a color
// terminal, a tone. Machine output is JSON or YAML, selected with --json,
// --yaml or output.format. Quiet mode keeps stdout empty except for
// structured results; failures always reach stderr.
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/mnemo-dev/mnemo/internal/terminal"
)

// Status symbols.
const (
	CheckMark   = "✓"
	XMark       = "✗"
	WarningMark = "⚠"
	InfoMark    = "ℹ"
)

const spinnerInterval = 100 * time.Millisecond

type contextKey struct{}

// Writer is the output sink shared by a command invocation.
type Writer struct {
	Out     io.Writer
	Err     io.Writer
	JSON    bool
	YAML    bool
	Quiet   bool
	NoInput bool

	terminal *terminal.Info
	tones    tones
}

type tones struct {
	success, failure, warning, info, muted *color.Color
}

// Default returns a Writer on stdout and stderr for the detected terminal.
func Default() *Writer {
	return NewWriter(os.Stdout, os.Stderr, terminal.Detect())
}

// NewWriter returns a Writer on out and errOut for term.
func NewWriter(out, errOut io.Writer, term *terminal.Info) *Writer {
	if !term.ColorEnabled() {
		color.NoColor = true
	}

	return &Writer{
		Out:      out,
		Err:      errOut,
		terminal: term,
		tones: tones{
			success: color.New(color.FgGreen),
			failure: color.New(color.FgRed),
			warning: color.New(color.FgYellow),
			info:    color.New(color.FgCyan),
			muted:   color.New(color.FgHiBlack),
		},
	}
}

// WithContext returns ctx carrying w.
func (w *Writer) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, w)
}

// FromContext returns the Writer carried by ctx, or Default.
func FromContext(ctx context.Context) *Writer {
	if w, ok := ctx.Value(contextKey{}).(*Writer); ok {
		return w
	}

	return Default()
}

// Terminal returns the terminal the Writer was built for.
func (w *Writer) Terminal() *terminal.Info {
	return w.terminal
}

// SetNoColor turns colors off for the rest of the process.
func (w *Writer) SetNoColor(disabled bool) {
	w.terminal.ForceFlag = disabled
	if disabled {
		color.NoColor = true
	}
}

// Print writes formatted text to stdout unless quiet.
func (w *Writer) Print(format string, args ...any) {
	if !w.Quiet {
		fmt.Fprintf(w.Out, format, args...)
	}
}

// Println writes a line to stdout unless quiet.
func (w *Writer) Println(args ...any) {
	if !w.Quiet {
		fmt.Fprintln(w.Out, args...)
	}
}

// Structured reports whether a machine-readable format was requested.
func (w *Writer) Structured() bool {
	return w.JSON || w.YAML
}

// PrintStructured renders v as YAML when only YAML was requested, otherwise
// as indented JSON. Quiet mode does not suppress it.
func (w *Writer) PrintStructured(v any) error {
	if w.YAML && !w.JSON {
		enc := yaml.NewEncoder(w.Out)
		enc.SetIndent(2)

		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}

		return enc.Close()
	}

	enc := json.NewEncoder(w.Out)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// Success prints a check-marked line to stdout unless quiet.
func (w *Writer) Success(format string, args ...any) {
	if !w.Quiet {
		w.status(w.Out, w.tones.success, CheckMark, fmt.Sprintf(format, args...))
	}
}

// Failure prints a crossed line to stderr, even when quiet.
func (w *Writer) Failure(format string, args ...any) {
	w.status(w.Err, w.tones.failure, XMark, fmt.Sprintf(format, args...))
}

// Warning prints a warning line to stdout unless quiet.
func (w *Writer) Warning(format string, args ...any) {
	if !w.Quiet {
		w.status(w.Out, w.tones.warning, WarningMark, fmt.Sprintf(format, args...))
	}
}

// Info prints an informational line to stdout unless quiet.
func (w *Writer) Info(format string, args ...any) {
	if !w.Quiet {
		w.status(w.Out, w.tones.info, InfoMark, fmt.Sprintf(format, args...))
	}
}

// Muted prints secondary text, grey on a color terminal, unless quiet.
func (w *Writer) Muted(format string, args ...any) {
	if w.Quiet {
		return
	}

	msg := fmt.Sprintf(format, args...)

	if w.terminal.ColorEnabled() {
		w.tones.muted.Fprintln(w.Out, msg)
		return
	}

	fmt.Fprintln(w.Out, msg)
}

func (w *Writer) status(dst io.Writer, tone *color.Color, symbol, msg string) {
	if w.terminal.ColorEnabled() {
		tone.Fprint(dst, symbol+" ")
		fmt.Fprintln(dst, msg)

		return
	}

	fmt.Fprintln(dst, symbol+" "+msg)
}

// Spinner shows progress for one operation. Off a TTY, or when quiet, it
// degrades to "message... done".
type Spinner struct {
	spin    *spinner.Spinner
	message string
	w       *Writer
}

// Spinner returns a stopped spinner labelled message.
func (w *Writer) Spinner(message string) *Spinner {
	s := &Spinner{message: message, w: w}

	if !w.Quiet && w.terminal.SpinnersEnabled() {
		s.spin = spinner.New(spinner.CharSets[14], spinnerInterval)
		s.spin.Writer = w.Out
		s.spin.Suffix = " " + message
	}

	return s
}

// Start begins the animation.
func (s *Spinner) Start() {
	if s.spin == nil {
		s.w.Print("%s... ", s.message)
		return
	}

	s.spin.Start()
}

// StopWithSuccess ends the animation and prints message as a success line.
func (s *Spinner) StopWithSuccess(message string) {
	s.stop("done")

	if message != "" {
		s.w.Success("%s", message)
	}
}

// StopWithFailure ends the animation and prints message as a failure line.
func (s *Spinner) StopWithFailure(message string) {
	s.stop("failed")

	if message != "" {
		s.w.Failure("%s", message)
	}
}

func (s *Spinner) stop(outcome string) {
	if s.spin == nil {
		s.w.Println(outcome)
		return
	}

	s.spin.Stop()
}
