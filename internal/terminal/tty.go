package terminal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/muesli/cancelreader"
	"golang.org/x/term"
)

// ErrNotTerminal is returned when an operation needs a TTY and the stream is not one.
var ErrNotTerminal = errors.New("not a terminal")

// Terminal is the controlling terminal as seen by an interactive session.
type Terminal interface {
	// IsTerminal reports whether both input and output are TTYs.
	IsTerminal() bool

	// MakeRaw switches input to raw mode. The returned restore func is
	// idempotent and must be called on every exit path.
	MakeRaw() (restore func() error, err error)

	// IsRaw reports whether raw mode is currently held.
	IsRaw() bool

	// Size returns the output dimensions in cells.
	Size() (width, height int)

	// NewReader opens a cancellable reader over input.
	NewReader() (cancelreader.CancelReader, error)

	// OpenReaders returns the number of readers opened and not yet closed.
	OpenReaders() int

	// Output is where rendering goes.
	Output() io.Writer
}

// TTY is a Terminal over a pair of files, normally stdin and stdout.
type TTY struct {
	in  *os.File
	out *os.File

	mu      sync.Mutex
	raw     atomic.Bool
	readers atomic.Int64
}

// Stdio returns a TTY over os.Stdin and os.Stdout.
func Stdio() *TTY {
	return NewTTY(os.Stdin, os.Stdout)
}

// NewTTY returns a TTY reading from in and rendering to out.
func NewTTY(in, out *os.File) *TTY {
	return &TTY{in: in, out: out}
}

// IsTerminal implements Terminal.
func (t *TTY) IsTerminal() bool {
	return term.IsTerminal(int(t.in.Fd())) && term.IsTerminal(int(t.out.Fd()))
}

// MakeRaw implements Terminal.
func (t *TTY) MakeRaw() (func() error, error) {
	fd := int(t.in.Fd())
	if !term.IsTerminal(fd) {
		return nil, ErrNotTerminal
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.raw.Load() {
		return nil, fmt.Errorf("raw mode already held")
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("enter raw mode: %w", err)
	}

	t.raw.Store(true)

	var (
		once       sync.Once
		restoreErr error
	)

	restore := func() error {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()

			restoreErr = term.Restore(fd, state)
			t.raw.Store(false)
		})

		return restoreErr
	}

	return restore, nil
}

// IsRaw implements Terminal.
func (t *TTY) IsRaw() bool {
	return t.raw.Load()
}

// Size implements Terminal.
func (t *TTY) Size() (int, int) {
	width, height, err := term.GetSize(int(t.out.Fd()))
	if err != nil || width <= 0 || height <= 0 {
		return 80, 24
	}

	return width, height
}

// NewReader implements Terminal.
func (t *TTY) NewReader() (cancelreader.CancelReader, error) {
	return countReader(t.in, &t.readers)
}

// OpenReaders implements Terminal.
func (t *TTY) OpenReaders() int {
	return int(t.readers.Load())
}

// Output implements Terminal.
func (t *TTY) Output() io.Writer {
	return t.out
}

// CheckRawMode verifies that t is interactive and that raw mode can be
// entered and restored.
func CheckRawMode(t Terminal) error {
	if !t.IsTerminal() {
		return ErrNotTerminal
	}

	restore, err := t.MakeRaw()
	if err != nil {
		return err
	}

	if err := restore(); err != nil {
		return fmt.Errorf("restore terminal: %w", err)
	}

	if t.IsRaw() {
		return fmt.Errorf("raw mode still held after restore")
	}

	return nil
}

// countedReader decrements its owner's open-reader count exactly once on Close.
type countedReader struct {
	cancelreader.CancelReader

	once  sync.Once
	count *atomic.Int64
}

func countReader(r io.Reader, count *atomic.Int64) (cancelreader.CancelReader, error) {
	inner, err := cancelreader.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open input reader: %w", err)
	}

	count.Add(1)

	return &countedReader{CancelReader: inner, count: count}, nil
}

func (r *countedReader) Close() error {
	err := r.CancelReader.Close()
	r.once.Do(func() { r.count.Add(-1) })

	return err
}

// Pipe is a Terminal backed by an OS pipe, for driving sessions without a TTY.
// Writes to the returned input feed the session; rendering goes to out.
type Pipe struct {
	r   *os.File
	w   *os.File
	out io.Writer

	width, height int

	raw     atomic.Bool
	readers atomic.Int64
}

// NewPipe returns a Pipe terminal of the given size rendering to out.
func NewPipe(out io.Writer, width, height int) (*Pipe, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create pipe: %w", err)
	}

	return &Pipe{r: r, w: w, out: out, width: width, height: height}, nil
}

// Input returns the writing end feeding the session's keystrokes.
func (p *Pipe) Input() io.Writer {
	return p.w
}

// Close releases both ends of the pipe.
func (p *Pipe) Close() error {
	return errors.Join(p.w.Close(), p.r.Close())
}

// IsTerminal implements Terminal. A Pipe always claims to be interactive.
func (p *Pipe) IsTerminal() bool {
	return true
}

// MakeRaw implements Terminal by tracking the mode only.
func (p *Pipe) MakeRaw() (func() error, error) {
	if !p.raw.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("raw mode already held")
	}

	var once sync.Once

	return func() error {
		once.Do(func() { p.raw.Store(false) })
		return nil
	}, nil
}

// IsRaw implements Terminal.
func (p *Pipe) IsRaw() bool {
	return p.raw.Load()
}

// Size implements Terminal.
func (p *Pipe) Size() (int, int) {
	return p.width, p.height
}

// NewReader implements Terminal.
func (p *Pipe) NewReader() (cancelreader.CancelReader, error) {
	return countReader(p.r, &p.readers)
}

// OpenReaders implements Terminal.
func (p *Pipe) OpenReaders() int {
	return int(p.readers.Load())
}

// Output implements Terminal.
func (p *Pipe) Output() io.Writer {
	return p.out
}
