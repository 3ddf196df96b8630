// Package editor collects multi-line text inline in the terminal, without
// launching an external editor.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/muesli/cancelreader"

	clierrors "github.com/mnemo-dev/mnemo/internal/errors"
	"github.com/mnemo-dev/mnemo/internal/observability"
	"github.com/mnemo-dev/mnemo/internal/terminal"
)

// ErrCancelled is returned by Collect when the user presses a cancel chord.
var ErrCancelled = errors.New("input cancelled by user")

// escapeTimeout is how long a lone ESC waits for the rest of a sequence.
const escapeTimeout = 50 * time.Millisecond

const readChunk = 256

// Handler runs inline text input sessions on a terminal.
type Handler struct {
	term   terminal.Terminal
	logger *slog.Logger
	now    func() time.Time
}

// NewHandler returns a Handler bound to term.
func NewHandler(term terminal.Terminal, logger *slog.Logger) *Handler {
	return &Handler{
		term:   term,
		logger: observability.Component(logger, "editor"),
		now:    time.Now,
	}
}

type chunk struct {
	data []byte
	err  error
}

// Collect runs one session and returns the submitted text.
//
// It returns ErrCancelled when the user cancels, ctx.Err() when ctx ends, a
// validation error for bad options and a capability error when the terminal
// cannot enter raw mode. Raw mode and the input reader are released before
// Collect returns, whatever the outcome.
func (h *Handler) Collect(ctx context.Context, prompt string, opts Options) (string, error) {
	s, err := opts.resolve()
	if err != nil {
		return "", err
	}

	if !h.term.IsTerminal() {
		return "", clierrors.TerminalUnsupported(terminal.ErrNotTerminal)
	}

	restore, err := h.term.MakeRaw()
	if err != nil {
		return "", clierrors.TerminalUnsupported(err)
	}

	defer func() {
		if restoreErr := restore(); restoreErr != nil {
			h.logger.Warn("restore terminal failed", slog.String("error", restoreErr.Error()))
		}
	}()

	reader, err := h.term.NewReader()
	if err != nil {
		return "", clierrors.TerminalUnsupported(err)
	}

	chunks := make(chan chunk)
	stop := make(chan struct{})
	done := make(chan struct{})

	go readLoop(reader, chunks, stop, done)

	defer func() {
		close(stop)
		reader.Cancel()
		<-done

		_ = reader.Close()
	}()

	session := newSession(prompt, s, h.now())
	width, height := h.term.Size()
	view := newRenderer(h.term.Output(), width, height)

	log := h.logger.With(slog.String("input.session_id", session.ID))
	log.Debug("input session started", slog.String("event.type", "input.start"))

	defer func() {
		if finishErr := view.Finish(); finishErr != nil {
			log.Debug("finish render failed", slog.String("error", finishErr.Error()))
		}
	}()

	if err := view.Draw(session); err != nil {
		return "", fmt.Errorf("render input: %w", err)
	}

	if err := h.run(ctx, session, view, chunks); err != nil {
		log.Debug("input session ended",
			slog.String("event.type", "input.end"),
			slog.String("error", err.Error()),
		)

		return "", err
	}

	log.Debug("input session ended",
		slog.String("event.type", "input.end"),
		slog.String("input.status", session.Status.String()),
		slog.Int("input.lines", len(session.Buffer.Lines)),
	)

	if session.Status == StatusCancelled {
		return "", ErrCancelled
	}

	return session.Text(), nil
}

// run feeds input into the session until it completes or is cancelled.
func (h *Handler) run(ctx context.Context, session *Session, view *renderer, chunks <-chan chunk) error {
	var (
		dec   decoder
		timer *time.Timer
		fire  <-chan time.Time
	)

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	apply := func(keys []Key) (bool, error) {
		for _, k := range keys {
			if session.Handle(k) {
				return true, view.Draw(session)
			}
		}

		if len(keys) == 0 {
			return false, nil
		}

		return false, view.Draw(session)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-fire:
			fire = nil

			finished, err := apply(dec.Flush())
			if err != nil || finished {
				return err
			}

		case c := <-chunks:
			if c.err != nil {
				return fmt.Errorf("read input: %w", c.err)
			}

			finished, err := apply(dec.Feed(c.data))
			if err != nil || finished {
				return err
			}

			if dec.Pending() {
				if timer == nil {
					timer = time.NewTimer(escapeTimeout)
				} else {
					timer.Reset(escapeTimeout)
				}

				fire = timer.C
			} else {
				fire = nil
			}
		}
	}
}

// readLoop forwards raw input until the reader fails or stop closes.
func readLoop(r cancelreader.CancelReader, chunks chan<- chunk, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	buf := make([]byte, readChunk)

	for {
		n, err := r.Read(buf)

		var c chunk

		switch {
		case n > 0:
			c.data = append([]byte(nil), buf[:n]...)
		case errors.Is(err, cancelreader.ErrCanceled):
			return
		case err != nil:
			c.err = err
		default:
			continue
		}

		select {
		case chunks <- c:
		case <-stop:
			return
		}

		if c.err != nil {
			return
		}
	}
}
