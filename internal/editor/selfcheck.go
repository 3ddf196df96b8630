package editor

import (
	"fmt"
	"io"
)

// selfCheckInput exercises decoding of runes, enter, arrows, escape sequences,
// deletion and the submit chord.
var selfCheckInput = []byte("Hellp\x7fo\rWorld\x1b[D\x1b[C\x1b[A\x1b[F!\x04")

const selfCheckWant = "Hello!\nWorld"

// SelfCheck runs a scripted session through the decoder, the edit functions and
// the renderer without touching the terminal. It returns nil when the script
// produces the expected text.
func (h *Handler) SelfCheck() error {
	s, err := Options{}.resolve()
	if err != nil {
		return fmt.Errorf("default options rejected: %w", err)
	}

	session := newSession("self-check", s, h.now())
	view := newRenderer(io.Discard, 80, 24)

	var dec decoder

	keys := append(dec.Feed(selfCheckInput), dec.Flush()...)

	for _, k := range keys {
		finished := session.Handle(k)

		if err := view.Draw(session); err != nil {
			return fmt.Errorf("render: %w", err)
		}

		if finished {
			break
		}
	}

	if session.Status != StatusCompleted {
		return fmt.Errorf("scripted session ended %s, want completed", session.Status)
	}

	if got := session.Text(); got != selfCheckWant {
		return fmt.Errorf("scripted session produced %q, want %q", got, selfCheckWant)
	}

	return nil
}
