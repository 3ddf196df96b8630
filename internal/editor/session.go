package editor

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Session.
type Status int

// Session states.
const (
	StatusActive Status = iota
	StatusCompleted
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Session is one text collection, owned by the Collect call that created it.
type Session struct {
	ID        string
	Prompt    string
	Buffer    Buffer
	StartedAt time.Time
	Status    Status

	settings settings
}

func newSession(prompt string, s settings, now time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		Buffer:    NewBuffer(s.defaultContent),
		StartedAt: now,
		Status:    StatusActive,
		settings:  s,
	}
}

// edit is a pure buffer transformation bound to a key kind.
type edit func(Buffer, Key, settings) Buffer

var edits = map[KeyKind]edit{
	KeyRune:      func(b Buffer, k Key, _ settings) Buffer { return InsertRune(b, k.Rune) },
	KeyTab:       func(b Buffer, _ Key, _ settings) Buffer { return InsertTab(b) },
	KeyEnter:     func(b Buffer, _ Key, s settings) Buffer { return SplitLine(b, s.maxLines) },
	KeyBackspace: func(b Buffer, _ Key, _ settings) Buffer { return DeleteBackward(b) },
	KeyDelete:    func(b Buffer, _ Key, _ settings) Buffer { return DeleteForward(b) },
	KeyLeft:      func(b Buffer, _ Key, _ settings) Buffer { return MoveLeft(b) },
	KeyRight:     func(b Buffer, _ Key, _ settings) Buffer { return MoveRight(b) },
	KeyUp:        func(b Buffer, _ Key, _ settings) Buffer { return MoveUp(b) },
	KeyDown:      func(b Buffer, _ Key, _ settings) Buffer { return MoveDown(b) },
	KeyHome:      func(b Buffer, _ Key, _ settings) Buffer { return MoveHome(b) },
	KeyEnd:       func(b Buffer, _ Key, _ settings) Buffer { return MoveEnd(b) },
}

// Handle applies k and reports whether the session reached a terminal state.
// Keys arriving after that are ignored.
func (s *Session) Handle(k Key) bool {
	if s.Status != StatusActive {
		return true
	}

	switch {
	case s.settings.isCancel(k):
		s.Status = StatusCancelled
		s.Buffer = NewBuffer("")

		return true
	case s.settings.isSubmit(k):
		s.Status = StatusCompleted
		return true
	}

	if fn, ok := edits[k.Kind]; ok {
		s.Buffer = fn(s.Buffer, k, s.settings)
	}

	return false
}

// Text returns the buffer contents joined with "\n".
func (s *Session) Text() string {
	return s.Buffer.Text()
}
