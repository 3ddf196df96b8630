package editor

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/mnemo-dev/mnemo/internal/tui/ansi"
	"github.com/mnemo-dev/mnemo/internal/tui/render"
)

const (
	activeMarker = ">"
	lineSep      = "|"
	minWidth     = 8
	minHeight    = 3
)

// renderer redraws the session region in place. The region is the prompt,
// the visible window of buffer lines and one help line.
type renderer struct {
	out    io.Writer
	width  int
	height int

	rows      int // rows in the last frame; 0 before the first draw
	cursorRow int // cursor row within the last frame
	top       int // first buffer line in the window
}

func newRenderer(out io.Writer, width, height int) *renderer {
	return &renderer{
		out:    out,
		width:  max(width, minWidth),
		height: max(height, minHeight),
	}
}

// Draw replaces the previous frame with one for s.
func (r *renderer) Draw(s *Session) error {
	_, err := io.WriteString(r.out, r.frame(s))
	return err
}

// Finish leaves the last frame on screen and moves the cursor below it.
func (r *renderer) Finish() error {
	if r.rows == 0 {
		return nil
	}

	down := strings.Repeat(ansi.NewLine, r.rows-r.cursorRow)
	r.rows = 0

	_, err := io.WriteString(r.out, ansi.ShowCursor+down)

	return err
}

func (r *renderer) frame(s *Session) string {
	var sb strings.Builder

	sb.WriteString(ansi.HideCursor)

	if r.rows > 0 {
		sb.WriteString(ansi.CursorUp(r.cursorRow))
	}

	sb.WriteString(ansi.CarriageRet)
	sb.WriteString(ansi.ClearToEnd)

	lines := s.Buffer.Lines
	cur := s.Buffer.Cursor
	visible := r.window(len(lines), cur.Line)
	usable := r.width - 1 // the last column would trigger auto-wrap

	sb.WriteString(render.Fit(s.Prompt, usable))

	digits := len(strconv.Itoa(len(lines)))
	cursorPrefix := 0

	for i := r.top; i < r.top+visible; i++ {
		prefix := r.prefix(s, i, digits)
		content := lines[i]

		if s.Buffer.Empty() && s.settings.placeholder != "" {
			content = ansi.Styled(ansi.Dim, render.Fit(s.settings.placeholder, usable-render.VisibleLength(prefix)))
		} else {
			content = render.Fit(content, usable-render.VisibleLength(prefix))
		}

		if i == cur.Line {
			cursorPrefix = render.VisibleLength(prefix)
		}

		sb.WriteString(ansi.NewLine)
		sb.WriteString(prefix)
		sb.WriteString(content)
	}

	sb.WriteString(ansi.NewLine)
	sb.WriteString(ansi.Styled(ansi.Dim, render.Fit(helpText(s.settings), usable)))

	r.rows = visible + 2
	r.cursorRow = 1 + cur.Line - r.top

	col := cursorPrefix + runewidth.StringWidth(string(s.Buffer.current()[:cur.Col]))
	col = min(col, usable)

	sb.WriteString(ansi.CursorUp(r.rows - 1 - r.cursorRow))
	sb.WriteString(ansi.CarriageRet)
	sb.WriteString(ansi.CursorForward(col))
	sb.WriteString(ansi.ShowCursor)

	return sb.String()
}

// window scrolls so the cursor line is visible and returns how many lines show.
func (r *renderer) window(total, cursorLine int) int {
	visible := min(total, r.height-2)

	if cursorLine < r.top {
		r.top = cursorLine
	}

	if cursorLine >= r.top+visible {
		r.top = cursorLine - visible + 1
	}

	r.top = max(0, min(r.top, total-visible))

	return visible
}

func (r *renderer) prefix(s *Session, line, digits int) string {
	marker := " "
	if line == s.Buffer.Cursor.Line {
		marker = activeMarker
	}

	if !s.settings.lineNumbers {
		return marker + " "
	}

	return fmt.Sprintf("%s %*d %s ", marker, digits, line+1, lineSep)
}

func helpText(s settings) string {
	help := fmt.Sprintf("%s to submit, %s to cancel", s.submit[0], s.cancel[0])
	if s.maxLines > 0 {
		help += fmt.Sprintf(", max %d lines", s.maxLines)
	}

	return help
}
