package editor

import "strings"

// tabWidth is the number of spaces a tab inserts.
const tabWidth = 4

// Cursor is a position in a Buffer. Col counts runes, not bytes or cells.
type Cursor struct {
	Line int
	Col  int
}

// Buffer is the text being edited. It always holds at least one line, and
// the cursor always addresses a valid line with Col in [0, rune length].
//
// Edit functions never modify their argument; they return a new Buffer.
type Buffer struct {
	Lines  []string
	Cursor Cursor
}

// NewBuffer returns a buffer holding content with the cursor at its end.
func NewBuffer(content string) Buffer {
	lines := strings.Split(content, "\n")
	last := len(lines) - 1

	return Buffer{
		Lines:  lines,
		Cursor: Cursor{Line: last, Col: runeLen(lines[last])},
	}
}

// Text joins the lines with "\n".
func (b Buffer) Text() string {
	return strings.Join(b.Lines, "\n")
}

// Empty reports whether the buffer holds a single empty line.
func (b Buffer) Empty() bool {
	return len(b.Lines) == 1 && b.Lines[0] == ""
}

func (b Buffer) clone() Buffer {
	lines := make([]string, len(b.Lines))
	copy(lines, b.Lines)

	return Buffer{Lines: lines, Cursor: b.Cursor}
}

func (b Buffer) current() []rune {
	return []rune(b.Lines[b.Cursor.Line])
}

func runeLen(s string) int {
	return len([]rune(s))
}

// InsertRune inserts r at the cursor.
func InsertRune(b Buffer, r rune) Buffer {
	return insertText(b, string(r))
}

// InsertTab inserts tabWidth spaces at the cursor.
func InsertTab(b Buffer) Buffer {
	return insertText(b, strings.Repeat(" ", tabWidth))
}

func insertText(b Buffer, s string) Buffer {
	out := b.clone()
	line := out.current()
	col := out.Cursor.Col
	ins := []rune(s)

	joined := make([]rune, 0, len(line)+len(ins))
	joined = append(joined, line[:col]...)
	joined = append(joined, ins...)
	joined = append(joined, line[col:]...)

	out.Lines[out.Cursor.Line] = string(joined)
	out.Cursor.Col += len(ins)

	return out
}

// SplitLine breaks the current line at the cursor and moves to the start of
// the new line. With maxLines > 0 it does nothing once the buffer is full.
func SplitLine(b Buffer, maxLines int) Buffer {
	if maxLines > 0 && len(b.Lines) >= maxLines {
		return b
	}

	line := b.current()
	col := b.Cursor.Col
	at := b.Cursor.Line

	lines := make([]string, 0, len(b.Lines)+1)
	lines = append(lines, b.Lines[:at]...)
	lines = append(lines, string(line[:col]), string(line[col:]))
	lines = append(lines, b.Lines[at+1:]...)

	return Buffer{Lines: lines, Cursor: Cursor{Line: at + 1, Col: 0}}
}

// DeleteBackward removes the rune left of the cursor, joining with the
// previous line at column 0. It does nothing at the start of the buffer.
func DeleteBackward(b Buffer) Buffer {
	c := b.Cursor
	if c.Line == 0 && c.Col == 0 {
		return b
	}

	if c.Col == 0 {
		return joinWithNext(b, c.Line-1)
	}

	out := b.clone()
	line := out.current()
	out.Lines[c.Line] = string(append(line[:c.Col-1:c.Col-1], line[c.Col:]...))
	out.Cursor.Col--

	return out
}

// DeleteForward removes the rune under the cursor, joining the next line at
// end of line. It does nothing at the end of the buffer.
func DeleteForward(b Buffer) Buffer {
	c := b.Cursor
	line := b.current()

	if c.Col < len(line) {
		out := b.clone()
		out.Lines[c.Line] = string(append(line[:c.Col:c.Col], line[c.Col+1:]...))

		return out
	}

	if c.Line == len(b.Lines)-1 {
		return b
	}

	out := joinWithNext(b, c.Line)
	out.Cursor = c

	return out
}

// joinWithNext merges line i+1 into line i and leaves the cursor at the seam.
func joinWithNext(b Buffer, i int) Buffer {
	seam := runeLen(b.Lines[i])

	lines := make([]string, 0, len(b.Lines)-1)
	lines = append(lines, b.Lines[:i]...)
	lines = append(lines, b.Lines[i]+b.Lines[i+1])
	lines = append(lines, b.Lines[i+2:]...)

	return Buffer{Lines: lines, Cursor: Cursor{Line: i, Col: seam}}
}

// MoveLeft moves one rune left, wrapping to the end of the previous line.
func MoveLeft(b Buffer) Buffer {
	c := b.Cursor

	switch {
	case c.Col > 0:
		c.Col--
	case c.Line > 0:
		c.Line--
		c.Col = runeLen(b.Lines[c.Line])
	}

	return Buffer{Lines: b.Lines, Cursor: c}
}

// MoveRight moves one rune right, wrapping to the start of the next line.
func MoveRight(b Buffer) Buffer {
	c := b.Cursor

	switch {
	case c.Col < runeLen(b.Lines[c.Line]):
		c.Col++
	case c.Line < len(b.Lines)-1:
		c.Line++
		c.Col = 0
	}

	return Buffer{Lines: b.Lines, Cursor: c}
}

// MoveUp moves to the previous line, clamping the column.
func MoveUp(b Buffer) Buffer {
	if b.Cursor.Line == 0 {
		return b
	}

	return moveToLine(b, b.Cursor.Line-1)
}

// MoveDown moves to the next line, clamping the column.
func MoveDown(b Buffer) Buffer {
	if b.Cursor.Line >= len(b.Lines)-1 {
		return b
	}

	return moveToLine(b, b.Cursor.Line+1)
}

func moveToLine(b Buffer, line int) Buffer {
	col := min(b.Cursor.Col, runeLen(b.Lines[line]))
	return Buffer{Lines: b.Lines, Cursor: Cursor{Line: line, Col: col}}
}

// MoveHome jumps to the start of the current line.
func MoveHome(b Buffer) Buffer {
	return Buffer{Lines: b.Lines, Cursor: Cursor{Line: b.Cursor.Line}}
}

// MoveEnd jumps to the end of the current line.
func MoveEnd(b Buffer) Buffer {
	return Buffer{Lines: b.Lines, Cursor: Cursor{Line: b.Cursor.Line, Col: runeLen(b.Lines[b.Cursor.Line])}}
}
