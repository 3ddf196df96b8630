// Package ansi holds the escape sequences mnemo writes to the terminal.
package ansi

import "fmt"

// ANSI escape sequence constants for terminal control.
const (
	Reset        = "\x1b[0m"
	Dim          = "\x1b[2m"
	ShowCursor   = "\x1b[?25h"
	HideCursor   = "\x1b[?25l"
	ClearToEnd   = "\x1b[J" // cursor to end of screen
	CursorUpFmt  = "\x1b[%dA"
	CursorFwdFmt = "\x1b[%dC"
	CarriageRet  = "\r"
	NewLine      = "\r\n" // raw mode does not translate LF
)

// CursorUp returns the sequence moving the cursor up n rows, or "" for n <= 0.
func CursorUp(n int) string {
	if n <= 0 {
		return ""
	}

	return fmt.Sprintf(CursorUpFmt, n)
}

// CursorForward returns the sequence moving the cursor right n columns, or "" for n <= 0.
func CursorForward(n int) string {
	if n <= 0 {
		return ""
	}

	return fmt.Sprintf(CursorFwdFmt, n)
}

// Styled wraps s in style and a trailing reset.
func Styled(style, s string) string {
	if s == "" {
		return ""
	}

	return style + s + Reset
}
