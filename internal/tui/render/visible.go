// Package render measures and fits text to terminal cells.
package render

import xansi "github.com/charmbracelet/x/ansi"

// Ellipsis marks truncated content.
const Ellipsis = "…"

// VisibleLength returns the number of terminal cells value occupies,
// excluding ANSI codes and counting wide runes as two.
func VisibleLength(value string) int {
	return xansi.StringWidth(value)
}

// Fit truncates value to at most width cells, ending in an ellipsis when cut.
func Fit(value string, width int) string {
	if width <= 0 {
		return ""
	}

	if VisibleLength(value) <= width {
		return value
	}

	return xansi.Truncate(value, width, Ellipsis)
}
