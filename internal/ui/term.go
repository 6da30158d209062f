package ui

import (
	"os"

	"golang.org/x/term"
)

const maxBarWidth = 40

// BarWidth sizes the progress bar for f: a quarter of the terminal, at most
// maxBarWidth cells. It returns 0, meaning no bar, when f is not a terminal.
func BarWidth(f *os.File) int {
	fd := int(f.Fd()) //nolint:gosec // G115: fd values are small non-negative integers
	if !term.IsTerminal(fd) {
		return 0
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		w = 80
	}
	return min(w/4, maxBarWidth)
}
