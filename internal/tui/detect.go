// Package tui renders run summaries and reports for the terminal.
package tui

import (
	"os"

	"golang.org/x/term"
)

// DefaultWidth is used when the output is not a terminal.
const DefaultWidth = 120

// Terminal describes the output a summary is rendered for.
type Terminal struct {
	// Styled enables colors and borders.
	Styled bool
	Width  int
}

// Plain is an unstyled terminal of default width.
var Plain = Terminal{Width: DefaultWidth}

// Detect inspects f and the environment.
//
// Output is plain if:
//   - f is not a terminal (piped output, CI logs)
//   - TRIPMERGE_PLAIN=1 is set
//   - CI is set (common CI/CD convention)
//   - NO_COLOR is set (accessibility/automation indicator)
func Detect(f *os.File) Terminal {
	t := Plain
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return t
	}
	if w, _, err := term.GetSize(fd); err == nil && w > 0 {
		t.Width = w
	}
	if os.Getenv("TRIPMERGE_PLAIN") == "1" || os.Getenv("CI") != "" || os.Getenv("NO_COLOR") != "" {
		return t
	}
	t.Styled = true
	return t
}
