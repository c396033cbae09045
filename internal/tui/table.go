package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// table lays out rows in left-aligned columns. The last column is truncated to fit the width.
type table struct {
	header []string
	rows   [][]string
	styles []lipgloss.Style // per row, applied to the first two cells when styled
}

func (t *table) add(style lipgloss.Style, cells ...string) {
	t.rows = append(t.rows, cells)
	t.styles = append(t.styles, style)
}

func (t *table) render(term Terminal) string {
	widths := make([]int, len(t.header))
	for i, h := range t.header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	last := len(widths) - 1
	used := 0
	for _, w := range widths[:last] {
		used += w + 2
	}
	if room := term.Width - used; room > 8 && widths[last] > room {
		widths[last] = room
	}

	var b strings.Builder
	line := func(cells []string, style *lipgloss.Style) {
		for i, cell := range cells {
			cell = truncate(cell, widths[i])
			pad := strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
			if style != nil && i < 2 {
				cell = style.Render(cell)
			}
			b.WriteString(cell)
			if i < last {
				b.WriteString(pad + "  ")
			}
		}
		b.WriteString("\n")
	}

	header := t.header
	if term.Styled {
		header = make([]string, len(t.header))
		for i, h := range t.header {
			header[i] = HeaderStyle.Render(h) + strings.Repeat(" ", widths[i]-lipgloss.Width(h))
		}
		for i, h := range header {
			b.WriteString(h)
			if i < last {
				b.WriteString("  ")
			}
		}
		b.WriteString("\n")
	} else {
		line(header, nil)
	}
	for i, row := range t.rows {
		if term.Styled {
			line(row, &t.styles[i])
		} else {
			line(row, nil)
		}
	}
	return b.String()
}

func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	if width <= 1 {
		return string(r[:width])
	}
	for lipgloss.Width(string(r)) > width-1 {
		r = r[:len(r)-1]
	}
	return string(r) + "…"
}
