package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/vvka-141/tripmerge/internal/feed"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

// ANSI 256 palette.
var (
	colorAccent  = lipgloss.Color("39")  // blue
	colorHeader  = lipgloss.Color("245") // gray
	colorDone    = lipgloss.Color("34")  // green
	colorPartial = lipgloss.Color("178") // amber
	colorFailed  = lipgloss.Color("196") // red
	colorIdle    = lipgloss.Color("240") // dark gray
)

var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent).MarginBottom(1)
	HeaderStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorHeader)
	BoxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorHeader).Padding(0, 1)
	SuccessStyle = lipgloss.NewStyle().Foreground(colorDone)
	PartialStyle = lipgloss.NewStyle().Foreground(colorPartial)
	ErrorStyle   = lipgloss.NewStyle().Foreground(colorFailed)
	MutedStyle   = lipgloss.NewStyle().Foreground(colorIdle)
)

const (
	SymbolCheck = "✓"
	SymbolCross = "✗"
)

// StateStyle colors a batch row by how far the batch got: merged green, staged or
// identified amber, failed red, anything else muted.
func StateStyle(state tripmerge.BatchState, mode tripmerge.LoadMode) lipgloss.Style {
	switch state {
	case tripmerge.StateMerged:
		return SuccessStyle
	case tripmerge.StateStaged:
		if mode == tripmerge.ModeAsIs {
			return SuccessStyle
		}
		return PartialStyle
	case tripmerge.StateIdentified:
		return PartialStyle
	case tripmerge.StateFailed:
		return ErrorStyle
	}
	return MutedStyle
}

// DownloadStyle colors a feed download row.
func DownloadStyle(status feed.Status) lipgloss.Style {
	switch status {
	case feed.StatusDownloaded:
		return SuccessStyle
	case feed.StatusFailed:
		return ErrorStyle
	}
	return MutedStyle
}
