package tui

import (
	"github.com/charmbracelet/lipgloss"
	"legmirror/pkg/harvest"
)

// Colors adapt to light and dark terminals.
var (
	accent  = lipgloss.AdaptiveColor{Light: "#005F87", Dark: "#5FD7FF"}
	frame   = lipgloss.AdaptiveColor{Light: "#875F00", Dark: "#D7AF5F"}
	ok      = lipgloss.AdaptiveColor{Light: "#00875F", Dark: "#87D787"}
	caution = lipgloss.AdaptiveColor{Light: "#AF5F00", Dark: "#FFAF5F"}
	danger  = lipgloss.AdaptiveColor{Light: "#AF0000", Dark: "#FF5F5F"}
	text    = lipgloss.AdaptiveColor{Light: "#303030", Dark: "#C6C6C6"}
	muted   = lipgloss.AdaptiveColor{Light: "#8A8A8A", Dark: "#6C6C6C"}
	track   = lipgloss.AdaptiveColor{Light: "#D0D0D0", Dark: "#3A3A3A"}
)

func fg(c lipgloss.TerminalColor) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c)
}

var (
	baseStyle = fg(text)
	logoStyle = fg(accent).Bold(true).Padding(1, 0).Align(lipgloss.Center)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(frame).
			Padding(0, 1)
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#1C1C1C"}).
			Background(frame).
			Bold(true).
			Padding(0, 1).
			MarginBottom(1)

	statsLabelStyle    = fg(accent)
	statsValueStyle    = fg(text).Bold(true)
	progressEmptyStyle = fg(track)

	successStyle = fg(ok).Bold(true)
	warningStyle = fg(caution).Bold(true)
	errorStyle   = fg(danger).Bold(true)
	dimStyle     = fg(muted)

	logTimestampStyle = fg(muted)
	logMessageStyle   = fg(text)
	helpStyle         = fg(muted).Padding(1, 0, 0, 2)
)

// outcomeStyle colors a unit outcome. Duplicates and empty units need no
// attention so they stay muted.
func outcomeStyle(o harvest.Outcome) lipgloss.Style {
	switch o {
	case harvest.OutcomeUploaded:
		return successStyle
	case harvest.OutcomeFailed:
		return errorStyle
	case harvest.OutcomeInterrupted:
		return warningStyle
	default:
		return dimStyle
	}
}

// throttleStyle colors upload pacing by the percentage of the archive's
// per-minute cap in use.
func throttleStyle(usage float64) lipgloss.Style {
	if usage >= 90 {
		return errorStyle
	}
	if usage >= 70 {
		return warningStyle
	}
	return successStyle
}

var levelColors = map[string]lipgloss.TerminalColor{
	"ERROR": danger,
	"WARN":  caution,
	"DEBUG": muted,
}

func levelColor(level string) lipgloss.TerminalColor {
	if c, ok := levelColors[level]; ok {
		return c
	}
	return accent
}
