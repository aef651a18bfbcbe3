package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"legmirror/pkg/harvest"
	"legmirror/pkg/ui"
)

const logo = `
╔═════════════════════════════════════════════════════════╗
║ ██╗     ███████╗ ██████╗ ███╗   ███╗██╗██████╗ ██████╗  ║
║ ██║     ██╔════╝██╔════╝ ████╗ ████║██║██╔══██╗██╔══██╗ ║
║ ██║     █████╗  ██║  ███╗██╔████╔██║██║██████╔╝██████╔╝ ║
║ ██║     ██╔══╝  ██║   ██║██║╚██╔╝██║██║██╔══██╗██╔══██╗ ║
║ ███████╗███████╗╚██████╔╝██║ ╚═╝ ██║██║██║  ██║██║  ██║ ║
║ ╚══════╝╚══════╝ ╚═════╝ ╚═╝     ╚═╝╚═╝╚═╝  ╚═╝╚═╝  ╚═╝ ║
╚═════════════════════════════════════════════════════════╝`

// View renders the entire TUI
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, logoStyle.Width(m.width).Render(logo))

	width := (m.width - 4) / 2
	left := lipgloss.JoinVertical(lipgloss.Left,
		m.renderRunPanel(width),
		m.renderUnitsPanel(width),
	)
	right := lipgloss.JoinVertical(lipgloss.Left,
		m.renderThrottlePanel(width),
		m.renderLogsPanel(width),
	)
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right))

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("Press ? for help"))
	}

	return baseStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func stat(label, value string) string {
	return fmt.Sprintf("%s %s", statsLabelStyle.Render(label), statsValueStyle.Render(value))
}

// renderRunPanel shows the run counters and, for bounded runs, a bar.
func (m Model) renderRunPanel(width int) string {
	s := m.summary
	title := titleStyle.Render(" " + strings.ToUpper(m.opts.Source) + " ")

	status := m.spinner.View() + " harvesting"
	switch {
	case m.done:
		status = successStyle.Render("✓ " + string(s.StopReason))
	case m.stopping:
		status = warningStyle.Render("⏸  stopping")
	}

	unitsPerMin, _, eta := m.Stats()
	lines := []string{
		status,
		stat("Elapsed:", formatDuration(m.now().Sub(m.started))),
		stat("Enumerated:", fmt.Sprintf("%d (%d already done)", s.Enumerated, s.Skipped)),
		stat("Processed:", fmt.Sprintf("%d ok, %d failed", s.Uploaded, s.Failed)),
		stat("Artifacts:", fmt.Sprintf("%d uploaded, %d duplicates", s.ArtifactsUploaded, s.Duplicates)),
		stat("Staged:", ui.FormatBytes(s.BytesStaged)),
		stat("Rate:", fmt.Sprintf("%.1f units/min", unitsPerMin)),
	}

	if m.opts.MaxUnits > 0 {
		bar := m.bar
		bar.Width = max(width-10, 10)
		pct := min(float64(s.Processed)/float64(m.opts.MaxUnits), 1)
		lines = append(lines,
			stat("Budget:", fmt.Sprintf("%d/%d units, ETA %s", s.Processed, m.opts.MaxUnits, formatDuration(eta))),
			bar.ViewAs(pct),
		)
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")),
	)
}

// renderUnitsPanel lists the most recently finished units.
func (m Model) renderUnitsPanel(width int) string {
	title := titleStyle.Render(" RECENT UNITS ")

	if len(m.recent) == 0 {
		content := dimStyle.Render("No units finished yet")
		return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
	}

	var rows []string
	for i := len(m.recent) - 1; i >= 0; i-- {
		r := m.recent[i]
		line := fmt.Sprintf("%s %-11s %s", outcomeStyle(r.Outcome).Render(icon(r.Outcome)), r.Outcome, r.Key)
		if r.Detail != "" {
			line += " " + dimStyle.Render(truncate(r.Detail, width-len(r.Key)-24))
		}
		rows = append(rows, line)
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(rows, "\n")),
	)
}

// renderThrottlePanel shows sink upload pacing against the configured cap.
func (m Model) renderThrottlePanel(width int) string {
	title := titleStyle.Render(" PACING ")
	_, uploadsPerMin, _ := m.Stats()

	lines := []string{
		stat("Source interval:", m.opts.MinInterval.String()),
		stat("Calls:", fmt.Sprintf("%d fetches, %d downloads, %d uploads", m.summary.Fetches, m.summary.Downloads, m.summary.Uploads)),
	}

	if limit := m.opts.UploadsPerMinute; limit > 0 {
		usage := uploadsPerMin / float64(limit) * 100
		style := throttleStyle(usage)
		barWidth := max(width-8, 4)
		filled := min(int(usage*float64(barWidth)/100), barWidth)
		lines = append(lines,
			fmt.Sprintf("%s %s", statsLabelStyle.Render("Uploads:"),
				style.Render(fmt.Sprintf("%.1f/%d per min (%.0f%%)", uploadsPerMin, limit, usage))),
			style.Render(strings.Repeat("█", filled))+progressEmptyStyle.Render(strings.Repeat("░", barWidth-filled)),
		)
	} else {
		lines = append(lines, stat("Uploads:", fmt.Sprintf("%.1f per min, uncapped", uploadsPerMin)))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")),
	)
}

// renderLogsPanel renders the logs panel
func (m Model) renderLogsPanel(width int) string {
	title := titleStyle.Render(" LOG ")

	start := max(len(m.logMessages)-10, 0)

	var logs []string
	for _, log := range m.logMessages[start:] {
		timestamp := logTimestampStyle.Render(log.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(log.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", log.Level))
		message := logMessageStyle.Render(truncate(log.Message, width-25))
		logs = append(logs, fmt.Sprintf("%s %s %s", timestamp, level, message))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = dimStyle.Render("No logs yet...")
	}

	logsHeight := max(m.height-35, 5)

	return panelStyle.Width(width).Height(logsHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

// renderHelp lists the key bindings and the outcome icons.
func (m Model) renderHelp() string {
	var b strings.Builder
	b.WriteString(statsLabelStyle.Render("Keys") + "\n")
	for _, k := range keys.bindings() {
		h := k.Help()
		fmt.Fprintf(&b, "  %-8s %s\n", h.Key, dimStyle.Render(h.Desc))
	}
	b.WriteString("\n" + statsLabelStyle.Render("Units") + "\n")
	for _, o := range []harvest.Outcome{harvest.OutcomeUploaded, harvest.OutcomeDuplicate, harvest.OutcomeFailed, harvest.OutcomeInterrupted} {
		fmt.Fprintf(&b, "  %s  %s\n", outcomeStyle(o).Render(icon(o)), dimStyle.Render(outcomeHelp[o]))
	}
	return panelStyle.Width(m.width).Render(b.String())
}

var outcomeHelp = map[harvest.Outcome]string{
	harvest.OutcomeUploaded:    "uploaded",
	harvest.OutcomeDuplicate:   "already in the archive, or nothing to upload",
	harvest.OutcomeFailed:      "failed, retried next run",
	harvest.OutcomeInterrupted: "interrupted",
}

func icon(o harvest.Outcome) string {
	switch o {
	case harvest.OutcomeUploaded:
		return "✓"
	case harvest.OutcomeFailed:
		return "✗"
	case harvest.OutcomeInterrupted:
		return "⏸"
	default:
		return "="
	}
}

// truncate shortens s to n terminal cells. Devanagari, Kannada and Telugu
// titles are wider than their byte count suggests.
func truncate(s string, n int) string {
	return runewidth.Truncate(s, max(n, 4), "...")
}

// formatDuration formats a duration as a clock
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "00:00"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
