package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"legmirror/pkg/harvest"
)

const (
	maxRecentUnits = 8
	maxLogMessages = 50
)

// Options describes the run the dashboard is watching.
type Options struct {
	Source string
	// MaxUnits is the run's unit budget; zero means open-ended.
	MaxUnits int
	// UploadsPerMinute is the configured upload cap; zero means uncapped.
	UploadsPerMinute int
	MinInterval      time.Duration
	// Cancel interrupts the run when the user quits.
	Cancel func()
}

// UnitRow is one finished unit in the recent list.
type UnitRow struct {
	Key      string
	Outcome  harvest.Outcome
	Detail   string
	Duration time.Duration
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.TerminalColor
}

// Model is the dashboard state. It is only touched from Update.
type Model struct {
	spinner spinner.Model
	bar     progress.Model

	opts    Options
	summary harvest.Summary
	final   *harvest.Summary
	err     error

	recent      []UnitRow
	logMessages []LogMessage

	started  time.Time
	now      func() time.Time
	width    int
	height   int
	showHelp bool
	stopping bool
	done     bool
}

// NewModel creates a dashboard model for one run.
func NewModel(opts Options) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = fg(accent)

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40

	return Model{
		spinner: s,
		bar:     bar,
		opts:    opts,
		started: time.Now(),
		now:     time.Now,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, clock())
}

// applyUnit folds one unit event into the model.
func (m *Model) applyUnit(ev harvest.UnitEvent, s harvest.Summary) {
	m.summary = s
	if ev.Outcome == harvest.OutcomeSkipped {
		return
	}

	row := UnitRow{Key: ev.Key, Outcome: ev.Outcome, Duration: ev.Duration}
	switch {
	case ev.Err != nil:
		row.Detail = ev.Err.Error()
	case len(ev.Artifacts) > 0:
		row.Detail = strings.Join(ev.Artifacts, ", ")
	}
	m.recent = append(m.recent, row)
	if len(m.recent) > maxRecentUnits {
		m.recent = m.recent[len(m.recent)-maxRecentUnits:]
	}

	if ev.Outcome == harvest.OutcomeFailed {
		m.AddLogMessage("ERROR", ev.Key+": "+row.Detail)
	}
}

// finish records the end of the run.
func (m *Model) finish(sum *harvest.Summary, err error) {
	m.done = true
	m.err = err
	if sum != nil {
		m.final = sum
		m.summary = *sum
	}
	switch {
	case err != nil:
		m.AddLogMessage("ERROR", "Harvest failed: "+err.Error())
	case sum != nil:
		m.AddLogMessage("SUCCESS", "Harvest finished: "+string(sum.StopReason))
	}
}

// AddLogMessage adds a log message
func (m *Model) AddLogMessage(level, message string) {
	m.logMessages = append(m.logMessages, LogMessage{
		Time:    m.now(),
		Level:   level,
		Message: message,
		Color:   levelColor(level),
	})

	if len(m.logMessages) > maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-maxLogMessages:]
	}
}

// Stats returns the processing rate, the sink upload rate (both per
// minute) and the estimated time left when the run has a unit budget.
func (m *Model) Stats() (unitsPerMin, uploadsPerMin float64, eta time.Duration) {
	elapsed := m.now().Sub(m.started)
	if elapsed <= 0 {
		return 0, 0, 0
	}
	unitsPerMin = float64(m.summary.Processed) / elapsed.Minutes()
	uploadsPerMin = float64(m.summary.Uploads) / elapsed.Minutes()

	if m.opts.MaxUnits > 0 && m.summary.Processed > 0 {
		left := m.opts.MaxUnits - m.summary.Processed
		if left > 0 {
			eta = elapsed / time.Duration(m.summary.Processed) * time.Duration(left)
		}
	}
	return unitsPerMin, uploadsPerMin, eta
}

// Summary returns the final summary once the run has ended.
func (m *Model) Summary() (*harvest.Summary, error) {
	return m.final, m.err
}
