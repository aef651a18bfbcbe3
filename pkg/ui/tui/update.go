package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"legmirror/pkg/harvest"
)

// UnitMsg carries one harvester observation.
type UnitMsg struct {
	Event   harvest.UnitEvent
	Summary harvest.Summary
}

// DoneMsg is sent when the run returns.
type DoneMsg struct {
	Summary *harvest.Summary
	Err     error
}

// LogMsg appends a line to the log panel.
type LogMsg struct {
	Level   string
	Message string
}

// clockMsg refreshes elapsed time and rates once a second.
type clockMsg time.Time

type keyMap struct {
	Stop     key.Binding
	ClearLog key.Binding
	Help     key.Binding
}

var keys = keyMap{
	Stop: key.NewBinding(
		key.WithKeys("q", "Q", "ctrl+c"),
		key.WithHelp("q", "stop after the current batch (twice to leave now)"),
	),
	ClearLog: key.NewBinding(
		key.WithKeys("ctrl+l"),
		key.WithHelp("ctrl+l", "clear the log"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "toggle this help"),
	),
}

func (k keyMap) bindings() []key.Binding {
	return []key.Binding{k.Stop, k.ClearLog, k.Help}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.onKey(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case clockMsg:
		if !m.done {
			return m, clock()
		}

	case UnitMsg:
		m.applyUnit(msg.Event, msg.Summary)

	case LogMsg:
		m.AddLogMessage(msg.Level, msg.Message)

	case DoneMsg:
		m.finish(msg.Summary, msg.Err)
		return m, tea.Quit
	}
	return m, nil
}

// onKey handles a key press. Stop cancels the run and waits for DoneMsg;
// pressing it again while stopping quits without waiting.
func (m *Model) onKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, keys.Stop):
		if m.done || m.stopping {
			return tea.Quit
		}
		m.stopping = true
		m.AddLogMessage("WARN", "Stopping after the current batch, press q again to leave now")
		if m.opts.Cancel != nil {
			m.opts.Cancel()
		}
	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp
	case key.Matches(msg, keys.ClearLog):
		m.logMessages = nil
	}
	return nil
}

func clock() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return clockMsg(t)
	})
}
