// Package tui is a full-screen dashboard for a harvest run, built on
// bubbletea.
package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"legmirror/pkg/harvest"
)

// TUI represents the terminal user interface
type TUI struct {
	program *tea.Program
	model   *Model
}

// New creates a dashboard for one run. It implements harvest.Observer.
func New(opts Options, programOpts ...tea.ProgramOption) *TUI {
	model := NewModel(opts)
	if len(programOpts) == 0 {
		programOpts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	program := tea.NewProgram(&model, programOpts...)

	return &TUI{
		program: program,
		model:   &model,
	}
}

// Start runs the dashboard until the run finishes or the user leaves. It
// returns the run's final summary when one was delivered.
func (t *TUI) Start() (*harvest.Summary, error) {
	if _, err := t.program.Run(); err != nil {
		return nil, err
	}
	return t.model.Summary()
}

// Stop stops the TUI gracefully
func (t *TUI) Stop() {
	t.program.Quit()
}

// Send sends a message to the TUI
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

// UnitDone forwards a harvester observation.
func (t *TUI) UnitDone(ev harvest.UnitEvent, s harvest.Summary) {
	t.Send(UnitMsg{Event: ev, Summary: s})
}

// Finish delivers the run's result and closes the dashboard.
func (t *TUI) Finish(sum *harvest.Summary, err error) {
	t.Send(DoneMsg{Summary: sum, Err: err})
}

// Log sends a log message to the TUI
func (t *TUI) Log(level, format string, args ...interface{}) {
	t.Send(LogMsg{Level: level, Message: fmt.Sprintf(format, args...)})
}

// LogWriter returns a writer for JSON log lines, such as zerolog's, that
// shows each line in the log panel.
func (t *TUI) LogWriter() io.Writer {
	return &logWriter{send: t.Send}
}

type logWriter struct {
	mu   sync.Mutex
	send func(tea.Msg)
	buf  bytes.Buffer
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadBytes('\n')
		if err != nil {
			// Keep the partial line for the next write.
			w.buf.Write(line)
			break
		}
		if msg, ok := parseLogLine(line); ok {
			w.send(msg)
		}
	}
	return len(p), nil
}

func parseLogLine(line []byte) (LogMsg, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return LogMsg{}, false
	}

	var entry struct {
		Level   string `json:"level"`
		Message string `json:"message"`
		Unit    string `json:"unit"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(line, &entry); err != nil {
		return LogMsg{Level: "INFO", Message: string(line)}, true
	}

	msg := entry.Message
	if entry.Unit != "" {
		msg = entry.Unit + ": " + msg
	}
	if entry.Error != "" {
		msg += " (" + entry.Error + ")"
	}
	return LogMsg{Level: strings.ToUpper(entry.Level), Message: msg}, true
}
