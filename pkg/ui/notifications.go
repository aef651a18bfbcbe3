package ui

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"legmirror/pkg/config"
	"legmirror/pkg/harvest"
)

// NotificationSender delivers a desktop notification.
type NotificationSender interface {
	Send(title, message string) error
}

var errNoDesktop = errors.New("desktop notifications are not supported on this platform")

// commandSender shells out to the platform notifier.
type commandSender struct {
	goos string
}

func (c commandSender) Send(title, message string) error {
	name, args, ok := desktopCommand(c.goos, title, message)
	if !ok {
		return errNoDesktop
	}
	return exec.Command(name, args...).Run()
}

// desktopCommand returns the command line that shows a notification on
// goos.
func desktopCommand(goos, title, message string) (string, []string, bool) {
	switch goos {
	case "linux", "freebsd", "openbsd":
		return "notify-send", []string{"--app-name=legmirror", title, message}, true
	case "darwin":
		return "osascript", []string{"-e", fmt.Sprintf("display notification %q with title %q", message, title)}, true
	case "windows":
		script := fmt.Sprintf(
			"Add-Type -AssemblyName System.Windows.Forms; "+
				"$n = New-Object System.Windows.Forms.NotifyIcon; "+
				"$n.Icon = [System.Drawing.SystemIcons]::Information; $n.Visible = $true; "+
				"$n.ShowBalloonTip(5000, '%s', '%s', 'Info')",
			psQuote(title), psQuote(message))
		return "powershell", []string{"-NoProfile", "-NonInteractive", "-Command", script}, true
	}
	return "", nil, false
}

// psQuote escapes s for a single-quoted PowerShell string.
func psQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// Notifier announces the end of a run on the console and, when enabled, on
// the desktop.
type Notifier struct {
	sender NotificationSender
	cfg    config.NotificationConfig
	out    io.Writer
}

func NewNotifier(cfg config.NotificationConfig) *Notifier {
	return NewNotifierWithSender(cfg, commandSender{goos: runtime.GOOS}, os.Stdout)
}

func NewNotifierWithSender(cfg config.NotificationConfig, sender NotificationSender, out io.Writer) *Notifier {
	return &Notifier{sender: sender, cfg: cfg, out: out}
}

func (n *Notifier) SendSuccess(title, message string) {
	fmt.Fprintf(n.out, "\n%s: %s\n", Green(title), message)
	n.desktop(n.cfg.OnComplete, title, message)
}

func (n *Notifier) SendError(title, message string) {
	fmt.Fprintf(n.out, "\n%s: %s\n", Red(title), Red(message))
	n.desktop(n.cfg.OnError, title, message)
}

// desktop is best-effort; a missing notify-send must not fail a run.
func (n *Notifier) desktop(wanted bool, title, message string) {
	if n.cfg.Enabled && wanted && n.sender != nil {
		_ = n.sender.Send(title, message)
	}
}

// RunFinished announces how a run ended. A nil summary without an error
// means the run never started.
func (n *Notifier) RunFinished(sum *harvest.Summary, err error) {
	switch {
	case err != nil:
		source := "legmirror"
		if sum != nil && sum.Source != "" {
			source = sum.Source
		}
		n.SendError("Harvest failed", fmt.Sprintf("%s: %v", source, err))
	case sum == nil:
	case sum.Failed > 0:
		n.SendError("Harvest finished with failures",
			fmt.Sprintf("%s: %d of %d units failed, %d artifacts uploaded", sum.Source, sum.Failed, sum.Processed, sum.ArtifactsUploaded))
	default:
		n.SendSuccess("Harvest complete",
			fmt.Sprintf("%s: %d units processed, %d artifacts uploaded (%s)", sum.Source, sum.Processed, sum.ArtifactsUploaded, sum.StopReason))
	}
}
