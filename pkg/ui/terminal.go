// Package ui renders harvest progress on a terminal.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

const ASCIILogo = `
    ╔═══════════════════════════════════════════════════════════╗
    ║ ██╗     ███████╗ ██████╗ ███╗   ███╗██╗██████╗ ██████╗    ║
    ║ ██║     ██╔════╝██╔════╝ ████╗ ████║██║██╔══██╗██╔══██╗   ║
    ║ ██║     █████╗  ██║  ███╗██╔████╔██║██║██████╔╝██████╔╝   ║
    ║ ██║     ██╔══╝  ██║   ██║██║╚██╔╝██║██║██╔══██╗██╔══██╗   ║
    ║ ███████╗███████╗╚██████╔╝██║ ╚═╝ ██║██║██║  ██║██║  ██║   ║
    ║ ╚══════╝╚══════╝ ╚═════╝ ╚═╝     ╚═╝╚═╝╚═╝  ╚═╝╚═╝  ╚═╝   ║
    ║      LEGISLATIVE DEBATES → INTERNET ARCHIVE MIRROR        ║
    ╚═══════════════════════════════════════════════════════════╝
`

// Console colors use the 16 ANSI slots so they follow the terminal theme.
var (
	Cyan    = paint(lipgloss.NewStyle().Foreground(lipgloss.ANSIColor(6)))
	Yellow  = paint(lipgloss.NewStyle().Foreground(lipgloss.ANSIColor(3)))
	Red     = paint(lipgloss.NewStyle().Foreground(lipgloss.ANSIColor(1)))
	Green   = paint(lipgloss.NewStyle().Foreground(lipgloss.ANSIColor(2)))
	Magenta = paint(lipgloss.NewStyle().Foreground(lipgloss.ANSIColor(5)).Bold(true))
	Dim     = paint(lipgloss.NewStyle().Faint(true))
)

var colorEnabled = os.Getenv("NO_COLOR") == "" && IsTerminal(os.Stdout)

func paint(style lipgloss.Style) func(string) string {
	return func(s string) string {
		if !colorEnabled {
			return s
		}
		return style.Render(s)
	}
}

// SetColor turns colors on or off for every helper in this package.
func SetColor(on bool) { colorEnabled = on }

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func PrintLogo() {
	fmt.Print(Cyan(ASCIILogo))
}

// PrintError writes msg to stderr. A first extra argument is appended as
// the cause.
func PrintError(msg string, args ...any) {
	fmt.Fprintln(os.Stderr, Red(withCause(msg, args)))
}

func PrintWarning(msg string, args ...any) {
	fmt.Println(Yellow(withCause(msg, args)))
}

func PrintSuccess(msg string) {
	fmt.Println(Green(msg))
}

func PrintHighlight(msg string) {
	fmt.Println(Magenta(msg))
}

// PrintInfo prints an aligned label/value pair.
func PrintInfo(label, value string) {
	fmt.Printf("%s %s\n", Cyan(label+":"), value)
}

func withCause(msg string, args []any) string {
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, args[0])
}
