package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// prompt asks questions on a terminal. Secrets are read without echo when
// the input is a tty.
type prompt struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
	tty bool
}

func newPrompt() *prompt {
	fd := int(os.Stdin.Fd())
	return &prompt{in: bufio.NewReader(os.Stdin), out: os.Stdout, fd: fd, tty: term.IsTerminal(fd)}
}

func (p *prompt) readLine() string {
	s, _ := p.in.ReadString('\n')
	return strings.TrimSpace(s)
}

// line asks for free text and falls back to def on an empty answer.
func (p *prompt) line(question, def string) string {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", question, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", question)
	}
	if s := p.readLine(); s != "" {
		return s
	}
	return def
}

// yes asks a y/N question.
func (p *prompt) yes(question string) bool {
	fmt.Fprintf(p.out, "%s [y/N]: ", question)
	switch strings.ToLower(p.readLine()) {
	case "y", "yes":
		return true
	}
	return false
}

func (p *prompt) secret(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	if p.tty {
		b, err := term.ReadPassword(p.fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	s, err := p.in.ReadString('\n')
	if err != nil && s == "" {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// choose prints a numbered menu and returns the picked index, or -1 for
// cancel. Anything that is not a listed number is an error.
func (p *prompt) choose(title string, options []string) (int, error) {
	fmt.Fprintln(p.out, title)
	for i, o := range options {
		fmt.Fprintf(p.out, "  %d. %s\n", i+1, o)
	}
	fmt.Fprint(p.out, "  0. Cancel\n\nChoice: ")

	n, err := strconv.Atoi(p.readLine())
	if err != nil || n < 0 || n > len(options) {
		return 0, fmt.Errorf("invalid choice")
	}
	return n - 1, nil
}
