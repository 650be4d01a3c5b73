package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// prompter reads answers from the command input. Secrets are read without
// echo when the input is a terminal.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
}

func newPrompter(cmd *cobra.Command) *prompter {
	in := cmd.InOrStdin()
	fd := -1
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd = int(f.Fd())
	}
	return &prompter{in: bufio.NewReader(in), out: cmd.ErrOrStderr(), fd: fd}
}

// line asks for a single line of text.
func (p *prompter) line(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	s, err := p.in.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
		}
		if s == "" {
			return "", fmt.Errorf("no input for %s", strings.ToLower(label))
		}
	}
	return strings.TrimSpace(s), nil
}

// valueOr returns v when set and prompts for it otherwise.
func (p *prompter) valueOr(v, label string) (string, error) {
	if v != "" {
		return v, nil
	}
	return p.line(label)
}

// secret asks for a value without echoing it.
func (p *prompter) secret(label string) (string, error) {
	if p.fd < 0 {
		return p.line(label)
	}
	fmt.Fprintf(p.out, "%s: ", label)
	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return string(b), nil
}

// confirm asks a yes/no question. Anything but y/yes is a no.
func (p *prompter) confirm(question string) (bool, error) {
	answer, err := p.line(question + " [y/N]")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
