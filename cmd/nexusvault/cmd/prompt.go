package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// prompter reads passphrases from a terminal without echo, or line by line
// from any other input.
type prompter struct {
	in  io.Reader
	out io.Writer
	buf *bufio.Reader
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: in, out: out}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (p *prompter) passphrase(label string) (string, error) {
	fmt.Fprint(p.out, label)
	if isTerminal(p.in) {
		b, err := term.ReadPassword(int(p.in.(*os.File).Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return string(b), nil
	}

	if p.buf == nil {
		p.buf = bufio.NewReader(p.in)
	}
	line, err := p.buf.ReadString('\n')
	fmt.Fprintln(p.out)
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// confirmedPassphrase asks twice and requires both answers to match.
func (p *prompter) confirmedPassphrase() (string, error) {
	first, err := p.passphrase("Passphrase: ")
	if err != nil {
		return "", err
	}
	second, err := p.passphrase("Repeat passphrase: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passphrases do not match")
	}
	return first, nil
}
