package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/skyhw/signcore/protect"
	"golang.org/x/term"
)

// terminalUI asks the user on the terminal. Secrets are read without echo
// when the input is a terminal.
type terminalUI struct {
	in  *bufio.Reader
	out io.Writer

	// fd is the descriptor of the input if it is a terminal, -1
	// otherwise.
	fd int

	// words counts the mnemonic words requested so far.
	words int
}

func newTerminalUI(in io.Reader, out io.Writer) *terminalUI {
	fd := -1
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd = int(f.Fd())
	}

	return &terminalUI{
		in:  bufio.NewReader(in),
		out: out,
		fd:  fd,
	}
}

// readSecret reads a line without echo.
func (u *terminalUI) readSecret(prompt string) (string, error) {
	fmt.Fprint(u.out, prompt)

	if u.fd < 0 {
		return u.readLine()
	}

	secret, err := term.ReadPassword(u.fd)
	fmt.Fprintln(u.out)
	if err != nil {
		return "", err
	}

	return string(secret), nil
}

func (u *terminalUI) readLine() (string, error) {
	line, err := u.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}

	return strings.TrimRight(line, "\r\n"), nil
}

// RequestPin reads a PIN. An empty line cancels.
func (u *terminalUI) RequestPin(_ context.Context,
	kind protect.PinKind) (string, error) {

	pin, err := u.readSecret(fmt.Sprintf("Enter %v: ", kind))
	switch {
	case err != nil:
		return "", err

	case pin == "":
		return "", protect.ErrUICancelled
	}

	return pin, nil
}

// RequestPassphrase reads the passphrase. It may be empty.
func (u *terminalUI) RequestPassphrase(context.Context) (string, error) {
	return u.readSecret("Enter passphrase: ")
}

// Confirm shows text and asks for a yes or no answer.
func (u *terminalUI) Confirm(_ context.Context, _ protect.ButtonKind,
	text ...string) (bool, error) {

	for _, line := range text {
		fmt.Fprintln(u.out, line)
	}
	fmt.Fprint(u.out, "Confirm? (yes/no): ")

	answer, err := u.readLine()
	if err != nil {
		return false, err
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil

	default:
		return false, nil
	}
}

// RequestWord reads the next mnemonic word. An empty line cancels.
func (u *terminalUI) RequestWord(context.Context) (string, error) {
	u.words++
	word, err := u.readSecret(fmt.Sprintf("Enter word %d: ", u.words))
	switch {
	case err != nil:
		return "", err

	case strings.TrimSpace(word) == "":
		return "", protect.ErrUICancelled
	}

	return strings.ToLower(strings.TrimSpace(word)), nil
}

// PollNextMessage never reports a message, the terminal has no host.
func (u *terminalUI) PollNextMessage() protect.MessageKind {
	return protect.MsgNone
}
