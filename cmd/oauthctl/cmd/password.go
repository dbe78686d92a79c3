package cmd

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

var errPasswordMismatch = errors.New("passwords do not match")

// readPassword prompts on a terminal without echo and asks for a
// confirmation. A non-terminal stdin is read one line at a time.
func (a *app) readPassword(cmd *cobra.Command, prompt string, confirm bool) (string, error) {
	in := cmd.InOrStdin()

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := promptTerminal(cmd, f, prompt)
		if err != nil || !confirm {
			return password, err
		}

		again, err := promptTerminal(cmd, f, "Confirm password: ")
		if err != nil {
			return "", err
		}
		if password != again {
			return "", errPasswordMismatch
		}

		return password, nil
	}

	if a.stdin == nil {
		a.stdin = bufio.NewReader(in)
	}

	line, err := a.stdin.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	return strings.TrimRight(line, "\r\n"), nil
}

func promptTerminal(cmd *cobra.Command, f *os.File, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	return string(b), nil
}
