package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

// readPassword reads a password without echo from an interactive terminal,
// or a single line from non-interactive input.
func readPassword(cmd *cli.Command) (string, error) {
	root := cmd.Root()

	if f, ok := root.Reader.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(root.ErrWriter, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(root.ErrWriter)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(root.Reader).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
