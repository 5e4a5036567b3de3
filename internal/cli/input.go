package cli

import (
	"fmt"
	"io"
	"strings"
)

const prompt = "Enter Command and EOF (Ctrl+D): "

// ReadCommand reads the command text from in until EOF and strips a single
// trailing newline. When in is a terminal, a prompt is written to promptOut
// first.
func ReadCommand(in io.Reader, promptOut io.Writer) (string, error) {
	if isTerminal(in) {
		fmt.Fprint(promptOut, prompt)
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("reading command from stdin: %w", err)
	}
	return strings.TrimSuffix(string(data), "\n"), nil
}
