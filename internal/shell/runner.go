package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"

	"github.com/agent462/runpara/internal/executor"
)

// DefaultShell is the interpreter used when no shell is configured. The
// command string is appended as the final argument.
var DefaultShell = []string{"/bin/sh", "-c"}

// Runner implements executor.Runner by handing each command to a local
// shell interpreter in its own child process.
type Runner struct {
	argv []string
}

// NewRunner creates a Runner for the given interpreter argv prefix, e.g.
// ["/bin/bash", "-c"]. An empty argv selects DefaultShell.
func NewRunner(argv []string) *Runner {
	if len(argv) == 0 {
		argv = DefaultShell
	}
	return &Runner{argv: append([]string(nil), argv...)}
}

// Shell returns the interpreter argv prefix.
func (r *Runner) Shell() []string {
	return append([]string(nil), r.argv...)
}

// Run executes command through the shell and waits for it to exit. The host
// is only used to label the result; reaching it is up to the command itself.
func (r *Runner) Run(ctx context.Context, host string, command string) *executor.HostResult {
	result := &executor.HostResult{Host: host, Command: command}

	args := append(append([]string(nil), r.argv[1:]...), command)
	cmd := exec.CommandContext(ctx, r.argv[0], args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		result.Err = fmt.Errorf("start %s: %w", r.argv[0], err)
		return result
	}

	err := cmd.Wait()
	result.Stdout = stdout.Bytes()
	result.Stderr = stderr.Bytes()

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			result.Err = fmt.Errorf("wait: %w", err)
			return result
		}
		result.ExitCode = exitCode(exitErr)
	}
	return result
}

// exitCode returns the process exit status, or the negated signal number
// when the process was killed by a signal.
func exitCode(err *exec.ExitError) int {
	if ws, ok := err.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -int(ws.Signal())
	}
	return err.ExitCode()
}
