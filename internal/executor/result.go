package executor

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Markers inserted between the sections of a combined output.
const (
	StderrMarker     = "STDERR:"
	ReturnCodeMarker = "RETURNCODE:"
)

// HostResult holds the result of executing a command for a single target.
type HostResult struct {
	Host     string
	Command  string
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
	Err      error // launch failures only; non-zero exits are not errors
}

// Combined folds stdout, stderr and a non-zero exit code into the single
// string shown for the target. Trailing newlines are stripped.
func (r *HostResult) Combined() string {
	if r.Err != nil {
		return "error: " + r.Err.Error()
	}

	var b strings.Builder
	b.WriteString(r.StdoutText())
	if stderr := r.StderrText(); stderr != "" {
		b.WriteString("\n" + StderrMarker + "\n")
		b.WriteString(stderr)
	}
	if r.ExitCode != 0 {
		b.WriteString("\n" + ReturnCodeMarker + "\n")
		b.WriteString(strconv.Itoa(r.ExitCode))
	}
	return strings.TrimRight(b.String(), "\n")
}

// StdoutText returns stdout decoded as UTF-8.
func (r *HostResult) StdoutText() string {
	return decode(r.Stdout)
}

// StderrText returns stderr decoded as UTF-8.
func (r *HostResult) StderrText() string {
	return decode(r.Stderr)
}

// MultiLine reports whether the combined output spans more than one line.
func (r *HostResult) MultiLine() bool {
	return strings.Contains(r.Combined(), "\n")
}

// decode converts raw process output to text, replacing invalid UTF-8
// sequences with U+FFFD.
func decode(b []byte) string {
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

// LaunchError reports that the child process for a target could not be started.
type LaunchError struct {
	Host string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Host, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}
