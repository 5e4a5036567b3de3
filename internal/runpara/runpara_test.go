package runpara

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agent462/runpara/internal/executor"
	"github.com/agent462/runpara/internal/shell"
	"github.com/agent462/runpara/internal/ui/report"
)

// mockRunner is a configurable mock for testing the reporter.
type mockRunner struct {
	mu       sync.Mutex
	commands map[string]string
	calls    atomic.Int32
	handler  func(host, command string) *executor.HostResult
}

func (m *mockRunner) Run(ctx context.Context, host string, command string) *executor.HostResult {
	m.calls.Add(1)
	m.mu.Lock()
	if m.commands == nil {
		m.commands = make(map[string]string)
	}
	m.commands[host] = command
	m.mu.Unlock()
	return m.handler(host, command)
}

func newReporter(runner executor.Runner, out *bytes.Buffer, opts ...Option) *Reporter {
	return New(executor.New(runner), report.NewFormatter(false, false), out, opts...)
}

func skipWithoutSh(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestRun_DefaultTemplateScenario(t *testing.T) {
	runner := &mockRunner{
		handler: func(host, command string) *executor.HostResult {
			return &executor.HostResult{Stdout: []byte("hi\n")}
		},
	}

	var out bytes.Buffer
	err := newReporter(runner, &out).Run(context.Background(), []string{"a", "b"}, "ssh {host} {quoted_command}", "echo hi")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if runner.commands["a"] != "ssh a 'echo hi'" {
		t.Errorf("command for a = %q", runner.commands["a"])
	}
	if runner.commands["b"] != "ssh b 'echo hi'" {
		t.Errorf("command for b = %q", runner.commands["b"])
	}
	if got, want := out.String(), "a hi\nb hi\n"; got != want {
		t.Errorf("report = %q, want %q", got, want)
	}
}

func TestRun_PreservesTargetOrder(t *testing.T) {
	skipWithoutSh(t)

	// h1 finishes last but must still be reported first.
	tmpl := `case {host} in h1) sleep 0.3;; h2) sleep 0.1;; esac; echo {host}`

	var out bytes.Buffer
	r := newReporter(shell.NewRunner(nil), &out)
	if err := r.Run(context.Background(), []string{"h1", "h2", "h3"}, tmpl, "unused"); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if got, want := out.String(), "h1 h1\nh2 h2\nh3 h3\n"; got != want {
		t.Errorf("report = %q, want %q", got, want)
	}
}

func TestRun_TargetsRunConcurrently(t *testing.T) {
	skipWithoutSh(t)

	targets := []string{"a", "b", "c", "d", "e"}

	var out bytes.Buffer
	r := newReporter(shell.NewRunner(nil), &out)
	start := time.Now()
	if err := r.Run(context.Background(), targets, "sleep 0.5; echo {host}", "x"); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	// Sequential execution would take at least 2.5s.
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("run took %s, expected targets to overlap", elapsed)
	}
}

func TestRun_ExpandedWhenAnyMultiLine(t *testing.T) {
	runner := &mockRunner{
		handler: func(host, command string) *executor.HostResult {
			if host == "multi" {
				return &executor.HostResult{Stdout: []byte("l1\nl2\n")}
			}
			return &executor.HostResult{Stdout: []byte("one\n")}
		},
	}

	var out bytes.Buffer
	if err := newReporter(runner, &out).Run(context.Background(), []string{"single", "multi"}, "{command}", "x"); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	want := "=== single ===\none\n=== multi ===\nl1\nl2\n"
	if got := out.String(); got != want {
		t.Errorf("report =\n%s\nwant:\n%s", got, want)
	}
}

func TestRun_StderrAndExitCodeFolding(t *testing.T) {
	skipWithoutSh(t)

	var out bytes.Buffer
	r := newReporter(shell.NewRunner(nil), &out)
	if err := r.Run(context.Background(), []string{"h"}, "{command}", "printf ok; printf warn >&2; exit 2"); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	want := "=== h ===\nok\nSTDERR:\nwarn\nRETURNCODE:\n2\n"
	if got := out.String(); got != want {
		t.Errorf("report = %q, want %q", got, want)
	}
}

func TestRun_EmptyCommandRejected(t *testing.T) {
	for _, raw := range []string{"", "   ", "\n", "\t \n "} {
		runner := &mockRunner{
			handler: func(host, command string) *executor.HostResult {
				return &executor.HostResult{}
			},
		}

		var out bytes.Buffer
		err := newReporter(runner, &out).Run(context.Background(), []string{"a", "b"}, "ssh {host} {quoted_command}", raw)
		if !errors.Is(err, ErrEmptyCommand) {
			t.Errorf("raw %q: expected ErrEmptyCommand, got %v", raw, err)
		}
		if err != nil && err.Error() != "cannot execute empty command" {
			t.Errorf("unexpected message %q", err)
		}
		if runner.calls.Load() != 0 {
			t.Errorf("raw %q: expected no invocations, got %d", raw, runner.calls.Load())
		}
		if out.Len() != 0 {
			t.Errorf("raw %q: expected no output, got %q", raw, out.String())
		}
	}
}

func TestRun_LaunchFailureAborts(t *testing.T) {
	runner := &mockRunner{
		handler: func(host, command string) *executor.HostResult {
			if host == "bad" {
				return &executor.HostResult{Err: errors.New("exec: no such file")}
			}
			return &executor.HostResult{Stdout: []byte("ok")}
		},
	}

	var out bytes.Buffer
	err := newReporter(runner, &out).Run(context.Background(), []string{"good", "bad"}, "{command}", "x")
	if err == nil {
		t.Fatal("expected launch error")
	}
	if !strings.Contains(err.Error(), "bad") || !strings.Contains(err.Error(), "no such file") {
		t.Errorf("error %q should name the target and cause", err)
	}
	if runner.calls.Load() != 2 {
		t.Errorf("every target should still run, got %d calls", runner.calls.Load())
	}
	if out.Len() != 0 {
		t.Errorf("no report expected on abort, got %q", out.String())
	}
}

func TestRun_LaunchFailureIsolated(t *testing.T) {
	runner := &mockRunner{
		handler: func(host, command string) *executor.HostResult {
			if host == "bad" {
				return &executor.HostResult{Err: errors.New("exec: no such file")}
			}
			return &executor.HostResult{Stdout: []byte("ok")}
		},
	}

	var out bytes.Buffer
	r := newReporter(runner, &out, WithIsolatedFailures(true))
	if err := r.Run(context.Background(), []string{"good", "bad"}, "{command}", "x"); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if got, want := out.String(), "good ok\nbad error: bad: exec: no such file\n"; got != want {
		t.Errorf("report = %q, want %q", got, want)
	}
}

func TestRun_DryRun(t *testing.T) {
	runner := &mockRunner{
		handler: func(host, command string) *executor.HostResult {
			t.Fatal("dry run must not execute")
			return nil
		},
	}

	var out bytes.Buffer
	r := newReporter(runner, &out, WithDryRun(true))
	if err := r.Run(context.Background(), []string{"a", "b"}, "ssh {host} {quoted_command}", "df -h"); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if got, want := out.String(), "a ssh a 'df -h'\nb ssh b 'df -h'\n"; got != want {
		t.Errorf("plan = %q, want %q", got, want)
	}
}

func TestRun_JSONOutput(t *testing.T) {
	runner := &mockRunner{
		handler: func(host, command string) *executor.HostResult {
			return &executor.HostResult{Stdout: []byte(host + "\n")}
		},
	}

	var out bytes.Buffer
	r := New(executor.New(runner), report.NewFormatter(true, false), &out)
	if err := r.Run(context.Background(), []string{"a", "b"}, "{command}", "x"); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	got := out.String()
	if strings.Index(got, `"host": "a"`) > strings.Index(got, `"host": "b"`) {
		t.Errorf("JSON should list targets in order:\n%s", got)
	}
}

func TestRun_NoTargets(t *testing.T) {
	runner := &mockRunner{
		handler: func(host, command string) *executor.HostResult {
			t.Fatal("no targets, no invocations")
			return nil
		},
	}

	var out bytes.Buffer
	if err := newReporter(runner, &out).Run(context.Background(), nil, "{command}", "x"); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("expected empty report, got %q", out.String())
	}
}

func TestPlan(t *testing.T) {
	jobs, err := Plan([]string{"h1", "h2"}, "echo {host}:{quoted_command}", "ls -l")
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}

	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].Host != "h1" || jobs[0].Command != "echo h1:'ls -l'" {
		t.Errorf("job 0 = %+v", jobs[0])
	}
	if !strings.HasPrefix(jobs[1].Command, "echo h2:") {
		t.Errorf("job 1 = %+v", jobs[1])
	}
}

func TestPlan_RawCommandPlaceholder(t *testing.T) {
	jobs, err := Plan([]string{"web"}, "{command} && echo {host} {other}", "cd /tmp")
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if want := "cd /tmp && echo web {other}"; jobs[0].Command != want {
		t.Errorf("command = %q, want %q", jobs[0].Command, want)
	}
}
