// Package runpara broadcasts one command to a list of targets, runs every
// target's command concurrently, and writes a single combined report once
// all of them have finished.
package runpara

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/agent462/runpara/internal/executor"
	"github.com/agent462/runpara/internal/template"
	"github.com/agent462/runpara/internal/ui/report"
)

// ErrEmptyCommand is returned when the raw command is empty or whitespace.
var ErrEmptyCommand = errors.New("cannot execute empty command")

// Reporter drives an Executor over a target list and renders the results.
type Reporter struct {
	exec      *executor.Executor
	formatter *report.Formatter
	out       io.Writer
	log       *logrus.Entry
	isolate   bool
	dryRun    bool
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithLogger sets the logger used for run-level events.
func WithLogger(log *logrus.Entry) Option {
	return func(r *Reporter) {
		if log != nil {
			r.log = log
		}
	}
}

// WithIsolatedFailures controls what happens when a target's process cannot
// be launched. When false (the default) the whole run fails with that error
// after every other target has finished. When true the failure is rendered
// as that target's output and the report is written as usual.
func WithIsolatedFailures(isolate bool) Option {
	return func(r *Reporter) {
		r.isolate = isolate
	}
}

// WithDryRun makes Run print the per-target commands instead of running them.
func WithDryRun(dryRun bool) Option {
	return func(r *Reporter) {
		r.dryRun = dryRun
	}
}

// New creates a Reporter that writes its report to out.
func New(exec *executor.Executor, formatter *report.Formatter, out io.Writer, opts ...Option) *Reporter {
	discard := logrus.New()
	discard.SetLevel(logrus.PanicLevel)
	r := &Reporter{
		exec:      exec,
		formatter: formatter,
		out:       out,
		log:       logrus.NewEntry(discard),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Plan checks rawCommand and builds the command for each target from tmpl.
// The quoted form of rawCommand is computed once and shared by every target.
func Plan(targets []string, tmpl string, rawCommand string) ([]executor.Job, error) {
	if strings.TrimSpace(rawCommand) == "" {
		return nil, ErrEmptyCommand
	}

	quoted := template.Quote(rawCommand)
	jobs := make([]executor.Job, len(targets))
	for i, target := range targets {
		jobs[i] = executor.Job{
			Host: target,
			Command: template.Expand(tmpl, template.Vars{
				Host:          target,
				Command:       rawCommand,
				QuotedCommand: quoted,
			}),
		}
	}
	return jobs, nil
}

// Run executes rawCommand for every target through tmpl and writes the
// report. Nothing is written until all targets have finished, and results
// are always reported in target order.
func (r *Reporter) Run(ctx context.Context, targets []string, tmpl string, rawCommand string) error {
	jobs, err := Plan(targets, tmpl, rawCommand)
	if err != nil {
		return err
	}

	log := r.log.WithField("targets", len(targets))
	if unknown := template.Unknown(tmpl); len(unknown) > 0 {
		log.WithField("names", unknown).Debug("template contains unrecognized placeholders, leaving them as-is")
	}
	if !slices.Contains(template.Placeholders(tmpl), template.Host) {
		log.Debug("template does not reference {host}; every target runs the same command")
	}

	if r.dryRun {
		_, err := io.WriteString(r.out, r.formatter.FormatPlan(jobs))
		return err
	}

	log.Debug("executing")
	results, err := r.exec.Execute(ctx, jobs)
	if err != nil {
		if !r.isolate {
			return err
		}
		log.WithError(err).Warn("launch failure recorded in report")
	}
	log.WithField("mode", report.SelectMode(results)).Debug("all targets finished")

	out, err := r.formatter.Render(results)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if _, err := r.out.Write(out); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
