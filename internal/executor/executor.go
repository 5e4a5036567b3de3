package executor

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Runner executes a fully substituted command on behalf of a single target.
// Non-zero exit codes and stderr are returned as data; Err is set only when
// the command could not be launched at all.
type Runner interface {
	Run(ctx context.Context, host string, command string) *HostResult
}

// Job pairs a target with the command built for it.
type Job struct {
	Host    string
	Command string
}

// Executor fans a set of jobs out to a Runner, one goroutine per job, and
// joins them all before returning.
type Executor struct {
	runner Runner
	log    *logrus.Entry
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger used for per-job launch and finish events.
func WithLogger(log *logrus.Entry) Option {
	return func(e *Executor) {
		if log != nil {
			e.log = log
		}
	}
}

// New creates an Executor with the given Runner and options.
func New(runner Runner, opts ...Option) *Executor {
	discard := logrus.New()
	discard.SetLevel(logrus.PanicLevel)
	e := &Executor{
		runner: runner,
		log:    logrus.NewEntry(discard),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute starts every job at once and waits for all of them to finish.
// Results are returned in the same order as jobs, whatever order they
// completed in. If any job failed to launch, the returned error is the
// launch error of the earliest such job; results are complete either way.
func (e *Executor) Execute(ctx context.Context, jobs []Job) ([]*HostResult, error) {
	results := make([]*HostResult, len(jobs))
	if len(jobs) == 0 {
		return results, nil
	}

	var g errgroup.Group
	for i, job := range jobs {
		g.Go(func() error {
			log := e.log.WithField("host", job.Host)
			log.WithField("command", job.Command).Debug("launching")

			start := time.Now()
			result := e.runner.Run(ctx, job.Host, job.Command)
			if result == nil {
				result = &HostResult{Err: errors.New("runner returned no result")}
			}
			result.Duration = time.Since(start)
			result.Host = job.Host
			result.Command = job.Command

			if result.Err != nil {
				var launchErr *LaunchError
				if !errors.As(result.Err, &launchErr) {
					result.Err = &LaunchError{Host: job.Host, Err: result.Err}
				}
				log.WithError(result.Err).Debug("launch failed")
			} else {
				log.WithFields(logrus.Fields{
					"exit_code": result.ExitCode,
					"duration":  result.Duration,
				}).Debug("finished")
			}

			results[i] = result
			return result.Err
		})
	}

	if err := g.Wait(); err != nil {
		// Wait returns whichever failure happened first in time; report the
		// earliest target instead so the message is stable across runs.
		for _, r := range results {
			if r.Err != nil {
				return results, r.Err
			}
		}
		return results, err
	}
	return results, nil
}
