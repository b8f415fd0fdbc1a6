// Package retry sequences build units in dependency order and gives
// each of them a bounded number of attempts.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/the-maldridge/tess/pkg/builderr"
	"github.com/the-maldridge/tess/pkg/graph"
	"github.com/the-maldridge/tess/pkg/metrics"
	"github.com/the-maldridge/tess/pkg/progress"
	"github.com/the-maldridge/tess/pkg/session"
	"github.com/the-maldridge/tess/pkg/types"
)

// Policy bounds the attempts made per unit.
type Policy struct {
	Attempts int
	Delay    time.Duration

	// RetryBuildErrors controls whether a compile failure reported
	// by the worker is attempted again.
	RetryBuildErrors bool
}

// DefaultPolicy makes three attempts two seconds apart.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:         3,
		Delay:            2 * time.Second,
		RetryBuildErrors: true,
	}
}

// Builder runs one attempt at a unit.
type Builder interface {
	Build(ctx context.Context, unit types.BuildUnit) (*session.Result, error)
}

// ExhaustedError is returned once a unit has failed every attempt.
type ExhaustedError struct {
	Package  string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed to build %s after %d attempts: %v", e.Package, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Controller runs units one at a time.
type Controller struct {
	l hclog.Logger

	policy  Policy
	builder Builder
	tracker *progress.Tracker
	metrics metrics.Recorder
	sleep   func(context.Context, time.Duration) error
}

// Option configures a Controller.
type Option func(*Controller)

// WithTracker reports attempt status into t.
func WithTracker(t *progress.Tracker) Option {
	return func(c *Controller) {
		c.tracker = t
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithSleep replaces the wait between attempts.
func WithSleep(f func(context.Context, time.Duration) error) Option {
	return func(c *Controller) {
		c.sleep = f
	}
}

// New returns a Controller.  A policy with no attempts is treated as
// a single attempt.
func New(l hclog.Logger, p Policy, b Builder, opts ...Option) *Controller {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	c := &Controller{
		l:       l.Named("retry"),
		policy:  p,
		builder: b,
		tracker: progress.New(nil),
		metrics: metrics.NoopRecorder{},
		sleep:   sleep,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run builds every unit in dependency order and stops at the first
// unit that cannot be built.
func (c *Controller) Run(ctx context.Context, units []types.BuildUnit) ([]*session.Result, error) {
	ordered, err := graph.Sort(c.l, units)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ordered))
	for i, u := range ordered {
		names[i] = u.Name
	}
	c.l.Info("Build order", "packages", names)

	results := make([]*session.Result, 0, len(ordered))
	for _, u := range ordered {
		res, err := c.Unit(ctx, u)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Unit builds a single unit with the configured number of attempts.
func (c *Controller) Unit(ctx context.Context, unit types.BuildUnit) (*session.Result, error) {
	var lastErr error
	for attempt := 1; attempt <= c.policy.Attempts; attempt++ {
		if attempt > 1 {
			c.metrics.IncRetry(unit.Name)
			if err := c.sleep(ctx, c.policy.Delay); err != nil {
				return nil, err
			}
		}
		c.metrics.IncAttempt(unit.Name)
		c.tracker.Start(unit.Name, attempt)

		res, err := c.builder.Build(ctx, unit.Clone())
		if err == nil {
			c.tracker.Finish(unit.Name, true, "")
			c.l.Info("Built", "package", unit.Name, "attempt", attempt)
			return res, nil
		}
		lastErr = err

		if !c.retryable(err) {
			c.tracker.Finish(unit.Name, false, err.Error())
			c.l.Error("Build failed", "package", unit.Name, "error", err)
			return nil, err
		}
		c.l.Warn("Attempt failed", "package", unit.Name, "attempt", attempt, "of", c.policy.Attempts, "error", err)
	}

	c.metrics.IncRetriesExhausted(unit.Name)
	c.tracker.Finish(unit.Name, false, lastErr.Error())
	return nil, &ExhaustedError{Package: unit.Name, Attempts: c.policy.Attempts, Err: lastErr}
}

func (c *Controller) retryable(err error) bool {
	if builderr.Is(err, builderr.KindServerBuild) {
		return c.policy.RetryBuildErrors
	}
	return builderr.Retryable(err)
}
