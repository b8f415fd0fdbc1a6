package scheduler

import (
	"github.com/the-maldridge/tess/pkg/cache"
	"github.com/the-maldridge/tess/pkg/metrics"
	"github.com/the-maldridge/tess/pkg/progress"
	"github.com/the-maldridge/tess/pkg/types"
)

// WithNodes adds worker nodes in declaration order.
func WithNodes(nodes ...*WorkerNode) Option {
	return func(s *Scheduler) error {
		s.nodes = append(s.nodes, nodes...)
		return nil
	}
}

// WithRunner sets how commands reach the nodes.
func WithRunner(r Runner) Option {
	return func(s *Scheduler) error {
		s.runner = r
		return nil
	}
}

// WithCache sets the shared cache.
func WithCache(c *cache.Cache) Option {
	return func(s *Scheduler) error {
		s.cache = c
		return nil
	}
}

// WithCacheURL makes nodes move bundles over HTTP against the cache
// served at url instead of through the runner's standard streams.
func WithCacheURL(url string) Option {
	return func(s *Scheduler) error {
		s.cacheURL = url
		return nil
	}
}

// WithWorkspace sets the sources nodes check out.
func WithWorkspace(ws Workspace) Option {
	return func(s *Scheduler) error {
		s.ws = ws
		return nil
	}
}

// WithProfile selects the release profile and target triple.
func WithProfile(release bool, target string) Option {
	return func(s *Scheduler) error {
		s.layout = types.Layout{Release: release, Target: target}
		return nil
	}
}

// WithBuildCommand replaces "cargo build".
func WithBuildCommand(cmd string) Option {
	return func(s *Scheduler) error {
		s.buildCommand = cmd
		return nil
	}
}

// WithTracker reports job status and output into t.
func WithTracker(t *progress.Tracker) Option {
	return func(s *Scheduler) error {
		s.tracker = t
		return nil
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(s *Scheduler) error {
		s.metrics = m
		return nil
	}
}
