package session

import (
	"github.com/the-maldridge/tess/pkg/artifact"
	"github.com/the-maldridge/tess/pkg/metrics"
	"github.com/the-maldridge/tess/pkg/progress"
)

// Option configures a Client.
type Option func(*Client)

// WithArchiver sets the source archiver.
func WithArchiver(a Archiver) Option {
	return func(c *Client) {
		c.archiver = a
	}
}

// WithWriter sets the artifact writer.
func WithWriter(w *artifact.Writer) Option {
	return func(c *Client) {
		c.writer = w
	}
}

// WithDialer replaces the network dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithTracker reports output and status into t.
func WithTracker(t *progress.Tracker) Option {
	return func(c *Client) {
		c.tracker = t
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(c *Client) {
		c.metrics = m
	}
}
