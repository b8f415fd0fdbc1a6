package worker

import (
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/the-maldridge/tess/pkg/metrics"
)

// Server accepts build sessions and runs the toolchain for them.
type Server struct {
	l hclog.Logger

	command string
	shell   string
	workDir string
	slots   chan struct{}
	metrics metrics.Recorder

	mu     sync.Mutex
	builds map[string]*Build
	wg     sync.WaitGroup
}

// Build is a build currently held by the server, either waiting for
// a slot or running.
type Build struct {
	Unit    string    `json:"unit"`
	Remote  string    `json:"remote"`
	Release bool      `json:"release"`
	Target  string    `json:"target,omitempty"`
	Running bool      `json:"running"`
	Queued  time.Time `json:"queued"`
}

// Option configures a Server.
type Option func(*Server)

// WithCommand sets the build command; "-p <package>" and the profile
// flags are appended.
func WithCommand(c string) Option {
	return func(s *Server) {
		s.command = c
	}
}

// WithShell replaces /bin/sh.
func WithShell(sh string) Option {
	return func(s *Server) {
		s.shell = sh
	}
}

// WithSlots sets how many builds may run at once.
func WithSlots(n int) Option {
	return func(s *Server) {
		if n < 1 {
			n = 1
		}
		s.slots = make(chan struct{}, n)
	}
}

// WithWorkDir sets where build areas are created.
func WithWorkDir(d string) Option {
	return func(s *Server) {
		s.workDir = d
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(s *Server) {
		s.metrics = m
	}
}
