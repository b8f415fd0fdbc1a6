// Package session drives a single build unit through a worker: a
// handshake, the build request, the streamed output and finally the
// artifacts, which are written to disk atomically.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/the-maldridge/tess/pkg/archive"
	"github.com/the-maldridge/tess/pkg/artifact"
	"github.com/the-maldridge/tess/pkg/builderr"
	"github.com/the-maldridge/tess/pkg/metrics"
	"github.com/the-maldridge/tess/pkg/progress"
	"github.com/the-maldridge/tess/pkg/types"
	"github.com/the-maldridge/tess/pkg/wire"
)

// Session is one connection carrying one unit.  Sessions are never
// reused; every attempt at a unit gets a new one.
type Session struct {
	l hclog.Logger
	c *Client

	id      string
	unit    types.BuildUnit
	history []State

	conn net.Conn
	wc   *wire.Conn
}

// NewClient returns a client that builds on the worker named in cfg.
func NewClient(l hclog.Logger, cfg Config, opts ...Option) *Client {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &Client{
		l:        l.Named("session"),
		cfg:      cfg,
		archiver: archive.New(l),
		writer:   artifact.NewWriter(l),
		dialer:   &net.Dialer{},
		tracker:  progress.New(nil),
		metrics:  metrics.NoopRecorder{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Layout returns where this client writes artifacts.
func (c *Client) Layout() types.Layout {
	return types.Layout{Root: c.cfg.Root, Target: c.cfg.Target, Release: c.cfg.Release}
}

// Build runs a fresh session for the unit.  The returned Result is
// never nil so that the states visited are available on failure too.
func (c *Client) Build(ctx context.Context, unit types.BuildUnit) (*Result, error) {
	s := &Session{
		c:    c,
		id:   uuid.NewString(),
		unit: unit.Clone(),
	}
	s.l = c.l.With("session", s.id, "package", unit.Name)

	start := time.Now()
	paths, err := s.run(ctx)
	res := &Result{ID: s.id, Unit: unit.Name, Paths: paths}

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
		if builderr.Is(err, builderr.KindTimeout) {
			outcome = metrics.OutcomeTimeout
		}
		s.enter(StateFailed)
		s.l.Debug("Session failed", "error", err)
	} else {
		s.enter(StateSucceeded)
		s.l.Debug("Session complete", "artifacts", len(paths))
	}
	c.metrics.ObserveSession(outcome, time.Since(start))
	res.History = s.history
	return res, err
}

func (s *Session) enter(st State) {
	s.history = append(s.history, st)
	s.l.Trace("State change", "state", st)
}

func (s *Session) run(ctx context.Context) ([]string, error) {
	data, err := s.c.archiver.Create(s.unit)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.c.cfg.Timeout)
	defer cancel()

	s.enter(StateConnecting)
	conn, err := s.c.dialer.DialContext(ctx, "tcp", s.c.cfg.Address)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, builderr.Wrap(builderr.KindConnection, s.unit.Name, err, "connecting to "+s.c.cfg.Address)
	}
	defer conn.Close()
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	// Abandon the connection when the round trip expires.  No
	// cancellation is sent; the worker may finish unobserved.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	s.conn = conn
	s.wc = wire.NewConn(conn)

	if err := s.handshake(ctx); err != nil {
		return nil, err
	}

	s.enter(StateUnitSent)
	req := wire.BuildRequest{
		Unit:    s.unit,
		Release: s.c.cfg.Release,
		Target:  s.c.cfg.Target,
		Archive: data,
	}
	if err := s.wc.WriteRequest(req); err != nil {
		return nil, s.ioErr(ctx, err)
	}
	s.l.Debug("Unit submitted", "archive", len(data))

	s.enter(StateStreaming)
	for {
		resp, err := s.wc.ReadResponse()
		if err != nil {
			return nil, s.ioErr(ctx, err)
		}
		switch m := resp.(type) {
		case wire.BuildOutput:
			s.c.tracker.Output(s.unit.Name, m.Line, m.IsError)
		case wire.BuildComplete:
			if m.UnitName != s.unit.Name {
				return nil, builderr.Newf(builderr.KindProtocol, s.unit.Name, "result is for %q", m.UnitName)
			}
			return s.materialize(m.Artifacts)
		case wire.BuildError:
			name := m.UnitName
			if name == "" {
				name = s.unit.Name
			}
			return nil, builderr.New(builderr.KindServerBuild, name, m.Message)
		case wire.HeartbeatAck:
			return nil, builderr.New(builderr.KindProtocol, s.unit.Name, "unexpected heartbeat ack while streaming")
		default:
			return nil, builderr.Newf(builderr.KindProtocol, s.unit.Name, "unexpected response %T", resp)
		}
	}
}

// handshake fails with a handshake error in every case but
// cancellation.  Handshake errors are not retried.
func (s *Session) handshake(ctx context.Context) error {
	deadline := time.Now().Add(s.c.cfg.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	s.conn.SetDeadline(deadline)

	s.enter(StateHandshakeSent)
	fail := func(err error, msg string) error {
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		return builderr.Wrap(builderr.KindHandshake, s.unit.Name, err, msg)
	}
	if err := s.wc.WriteRequest(wire.Heartbeat{}); err != nil {
		return fail(err, "sending heartbeat")
	}
	resp, err := s.wc.ReadResponse()
	if err != nil {
		return fail(err, "awaiting heartbeat ack")
	}
	if _, ok := resp.(wire.HeartbeatAck); !ok {
		return builderr.Newf(builderr.KindHandshake, s.unit.Name, "worker answered heartbeat with %T", resp)
	}
	s.enter(StateHandshakeAcked)

	if d, ok := ctx.Deadline(); ok {
		s.conn.SetDeadline(d)
	} else {
		s.conn.SetDeadline(time.Time{})
	}
	return nil
}

func (s *Session) ioErr(ctx context.Context, err error) error {
	name := s.unit.Name
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return ctx.Err()
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return builderr.Newf(builderr.KindTimeout, name, "no result within %s", s.c.cfg.Timeout)
	case builderr.Is(err, builderr.KindProtocol):
		var be *builderr.Error
		errors.As(err, &be)
		return &builderr.Error{Kind: be.Kind, Package: name, Message: be.Message, Err: be.Err}
	case errors.Is(err, io.EOF):
		return builderr.New(builderr.KindConnectionLost, name, "worker closed the connection before the build finished")
	default:
		return builderr.Wrap(builderr.KindConnectionLost, name, err, "connection failed")
	}
}

// materialize checks every returned path before writing any of them.
func (s *Session) materialize(arts []types.ArtifactRef) ([]string, error) {
	s.c.tracker.Saving(s.unit.Name)
	layout := s.c.Layout()

	paths := make([]string, len(arts))
	for i, a := range arts {
		p, err := layout.Path(a.Path)
		if err != nil {
			return nil, builderr.Wrap(builderr.KindProtocol, s.unit.Name, err, a.Path)
		}
		paths[i] = p
	}
	for i, a := range arts {
		if err := s.c.writer.Write(paths[i], a.Data); err != nil {
			return nil, fmt.Errorf("%s: writing artifact %s: %w", s.unit.Name, a.Path, err)
		}
		s.l.Debug("Artifact written", "path", paths[i], "bytes", len(a.Data))
	}
	return paths, nil
}
