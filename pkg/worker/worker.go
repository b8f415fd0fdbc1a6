// Package worker is the build side of the protocol: it unpacks the
// submitted sources, runs the toolchain, streams its output back and
// returns the produced artifacts.
package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/the-maldridge/tess/pkg/archive"
	"github.com/the-maldridge/tess/pkg/metrics"
	"github.com/the-maldridge/tess/pkg/types"
	"github.com/the-maldridge/tess/pkg/wire"
)

// DefaultCommand builds one cargo package.
const DefaultCommand = "cargo build"

// New returns a Server.
func New(l hclog.Logger, opts ...Option) *Server {
	s := &Server{
		l:       l.Named("worker"),
		command: DefaultCommand,
		shell:   "/bin/sh",
		slots:   make(chan struct{}, 1),
		metrics: metrics.NoopRecorder{},
		builds:  make(map[string]*Build),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ListenAndServe listens on addr and serves until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx ends, then waits for the
// open connections to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.l.Info("Accepting builds", "address", ln.Addr().String(), "slots", cap(s.slots))
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			return err
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			tc.SetNoDelay(true)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.handle(ctx, conn)
		}()
	}
}

// Builds returns the builds currently held.
func (s *Server) Builds() []Build {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Build, 0, len(s.builds))
	for _, b := range s.builds {
		out = append(out, *b)
	}
	return out
}

// session serializes responses written from the output copiers.
type session struct {
	mu sync.Mutex
	wc *wire.Conn
}

func (ss *session) send(r wire.Response) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.wc.WriteResponse(r)
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	l := s.l.With("remote", conn.RemoteAddr().String())
	ss := &session{wc: wire.NewConn(conn)}
	for {
		req, err := ss.wc.ReadRequest()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			l.Warn("Dropping connection", "error", err)
			return
		}
		switch r := req.(type) {
		case wire.Heartbeat:
			if err := ss.send(wire.HeartbeatAck{}); err != nil {
				return
			}
		case wire.BuildRequest:
			if err := s.build(ctx, l, ss, conn.RemoteAddr().String(), r); err != nil {
				l.Warn("Client went away", "unit", r.Unit.Name, "error", err)
				return
			}
		default:
			l.Warn("Unexpected request", "type", fmt.Sprintf("%T", req))
			return
		}
	}
}

// build runs one request.  The returned error is a failure to talk to
// the client; build failures are reported to the client instead.
func (s *Server) build(ctx context.Context, l hclog.Logger, ss *session, remote string, req wire.BuildRequest) error {
	id := uuid.NewString()
	name := req.Unit.Name
	l = l.With("unit", name, "build", id)

	s.mu.Lock()
	s.builds[id] = &Build{Unit: name, Remote: remote, Release: req.Release, Target: req.Target, Queued: time.Now()}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.builds, id)
		s.mu.Unlock()
	}()

	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return ss.send(wire.BuildError{UnitName: name, Message: "worker is shutting down"})
	}
	defer func() { <-s.slots }()
	s.mu.Lock()
	s.builds[id].Running = true
	s.metrics.SetWorkerInFlight(s.running())
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.builds[id].Running = false
		s.metrics.SetWorkerInFlight(s.running())
		s.mu.Unlock()
	}()

	start := time.Now()
	arts, msg, err := s.run(ctx, l, ss, req)
	s.metrics.ObserveWorkerBuild(err == nil && msg == "", time.Since(start))
	if err != nil {
		return err
	}
	if msg != "" {
		l.Info("Build failed", "reason", msg)
		return ss.send(wire.BuildError{UnitName: name, Message: msg})
	}
	l.Info("Build complete", "artifacts", len(arts), "elapsed", time.Since(start))
	return ss.send(wire.BuildComplete{UnitName: name, Artifacts: arts})
}

// running counts builds holding a slot; callers hold s.mu.
func (s *Server) running() int {
	n := 0
	for _, b := range s.builds {
		if b.Running {
			n++
		}
	}
	return n
}

// run unpacks and builds.  A non-empty message is a build failure to
// report; an error is a failure to reach the client.
func (s *Server) run(ctx context.Context, l hclog.Logger, ss *session, req wire.BuildRequest) ([]types.ArtifactRef, string, error) {
	dir, err := os.MkdirTemp(s.workDir, "tess-build-")
	if err != nil {
		return nil, "creating build area: " + err.Error(), nil
	}
	defer os.RemoveAll(dir)

	files, err := archive.Extract(req.Archive, dir)
	if err != nil {
		return nil, "unpacking sources: " + err.Error(), nil
	}
	l.Debug("Unpacked sources", "files", len(files), "dir", dir)

	script := s.script(req)
	cmd := exec.CommandContext(ctx, s.shell, "-c", script)
	cmd.Dir = dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err.Error(), nil
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err.Error(), nil
	}
	if err := cmd.Start(); err != nil {
		return nil, "starting build: " + err.Error(), nil
	}

	var (
		wg       sync.WaitGroup
		sendErr  error
		sendOnce sync.Once
		firstErr string
		errMu    sync.Mutex
	)
	pump := func(r io.Reader, isErr bool) {
		defer wg.Done()
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), 1<<20)
		for sc.Scan() {
			line := sc.Text()
			if isErr && strings.HasPrefix(line, "error") {
				errMu.Lock()
				if firstErr == "" {
					firstErr = line
				}
				errMu.Unlock()
			}
			if err := ss.send(wire.BuildOutput{UnitName: req.Unit.Name, Line: line, IsError: isErr}); err != nil {
				sendOnce.Do(func() { sendErr = err })
			}
		}
		io.Copy(io.Discard, r)
	}
	wg.Add(2)
	go pump(stdout, false)
	go pump(stderr, true)
	wg.Wait()
	waitErr := cmd.Wait()

	if sendErr != nil {
		return nil, "", sendErr
	}
	if waitErr != nil {
		msg := fmt.Sprintf("`%s` failed: %v", script, waitErr)
		if firstErr != "" {
			msg += ": " + firstErr
		}
		return nil, msg, nil
	}

	layout := types.Layout{Root: dir, Target: req.Target, Release: req.Release}
	arts, missing := collect(layout.Dir(), req.Unit.Artifacts)
	for _, m := range missing {
		ss.send(wire.BuildOutput{UnitName: req.Unit.Name, Line: "warning: no output found for " + m, IsError: true})
	}
	return arts, "", nil
}

func (s *Server) script(req wire.BuildRequest) string {
	parts := []string{s.command, "-p", quote(req.Unit.Name)}
	if req.Release {
		parts = append(parts, "--release")
	}
	if req.Target != "" {
		parts = append(parts, "--target", quote(req.Target))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// candidates lists the file names cargo may produce for a target.
func candidates(name string) []string {
	lib := "lib" + strings.ReplaceAll(name, "-", "_")
	return []string{
		name,
		name + ".exe",
		lib + ".rlib",
		lib + ".so",
		lib + ".a",
		lib + ".dylib",
		strings.ReplaceAll(name, "-", "_") + ".dll",
	}
}

// collect reads the outputs named by the unit from the profile
// directory.  Names with no output at all are returned as missing.
func collect(profileDir string, names []string) ([]types.ArtifactRef, []string) {
	var arts []types.ArtifactRef
	var missing []string
	seen := make(map[string]struct{})
	for _, n := range names {
		found := false
		for _, c := range candidates(n) {
			if _, dup := seen[c]; dup {
				found = true
				continue
			}
			data, err := os.ReadFile(filepath.Join(profileDir, c))
			if err != nil {
				continue
			}
			seen[c] = struct{}{}
			arts = append(arts, types.ArtifactRef{Path: c, Data: data})
			found = true
		}
		if !found {
			missing = append(missing, n)
		}
	}
	return arts, missing
}
