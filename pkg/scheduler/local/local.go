package local

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/the-maldridge/tess/pkg/scheduler"
	"github.com/the-maldridge/tess/pkg/source"
)

func init() {
	scheduler.RegisterInitCallback(cb)
}

func cb() {
	scheduler.RegisterRunnerFactory("local", New)
}

// New returns a local runner.  The "shell" option replaces /bin/sh.
func New(l hclog.Logger, opts map[string]string) (scheduler.Runner, error) {
	x := &Local{
		l:     l.Named("local"),
		shell: "/bin/sh",
	}
	if s, ok := opts["shell"]; ok && s != "" {
		x.shell = s
	}
	return x, nil
}

// Prepare makes the node's directory a checkout of the workspace at
// its revision.  Without a workspace URL the directory is used as it
// is.
func (c *Local) Prepare(ctx context.Context, node *scheduler.WorkerNode, ws scheduler.Workspace) error {
	if err := os.MkdirAll(node.Dir, 0755); err != nil {
		return err
	}
	if ws.URL == "" {
		return nil
	}
	repo := source.New(c.l, node.Dir)
	if err := repo.Bootstrap(ws.URL); err != nil {
		return err
	}
	if ws.Revision == "" {
		return nil
	}
	if at, err := repo.At(); err == nil && at != ws.Revision {
		if err := repo.Fetch(); err != nil {
			c.l.Warn("Fetch failed, trying checkout anyway", "node", node.Name, "error", err)
		}
	}
	changed, err := repo.Checkout(ws.Revision)
	if err != nil {
		return err
	}
	c.l.Debug("Node checked out", "node", node.Name, "rev", ws.Revision, "changed", len(changed))
	return nil
}

// Exec runs the script with the configured shell.
func (c *Local) Exec(ctx context.Context, node *scheduler.WorkerNode, cmd scheduler.Command) (*scheduler.Result, error) {
	dir := cmd.Dir
	if dir == "" {
		dir = node.Dir
	}
	var stdout bytes.Buffer
	sh := exec.CommandContext(ctx, c.shell, "-c", cmd.Script)
	sh.Dir = dir
	if cmd.Stdin != nil {
		sh.Stdin = bytes.NewReader(cmd.Stdin)
	}
	sh.Stdout = &stdout
	switch {
	case cmd.Output != nil && cmd.Errors != nil:
		sh.Stdout = io.MultiWriter(&stdout, cmd.Output)
		sh.Stderr = cmd.Errors
	case cmd.Output != nil:
		out := &lockedWriter{w: cmd.Output}
		sh.Stdout = io.MultiWriter(&stdout, out)
		sh.Stderr = out
	case cmd.Errors != nil:
		sh.Stderr = cmd.Errors
	}

	c.l.Trace("Running", "node", node.Name, "script", cmd.Script)
	err := sh.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &scheduler.Result{Stdout: stdout.Bytes(), ExitCode: exitErr.ExitCode()}, nil
	}
	if err != nil {
		return nil, err
	}
	return &scheduler.Result{Stdout: stdout.Bytes()}, nil
}

// lockedWriter serializes the stdout and stderr copiers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
