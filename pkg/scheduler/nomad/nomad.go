// Package nomad runs node commands as dispatches of a parameterized
// Nomad batch job.  The job is expected to require the "node" and
// "script" meta keys, to place itself on the node named by "node", to
// write any dispatch payload to local/payload, and to run
// `sh -c "$NOMAD_META_script"`.
package nomad

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/nomad/api"

	"github.com/the-maldridge/tess/pkg/scheduler"
)

// maxPayload is the largest dispatch payload Nomad accepts.
const maxPayload = 16 * 1024

// jobAPI is the part of the Nomad API the runner uses.
type jobAPI interface {
	Dispatch(job string, meta map[string]string, payload []byte) (string, error)
	Allocations(jobID string) ([]*api.AllocationListStub, error)
	Logs(allocID, task, stream string) ([]byte, error)
}

type nomadRunner struct {
	l   hclog.Logger
	api jobAPI

	job  string
	task string
	poll time.Duration
}

func init() {
	scheduler.RegisterInitCallback(cb)
}

func cb() {
	scheduler.RegisterRunnerFactory("nomad", New)
}

// New connects using the standard NOMAD_* environment.  Options:
// "job" (default tess-build), "task" (default build) and "poll", a
// duration between allocation checks (default 2s).
func New(l hclog.Logger, opts map[string]string) (scheduler.Runner, error) {
	c, err := api.NewClient(api.DefaultConfig())
	if err != nil {
		return nil, err
	}
	return newRunner(l, &client{c: c}, opts)
}

func newRunner(l hclog.Logger, a jobAPI, opts map[string]string) (*nomadRunner, error) {
	x := &nomadRunner{
		l:    l.Named("nomad"),
		api:  a,
		job:  "tess-build",
		task: "build",
		poll: 2 * time.Second,
	}
	if v := opts["job"]; v != "" {
		x.job = v
	}
	if v := opts["task"]; v != "" {
		x.task = v
	}
	if v := opts["poll"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("nomad poll: %w", err)
		}
		x.poll = d
	}
	return x, nil
}

// Prepare clones or updates the workspace in the node's directory.
func (n *nomadRunner) Prepare(ctx context.Context, node *scheduler.WorkerNode, ws scheduler.Workspace) error {
	script := "mkdir -p " + scheduler.Quote(node.Dir)
	if ws.URL != "" {
		script += " && cd " + scheduler.Quote(node.Dir) +
			" && { if [ -d .git ]; then git fetch origin; else git clone " + scheduler.Quote(ws.URL) + " .; fi; }"
		if ws.Revision != "" {
			script += " && git checkout --force " + scheduler.Quote(ws.Revision)
		}
	}
	res, err := n.run(ctx, node, script, nil)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("preparing %s exited with status %d", node.Name, res.ExitCode)
	}
	return nil
}

// Exec dispatches the command and waits for it to finish.
func (n *nomadRunner) Exec(ctx context.Context, node *scheduler.WorkerNode, cmd scheduler.Command) (*scheduler.Result, error) {
	dir := cmd.Dir
	if dir == "" {
		dir = node.Dir
	}
	script := wrapScript(dir, cmd.Script, cmd.Stdin != nil)
	res, err := n.run(ctx, node, script, cmd.Stdin)
	if err != nil {
		return nil, err
	}
	if cmd.Output != nil {
		cmd.Output.Write(res.Stdout)
	}
	errs := cmd.Errors
	if errs == nil {
		errs = cmd.Output
	}
	if errs != nil {
		if stderr, err := n.api.Logs(res.alloc, n.task, "stderr"); err == nil {
			errs.Write(stderr)
		}
	}
	return &res.Result, nil
}

// wrapScript runs script from dir, reading the dispatch payload on
// standard input when there is one.
func wrapScript(dir, script string, stdin bool) string {
	out := "cd " + scheduler.Quote(dir) + " && ( " + script + " )"
	if stdin {
		out += ` < "$NOMAD_TASK_DIR/payload"`
	}
	return out
}

type outcome struct {
	scheduler.Result
	alloc string
}

func (n *nomadRunner) run(ctx context.Context, node *scheduler.WorkerNode, script string, payload []byte) (*outcome, error) {
	if len(payload) > maxPayload {
		return nil, fmt.Errorf("%d byte payload exceeds the nomad dispatch limit, serve the cache over http instead", len(payload))
	}
	meta := map[string]string{
		"node":    node.Host,
		"script":  script,
		"request": uuid.NewString(),
	}
	id, err := n.api.Dispatch(n.job, meta, payload)
	if err != nil {
		n.l.Warn("Nomad error", "error", err)
		return nil, err
	}
	n.l.Debug("Dispatched", "node", node.Name, "job", id, "request", meta["request"])

	stub, err := n.wait(ctx, id)
	if err != nil {
		return nil, err
	}
	stdout, err := n.api.Logs(stub.ID, n.task, "stdout")
	if err != nil {
		return nil, err
	}
	return &outcome{
		Result: scheduler.Result{Stdout: stdout, ExitCode: exitCode(stub, n.task)},
		alloc:  stub.ID,
	}, nil
}

func (n *nomadRunner) wait(ctx context.Context, jobID string) (*api.AllocationListStub, error) {
	t := time.NewTicker(n.poll)
	defer t.Stop()
	for {
		allocs, err := n.api.Allocations(jobID)
		if err != nil {
			return nil, err
		}
		for _, a := range allocs {
			switch a.ClientStatus {
			case api.AllocClientStatusComplete, api.AllocClientStatusFailed, api.AllocClientStatusLost:
				return a, nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// exitCode takes the code of the last termination of the task.
func exitCode(a *api.AllocationListStub, task string) int {
	ts := a.TaskStates[task]
	if ts != nil {
		for i := len(ts.Events) - 1; i >= 0; i-- {
			ev := ts.Events[i]
			if ev.Type != api.TaskTerminated {
				continue
			}
			if code, ok := ev.Details["exit_code"]; ok {
				if c, err := strconv.Atoi(code); err == nil {
					return c
				}
			}
			return ev.ExitCode
		}
		if ts.Failed {
			return 1
		}
	}
	if a.ClientStatus == api.AllocClientStatusComplete {
		return 0
	}
	return 1
}

// client adapts *api.Client to jobAPI.
type client struct {
	c *api.Client
}

func (c *client) Dispatch(job string, meta map[string]string, payload []byte) (string, error) {
	res, _, err := c.c.Jobs().Dispatch(job, meta, payload, nil)
	if err != nil {
		return "", err
	}
	return res.DispatchedJobID, nil
}

func (c *client) Allocations(jobID string) ([]*api.AllocationListStub, error) {
	allocs, _, err := c.c.Jobs().Allocations(jobID, false, nil)
	return allocs, err
}

func (c *client) Logs(allocID, task, stream string) ([]byte, error) {
	alloc, _, err := c.c.Allocations().Info(allocID, nil)
	if err != nil {
		return nil, err
	}
	rc, err := c.c.AllocFS().Cat(alloc, "alloc/logs/"+task+"."+stream+".0", nil)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
