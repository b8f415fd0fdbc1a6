// Package scheduler is the cluster coordinator.  It orders a
// workspace by dependency, spreads the packages over worker nodes in
// a single greedy pass, and builds them one after another, moving
// intermediate output between nodes through the shared cache.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/the-maldridge/tess/pkg/builderr"
	"github.com/the-maldridge/tess/pkg/cache"
	"github.com/the-maldridge/tess/pkg/graph"
	"github.com/the-maldridge/tess/pkg/metrics"
	"github.com/the-maldridge/tess/pkg/progress"
	"github.com/the-maldridge/tess/pkg/types"
)

// DefaultBuildCommand is run with -p <package> appended.
const DefaultBuildCommand = "cargo build"

// Option configures a Scheduler.
type Option func(*Scheduler) error

// New returns a scheduler.
func New(l hclog.Logger, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		l:            l.Named("scheduler"),
		buildCommand: DefaultBuildCommand,
		tracker:      progress.New(nil),
		metrics:      metrics.NoopRecorder{},
		byName:       make(map[string]*BuildJob),
	}
	for _, o := range opts {
		if err := o(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// leastLoaded returns the node with the fewest assigned jobs, the
// earliest declared one on a tie.
func leastLoaded(nodes []*WorkerNode) *WorkerNode {
	best := nodes[0]
	for _, n := range nodes[1:] {
		if n.Load < best.Load {
			best = n
		}
	}
	return best
}

// Plan orders the units and assigns each one to a node.  Loads only
// grow; a plan is made once per run.
func (s *Scheduler) Plan(units []types.BuildUnit) ([]*BuildJob, error) {
	if len(s.nodes) == 0 {
		return nil, ErrNoNodes
	}
	g, err := graph.New(s.l, units)
	if err != nil {
		return nil, err
	}
	order, err := g.Order()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make([]*BuildJob, 0, len(order))
	s.byName = make(map[string]*BuildJob, len(order))
	for _, name := range order {
		node := leastLoaded(s.nodes)
		node.Load++
		job := &BuildJob{
			Package:      name,
			Dependencies: g.Deps(name),
			Worker:       node,
			Status:       JobPending,
		}
		s.jobs = append(s.jobs, job)
		s.byName[name] = job
		s.metrics.IncScheduled(node.Name)
		s.l.Debug("Assigned", "package", name, "node", node.Name, "load", node.Load)
	}
	return s.jobs, nil
}

// Jobs returns a snapshot of the planned jobs.
func (s *Scheduler) Jobs() []BuildJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]BuildJob, len(s.jobs))
	for i, j := range s.jobs {
		out[i] = *j
	}
	return out
}

// Nodes returns a snapshot of the nodes.
func (s *Scheduler) Nodes() []WorkerNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WorkerNode, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = *n
	}
	return out
}

func (s *Scheduler) setStatus(job *BuildJob, st JobStatus, msg string) {
	s.mu.Lock()
	job.Status = st
	job.Message = msg
	s.mu.Unlock()
}

// Run builds the planned jobs strictly in order.  The first failure
// ends the run.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.runner == nil {
		return errors.New("scheduler has no runner")
	}
	if s.cache == nil && s.cacheURL == "" {
		return errors.New("scheduler has no cache")
	}

	prepared := make(map[*WorkerNode]bool)
	for _, job := range s.jobs {
		if err := s.ready(job); err != nil {
			return err
		}
		node := job.Worker
		if !prepared[node] {
			s.l.Info("Preparing node", "node", node.Name, "rev", s.ws.Revision)
			if err := s.runner.Prepare(ctx, node, s.ws); err != nil {
				s.setStatus(job, JobFailed, err.Error())
				return builderr.Wrap(builderr.KindRemoteCommand, job.Package, err, "preparing "+node.Name)
			}
			prepared[node] = true
		}
		if err := s.runJob(ctx, job); err != nil {
			s.setStatus(job, JobFailed, err.Error())
			s.tracker.Finish(job.Package, false, err.Error())
			return err
		}
		s.setStatus(job, JobComplete, "")
		s.tracker.Finish(job.Package, true, "")
	}
	return nil
}

func (s *Scheduler) ready(job *BuildJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range job.Dependencies {
		if dep, ok := s.byName[d]; !ok || dep.Status != JobComplete {
			return ErrNotReady{Package: job.Package, Dependency: d}
		}
	}
	return nil
}

func (s *Scheduler) runJob(ctx context.Context, job *BuildJob) error {
	node := job.Worker
	s.setStatus(job, JobBuilding, "")
	s.tracker.Start(job.Package, 1)

	for _, dep := range job.Dependencies {
		if err := s.syncDep(ctx, job, dep); err != nil {
			return err
		}
	}

	out := &lineWriter{pkg: job.Package, t: s.tracker}
	errs := &lineWriter{pkg: job.Package, t: s.tracker, isErr: true}
	start := time.Now()
	_, err := s.exec(ctx, job, "build", Command{
		Dir:    node.Dir,
		Script: s.buildScript(job.Package),
		Output: out,
		Errors: errs,
	})
	out.Flush()
	errs.Flush()
	s.metrics.ObserveRemoteBuild(node.Name, err == nil, time.Since(start))
	if err != nil {
		s.l.Error("Remote build failed", "package", job.Package, "node", node.Name, "error", err)
		return err
	}
	s.l.Info("Built", "package", job.Package, "node", node.Name)

	s.tracker.Saving(job.Package)
	return s.publish(ctx, job)
}

// exec runs cmd on the job's node and turns a non-zero exit into an
// error.
func (s *Scheduler) exec(ctx context.Context, job *BuildJob, what string, cmd Command) (*Result, error) {
	node := job.Worker
	res, err := s.runner.Exec(ctx, node, cmd)
	if err != nil {
		return nil, builderr.Wrap(builderr.KindRemoteCommand, job.Package, err, what+" on "+node.Name)
	}
	if res.ExitCode != 0 {
		return nil, builderr.Newf(builderr.KindRemoteCommand, job.Package, "%s on %s exited with status %d", what, node.Name, res.ExitCode)
	}
	return res, nil
}

// syncDep copies the cache entry of an already built dependency into
// the node's build area.
func (s *Scheduler) syncDep(ctx context.Context, job *BuildJob, dep string) error {
	cmd := Command{Dir: job.Worker.Dir, Script: s.syncScript(dep)}
	if s.cacheURL == "" {
		bundle, err := s.cache.Fetch(dep)
		if err != nil {
			return builderr.Wrap(builderr.KindRemoteCommand, job.Package, err, "fetching "+dep+" from cache")
		}
		cmd.Stdin = bundle
	}
	if _, err := s.exec(ctx, job, "syncing "+dep, cmd); err != nil {
		return err
	}
	s.l.Debug("Synced dependency", "package", job.Package, "dependency", dep, "node", job.Worker.Name)
	return nil
}

func (s *Scheduler) publish(ctx context.Context, job *BuildJob) error {
	node := job.Worker
	res, err := s.exec(ctx, job, "packing output", Command{Dir: node.Dir, Script: s.publishScript(job.Package, node)})
	if err != nil {
		return err
	}
	if s.cacheURL != "" {
		return nil
	}
	e := cache.Entry{Node: node.Name, Revision: s.ws.Revision}
	if err := s.cache.Publish(job.Package, res.Stdout, e); err != nil {
		return builderr.Wrap(builderr.KindRemoteCommand, job.Package, err, "publishing")
	}
	return nil
}
