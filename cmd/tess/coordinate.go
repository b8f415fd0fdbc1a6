package main

import (
	"errors"
	"os"

	"github.com/the-maldridge/tess/pkg/cache"
	"github.com/the-maldridge/tess/pkg/http"
	"github.com/the-maldridge/tess/pkg/metrics"
	"github.com/the-maldridge/tess/pkg/progress"
	"github.com/the-maldridge/tess/pkg/scheduler"
	"github.com/the-maldridge/tess/pkg/storage"

	_ "github.com/the-maldridge/tess/pkg/scheduler/local"
	_ "github.com/the-maldridge/tess/pkg/scheduler/nomad"
	_ "github.com/the-maldridge/tess/pkg/storage/bc"
	_ "github.com/the-maldridge/tess/pkg/storage/mem"
	_ "github.com/the-maldridge/tess/pkg/storage/minio"
)

// CoordinateCmd builds the workspace across the configured nodes.
type CoordinateCmd struct {
	ClusterFlags `embed:""`

	Release bool   `help:"Build with the release profile"`
	Target  string `help:"Target triple to build for"`
	NoColor bool   `help:"Disable coloured output"`
}

// Run implements the coordinate command.
func (c *CoordinateCmd) Run(g *Globals) error {
	cl, err := c.load(g)
	if err != nil {
		return err
	}
	cfg := cl.cfg

	storage.SetLogger(g.Logger)
	storage.DoCallbacks()
	store, err := storage.Initialize(cfg.Cache.Backend)
	if err != nil {
		return err
	}
	defer store.Close()

	rec := metrics.NewPrometheusRecorder(nil)
	artifacts := cache.New(g.Logger, store, cache.WithMetrics(rec))

	scheduler.SetLogger(g.Logger)
	scheduler.DoCallbacks()
	runner, err := scheduler.ConstructRunner(cfg.Runner.Name, cfg.RunnerOptions())
	if err != nil {
		return err
	}

	opts := []scheduler.Option{
		scheduler.WithNodes(cl.nodes...),
		scheduler.WithRunner(runner),
		scheduler.WithCache(artifacts),
		scheduler.WithWorkspace(cl.ws),
		scheduler.WithProfile(c.Release, c.Target),
		scheduler.WithBuildCommand(cfg.BuildCommand),
		scheduler.WithTracker(progress.New(&progress.Console{Out: os.Stdout, Err: os.Stderr, Color: !c.NoColor})),
		scheduler.WithMetrics(rec),
	}
	if cfg.Cache.URL != "" {
		opts = append(opts, scheduler.WithCacheURL(cfg.Cache.URL))
	}
	s, err := scheduler.New(g.Logger, opts...)
	if err != nil {
		return err
	}
	if _, err := s.Plan(cl.units); err != nil {
		return err
	}

	srv, err := http.New(g.Logger, "tess on "+hostname())
	if err != nil {
		return err
	}
	srv.Mount("/metrics", rec.Handler())
	srv.Mount("/cache", artifacts.HTTPEntry())
	srv.Mount("/scheduler", s.HTTPEntry())
	adminErr := make(chan error, 1)
	go func() { adminErr <- srv.Serve(g.Ctx, cfg.Admin) }()

	g.Logger.Info("Coordinating build", "packages", len(cl.units), "nodes", len(cl.nodes), "revision", cl.ws.Revision)
	runErr := s.Run(g.Ctx)
	select {
	case err := <-adminErr:
		runErr = errors.Join(runErr, err)
	default:
	}
	return runErr
}
