package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/the-maldridge/tess/pkg/archive"
	"github.com/the-maldridge/tess/pkg/artifact"
	"github.com/the-maldridge/tess/pkg/metrics"
	"github.com/the-maldridge/tess/pkg/progress"
	"github.com/the-maldridge/tess/pkg/project"
	"github.com/the-maldridge/tess/pkg/retry"
	"github.com/the-maldridge/tess/pkg/session"
)

// workspaceInspector discovers packages and knows where their
// artifacts belong.
type workspaceInspector interface {
	project.Inspector
	Root() string
}

var inspect = func(l hclog.Logger, dir string) workspaceInspector {
	return project.NewCargo(l, dir)
}

// BuildCmd sends every unit to one worker, in dependency order.
type BuildCmd struct {
	Server  string        `short:"s" required:"" help:"Worker address, host:port"`
	Dir     string        `short:"C" default:"." help:"Directory inside the workspace"`
	Release bool          `help:"Build with the release profile"`
	Target  string        `help:"Target triple to build for"`
	Package string        `short:"p" help:"Build only this package and what it depends on"`
	Retries int           `default:"3" help:"Attempts per package"`
	Delay   time.Duration `default:"2s" help:"Wait between attempts"`
	Timeout int           `default:"300" help:"Round trip timeout in seconds"`
	Ignore  []string      `help:"Extra patterns to leave out of the source archive"`
	Strict  bool          `help:"Do not retry packages that failed to compile"`
	NoColor bool          `help:"Disable coloured output"`
}

// Run implements the build command.
func (b *BuildCmd) Run(g *Globals) error {
	dir, err := filepath.Abs(b.Dir)
	if err != nil {
		return err
	}

	inspector := inspect(g.Logger, dir)
	units, err := inspector.Packages(g.Ctx)
	if err != nil {
		return err
	}
	if b.Package != "" {
		if units, err = project.Select(units, b.Package); err != nil {
			return err
		}
	}

	tracker := progress.New(&progress.Console{Out: os.Stdout, Err: os.Stderr, Color: !b.NoColor})
	rec := metrics.NoopRecorder{}

	client := session.NewClient(g.Logger, session.Config{
		Address: b.Server,
		Root:    inspector.Root(),
		Release: b.Release,
		Target:  b.Target,
		Timeout: time.Duration(b.Timeout) * time.Second,
	},
		session.WithArchiver(archive.New(g.Logger, archive.WithIgnore(b.Ignore...))),
		session.WithWriter(artifact.NewWriter(g.Logger)),
		session.WithTracker(tracker),
		session.WithMetrics(rec),
	)

	ctl := retry.New(g.Logger, retry.Policy{
		Attempts:         b.Retries,
		Delay:            b.Delay,
		RetryBuildErrors: !b.Strict,
	}, client, retry.WithTracker(tracker), retry.WithMetrics(rec))

	results, err := ctl.Run(g.Ctx, units)
	if err != nil {
		return err
	}
	n := 0
	for _, r := range results {
		n += len(r.Paths)
	}
	g.Logger.Info("Build complete", "packages", len(results), "artifacts", n)
	return nil
}
