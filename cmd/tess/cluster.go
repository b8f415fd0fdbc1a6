package main

import (
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"github.com/the-maldridge/tess/pkg/config"
	"github.com/the-maldridge/tess/pkg/project"
	"github.com/the-maldridge/tess/pkg/scheduler"
	"github.com/the-maldridge/tess/pkg/source"
	"github.com/the-maldridge/tess/pkg/types"
)

// ClusterFlags are shared by the commands that read a cluster file.
type ClusterFlags struct {
	Config  string `short:"c" default:"cluster.hcl" help:"Cluster configuration file"`
	Dir     string `short:"C" default:"." help:"Local checkout of the workspace"`
	Package string `short:"p" help:"Build only this package and what it depends on"`
}

// cluster is what both cluster commands load before doing anything.
type cluster struct {
	cfg   *config.Config
	units []types.BuildUnit
	ws    scheduler.Workspace
	nodes []*scheduler.WorkerNode
}

func (f *ClusterFlags) load(g *Globals) (*cluster, error) {
	cfg := config.NewConfig()
	if err := cfg.LoadFromFile(f.Config); err != nil {
		return nil, err
	}
	dir, err := filepath.Abs(f.Dir)
	if err != nil {
		return nil, err
	}

	units, err := project.NewCargo(g.Logger, dir).Packages(g.Ctx)
	if err != nil {
		return nil, err
	}
	if f.Package != "" {
		if units, err = project.Select(units, f.Package); err != nil {
			return nil, err
		}
	}

	c := &cluster{
		cfg:   cfg,
		units: units,
		ws:    workspace(g.Logger, cfg, dir),
	}
	for _, w := range cfg.Workers {
		c.nodes = append(c.nodes, &scheduler.WorkerNode{
			Name:     w.Name,
			Host:     w.Address,
			Dir:      w.Dir,
			Capacity: w.Capacity,
		})
	}
	return c, nil
}

// workspace fills in whatever the config leaves open from the local
// checkout.
func workspace(l hclog.Logger, cfg *config.Config, dir string) scheduler.Workspace {
	ws := scheduler.Workspace{URL: cfg.Workspace, Revision: cfg.Revision}
	if ws.URL != "" && ws.Revision != "" && ws.Revision != "HEAD" {
		return ws
	}

	repo := source.New(l, dir)
	if err := repo.Open(); err != nil {
		l.Warn("Workspace is not a git checkout, nodes will build what they already have", "error", err)
		if ws.Revision == "HEAD" {
			ws.Revision = ""
		}
		return ws
	}
	if ws.URL == "" {
		if u, err := repo.Remote("origin"); err == nil {
			ws.URL = u
		}
	}
	if ws.Revision == "" || ws.Revision == "HEAD" {
		if rev, err := repo.At(); err == nil {
			ws.Revision = rev
		}
	}
	if clean, err := repo.Clean(); err == nil && !clean {
		l.Warn("Local checkout has uncommitted changes which will not be built", "revision", ws.Revision)
	}
	return ws
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "tess"
	}
	return h
}
