package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// NewConfig returns a config object with default structures
// initialized.  The config can be loaded from other sources to
// override the defaults.
func NewConfig() *Config {
	return &Config{
		Runner:       &Runner{Name: "local"},
		Cache:        &Cache{Backend: "memory"},
		Daemon:       defaultDaemon(),
		BuildCommand: "cargo build",
		NomadJob:     "tess-build",
		Revision:     "HEAD",
		Admin:        ":7880",
	}
}

func defaultDaemon() *Daemon {
	return &Daemon{
		Listen:  ":7878",
		Admin:   ":7879",
		Command: "cargo build",
		Slots:   1,
	}
}

// LoadFromFile does as the name suggests, and loads the config from a
// file.  Both native syntax (.hcl) and JSON (.json) files are
// accepted.  Anything the file leaves unset keeps its default.
func (c *Config) LoadFromFile(path string) error {
	var f Config
	if err := hclsimple.DecodeFile(path, nil, &f); err != nil {
		return err
	}
	c.merge(f)
	return c.Validate()
}

func (c *Config) merge(f Config) {
	if len(f.Workers) > 0 {
		c.Workers = f.Workers
	}
	if f.Runner != nil {
		c.Runner = f.Runner
	}
	if f.Cache != nil {
		if f.Cache.Backend == "" {
			f.Cache.Backend = c.Cache.Backend
		}
		c.Cache = f.Cache
	}
	if f.Daemon != nil {
		d := defaultDaemon()
		if f.Daemon.Listen != "" {
			d.Listen = f.Daemon.Listen
		}
		if f.Daemon.Admin != "" {
			d.Admin = f.Daemon.Admin
		}
		if f.Daemon.Command != "" {
			d.Command = f.Daemon.Command
		}
		if f.Daemon.Slots > 0 {
			d.Slots = f.Daemon.Slots
		}
		d.WorkDir = f.Daemon.WorkDir
		c.Daemon = d
	}
	for _, s := range []struct {
		dst *string
		src string
	}{
		{&c.BuildCommand, f.BuildCommand},
		{&c.NomadJob, f.NomadJob},
		{&c.Workspace, f.Workspace},
		{&c.Revision, f.Revision},
		{&c.Admin, f.Admin},
	} {
		if s.src != "" {
			*s.dst = s.src
		}
	}
}

// Validate checks that worker names are unique and that every worker
// has a directory.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Workers))
	for _, w := range c.Workers {
		if _, dup := seen[w.Name]; dup {
			return fmt.Errorf("worker %q is defined more than once", w.Name)
		}
		seen[w.Name] = struct{}{}
		if w.Dir == "" {
			return fmt.Errorf("worker %q has no dir", w.Name)
		}
		if w.Capacity < 0 {
			return fmt.Errorf("worker %q has negative capacity", w.Name)
		}
	}
	return nil
}

// RunnerOptions returns the options for the configured runner, with
// the nomad job filled in when the runner does not set one.
func (c *Config) RunnerOptions() map[string]string {
	opts := make(map[string]string)
	if c.Runner != nil {
		for k, v := range c.Runner.Options {
			opts[k] = v
		}
	}
	if _, ok := opts["job"]; !ok && c.NomadJob != "" {
		opts["job"] = c.NomadJob
	}
	return opts
}
