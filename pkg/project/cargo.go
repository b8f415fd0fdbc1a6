package project

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"github.com/the-maldridge/tess/pkg/types"
)

// Metadata is the subset of `cargo metadata` output that discovery
// needs.
type Metadata struct {
	Packages      []Package `json:"packages"`
	WorkspaceRoot string    `json:"workspace_root"`
}

// Package is one package as reported by cargo.
type Package struct {
	Name         string       `json:"name"`
	ManifestPath string       `json:"manifest_path"`
	Dependencies []Dependency `json:"dependencies"`
	Targets      []Target     `json:"targets"`
}

// Dependency is a declared dependency of a package.
type Dependency struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// Target is a compilation target of a package.
type Target struct {
	Name    string   `json:"name"`
	Kind    []string `json:"kind"`
	SrcPath string   `json:"src_path"`
}

func (t Target) buildable() bool {
	for _, k := range t.Kind {
		if k == "lib" || k == "bin" {
			return true
		}
	}
	return false
}

// Runner executes a command in dir and returns its standard output.
type Runner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// Cargo inspects a workspace through `cargo metadata`.
type Cargo struct {
	l   hclog.Logger
	dir string
	bin string
	run Runner

	root string
}

// CargoOption configures a Cargo inspector.
type CargoOption func(*Cargo)

// WithRunner replaces command execution.
func WithRunner(r Runner) CargoOption {
	return func(c *Cargo) {
		c.run = r
	}
}

// WithCargo sets the cargo binary, which defaults to the one on PATH.
func WithCargo(bin string) CargoOption {
	return func(c *Cargo) {
		c.bin = bin
	}
}

// NewCargo returns an inspector for the workspace containing dir.
func NewCargo(l hclog.Logger, dir string, opts ...CargoOption) *Cargo {
	c := &Cargo{
		l:   l.Named("project"),
		dir: dir,
		bin: "cargo",
		run: execRunner,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func execRunner(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return out, nil
}

// Packages implements Inspector.
func (c *Cargo) Packages(ctx context.Context) ([]types.BuildUnit, error) {
	out, err := c.run(ctx, c.dir, c.bin, "metadata", "--format-version", "1", "--no-deps")
	if err != nil {
		return nil, err
	}
	md, err := Decode(bytes.NewReader(out))
	if err != nil {
		return nil, err
	}
	units, err := md.Units()
	if err != nil {
		return nil, err
	}
	c.root = md.WorkspaceRoot
	c.l.Info("Discovered packages", "count", len(units), "workspace", md.WorkspaceRoot)
	return units, nil
}

// Root is the workspace root reported by the last call to Packages,
// or the directory the inspector was created with.
func (c *Cargo) Root() string {
	if c.root == "" {
		return c.dir
	}
	return c.root
}

// Decode reads cargo metadata.
func Decode(r io.Reader) (*Metadata, error) {
	md := new(Metadata)
	if err := json.NewDecoder(r).Decode(md); err != nil {
		return nil, fmt.Errorf("decoding cargo metadata: %w", err)
	}
	return md, nil
}

// Units converts the packages into build units.  The sources of a
// unit are its manifest, the workspace manifest and every .rs file
// below the directory of a lib or bin target.  Artifacts are the
// names of those targets.
func (m *Metadata) Units() ([]types.BuildUnit, error) {
	wsManifest := filepath.Join(m.WorkspaceRoot, "Cargo.toml")
	_, err := os.Stat(wsManifest)
	hasWorkspace := m.WorkspaceRoot != "" && err == nil

	units := make([]types.BuildUnit, 0, len(m.Packages))
	for _, p := range m.Packages {
		u := types.BuildUnit{Name: p.Name}
		seen := make(map[string]struct{})
		add := func(f string) {
			if _, ok := seen[f]; ok {
				return
			}
			seen[f] = struct{}{}
			u.SourceFiles = append(u.SourceFiles, f)
		}

		add(p.ManifestPath)
		if hasWorkspace {
			add(wsManifest)
		}
		for _, t := range p.Targets {
			if !t.buildable() {
				continue
			}
			u.Artifacts = append(u.Artifacts, t.Name)
			err := filepath.WalkDir(filepath.Dir(t.SrcPath), func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() && filepath.Ext(path) == ".rs" {
					add(path)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("%s: scanning sources: %w", p.Name, err)
			}
		}

		depSeen := make(map[string]struct{})
		for _, d := range p.Dependencies {
			// Dev dependencies are only needed for tests and
			// benches, and cargo allows them to point back up.
			if d.Kind == "dev" {
				continue
			}
			if _, ok := depSeen[d.Name]; ok {
				continue
			}
			depSeen[d.Name] = struct{}{}
			u.Dependencies = append(u.Dependencies, d.Name)
		}
		units = append(units, u)
	}
	return units, nil
}
