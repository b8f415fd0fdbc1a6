package project

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-maldridge/tess/pkg/graph"
	"github.com/the-maldridge/tess/pkg/types"
)

func fixture(t *testing.T) (string, []byte) {
	root := t.TempDir()
	for _, rel := range []string{
		"Cargo.toml",
		"core/Cargo.toml",
		"core/src/lib.rs",
		"core/src/parse/mod.rs",
		"core/src/README.md",
		"cli/Cargo.toml",
		"cli/src/main.rs",
		"cli/benches/b.rs",
	} {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, nil, 0644))
	}

	md := Metadata{
		WorkspaceRoot: root,
		Packages: []Package{
			{
				Name:         "core",
				ManifestPath: filepath.Join(root, "core", "Cargo.toml"),
				Dependencies: []Dependency{{Name: "serde"}, {Name: "serde", Kind: "dev"}},
				Targets:      []Target{{Name: "core", Kind: []string{"lib"}, SrcPath: filepath.Join(root, "core", "src", "lib.rs")}},
			},
			{
				Name:         "cli",
				ManifestPath: filepath.Join(root, "cli", "Cargo.toml"),
				Dependencies: []Dependency{{Name: "core"}},
				Targets: []Target{
					{Name: "cli", Kind: []string{"bin"}, SrcPath: filepath.Join(root, "cli", "src", "main.rs")},
					{Name: "b", Kind: []string{"bench"}, SrcPath: filepath.Join(root, "cli", "benches", "b.rs")},
				},
			},
		},
	}
	data, err := json.Marshal(md)
	require.NoError(t, err)
	return root, data
}

func TestCargoPackages(t *testing.T) {
	root, data := fixture(t)
	var gotArgs []string
	c := NewCargo(hclog.NewNullLogger(), root, WithRunner(func(_ context.Context, dir, name string, args ...string) ([]byte, error) {
		assert.Equal(t, root, dir)
		assert.Equal(t, "cargo", name)
		gotArgs = args
		return data, nil
	}))

	units, err := c.Packages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"metadata", "--format-version", "1", "--no-deps"}, gotArgs)
	assert.Equal(t, root, c.Root())
	require.Len(t, units, 2)

	core := units[0]
	assert.Equal(t, "core", core.Name)
	assert.Equal(t, []string{"serde"}, core.Dependencies)
	assert.Equal(t, []string{"core"}, core.Artifacts)
	assert.Equal(t, []string{
		filepath.Join(root, "core", "Cargo.toml"),
		filepath.Join(root, "Cargo.toml"),
		filepath.Join(root, "core", "src", "lib.rs"),
		filepath.Join(root, "core", "src", "parse", "mod.rs"),
	}, core.SourceFiles)

	cli := units[1]
	assert.Equal(t, []string{"core"}, cli.Dependencies)
	assert.Equal(t, []string{"cli"}, cli.Artifacts)
	assert.NotContains(t, cli.SourceFiles, filepath.Join(root, "cli", "benches", "b.rs"))
}

func TestCargoRunnerFailure(t *testing.T) {
	c := NewCargo(hclog.NewNullLogger(), t.TempDir(), WithRunner(func(context.Context, string, string, ...string) ([]byte, error) {
		return nil, errors.New("could not find Cargo.toml")
	}))
	_, err := c.Packages(context.Background())
	assert.Error(t, err)
}

func TestDevDependenciesAreNotEdges(t *testing.T) {
	root := t.TempDir()
	pkg := func(name string, deps ...Dependency) Package {
		src := filepath.Join(root, name, "src", "lib.rs")
		require.NoError(t, os.MkdirAll(filepath.Dir(src), 0755))
		require.NoError(t, os.WriteFile(src, nil, 0644))
		return Package{
			Name:         name,
			ManifestPath: filepath.Join(root, name, "Cargo.toml"),
			Dependencies: deps,
			Targets:      []Target{{Name: name, Kind: []string{"lib"}, SrcPath: src}},
		}
	}

	// a only needs b for its tests, while b really links a.
	md := Metadata{
		WorkspaceRoot: root,
		Packages: []Package{
			pkg("a", Dependency{Name: "b", Kind: "dev"}),
			pkg("b", Dependency{Name: "a"}, Dependency{Name: "cc", Kind: "build"}),
		},
	}
	units, err := md.Units()
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Empty(t, units[0].Dependencies)
	assert.Equal(t, []string{"a", "cc"}, units[1].Dependencies)

	sorted, err := graph.Sort(hclog.NewNullLogger(), units)
	require.NoError(t, err)
	require.Len(t, sorted, 2)
	assert.Equal(t, "a", sorted[0].Name)
	assert.Equal(t, "b", sorted[1].Name)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(strings.NewReader("not json"))
	assert.Error(t, err)
}

func TestSelectKeepsTransitiveDependencies(t *testing.T) {
	units := []types.BuildUnit{
		{Name: "core"},
		{Name: "util", Dependencies: []string{"core"}},
		{Name: "cli", Dependencies: []string{"util", "clap"}},
		{Name: "other"},
	}
	got, err := Select(units, "cli")
	require.NoError(t, err)
	names := make([]string, len(got))
	for i, u := range got {
		names[i] = u.Name
	}
	assert.Equal(t, []string{"core", "util", "cli"}, names)

	_, err = Select(units, "missing")
	assert.ErrorIs(t, err, ErrUnknownPackage)
}
