package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))
	return p
}

func TestDefaults(t *testing.T) {
	c := NewConfig()
	assert.Equal(t, "local", c.Runner.Name)
	assert.Equal(t, "memory", c.Cache.Backend)
	assert.Equal(t, 1, c.Daemon.Slots)
	assert.Equal(t, "cargo build", c.BuildCommand)
	assert.Equal(t, map[string]string{"job": "tess-build"}, c.RunnerOptions())
}

func TestLoadHCL(t *testing.T) {
	p := write(t, "cluster.hcl", `
worker "n0" {
  address  = "10.0.0.2"
  dir      = "/srv/tess"
  capacity = 4
}

worker "n1" {
  dir = "/srv/tess"
}

runner "nomad" {
  options = {
    poll = "5s"
  }
}

cache {
  backend = "bitcask"
  url     = "http://coord:7880/cache"
}

workspace = "https://example.com/ws.git"
revision  = "abc123"
`)

	c := NewConfig()
	require.NoError(t, c.LoadFromFile(p))

	require.Len(t, c.Workers, 2)
	assert.Equal(t, Worker{Name: "n0", Address: "10.0.0.2", Dir: "/srv/tess", Capacity: 4}, c.Workers[0])
	assert.Equal(t, "n1", c.Workers[1].Name)
	assert.Equal(t, "nomad", c.Runner.Name)
	assert.Equal(t, map[string]string{"poll": "5s", "job": "tess-build"}, c.RunnerOptions())
	assert.Equal(t, "bitcask", c.Cache.Backend)
	assert.Equal(t, "http://coord:7880/cache", c.Cache.URL)
	assert.Equal(t, "abc123", c.Revision)

	// Untouched settings keep their defaults.
	assert.Equal(t, "cargo build", c.BuildCommand)
	assert.Equal(t, ":7878", c.Daemon.Listen)
}

func TestLoadJSON(t *testing.T) {
	p := write(t, "worker.json", `{
  "daemon": {"listen": ":9000", "slots": 2},
  "build_command": "cargo build --locked"
}`)

	c := NewConfig()
	require.NoError(t, c.LoadFromFile(p))
	assert.Equal(t, ":9000", c.Daemon.Listen)
	assert.Equal(t, ":7879", c.Daemon.Admin)
	assert.Equal(t, 2, c.Daemon.Slots)
	assert.Equal(t, "cargo build --locked", c.BuildCommand)
	assert.Equal(t, "local", c.Runner.Name)
}

func TestLoadRejectsDuplicateWorkers(t *testing.T) {
	p := write(t, "cluster.hcl", `
worker "n0" { dir = "/a" }
worker "n0" { dir = "/b" }
`)
	err := NewConfig().LoadFromFile(p)
	assert.ErrorContains(t, err, `"n0" is defined more than once`)
}

func TestLoadMissingDir(t *testing.T) {
	p := write(t, "cluster.hcl", `worker "n0" {}`)
	assert.Error(t, NewConfig().LoadFromFile(p))
}

func TestLoadBadFile(t *testing.T) {
	assert.Error(t, NewConfig().LoadFromFile(filepath.Join(t.TempDir(), "nope.hcl")))
	p := write(t, "cluster.yaml", "a: b")
	assert.Error(t, NewConfig().LoadFromFile(p))
}
