package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-maldridge/tess/pkg/types"
	"github.com/the-maldridge/tess/pkg/wire"
)

// fakeWorkspace stands in for cargo metadata.
type fakeWorkspace struct {
	root  string
	units []types.BuildUnit
}

func (f *fakeWorkspace) Packages(context.Context) ([]types.BuildUnit, error) { return f.units, nil }
func (f *fakeWorkspace) Root() string { return f.root }

// useWorkspace lays out a one package workspace and points the build
// command at it.
func useWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"Cargo.toml":     "[workspace]\nmembers = [\"foo\"]\n",
		"foo/Cargo.toml": "[package]\nname = \"foo\"\n",
		"foo/src/lib.rs": "pub fn foo() {}\n",
	}
	var srcs []string
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0644))
		srcs = append(srcs, p)
	}

	ws := &fakeWorkspace{root: root, units: []types.BuildUnit{{Name: "foo", SourceFiles: srcs, Artifacts: []string{"foo"}}}}
	prev := inspect
	inspect = func(hclog.Logger, string) workspaceInspector { return ws }
	t.Cleanup(func() { inspect = prev })
	return root
}

// worker answers every build request with reply.
func worker(t *testing.T, reply wire.Response) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				c := wire.NewConn(conn)
				if _, err := c.ReadRequest(); err != nil {
					return
				}
				c.WriteResponse(wire.HeartbeatAck{})
				if _, err := c.ReadRequest(); err != nil {
					return
				}
				c.WriteResponse(reply)
			}()
		}
	}()
	return ln.Addr().String()
}

func TestBuildFailureExitsOne(t *testing.T) {
	root := useWorkspace(t)
	addr := worker(t, wire.BuildError{UnitName: "foo", Message: "E0432"})

	var logs bytes.Buffer
	code := run([]string{"build", "--server", addr, "-C", root, "--retries", "1", "--no-color"}, &logs)
	assert.Equal(t, 1, code)
	assert.Contains(t, logs.String(), "foo")
	assert.Contains(t, logs.String(), "E0432")
	assert.NoFileExists(t, filepath.Join(root, "target", "debug", "foo"))
}

func TestBuildSuccessExitsZero(t *testing.T) {
	root := useWorkspace(t)
	addr := worker(t, wire.BuildComplete{UnitName: "foo", Artifacts: []types.ArtifactRef{{Path: "foo", Data: []byte("bin")}}})

	var logs bytes.Buffer
	code := run([]string{"build", "--server", addr, "-C", root, "--no-color"}, &logs)
	require.Equal(t, 0, code, logs.String())

	data, err := os.ReadFile(filepath.Join(root, "target", "debug", "foo"))
	require.NoError(t, err)
	assert.Equal(t, "bin", string(data))
}

func TestBadFlagsExitOne(t *testing.T) {
	var logs bytes.Buffer
	assert.Equal(t, 1, run([]string{"build", "--no-such-flag"}, &logs))
	assert.NotEmpty(t, logs.String())
}
