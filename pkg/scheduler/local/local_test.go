package local

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-maldridge/tess/pkg/scheduler"
)

func TestExec(t *testing.T) {
	r, err := New(hclog.NewNullLogger(), nil)
	require.NoError(t, err)
	node := &scheduler.WorkerNode{Name: "n0", Dir: t.TempDir()}

	var out bytes.Buffer
	res, err := r.Exec(context.Background(), node, scheduler.Command{
		Script: "cat > in.txt && echo done && echo oops >&2",
		Stdin:  []byte("payload"),
		Output: &out,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "done\n", string(res.Stdout))
	assert.Contains(t, out.String(), "oops")

	data, err := os.ReadFile(filepath.Join(node.Dir, "in.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestExecSeparatesErrors(t *testing.T) {
	r, err := New(hclog.NewNullLogger(), nil)
	require.NoError(t, err)

	var out, errs bytes.Buffer
	res, err := r.Exec(context.Background(), &scheduler.WorkerNode{Dir: t.TempDir()}, scheduler.Command{
		Script: "echo Compiling && echo 'error[E0432]' >&2",
		Output: &out,
		Errors: &errs,
	})
	require.NoError(t, err)
	assert.Equal(t, "Compiling\n", string(res.Stdout))
	assert.Equal(t, "Compiling\n", out.String())
	assert.Equal(t, "error[E0432]\n", errs.String())
}

func TestExecExitCode(t *testing.T) {
	r, _ := New(hclog.NewNullLogger(), nil)
	res, err := r.Exec(context.Background(), &scheduler.WorkerNode{Dir: t.TempDir()}, scheduler.Command{Script: "exit 101"})
	require.NoError(t, err)
	assert.Equal(t, 101, res.ExitCode)
}

func TestPrepareWithoutWorkspaceCreatesDir(t *testing.T) {
	r, _ := New(hclog.NewNullLogger(), nil)
	dir := filepath.Join(t.TempDir(), "node")
	require.NoError(t, r.Prepare(context.Background(), &scheduler.WorkerNode{Dir: dir}, scheduler.Workspace{}))
	assert.DirExists(t, dir)
}

func TestTarRoundTripBetweenNodes(t *testing.T) {
	r, _ := New(hclog.NewNullLogger(), nil)
	a := &scheduler.WorkerNode{Name: "a", Dir: t.TempDir()}
	b := &scheduler.WorkerNode{Name: "b", Dir: t.TempDir()}
	require.NoError(t, os.MkdirAll(filepath.Join(a.Dir, "target", "debug"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(a.Dir, "target", "debug", "libcore.rlib"), []byte("rlib"), 0644))

	packed, err := r.Exec(context.Background(), a, scheduler.Command{Script: "tar -cf - 'target/debug'"})
	require.NoError(t, err)
	require.Equal(t, 0, packed.ExitCode)

	res, err := r.Exec(context.Background(), b, scheduler.Command{Script: "tar -xf -", Stdin: packed.Stdout})
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	assert.FileExists(t, filepath.Join(b.Dir, "target", "debug", "libcore.rlib"))
}
