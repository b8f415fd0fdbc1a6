package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	ents, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range ents {
		names = append(names, e.Name())
	}
	return names
}

func TestWriteIsIdempotent(t *testing.T) {
	for _, inPlace := range []bool{true, false} {
		dir := t.TempDir()
		path := filepath.Join(dir, "target", "debug", "app")
		w := NewWriter(hclog.NewNullLogger(), WithReplaceInPlace(inPlace))

		require.NoError(t, w.Write(path, []byte("binary")))
		require.NoError(t, w.Write(path, []byte("binary")))

		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "binary", string(got))
		assert.Equal(t, []string{"app"}, listDir(t, filepath.Dir(path)), "in place: %v", inPlace)
	}
}

func TestWriteReplacesExisting(t *testing.T) {
	for _, inPlace := range []bool{true, false} {
		dir := t.TempDir()
		path := filepath.Join(dir, "app")
		require.NoError(t, os.WriteFile(path, []byte("old"), 0644))

		w := NewWriter(hclog.NewNullLogger(), WithReplaceInPlace(inPlace))
		require.NoError(t, w.Write(path, []byte("new")))

		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "new", string(got))
		assert.Equal(t, []string{"app"}, listDir(t, dir))
	}
}

func TestInterruptedRenameKeepsPreviousArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app")
	require.NoError(t, os.WriteFile(path, []byte("previous"), 0644))

	interrupted := errors.New("interrupted")
	w := NewWriter(hclog.NewNullLogger(),
		WithReplaceInPlace(true),
		WithRename(func(oldpath, newpath string) error { return interrupted }),
	)

	err := w.Write(path, []byte("next"))
	assert.ErrorIs(t, err, interrupted)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(got))
	assert.Equal(t, []string{"app"}, listDir(t, dir))
}

func TestAsideFallbackRestoresOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app")
	require.NoError(t, os.WriteFile(path, []byte("previous"), 0644))

	calls := 0
	failing := errors.New("file in use")
	w := NewWriter(hclog.NewNullLogger(),
		WithReplaceInPlace(false),
		WithRename(func(oldpath, newpath string) error {
			calls++
			// The second rename moves the new file into place.
			if calls == 2 {
				return failing
			}
			return os.Rename(oldpath, newpath)
		}),
	)

	err := w.Write(path, []byte("next"))
	assert.ErrorIs(t, err, failing)
	assert.Equal(t, 3, calls)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(got))
	assert.Equal(t, []string{"app"}, listDir(t, dir))
}

func TestAsideFallbackRefusesWhenExistingIsLocked(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app")
	require.NoError(t, os.WriteFile(path, []byte("previous"), 0644))

	locked := errors.New("sharing violation")
	w := NewWriter(hclog.NewNullLogger(),
		WithReplaceInPlace(false),
		WithRename(func(oldpath, newpath string) error {
			if oldpath == path {
				return locked
			}
			return os.Rename(oldpath, newpath)
		}),
	)

	assert.ErrorIs(t, w.Write(path, []byte("next")), locked)
	got, _ := os.ReadFile(path)
	assert.Equal(t, "previous", string(got))
	assert.Equal(t, []string{"app"}, listDir(t, dir))
}

func TestWriteSetsMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tool")
	w := NewWriter(hclog.NewNullLogger(), WithMode(0700))
	require.NoError(t, w.Write(path, []byte("x")))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), fi.Mode().Perm())
}
