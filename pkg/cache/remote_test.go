package cache

import (
	"archive/tar"
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tarball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	tw := tar.NewWriter(buf)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Typeflag: tar.TypeReg, Name: name, Mode: 0644, Size: int64(len(body))}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func TestRemote(t *testing.T) {
	c := newCache()
	bundle := tarball(t, map[string]string{"target/debug/libcore.rlib": "rlib"})
	require.NoError(t, c.Publish("core", bundle, Entry{Node: "n0", Revision: "abc123"}))

	srv := httptest.NewServer(c.HTTPEntry())
	defer srv.Close()
	r := NewRemote(hclog.NewNullLogger(), srv.URL+"/", nil)
	ctx := context.Background()

	idx, err := r.Index(ctx)
	require.NoError(t, err)
	require.Len(t, idx, 1)
	assert.Equal(t, "core", idx[0].Package)

	e, err := r.Lookup(ctx, "core")
	require.NoError(t, err)
	assert.Equal(t, "n0", e.Node)
	assert.True(t, when.Equal(e.Published))

	dir := t.TempDir()
	files, err := r.Unpack(ctx, "core", dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"target/debug/libcore.rlib"}, files)
	data, err := os.ReadFile(filepath.Join(dir, "target", "debug", "libcore.rlib"))
	require.NoError(t, err)
	assert.Equal(t, "rlib", string(data))
}

func TestRemoteMiss(t *testing.T) {
	srv := httptest.NewServer(newCache().HTTPEntry())
	defer srv.Close()
	r := NewRemote(hclog.NewNullLogger(), srv.URL, nil)

	_, err := r.Fetch(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrMiss)
	_, err = r.Lookup(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrMiss)
}
