package storage_test

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-maldridge/tess/pkg/storage"
	_ "github.com/the-maldridge/tess/pkg/storage/bc"
	_ "github.com/the-maldridge/tess/pkg/storage/mem"
	_ "github.com/the-maldridge/tess/pkg/storage/minio"
)

func exercise(t *testing.T, s storage.Storage) {
	t.Helper()
	v, err := s.Get([]byte("artifact/core"))
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, s.Put([]byte("artifact/core"), []byte("bundle")))
	require.NoError(t, s.Put([]byte("artifact/cli"), []byte("other")))
	require.NoError(t, s.Put([]byte("index/core"), []byte("meta")))

	v, err = s.Get([]byte("artifact/core"))
	require.NoError(t, err)
	assert.Equal(t, []byte("bundle"), v)

	keys, err := s.List([]byte("artifact/"))
	require.NoError(t, err)
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = string(k)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"artifact/cli", "artifact/core"}, names)

	require.NoError(t, s.Del([]byte("artifact/core")))
	v, err = s.Get([]byte("artifact/core"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestBackendsRegister(t *testing.T) {
	storage.SetLogger(hclog.NewNullLogger())
	storage.DoCallbacks()
	storage.DoCallbacks()
	assert.Equal(t, []string{"bitcask", "memory", "minio"}, storage.Backends())

	_, err := storage.Initialize("nope")
	assert.Equal(t, storage.ErrUnknownBackend{Name: "nope"}, err)
}

func TestMemory(t *testing.T) {
	storage.DoCallbacks()
	s, err := storage.Initialize("memory")
	require.NoError(t, err)
	defer s.Close()
	exercise(t, s)
}

func TestBitcask(t *testing.T) {
	storage.DoCallbacks()
	t.Setenv("TESS_BITCASK_PATH", filepath.Join(t.TempDir(), "cache"))
	s, err := storage.Initialize("bitcask")
	require.NoError(t, err)
	defer s.Close()
	exercise(t, s)
}

func TestBitcaskNeedsPath(t *testing.T) {
	storage.DoCallbacks()
	t.Setenv("TESS_BITCASK_PATH", "")
	os.Unsetenv("TESS_BITCASK_PATH")
	_, err := storage.Initialize("bitcask")
	assert.ErrorIs(t, err, storage.ErrUnsetVariable)
}

func TestMinioNeedsEndpoint(t *testing.T) {
	storage.DoCallbacks()
	t.Setenv("TESS_MINIO_ENDPOINT", "")
	_, err := storage.Initialize("minio")
	assert.ErrorIs(t, err, storage.ErrUnsetVariable)
}
