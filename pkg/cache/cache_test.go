package cache

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-maldridge/tess/pkg/storage/mem"
)

var when = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func newCache() *Cache {
	return New(hclog.NewNullLogger(), mem.New(), WithClock(func() time.Time { return when }))
}

func TestPublishFetch(t *testing.T) {
	c := newCache()
	_, err := c.Fetch("core")
	assert.ErrorIs(t, err, ErrMiss)

	bundle := bytes.Repeat([]byte("tar data "), 100)
	require.NoError(t, c.Publish("core", bundle, Entry{Node: "node-a", Revision: "abc123"}))

	got, err := c.Fetch("core")
	require.NoError(t, err)
	assert.Equal(t, bundle, got)

	e, err := c.Lookup("core")
	require.NoError(t, err)
	assert.Equal(t, "core", e.Package)
	assert.Equal(t, "node-a", e.Node)
	assert.Equal(t, "abc123", e.Revision)
	assert.Equal(t, len(bundle), e.Size)
	assert.True(t, e.Published.Equal(when))
}

func TestPublishReplaces(t *testing.T) {
	c := newCache()
	require.NoError(t, c.Publish("core", []byte("one"), Entry{}))
	require.NoError(t, c.Publish("core", []byte("two"), Entry{}))
	got, err := c.Fetch("core")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)
}

func TestIndexAndDrop(t *testing.T) {
	c := newCache()
	require.NoError(t, c.Publish("zeta", []byte("z"), Entry{}))
	require.NoError(t, c.Publish("alpha", []byte("a"), Entry{}))

	idx, err := c.Index()
	require.NoError(t, err)
	require.Len(t, idx, 2)
	assert.Equal(t, "alpha", idx[0].Package)
	assert.Equal(t, "zeta", idx[1].Package)

	require.NoError(t, c.Drop("alpha"))
	_, err = c.Lookup("alpha")
	assert.ErrorIs(t, err, ErrMiss)
	idx, err = c.Index()
	require.NoError(t, err)
	assert.Len(t, idx, 1)
}

func TestHTTPEntry(t *testing.T) {
	c := newCache()
	srv := httptest.NewServer(c.HTTPEntry())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/core?node=n1&rev=r1", bytes.NewReader([]byte("bundle")))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/core")
	require.NoError(t, err)
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "bundle", buf.String())

	resp, err = http.Get(srv.URL + "/")
	require.NoError(t, err)
	var idx []Entry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&idx))
	resp.Body.Close()
	require.Len(t, idx, 1)
	assert.Equal(t, "n1", idx[0].Node)

	resp, err = http.Get(srv.URL + "/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
