package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/the-maldridge/tess/pkg/archive"
)

// Remote reads a cache served by another process's HTTPEntry.
type Remote struct {
	l    hclog.Logger
	base string
	hc   *http.Client
}

// NewRemote returns a reader for the cache mounted at base, for
// example http://coordinator:7880/cache.
func NewRemote(l hclog.Logger, base string, hc *http.Client) *Remote {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Remote{
		l:    l.Named("cache"),
		base: strings.TrimSuffix(base, "/"),
		hc:   hc,
	}
}

// Index lists the remote entries.
func (r *Remote) Index(ctx context.Context) ([]Entry, error) {
	body, err := r.get(ctx, "/")
	if err != nil {
		return nil, err
	}
	var out []Entry
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Lookup returns the entry for pkg, or ErrMiss.
func (r *Remote) Lookup(ctx context.Context, pkg string) (*Entry, error) {
	body, err := r.get(ctx, "/"+url.PathEscape(pkg)+"/entry")
	if err != nil {
		return nil, err
	}
	e := new(Entry)
	if err := json.Unmarshal(body, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Fetch returns the tar bundle for pkg, or ErrMiss.
func (r *Remote) Fetch(ctx context.Context, pkg string) ([]byte, error) {
	return r.get(ctx, "/"+url.PathEscape(pkg))
}

// Unpack fetches pkg and writes its bundle below dir, returning the
// files written.
func (r *Remote) Unpack(ctx context.Context, pkg, dir string) ([]string, error) {
	data, err := r.Fetch(ctx, pkg)
	if err != nil {
		return nil, err
	}
	files, err := archive.Untar(bytes.NewReader(data), dir)
	if err != nil {
		return nil, err
	}
	r.l.Debug("Unpacked bundle", "package", pkg, "files", len(files), "dir", dir)
	return files, nil
}

func (r *Remote) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrMiss
	case resp.StatusCode >= 300:
		var e struct{ Error string }
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("cache: %s", e.Error)
		}
		return nil, fmt.Errorf("cache: %s", resp.Status)
	}
	return body, nil
}
