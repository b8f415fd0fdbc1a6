// Package cache is the shared mirror that finished packages publish
// their build output into so that dependents built elsewhere can
// fetch it.  It is keyed by package name only; a publish replaces
// whatever was there.
package cache

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"howett.net/plist"

	"github.com/the-maldridge/tess/pkg/archive"
	"github.com/the-maldridge/tess/pkg/metrics"
	"github.com/the-maldridge/tess/pkg/storage"
)

const (
	bundlePrefix = "artifact/"
	indexPrefix  = "index/"
)

// ErrMiss is returned when a package has no entry.
var ErrMiss = errors.New("package not in cache")

// Entry describes a published bundle.
type Entry struct {
	Package   string    `plist:"package" json:"package"`
	Revision  string    `plist:"revision" json:"revision,omitempty"`
	Node      string    `plist:"node" json:"node,omitempty"`
	Size      int       `plist:"size" json:"size"`
	Published time.Time `plist:"published" json:"published"`
}

// Cache stores uncompressed tar bundles of a build area, compressed
// at rest.
type Cache struct {
	l hclog.Logger
	s storage.Storage

	metrics metrics.Recorder
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// WithClock replaces the time source used for publish times.
func WithClock(f func() time.Time) Option {
	return func(c *Cache) {
		c.now = f
	}
}

// New returns a cache over s.
func New(l hclog.Logger, s storage.Storage, opts ...Option) *Cache {
	c := &Cache{
		l:       l.Named("cache"),
		s:       s,
		metrics: metrics.NoopRecorder{},
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Publish stores the bundle for pkg.  Package, Size and Published are
// filled in on e.
func (c *Cache) Publish(pkg string, bundle []byte, e Entry) error {
	data, err := archive.Compress(bundle)
	if err != nil {
		return err
	}
	e.Package = pkg
	e.Size = len(bundle)
	e.Published = c.now().UTC()
	meta, err := plist.Marshal(e, plist.BinaryFormat)
	if err != nil {
		return err
	}

	if err := c.s.Put([]byte(bundlePrefix+pkg), data); err != nil {
		return err
	}
	if err := c.s.Put([]byte(indexPrefix+pkg), meta); err != nil {
		return err
	}
	c.metrics.ObserveCacheTransfer("publish", len(data))
	c.l.Debug("Published", "package", pkg, "bytes", len(bundle), "stored", len(data))
	return nil
}

// Fetch returns the uncompressed bundle for pkg.
func (c *Cache) Fetch(pkg string) ([]byte, error) {
	data, err := c.s.Get([]byte(bundlePrefix + pkg))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrMiss
	}
	c.metrics.ObserveCacheTransfer("fetch", len(data))
	return archive.Decompress(data)
}

// Lookup returns the index entry for pkg.
func (c *Cache) Lookup(pkg string) (*Entry, error) {
	data, err := c.s.Get([]byte(indexPrefix + pkg))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrMiss
	}
	e := new(Entry)
	if _, err := plist.Unmarshal(data, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Index returns every entry ordered by package name.
func (c *Cache) Index() ([]Entry, error) {
	keys, err := c.s.List([]byte(indexPrefix))
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		e, err := c.Lookup(strings.TrimPrefix(string(k), indexPrefix))
		if errors.Is(err, ErrMiss) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Package < out[j].Package })
	return out, nil
}

// Drop removes pkg from the cache.
func (c *Cache) Drop(pkg string) error {
	if err := c.s.Del([]byte(indexPrefix + pkg)); err != nil {
		return err
	}
	return c.s.Del([]byte(bundlePrefix + pkg))
}
