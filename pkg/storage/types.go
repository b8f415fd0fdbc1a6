package storage

import (
	"errors"

	"github.com/hashicorp/go-hclog"
)

// Storage is a flat blob store.  Get returns nil, nil for a key that
// is not present.
type Storage interface {
	Get([]byte) ([]byte, error)
	Put([]byte, []byte) error
	Del([]byte) error

	// List returns every key starting with prefix, in no
	// particular order.
	List(prefix []byte) ([][]byte, error)

	Close() error
}

// A Factory opens a store.  Backends read their settings from the
// environment so that factories share one signature.
type Factory func(hclog.Logger) (Storage, error)

// ErrUnknownBackend is returned for a backend that was never
// registered.
type ErrUnknownBackend struct {
	Name string
}

func (e ErrUnknownBackend) Error() string {
	return "no storage backend named " + e.Name
}

// ErrUnsetVariable is returned by a backend missing a required
// environment variable.
var ErrUnsetVariable = errors.New("required variable unset")
