// Package mem is an in-process store.  Contents are lost when the
// process exits, which suits single runs and tests.
package mem

import (
	"bytes"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/the-maldridge/tess/pkg/storage"
)

// Store is a map guarded by a lock.
type Store struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func init() {
	storage.RegisterCallback(func() {
		storage.RegisterFactory("memory", func(hclog.Logger) (storage.Storage, error) {
			return New(), nil
		})
	})
}

// New returns an empty store.
func New() *Store {
	return &Store{m: make(map[string][]byte)}
}

// Get implements storage.Storage.
func (s *Store) Get(k []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[string(k)]
	if !ok {
		return nil, nil
	}
	return bytes.Clone(v), nil
}

// Put implements storage.Storage.
func (s *Store) Put(k, v []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[string(k)] = bytes.Clone(v)
	return nil
}

// Del implements storage.Storage.
func (s *Store) Del(k []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, string(k))
	return nil
}

// List implements storage.Storage.
func (s *Store) List(prefix []byte) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out [][]byte
	for k := range s.m {
		if bytes.HasPrefix([]byte(k), prefix) {
			out = append(out, []byte(k))
		}
	}
	return out, nil
}

// Close implements storage.Storage.
func (s *Store) Close() error { return nil }
