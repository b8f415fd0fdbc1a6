// Package storage holds the blob stores behind the shared artifact
// cache.  Backends register themselves from init; the binary decides
// when the registrations run so that logging is configured first.
package storage

import (
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"
)

var (
	mu  sync.Mutex
	log = hclog.L()

	initcallbacks []func()
	factories     = make(map[string]Factory)
)

// SetLogger sets the logger that factories are handed.
func SetLogger(l hclog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	log = l.Named("storage")
}

// RegisterCallback queues f to run from DoCallbacks.
func RegisterCallback(f func()) {
	mu.Lock()
	defer mu.Unlock()
	initcallbacks = append(initcallbacks, f)
}

// DoCallbacks runs the queued registrations.  Running it twice is
// harmless, the second registration of a name is ignored.
func DoCallbacks() {
	mu.Lock()
	cbs := append([]func(){}, initcallbacks...)
	mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

// RegisterFactory makes a backend available under name.
func RegisterFactory(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[name]; exists {
		log.Trace("Backend already registered", "backend", name)
		return
	}
	factories[name] = f
	log.Debug("Registered backend", "backend", name)
}

// Backends lists the registered backend names.
func Backends() []string {
	mu.Lock()
	defer mu.Unlock()
	out := make([]string, 0, len(factories))
	for n := range factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Initialize opens the named backend.
func Initialize(name string) (Storage, error) {
	mu.Lock()
	f, ok := factories[name]
	l := log
	mu.Unlock()
	if !ok {
		l.Error("Unknown backend requested", "backend", name)
		return nil, ErrUnknownBackend{Name: name}
	}
	return f(l)
}
