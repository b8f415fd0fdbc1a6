package scheduler

import (
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"
)

var (
	regMu sync.Mutex
	log   = hclog.L()

	initcallbacks []func()

	factories = make(map[string]RunnerFactory)
)

// A RunnerFactory constructs a runner.  Options come from the runner
// block of the configuration file; each runner documents the keys it
// reads.
type RunnerFactory func(l hclog.Logger, opts map[string]string) (Runner, error)

// SetLogger injects the logger handed to factories.
func SetLogger(l hclog.Logger) {
	regMu.Lock()
	defer regMu.Unlock()
	log = l.Named("runner")
}

// RegisterInitCallback lets a runner package defer registration until
// after logging has been configured.
func RegisterInitCallback(f func()) {
	regMu.Lock()
	defer regMu.Unlock()
	initcallbacks = append(initcallbacks, f)
}

// DoCallbacks runs the deferred registrations.
func DoCallbacks() {
	regMu.Lock()
	cbs := append([]func(){}, initcallbacks...)
	regMu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

// RegisterRunnerFactory stores the factory under name, replacing any
// earlier registration.
func RegisterRunnerFactory(name string, f RunnerFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[name] = f
	log.Debug("Registered runner", "runner", name)
}

// Runners lists the registered runner names.
func Runners() []string {
	regMu.Lock()
	defer regMu.Unlock()
	out := make([]string, 0, len(factories))
	for n := range factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ConstructRunner initializes the named runner.
func ConstructRunner(name string, opts map[string]string) (Runner, error) {
	regMu.Lock()
	f, ok := factories[name]
	l := log
	regMu.Unlock()
	if !ok {
		l.Warn("Tried to initialize unknown runner", "name", name)
		return nil, NewErrUnknownRunner(name)
	}
	return f(l, opts)
}
