package scheduler

import "errors"

// ErrNoNodes is returned when a plan is requested without any node
// to place jobs on.
var ErrNoNodes = errors.New("no worker nodes configured")

// ErrUnknownRunner is returned when a runner is requested that has
// not been registered.
type ErrUnknownRunner struct {
	attempted string
}

// NewErrUnknownRunner returns a new error for the attempted runner.
func NewErrUnknownRunner(s string) ErrUnknownRunner {
	return ErrUnknownRunner{s}
}

func (e ErrUnknownRunner) Error() string {
	return "no runner with name " + e.attempted + " exists"
}

// ErrNotReady is returned when a job comes up before one of its
// dependencies has completed.
type ErrNotReady struct {
	Package    string
	Dependency string
}

func (e ErrNotReady) Error() string {
	return e.Package + " scheduled before its dependency " + e.Dependency + " completed"
}
