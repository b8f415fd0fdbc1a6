// Package builderr classifies the failures a build run can hit and
// decides which of them are worth another attempt.
package builderr

import (
	"errors"
	"fmt"
)

// Kind identifies the class of a failure.
type Kind int

// The failure classes a run distinguishes between.
const (
	KindConnection Kind = iota + 1
	KindHandshake
	KindProtocol
	KindArchive
	KindServerBuild
	KindTimeout
	KindConnectionLost
	KindGraphCycle
	KindRemoteCommand
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection error"
	case KindHandshake:
		return "handshake error"
	case KindProtocol:
		return "protocol error"
	case KindArchive:
		return "archive error"
	case KindServerBuild:
		return "build failed"
	case KindTimeout:
		return "timeout"
	case KindConnectionLost:
		return "connection lost"
	case KindGraphCycle:
		return "dependency cycle"
	case KindRemoteCommand:
		return "remote command failed"
	default:
		return "unknown error"
	}
}

// Retryable reports whether a failure of this kind may succeed on
// another attempt.  A missing source file or a cyclic graph will not
// fix itself, and a worker that cannot complete a handshake is not
// worth another connection.
func (k Kind) Retryable() bool {
	switch k {
	case KindConnection, KindProtocol, KindServerBuild, KindTimeout, KindConnectionLost:
		return true
	default:
		return false
	}
}

// Error is a classified failure.  Package is empty when the failure
// is not tied to a single package.
type Error struct {
	Kind    Kind
	Package string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Package != "" {
		msg += ": " + e.Package
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a classified error without an underlying cause.
func New(k Kind, pkg, msg string) *Error {
	return &Error{Kind: k, Package: pkg, Message: msg}
}

// Newf is New with formatting.
func Newf(k Kind, pkg, format string, args ...interface{}) *Error {
	return New(k, pkg, fmt.Sprintf(format, args...))
}

// Wrap classifies an existing error.
func Wrap(k Kind, pkg string, err error, msg string) *Error {
	return &Error{Kind: k, Package: pkg, Message: msg, Err: err}
}

// KindOf extracts the kind of the first classified error in the
// chain, or zero if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Is reports whether err carries the given kind.
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}

// Retryable reports whether err may succeed on another attempt.
// Unclassified errors are not retried.
func Retryable(err error) bool {
	return KindOf(err).Retryable()
}
