package session

import (
	"context"
	"net"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/the-maldridge/tess/pkg/artifact"
	"github.com/the-maldridge/tess/pkg/metrics"
	"github.com/the-maldridge/tess/pkg/progress"
	"github.com/the-maldridge/tess/pkg/types"
)

// State is the position of a session in its exchange with a worker.
type State int

// Session states in the order they are entered.  A session ends in
// exactly one of the two terminal states.
const (
	StateConnecting State = iota
	StateHandshakeSent
	StateHandshakeAcked
	StateUnitSent
	StateStreaming
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshakeSent:
		return "handshake-sent"
	case StateHandshakeAcked:
		return "handshake-acked"
	case StateUnitSent:
		return "unit-sent"
	case StateStreaming:
		return "streaming"
	case StateSucceeded:
		return "terminated(success)"
	case StateFailed:
		return "terminated(failure)"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions follow.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Default timeouts.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultTimeout          = 300 * time.Second
)

// Config is what every session of a run shares.
type Config struct {
	// Address of the worker, host:port.
	Address string

	// Root is the project root that artifacts are written under.
	Root    string
	Release bool
	Target  string

	HandshakeTimeout time.Duration

	// Timeout bounds one whole round trip, from the first byte
	// sent to the terminal response.
	Timeout time.Duration
}

// Archiver produces the compressed source archive for a unit.
type Archiver interface {
	Create(types.BuildUnit) ([]byte, error)
}

// Dialer opens connections to workers.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Client starts a new Session for every unit it is asked to build.
type Client struct {
	l hclog.Logger

	cfg      Config
	archiver Archiver
	writer   *artifact.Writer
	dialer   Dialer
	tracker  *progress.Tracker
	metrics  metrics.Recorder
}

// Result describes a successful session.
type Result struct {
	ID      string
	Unit    string
	Paths   []string
	History []State
}
