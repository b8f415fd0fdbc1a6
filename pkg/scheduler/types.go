package scheduler

import (
	"context"
	"io"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/the-maldridge/tess/pkg/cache"
	"github.com/the-maldridge/tess/pkg/metrics"
	"github.com/the-maldridge/tess/pkg/progress"
	"github.com/the-maldridge/tess/pkg/types"
)

// JobStatus is the state of a BuildJob.
type JobStatus int

// Job states.  Only the scheduler moves a job between them.
const (
	JobPending JobStatus = iota
	JobBuilding
	JobComplete
	JobFailed
)

func (s JobStatus) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobBuilding:
		return "building"
	case JobComplete:
		return "complete"
	case JobFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText lets status render by name in JSON.
func (s JobStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// A WorkerNode is a host that builds run on.  Load counts the jobs
// assigned to it during the current run and is never decremented.
type WorkerNode struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Dir      string `json:"dir"`
	Capacity int    `json:"capacity"`
	Load     int    `json:"load"`
}

// A BuildJob is one package scheduled onto a node.
type BuildJob struct {
	Package      string      `json:"package"`
	Dependencies []string    `json:"dependencies"`
	Worker       *WorkerNode `json:"-"`
	Status       JobStatus   `json:"status"`
	Message      string      `json:"message,omitempty"`
}

// Workspace identifies the sources every node builds from.
type Workspace struct {
	URL      string
	Revision string
}

// Command is a shell script to run in a node's build area.
type Command struct {
	Dir    string
	Script string
	Stdin  []byte

	// Output receives the standard output of the command, which is
	// also returned in the Result.  Errors receives standard error;
	// when it is nil standard error goes to Output.
	Output io.Writer
	Errors io.Writer
}

// Result is the outcome of a Command that ran to completion.
type Result struct {
	Stdout   []byte
	ExitCode int
}

// A Runner executes commands on worker nodes.  An error means the
// command could not be run at all; a command that ran and failed is
// reported through Result.ExitCode.
type Runner interface {
	Prepare(ctx context.Context, node *WorkerNode, ws Workspace) error
	Exec(ctx context.Context, node *WorkerNode, cmd Command) (*Result, error)
}

// Scheduler plans a workspace across nodes and then builds it one
// job at a time.
type Scheduler struct {
	l hclog.Logger

	nodes  []*WorkerNode
	runner Runner
	cache  *cache.Cache

	ws           Workspace
	layout       types.Layout
	buildCommand string
	cacheURL     string

	tracker *progress.Tracker
	metrics metrics.Recorder

	mu     sync.Mutex
	jobs   []*BuildJob
	byName map[string]*BuildJob
}
