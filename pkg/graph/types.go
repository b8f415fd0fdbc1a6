package graph

import (
	"github.com/hashicorp/go-hclog"
)

// PkgGraph is the dependency graph of a workspace.  Nodes are held by
// their index in declaration order so that ordering is stable from
// one run to the next.
type PkgGraph struct {
	l hclog.Logger

	names []string
	index map[string]int

	// deps[i] lists the indexes node i depends on, edges to packages
	// outside the workspace are dropped when the graph is built.
	deps [][]int

	// external records the dependency names that were dropped, for
	// diagnostics only.
	external map[string][]string
}
