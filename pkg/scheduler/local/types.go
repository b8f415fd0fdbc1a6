package local

import (
	"github.com/hashicorp/go-hclog"
)

// Local runs commands on this host, treating each node's directory
// as its build area.  It lets a single machine stand in for a
// cluster.
type Local struct {
	l     hclog.Logger
	shell string
}
