package source

import (
	"sync"

	git "github.com/go-git/go-git/v5"
	"github.com/hashicorp/go-hclog"
)

// A RepoMngr manages one git working copy: the workspace being built
// or a node's copy of it.
type RepoMngr struct {
	l    hclog.Logger
	Path string

	mu   sync.Mutex
	repo *git.Repository
}
