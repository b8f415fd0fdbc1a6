// Package source tracks the revision of the workspace and keeps node
// build areas checked out at that revision.
package source

import (
	"errors"

	git "github.com/go-git/go-git/v5"
	gitPlumbing "github.com/go-git/go-git/v5/plumbing"
	"github.com/hashicorp/go-hclog"
)

// ErrNotOpen is returned when the working copy has been neither
// opened nor cloned.
var ErrNotOpen = errors.New("repository is not open")

// New returns a manager for the working copy at path.
func New(l hclog.Logger, path string) *RepoMngr {
	return &RepoMngr{
		l:    l.Named("git"),
		Path: path,
	}
}

// Open attaches to an existing working copy.  The path may be any
// directory inside it.
func (r *RepoMngr) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	repo, err := git.PlainOpenWithOptions(r.Path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return err
	}
	r.repo = repo
	return nil
}

// Bootstrap clones url into the path, or opens the path if a working
// copy is already there.
func (r *RepoMngr) Bootstrap(url string) error {
	if err := r.Open(); err == nil {
		r.l.Debug("Using existing checkout", "path", r.Path)
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.l.Debug("Cloning repository", "path", r.Path, "url", url)
	repo, err := git.PlainClone(r.Path, false, &git.CloneOptions{URL: url})
	if err != nil {
		return err
	}
	r.repo = repo
	return nil
}

// At returns the hash of HEAD.
func (r *RepoMngr) At() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.repo == nil {
		return "", ErrNotOpen
	}
	head, err := r.repo.Head()
	if err != nil {
		return "", err
	}
	return head.Hash().String(), nil
}

// Remote returns the first URL of the named remote.
func (r *RepoMngr) Remote(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.repo == nil {
		return "", ErrNotOpen
	}
	rem, err := r.repo.Remote(name)
	if err != nil {
		return "", err
	}
	urls := rem.Config().URLs
	if len(urls) == 0 {
		return "", git.ErrRemoteNotFound
	}
	return urls[0], nil
}

// Clean reports whether the working tree has no uncommitted changes.
// Uncommitted changes are not visible to nodes that check out HEAD.
func (r *RepoMngr) Clean() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.repo == nil {
		return false, ErrNotOpen
	}
	wt, err := r.repo.Worktree()
	if err != nil {
		return false, err
	}
	st, err := wt.Status()
	if err != nil {
		return false, err
	}
	return st.IsClean(), nil
}

// Checkout moves the working copy to commit and returns the paths
// that differ between the old and new HEAD.
func (r *RepoMngr) Checkout(commit string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.repo == nil {
		return nil, ErrNotOpen
	}

	oldHead, err := r.repo.Head()
	if err != nil {
		return nil, err
	}
	if oldHead.Hash().String() == commit {
		r.l.Trace("Checkout already at revision", "rev", commit)
		return nil, nil
	}
	oldCommit, err := r.repo.CommitObject(oldHead.Hash())
	if err != nil {
		return nil, err
	}

	worktree, err := r.repo.Worktree()
	if err != nil {
		return nil, err
	}
	newHash := gitPlumbing.NewHash(commit)
	r.l.Debug("Checking out", "path", r.Path, "old", oldHead.Hash().String(), "new", commit)
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: newHash, Force: true}); err != nil {
		return nil, err
	}

	newCommit, err := r.repo.CommitObject(newHash)
	if err != nil {
		return nil, err
	}
	patch, err := oldCommit.Patch(newCommit)
	if err != nil {
		return nil, err
	}
	stats := patch.Stats()
	changed := make([]string, len(stats))
	for i, s := range stats {
		changed[i] = s.Name
	}
	r.l.Debug("Files changed in checkout", "count", len(changed))
	return changed, nil
}

// Fetch updates from origin.  Being up to date is not an error.
func (r *RepoMngr) Fetch() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.repo == nil {
		return ErrNotOpen
	}
	err := r.repo.Fetch(&git.FetchOptions{RemoteName: "origin"})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	return err
}
