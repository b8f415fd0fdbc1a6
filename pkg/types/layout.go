package types

import (
	"errors"
	"path/filepath"
	"strings"
)

// Profile is the build configuration, either debug or release.
type Profile string

// The two profiles cargo knows about.
const (
	ProfileDebug   Profile = "debug"
	ProfileRelease Profile = "release"
)

// ProfileFor maps the release flag onto a profile.
func ProfileFor(release bool) Profile {
	if release {
		return ProfileRelease
	}
	return ProfileDebug
}

// ErrEscapesLayout is returned when an artifact path would land
// outside of the profile directory.
var ErrEscapesLayout = errors.New("artifact path escapes the output directory")

// A Layout describes where compiled artifacts live under a project
// root: target/[<triple>/]<profile>.
type Layout struct {
	Root    string
	Target  string
	Release bool
}

// Profile returns the profile selected by the layout.
func (l Layout) Profile() Profile {
	return ProfileFor(l.Release)
}

// Dir returns the profile directory for the layout.
func (l Layout) Dir() string {
	parts := []string{l.Root, "target"}
	if l.Target != "" {
		parts = append(parts, l.Target)
	}
	parts = append(parts, string(l.Profile()))
	return filepath.Join(parts...)
}

// RelDir is Dir relative to the project root, always slash
// separated so it can be handed to remote shells.
func (l Layout) RelDir() string {
	parts := []string{"target"}
	if l.Target != "" {
		parts = append(parts, l.Target)
	}
	parts = append(parts, string(l.Profile()))
	return strings.Join(parts, "/")
}

// Path computes the local path for an artifact returned relative to
// the profile directory.
func (l Layout) Path(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if rel == "" || filepath.IsAbs(clean) || clean == "." || clean == ".." ||
		strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrEscapesLayout
	}
	return filepath.Join(l.Dir(), clean), nil
}
