// Package project discovers the buildable packages of a workspace.
package project

import (
	"context"
	"errors"
	"fmt"

	"github.com/the-maldridge/tess/pkg/types"
)

// Inspector enumerates the packages of a project.
type Inspector interface {
	Packages(ctx context.Context) ([]types.BuildUnit, error)
}

// ErrUnknownPackage is returned when a selected package is not part
// of the workspace.
var ErrUnknownPackage = errors.New("no such package in the workspace")

// Select narrows units to the named package and the workspace
// packages it depends on, directly or not.  Discovery order is kept.
func Select(units []types.BuildUnit, name string) ([]types.BuildUnit, error) {
	byName := make(map[string]types.BuildUnit, len(units))
	for _, u := range units {
		byName[u.Name] = u
	}
	if _, ok := byName[name]; !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownPackage)
	}

	keep := make(map[string]struct{})
	queue := []string{name}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if _, done := keep[n]; done {
			continue
		}
		keep[n] = struct{}{}
		for _, d := range byName[n].Dependencies {
			if _, ok := byName[d]; ok {
				queue = append(queue, d)
			}
		}
	}

	out := make([]types.BuildUnit, 0, len(keep))
	for _, u := range units {
		if _, ok := keep[u.Name]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}
