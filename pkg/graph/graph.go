// Package graph orders workspace packages so that every package is
// built after the packages it depends on.
package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/the-maldridge/tess/pkg/builderr"
	"github.com/the-maldridge/tess/pkg/types"
)

// ErrDuplicatePackage is returned when two units share a name.
var ErrDuplicatePackage = errors.New("package declared more than once")

// New builds a graph from the discovered units.  Only dependencies
// naming another unit of the workspace become edges.  A package
// declared twice is a discovery error.
func New(l hclog.Logger, units []types.BuildUnit) (*PkgGraph, error) {
	g := &PkgGraph{
		l:        l.Named("graph"),
		names:    make([]string, len(units)),
		index:    make(map[string]int, len(units)),
		deps:     make([][]int, len(units)),
		external: make(map[string][]string),
	}
	for i, u := range units {
		if _, dup := g.index[u.Name]; dup {
			return nil, fmt.Errorf("%s: %w", u.Name, ErrDuplicatePackage)
		}
		g.names[i] = u.Name
		g.index[u.Name] = i
	}
	for i, u := range units {
		seen := make(map[int]struct{})
		for _, d := range u.Dependencies {
			j, ok := g.index[d]
			if !ok {
				g.external[u.Name] = append(g.external[u.Name], d)
				continue
			}
			if _, dup := seen[j]; dup {
				continue
			}
			seen[j] = struct{}{}
			g.deps[i] = append(g.deps[i], j)
		}
	}
	g.l.Debug("Graph built", "nodes", len(g.names))
	return g, nil
}

// Len returns the number of packages in the graph.
func (g *PkgGraph) Len() int { return len(g.names) }

// Has reports whether the package is part of the workspace.
func (g *PkgGraph) Has(name string) bool {
	_, ok := g.index[name]
	return ok
}

// Deps returns the in-workspace dependencies of a package in
// declaration order.
func (g *PkgGraph) Deps(name string) []string {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.deps[i]))
	for _, j := range g.deps[i] {
		out = append(out, g.names[j])
	}
	return out
}

// External returns the dependencies of a package that are not part
// of the workspace.
func (g *PkgGraph) External(name string) []string {
	return g.external[name]
}

// Order returns a topological order of the packages.  Among the
// packages that are ready at any step the one declared first wins,
// so an already ordered workspace keeps its order.  A cycle is
// returned as an error naming the packages on it.
func (g *PkgGraph) Order() ([]string, error) {
	n := len(g.names)
	pending := make([]int, n)
	dependents := make([][]int, n)
	for i, ds := range g.deps {
		pending[i] = len(ds)
		for _, j := range ds {
			dependents[j] = append(dependents[j], i)
		}
	}

	done := make([]bool, n)
	order := make([]string, 0, n)
	for len(order) < n {
		next := -1
		for i := 0; i < n; i++ {
			if !done[i] && pending[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			cycle := g.findCycle(done)
			g.l.Error("Dependency cycle", "packages", cycle)
			return nil, builderr.Newf(builderr.KindGraphCycle, cycle[0],
				"workspace packages depend on each other: %s", strings.Join(cycle, " -> "))
		}
		done[next] = true
		order = append(order, g.names[next])
		for _, d := range dependents[next] {
			pending[d]--
		}
	}
	return order, nil
}

// findCycle walks the unfinished part of the graph until it revisits
// a node.  Every unfinished node has an unfinished dependency so the
// walk always closes a loop.
func (g *PkgGraph) findCycle(done []bool) []string {
	start := -1
	for i := range done {
		if !done[i] {
			start = i
			break
		}
	}
	pos := make(map[int]int)
	var path []int
	cur := start
	for {
		if p, ok := pos[cur]; ok {
			path = append(path[p:], cur)
			break
		}
		pos[cur] = len(path)
		path = append(path, cur)
		for _, j := range g.deps[cur] {
			if !done[j] {
				cur = j
				break
			}
		}
	}
	out := make([]string, len(path))
	for i, idx := range path {
		out[i] = g.names[idx]
	}
	return out
}

// Sort returns the units in build order.
func Sort(l hclog.Logger, units []types.BuildUnit) ([]types.BuildUnit, error) {
	g, err := New(l, units)
	if err != nil {
		return nil, err
	}
	order, err := g.Order()
	if err != nil {
		return nil, err
	}
	out := make([]types.BuildUnit, len(order))
	for i, name := range order {
		out[i] = units[g.index[name]]
	}
	return out, nil
}
