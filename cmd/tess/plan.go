package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/the-maldridge/tess/pkg/scheduler"
)

// PlanCmd prints what coordinate would do.
type PlanCmd struct {
	ClusterFlags `embed:""`
}

// Run implements the plan command.
func (p *PlanCmd) Run(g *Globals) error {
	cl, err := p.load(g)
	if err != nil {
		return err
	}
	s, err := scheduler.New(g.Logger, scheduler.WithNodes(cl.nodes...))
	if err != nil {
		return err
	}
	jobs, err := s.Plan(cl.units)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tPACKAGE\tNODE\tDEPENDS ON")
	for i, j := range jobs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, j.Package, j.Worker.Name, strings.Join(j.Dependencies, ","))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "NODE\tJOBS")
	for _, n := range s.Nodes() {
		fmt.Fprintf(w, "%s\t%d\n", n.Name, n.Load)
	}
	return w.Flush()
}
