package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/the-maldridge/tess/pkg/cache"
)

// FetchCmd pulls build output published by a coordinated run into the
// local workspace, or lists what is available.
type FetchCmd struct {
	Cache    string   `required:"" help:"Cache URL, e.g. http://coordinator:7880/cache"`
	Dir      string   `short:"C" default:"." help:"Workspace root to unpack into"`
	List     bool     `short:"l" help:"List cached packages instead of fetching"`
	Packages []string `arg:"" optional:"" help:"Packages to fetch, all when empty"`
}

// Run implements the fetch command.
func (f *FetchCmd) Run(g *Globals) error {
	r := cache.NewRemote(g.Logger, f.Cache, nil)
	idx, err := r.Index(g.Ctx)
	if err != nil {
		return err
	}

	if f.List {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PACKAGE\tNODE\tREVISION\tSIZE\tPUBLISHED")
		for _, e := range idx {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", e.Package, e.Node, e.Revision, e.Size, e.Published.Local().Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	}

	want := f.Packages
	if len(want) == 0 {
		for _, e := range idx {
			want = append(want, e.Package)
		}
	}
	dir, err := filepath.Abs(f.Dir)
	if err != nil {
		return err
	}
	for _, p := range want {
		files, err := r.Unpack(g.Ctx, p, dir)
		if err != nil {
			return fmt.Errorf("fetching %s: %w", p, err)
		}
		g.Logger.Info("Fetched package", "package", p, "files", len(files))
	}
	return nil
}
