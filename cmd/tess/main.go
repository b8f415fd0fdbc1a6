package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/hashicorp/go-hclog"
)

// Globals are handed to every command's Run.
type Globals struct {
	Logger hclog.Logger
	Ctx    context.Context
}

// CLI is the command line of tess.
type CLI struct {
	Debug bool `help:"Enable debug logging"`

	Build      BuildCmd      `cmd:"" help:"Build the workspace on a single worker"`
	Coordinate CoordinateCmd `cmd:"" help:"Build the workspace across a cluster of nodes"`
	Plan       PlanCmd       `cmd:"" help:"Print the build order and node assignment"`
	Fetch      FetchCmd      `cmd:"" help:"Unpack build output from a coordinator's cache"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// run parses args, runs the selected command and returns the process
// exit code.  Logs go to logOut.
func run(args []string, logOut io.Writer) int {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("tess"),
		kong.Description("Distributed builds for cargo workspaces."),
		kong.UsageOnError(),
	)
	if err != nil {
		fmt.Fprintln(logOut, err)
		return 1
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		fmt.Fprintln(logOut, "tess:", err)
		return 1
	}

	level := hclog.Info
	if cli.Debug {
		level = hclog.Debug
	}
	appLogger := hclog.New(&hclog.LoggerOptions{
		Name:   "tess",
		Level:  level,
		Output: logOut,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := kctx.Run(&Globals{Logger: appLogger, Ctx: ctx}); err != nil {
		appLogger.Error("tess failed", "error", err)
		return 1
	}
	return 0
}
