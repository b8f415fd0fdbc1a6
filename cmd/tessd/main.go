package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/hashicorp/go-hclog"

	"github.com/the-maldridge/tess/pkg/config"
	"github.com/the-maldridge/tess/pkg/http"
	"github.com/the-maldridge/tess/pkg/metrics"
	"github.com/the-maldridge/tess/pkg/worker"
)

var cli struct {
	Config  string `short:"c" help:"Worker configuration file"`
	Listen  string `help:"Address to accept builds on (default :7878)"`
	Admin   string `help:"Address to serve health, status and metrics on (default :7879)"`
	Command string `help:"Build command, -p <package> is appended (default \"cargo build\")"`
	Slots   int    `help:"Builds allowed to run at once (default 1)"`
	WorkDir string `help:"Directory to create build areas in"`
	Debug   bool   `help:"Enable debug logging"`
}

func main() {
	kong.Parse(&cli,
		kong.Name("tessd"),
		kong.Description("Build worker for tess."),
	)

	level := hclog.Info
	if cli.Debug {
		level = hclog.Debug
	}
	appLogger := hclog.New(&hclog.LoggerOptions{
		Name:  "tessd",
		Level: level,
	})
	appLogger.Info("tessd is initializing")

	cfg := config.NewConfig()
	if cli.Config != "" {
		if err := cfg.LoadFromFile(cli.Config); err != nil {
			appLogger.Error("Could not load config", "error", err)
			os.Exit(1)
		}
	}
	d := cfg.Daemon
	if cli.Listen != "" {
		d.Listen = cli.Listen
	}
	if cli.Admin != "" {
		d.Admin = cli.Admin
	}
	if cli.Command != "" {
		d.Command = cli.Command
	}
	if cli.Slots > 0 {
		d.Slots = cli.Slots
	}
	if cli.WorkDir != "" {
		d.WorkDir = cli.WorkDir
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rec := metrics.NewPrometheusRecorder(nil)
	w := worker.New(appLogger,
		worker.WithCommand(d.Command),
		worker.WithSlots(d.Slots),
		worker.WithWorkDir(d.WorkDir),
		worker.WithMetrics(rec),
	)

	srv, err := http.New(appLogger, "tessd")
	if err != nil {
		appLogger.Error("Could not create admin server", "error", err)
		os.Exit(1)
	}
	srv.Mount("/metrics", rec.Handler())
	srv.Mount("/worker", w.HTTPEntry())
	go func() {
		if err := srv.Serve(ctx, d.Admin); err != nil {
			appLogger.Error("Admin server stopped", "error", err)
		}
	}()

	if err := w.ListenAndServe(ctx, d.Listen); err != nil {
		appLogger.Error("Worker stopped", "error", err)
		cancel()
		os.Exit(1)
	}
	appLogger.Info("Goodbye")
}
