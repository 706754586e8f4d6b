package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.aimuz.me/huddle/config"
	"go.aimuz.me/huddle/internal/app"
	"go.aimuz.me/huddle/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "huddle:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "", "path to config.json (default: user config dir)")
		addr        = flag.String("addr", "", "control API listen address (overrides config)")
		listen      = flag.Bool("start", false, "start listening immediately")
		quiet       = flag.Bool("quiet", false, "do not print events to stdout")
		listDevices = flag.Bool("devices", false, "list capturable output devices and exit")
		probe       = flag.Bool("probe", false, "capture two seconds from the configured device, print what arrived and exit")
		logLevel    = flag.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("huddle %s (%s, %s)\n", version, commit, date)
		return nil
	}

	path := *configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logOpts := logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format}
	if *logLevel != "" {
		logOpts.Level = *logLevel
	}
	if err := logging.Setup(logOpts); err != nil {
		return err
	}

	switch {
	case *listDevices:
		return app.ListDevices(os.Stdout)
	case *probe:
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return app.Probe(ctx, os.Stdout, cfg.Assistant, 2*time.Second)
	}

	slog.Info("starting huddle", "version", version, "commit", commit, "config", cfg.Path())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := app.Options{Version: version, Addr: *addr}
	if !*quiet {
		opts.Console = os.Stdout
	}
	svc, err := app.New(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer svc.Shutdown()

	if err := svc.Run(ctx, *listen); err != nil {
		return err
	}
	slog.Info("shutting down")
	return nil
}
