package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/sightline/internal/config"
	"github.com/okian/sightline/internal/simworker"
	"github.com/okian/sightline/pkg/logger"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to a YAML config file")
		workers    = flag.Int("workers", 0, "Number of concurrent workers (default: worker_count)")
		callback   = flag.String("callback", "", "Base URL of the relay API (default: callback_url)")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simworker.ShowHelp()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(ctx, *configPath)
	} else {
		cfg, err = config.Load(ctx)
	}
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		_ = logger.SetLevelString("info")
	}

	wcfg := simworker.Config{CallbackURL: cfg.CallbackURL, Workers: cfg.WorkerCount}
	if *callback != "" {
		wcfg.CallbackURL = *callback
	}
	if *workers > 0 {
		wcfg.Workers = *workers
	}

	if err := simworker.Run(ctx, cfg, wcfg); err != nil {
		logger.Get().Error(ctx, "worker failed", logger.Error(err))
		os.Exit(1)
	}
}
