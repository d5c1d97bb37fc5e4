// kilnd is the long-running render worker daemon. It supervises the engine,
// serves the worker HTTP API, and records runs in the ledger.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"kiln/internal/config"
	"kiln/internal/daemon"
	"kiln/internal/logging"
	"kiln/internal/runlog"
	"kiln/internal/worker"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Getenv("KILN_CONFIG")); err != nil {
		log.Fatalf("kilnd: %v", err)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, resolvedPath, exists, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if exists {
		logger.Info("config loaded", logging.String("path", resolvedPath))
	} else {
		logger.Info("config file not found, using defaults", logging.String("path", resolvedPath))
	}

	store, err := runlog.Open(cfg)
	if err != nil {
		return fmt.Errorf("open run ledger: %w", err)
	}

	wk, err := worker.New(cfg, store, logger)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("build worker: %w", err)
	}

	d, err := daemon.New(cfg, store, logger, wk)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-ctx.Done()
	logger.Info("kilnd shutting down")
	return nil
}
