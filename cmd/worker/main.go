package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"shootday/internal/app"
	"shootday/internal/config"
	"shootday/internal/logging"
	"shootday/internal/worker"
)

// Worker consumes prewarm jobs and sweeps the alert feed on SWEEP_INTERVAL.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.IsProduction())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer rt.Close()

	if cfg.QueueBackend == "memory" {
		logger.Warn("in-memory queue is not shared with the api process; only the sweep runs")
	}

	w := worker.New(rt.Monitor, rt.Queue, rt.Clock, cfg.SweepInterval, logger.Named("worker"))
	if err := w.Run(ctx); err != nil {
		logger.Error("worker failed", zap.Error(err))
	}
}
