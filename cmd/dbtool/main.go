package main

import (
	"context"
	"flag"
	"log"
	"os"

	"go.uber.org/zap"

	"shootday/internal/app"
	"shootday/internal/auth"
	"shootday/internal/config"
	"shootday/internal/importer"
	"shootday/internal/logging"
)

// dbtool applies the schema, creates the admin account and optionally seeds
// photographers, venues and schedules from a JSON rows file.
func main() {
	seedPath := flag.String("seed", os.Getenv("SEED_PATH"), "JSON seed file (photographers, venues, schedules)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.IsProduction())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()
	logger.Info("initializing database schema", zap.String("backend", cfg.StoreBackend))
	rt, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("schema initialization failed", zap.Error(err))
	}
	defer rt.Close()

	created, err := auth.Bootstrap(ctx, rt.Repo, cfg.AdminUsername, cfg.AdminPassword, logger)
	if err != nil {
		logger.Fatal("admin bootstrap failed", zap.Error(err))
	}
	logger.Info("schema ready", zap.Bool("admin_created", created))

	if *seedPath == "" {
		return
	}
	f, err := os.Open(*seedPath)
	if err != nil {
		logger.Fatal("open seed file", zap.Error(err))
	}
	defer f.Close()

	seed, err := importer.DecodeSeedFile(f)
	if err != nil {
		logger.Fatal("read seed file", zap.Error(err))
	}
	rep, err := importer.Seed(ctx, rt.Repo, seed)
	if err != nil {
		logger.Fatal("seeding failed", zap.Error(err))
	}
	for _, s := range rep.Skipped {
		logger.Warn("row skipped", zap.String("section", s.Section), zap.Int("index", s.Index), zap.Error(s.Err))
	}
	logger.Info("seeding complete",
		zap.Int("photographers", rep.Photographers),
		zap.Int("venues", rep.Venues),
		zap.Int("schedules", rep.Schedules),
		zap.Int("skipped", len(rep.Skipped)),
	)
}
