package main

import (
	"context"
	"flag"
	logg "log"
	"os"
	"time"

	"github.com/vncsmyrnk/livepoll/internal/adapters/repository"
	"github.com/vncsmyrnk/livepoll/internal/config"
	"github.com/vncsmyrnk/livepoll/internal/core/services"
	"github.com/vncsmyrnk/livepoll/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	var timeout time.Duration
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "Maximum duration of the audit")
	flag.Parse()

	cfg, err := config.New()
	if err != nil {
		logg.Fatalf("failed to load config: %s", err)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		logg.Fatalf("failed to initialize logger: %s", err)
	}

	code := run(cfg, log, timeout)
	_ = log.Sync()
	os.Exit(code)
}

func run(cfg *config.Config, log *zap.Logger, timeout time.Duration) int {
	// Use a timeout for the job execution to prevent it from hanging indefinitely
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	repo, closeStore, err := repository.Open(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", zap.Error(err))
		return 1
	}
	defer closeStore()

	log.Info("starting tally audit", zap.String("store", cfg.StoreDriver))

	mismatches, err := services.NewAuditService(repo, log).AuditAll(ctx)
	if err != nil {
		log.Error("tally audit failed", zap.Error(err))
		return 1
	}
	if len(mismatches) > 0 {
		log.Error("tally audit found mismatched polls", zap.Int("mismatches", len(mismatches)))
		return 2
	}

	log.Info("tally audit completed successfully")
	return 0
}
