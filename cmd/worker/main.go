package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"astroreports/internal/bootstrap"
	"astroreports/internal/infra"
)

// The worker drains pending jobs that no api process picked up, for
// deployments that run with WORKER_INPROCESS=false, and fails jobs whose
// runner died mid-generation.
func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)
	if cfg.PollInterval <= 0 {
		logger.Fatal().Msg("worker: POLL_INTERVAL_SECONDS must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to open stores")
	}
	defer stores.Close()

	gens, err := bootstrap.NewGenerators(ctx, cfg, stores, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure generators")
	}

	// Nothing is submitted in-process here, so every pending job is fair game.
	executor := bootstrap.NewExecutor(cfg, stores, gens, 0, logger)
	if err := executor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
