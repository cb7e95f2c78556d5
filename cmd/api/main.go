package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"astroreports/internal/bootstrap"
	"astroreports/internal/http/handlers"
	httpapi "astroreports/internal/http/httpapi"
	"astroreports/internal/infra"
	"astroreports/internal/infra/geoip"
	"astroreports/internal/middleware"
	"astroreports/internal/reports"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open stores")
	}
	defer stores.Close()

	gens, err := bootstrap.NewGenerators(ctx, cfg, stores, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure generators")
	}

	var countries middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip database unavailable, country detection disabled")
	} else if resolver != nil {
		defer resolver.Close()
		countries = resolver.CountryCode
	}

	group, gctx := errgroup.WithContext(ctx)

	opts := reports.ServiceOptions{
		Owners:         stores.Profiles,
		RefreshTimeout: cfg.RefreshTimeout,
		Logger:         logger,
	}
	var queued func() int
	if cfg.WorkerInProcess {
		executor := bootstrap.NewExecutor(cfg, stores, gens, cfg.PendingGrace, logger)
		opts.Executor = executor
		queued = executor.Queued
		group.Go(func() error { return executor.Run(gctx) })
	} else {
		logger.Info().Msg("in-process executor disabled, pending jobs are left to the worker")
	}
	service := reports.NewService(stores.Jobs, opts)

	app := &handlers.App{
		Reports:  service,
		Profiles: stores.Profiles,
		Ping:     stores.Ping,
		Queued:   queued,
		Logger:   logger,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		JWTSecret:       cfg.JWTSecret,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CountryLookup:   countries,
	})
	server := infra.NewHTTPServer(cfg, router)
	if err := server.Listen(); err != nil {
		logger.Fatal().Err(err).Str("addr", server.Addr()).Msg("failed to bind http listener")
	}

	group.Go(func() error {
		logger.Info().Str("addr", server.Addr()).Msg("api listening")
		return server.Start()
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("api stopped with error")
	}
	logger.Info().Msg("api stopped")
}
