// Package bootstrap assembles stores, providers and the executor from
// configuration. The api and worker commands share it.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"astroreports/internal/adapter/repo"
	"astroreports/internal/adapter/sqlite"
	"astroreports/internal/domain"
	"astroreports/internal/infra"
	"astroreports/internal/infra/credentials"
	"astroreports/internal/providers/chart"
	"astroreports/internal/providers/content"
	"astroreports/internal/reports"
)

const (
	providerHTTPTimeout = 60 * time.Second
	reapInterval        = time.Minute
)

// Stores are the persistence handles for one process.
type Stores struct {
	Jobs     domain.JobRepository
	Profiles domain.ProfileRepository
	// Credentials is nil on SQLite; keys then come from the environment only.
	Credentials *credentials.Store
	Ping        func(ctx context.Context) error
	Close       func()
}

// OpenStores connects to Postgres, or to SQLite for sqlite: urls.
func OpenStores(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*Stores, error) {
	if cfg.UsesSQLite() {
		db, err := sqlite.Open(cfg.SQLitePath(), nil)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", cfg.SQLitePath()).Msg("bootstrap: using sqlite store")
		return &Stores{
			Jobs:     sqlite.NewJobStore(db),
			Profiles: sqlite.NewProfileStore(db),
			Ping:     db.PingContext,
			Close:    func() { _ = db.Close() },
		}, nil
	}

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	runner := infra.NewSQLRunner(pool, logger)
	return &Stores{
		Jobs:        repo.NewJobRepository(runner),
		Profiles:    repo.NewProfileRepository(runner),
		Credentials: credentials.NewStore(runner),
		Ping:        pool.Ping,
		Close:       pool.Close,
	}, nil
}

// resolveKey prefers the configured key and falls back to the credential store.
func (s *Stores) resolveKey(ctx context.Context, provider, configured string, logger infra.Logger) string {
	if s.Credentials == nil {
		return configured
	}
	key, err := s.Credentials.Resolve(ctx, provider, configured)
	if err != nil {
		logger.Warn().Err(err).Str("provider", provider).Msg("bootstrap: failed to load key from store")
		return configured
	}
	return key
}

// NewGenerators builds the per-kind generators: a remote chart engine when
// CHART_ENGINE_URL is set, and OpenAI content when a key is available.
func NewGenerators(ctx context.Context, cfg *infra.Config, stores *Stores, logger infra.Logger) (reports.Generators, error) {
	httpClient := &http.Client{Timeout: providerHTTPTimeout}

	var engine chart.Engine = chart.NewLocalEngine()
	if cfg.ChartEngineURL != "" {
		remote, err := chart.NewHTTPEngine(chart.HTTPOptions{
			BaseURL:    cfg.ChartEngineURL,
			APIKey:     stores.resolveKey(ctx, credentials.ProviderChartEngine, cfg.ChartEngineAPIKey, logger),
			HTTPClient: httpClient,
		})
		if err != nil {
			return nil, fmt.Errorf("chart engine: %w", err)
		}
		engine = remote
	}

	static := content.NewStaticGenerator()
	var writer content.Generator = static
	if key := stores.resolveKey(ctx, credentials.ProviderOpenAI, cfg.OpenAIAPIKey, logger); key != "" {
		opts := content.OpenAIOptions{
			APIKey:       key,
			Model:        cfg.OpenAIModel,
			BaseURL:      cfg.OpenAIBaseURL,
			Organization: cfg.OpenAIOrg,
			HTTPClient:   httpClient,
			OnFallback: func(reason string, err error) {
				logger.Warn().Err(err).Str("reason", reason).Msg("content: openai fallback")
			},
			OnWarning: func(reason, detail string) {
				logger.Warn().Str("reason", reason).Str("detail", detail).Msg("content: openai warning")
			},
		}
		if cfg.OpenAIFallbackStatic {
			opts.Fallback = static
		}
		openai, err := content.NewOpenAIGenerator(opts)
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		logger.Info().Str("model", openai.Model()).Bool("fallback", cfg.OpenAIFallbackStatic).Msg("bootstrap: openai content enabled")
		writer = openai
	} else {
		logger.Warn().Msg("bootstrap: openai key missing, using static content")
	}

	return reports.NewGenerators(engine, writer), nil
}

// NewExecutor sizes the executor from configuration. pendingGrace is how
// long the claim loop leaves fresh pending jobs to the in-process queue.
func NewExecutor(cfg *infra.Config, stores *Stores, gen reports.Generators, pendingGrace time.Duration, logger infra.Logger) *reports.Executor {
	return reports.NewExecutor(stores.Jobs, gen, reports.ExecutorOptions{
		Workers:      cfg.WorkerConcurrency,
		QueueSize:    cfg.WorkerQueueSize,
		JobTimeout:   cfg.JobTimeout,
		PollInterval: cfg.PollInterval,
		PendingGrace: pendingGrace,
		ReapInterval: reapInterval,
		TTL:          reports.TTLPolicy(cfg.TTLs),
		Logger:       logger,
	})
}
