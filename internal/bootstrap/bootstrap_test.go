package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astroreports/internal/domain"
	"astroreports/internal/infra"
)

var birth = domain.BirthData{BirthDateTime: "1988-03-02T11:20:00", Gender: domain.GenderOther, BirthTimezone: "UTC", IsTimeKnown: false}

func sqliteConfig() *infra.Config {
	return &infra.Config{
		DatabaseURL:       "sqlite::memory:",
		WorkerConcurrency: 2,
		WorkerQueueSize:   4,
		JobTimeout:        5 * time.Second,
		TTLs:              map[domain.JobKind]time.Duration{domain.KindPersonalReport: time.Hour},
	}
}

func TestOpenStoresSQLite(t *testing.T) {
	ctx := context.Background()
	stores, err := OpenStores(ctx, sqliteConfig(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(stores.Close)

	assert.Nil(t, stores.Credentials)
	require.NoError(t, stores.Ping(ctx))

	ok, err := stores.Profiles.Exists(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewGeneratorsCoversEveryKind(t *testing.T) {
	ctx := context.Background()
	cfg := sqliteConfig()
	stores, err := OpenStores(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(stores.Close)

	gens, err := NewGenerators(ctx, cfg, stores, zerolog.Nop())
	require.NoError(t, err)
	for _, kind := range domain.Kinds {
		assert.Contains(t, gens, kind)
	}

	job, err := domain.NewJob(domain.PersonalFingerprint{Person: birth, Locale: "en"}, "")
	require.NoError(t, err)
	payload, err := gens.Generate(ctx, job)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "sections")
}

func TestOpenAIFailuresFallBackToStatic(t *testing.T) {
	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(upstream.Close)

	ctx := context.Background()
	cfg := sqliteConfig()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.OpenAIBaseURL = upstream.URL
	cfg.OpenAIFallbackStatic = true
	stores, err := OpenStores(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(stores.Close)

	gens, err := NewGenerators(ctx, cfg, stores, zerolog.Nop())
	require.NoError(t, err)

	job, err := domain.NewJob(domain.QuestionSetFingerprint{Set: domain.QuestionSetDaily, Person: birth, TargetDate: "2026-10-18", Locale: "en"}, "")
	require.NoError(t, err)
	_, err = gens.Generate(ctx, job)
	require.NoError(t, err)
	assert.Positive(t, calls.Load())
}

func TestExecutorRunsAgainstOpenedStores(t *testing.T) {
	ctx := context.Background()
	cfg := sqliteConfig()
	stores, err := OpenStores(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(stores.Close)
	gens, err := NewGenerators(ctx, cfg, stores, zerolog.Nop())
	require.NoError(t, err)

	cfg.PollInterval = 10 * time.Millisecond
	ex := NewExecutor(cfg, stores, gens, 0, zerolog.Nop())

	job, err := domain.NewJob(domain.PersonalFingerprint{Person: birth, Locale: "en"}, "")
	require.NoError(t, err)
	job.ID, job.Code = "7d9f1c1e-8c55-4f43-9a43-7f7d1c1c2b11", "BOOTSTRP"
	require.NoError(t, stores.Jobs.Create(ctx, job))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		_ = ex.Run(runCtx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		got, err := stores.Jobs.GetByID(ctx, job.ID)
		return err == nil && got.Status == domain.JobStatusCompleted && got.ExpiresAt != nil
	}, 5*time.Second, 20*time.Millisecond)
}
