package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"astroreports/internal/domain"
)

const sqliteScheme = "sqlite:"

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv            string
	Port              string
	DatabaseURL       string
	JWTSecret         string
	GeoIPDBPath       string
	ChartEngineURL    string
	ChartEngineAPIKey string

	OpenAIAPIKey         string
	OpenAIModel          string
	OpenAIBaseURL        string
	OpenAIOrg            string
	OpenAIFallbackStatic bool

	WorkerConcurrency int
	WorkerQueueSize   int
	WorkerInProcess   bool
	JobTimeout        time.Duration
	PollInterval      time.Duration
	PendingGrace      time.Duration
	RefreshTimeout    time.Duration
	TTLs              map[domain.JobKind]time.Duration

	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		GeoIPDBPath:       os.Getenv("GEOIP_DB_PATH"),
		ChartEngineURL:    os.Getenv("CHART_ENGINE_URL"),
		ChartEngineAPIKey: os.Getenv("CHART_ENGINE_API_KEY"),

		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:        getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:            os.Getenv("OPENAI_ORG"),
		OpenAIFallbackStatic: getEnvBool("OPENAI_FALLBACK_STATIC", false),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		WorkerQueueSize:   getEnvInt("WORKER_QUEUE_SIZE", 64),
		WorkerInProcess:   getEnvBool("WORKER_INPROCESS", true),
		JobTimeout:        time.Second * time.Duration(getEnvInt("JOB_TIMEOUT_SECONDS", 120)),
		PollInterval:      time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 5)),
		PendingGrace:      time.Second * time.Duration(getEnvInt("PENDING_GRACE_SECONDS", 30)),
		RefreshTimeout:    time.Second * time.Duration(getEnvInt("REFRESH_TIMEOUT_SECONDS", 300)),
		TTLs: map[domain.JobKind]time.Duration{
			domain.KindPersonalReport:      hours(getEnvInt("TTL_PERSONAL_HOURS", 90*24)),
			domain.KindCompatibilityReport: hours(getEnvInt("TTL_COMPATIBILITY_HOURS", 0)),
			domain.KindForecastToday:       hours(getEnvInt("TTL_FORECAST_DAILY_HOURS", 24)),
			domain.KindForecastTomorrow:    hours(getEnvInt("TTL_FORECAST_DAILY_HOURS", 24)),
			domain.KindForecast14Day:       hours(getEnvInt("TTL_FORECAST_14DAY_HOURS", 7*24)),
			domain.KindQuestionSetMe:       hours(getEnvInt("TTL_QUESTIONS_ME_HOURS", 30*24)),
			domain.KindQuestionSetDaily:    hours(getEnvInt("TTL_QUESTIONS_DAILY_HOURS", 24)),
		},

		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.WorkerConcurrency < 1 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", cfg.WorkerConcurrency)
	}
	if cfg.JobTimeout <= 0 {
		return nil, fmt.Errorf("JOB_TIMEOUT_SECONDS must be positive")
	}

	return cfg, nil
}

// UsesSQLite reports whether DATABASE_URL points at a SQLite file.
func (c *Config) UsesSQLite() bool {
	return strings.HasPrefix(c.DatabaseURL, sqliteScheme)
}

// SQLitePath returns the file path of a sqlite: DATABASE_URL.
func (c *Config) SQLitePath() string {
	return strings.TrimPrefix(c.DatabaseURL, sqliteScheme)
}

func hours(n int) time.Duration {
	return time.Duration(n) * time.Hour
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
