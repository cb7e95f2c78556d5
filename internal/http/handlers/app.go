package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"astroreports/internal/domain"
	"astroreports/internal/middleware"
	"astroreports/internal/reports"
)

// ReportService is the part of reports.Service the HTTP layer depends on.
type ReportService interface {
	Get(ctx context.Context, req reports.Request) (*reports.Result, error)
	GetOrCreate(ctx context.Context, req reports.Request) (*reports.Result, error)
	GetByID(ctx context.Context, id string) (*reports.Result, error)
	GetByCode(ctx context.Context, code string) (*reports.Result, error)
}

type profileReader interface {
	GetByUserID(ctx context.Context, userID string) (*domain.Profile, error)
}

type App struct {
	Reports  ReportService
	Profiles profileReader
	// Ping reports store health; nil always reports healthy.
	Ping func(ctx context.Context) error
	// Queued is set when the executor shares the process.
	Queued func() int
	Logger zerolog.Logger
	Now    func() time.Time
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]string{"error": code, "message": message})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// serviceError maps engine errors to HTTP responses.
func (a *App) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidFingerprint):
		a.error(w, http.StatusBadRequest, "invalid_fingerprint", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
	case errors.Is(err, domain.ErrCodeGenerationExhausted):
		a.Logger.Error().Err(err).Str("path", r.URL.Path).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Msg("http: share code space exhausted")
		a.error(w, http.StatusServiceUnavailable, "unavailable", "try again later")
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Msg("http: request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
