package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"astroreports/internal/domain"
	"astroreports/internal/http/handlers"
	"astroreports/internal/middleware"
)

// Options configures the middleware stack in front of the handlers.
type Options struct {
	Logger         zerolog.Logger
	JWTSecret      string
	AllowedOrigins []string
	// RateLimitPerMin caps requests per client IP; zero disables the limiter.
	RateLimitPerMin int
	CountryLookup   middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts Options) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get(handlers.OpenAPIPath, app.OpenAPIJSON)
	r.Get(handlers.DocsPath, app.OpenAPIDocs)

	r.Group(func(r chi.Router) {
		r.Use(
			middleware.RateLimit(opts.RateLimitPerMin, time.Minute),
			middleware.OptionalAuth(opts.JWTSecret),
			middleware.I18N(domain.DefaultLocale, opts.CountryLookup),
		)

		r.Route("/v1/reports", func(r chi.Router) {
			r.Post("/personal", app.PersonalReport(true))
			r.Post("/personal/status", app.PersonalReport(false))
			r.Post("/compatibility", app.CompatibilityReport(true))
			r.Post("/compatibility/status", app.CompatibilityReport(false))
		})
		r.Post("/v1/forecasts/{period}", app.Forecast(true))
		r.Post("/v1/forecasts/{period}/status", app.Forecast(false))
		r.Post("/v1/questions/{set}", app.QuestionSet(true))
		r.Post("/v1/questions/{set}/status", app.QuestionSet(false))

		r.Get("/v1/jobs/{id}", app.Job)
		r.Get("/v1/public/{code}", app.PublicReport)

		r.With(middleware.RequireUser).Get("/v1/me/reports/{kind}", app.MyReport)
	})

	return r
}
