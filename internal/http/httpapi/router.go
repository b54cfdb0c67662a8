package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"server/internal/http/handlers"
	"server/internal/middleware"
)

// Options carries the router's wiring.
type Options struct {
	App     *handlers.App
	Logger  zerolog.Logger
	Country middleware.CountryLookup
}

// NewRouter assembles the full HTTP surface. The file proxy, health
// probe and auth endpoints are public; everything else requires a
// session, and mutating routes additionally require the CSRF token.
func NewRouter(opts Options) http.Handler {
	app := opts.App
	cfg := app.Config

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(opts.Logger))
	r.Use(chimw.Recoverer)
	// Must outlast the runner wake budget plus the status poll budget.
	r.Use(chimw.Timeout(170 * time.Second))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.Locale("en", opts.Country))
	r.Use(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute))

	r.Get("/v1/healthz", app.Health)
	r.Method(http.MethodGet, "/v1/files", app.FileProxy)
	r.Post("/v1/auth/register", app.Register)
	r.Post("/v1/auth/login", app.Login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionAuth(cfg.SessionSecret))
		r.Use(middleware.CSRF(cfg.SessionSecret))

		r.Post("/v1/vectorize", app.Vectorize)
		r.Post("/v1/vectorize/bulk", app.VectorizeBulk)
		r.Get("/v1/jobs", app.JobsList)
		r.Get("/v1/jobs/export", app.JobsExport)
		r.Get("/v1/jobs/{id}", app.JobStatus)
		r.Get("/v1/jobs/{id}/download", app.JobDownload)
		r.Get("/v1/me/balance", app.Balance)
		r.Delete("/v1/admin/jobs/{id}", app.AdminDeleteJob)
	})

	return r
}
