// Package router assembles the HTTP surface of the consult platform.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/docsentra/consult-platform/internal/http/middleware"
	"github.com/docsentra/consult-platform/internal/stats"
	"github.com/docsentra/consult-platform/internal/visit"
	"github.com/docsentra/consult-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger       *logging.Logger
	VisitHandler *visit.Handler
	StatsHandler *stats.Handler

	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// AuthJWTSecret signs clinician JWTs. An empty secret rejects every
	// /api request.
	AuthJWTSecret string

	// RateLimitPerSecond caps requests per client IP. Zero disables the
	// limiter.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// New creates the Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if cfg.RateLimitPerSecond > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = int(cfg.RateLimitPerSecond) * 2
		}
		r.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSecond, burst))
	}

	// Public endpoints.
	r.Group(func(public chi.Router) {
		public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Authenticated clinician API. Mutations are doctor-only; reads are
	// open to the care team.
	doctorOnly := httpmiddleware.RequireRole(httpmiddleware.RoleDoctor)
	careTeam := httpmiddleware.RequireRole(httpmiddleware.RoleDoctor, httpmiddleware.RoleNurse)

	r.Route("/api", func(api chi.Router) {
		api.Use(httpmiddleware.ClinicianJWT(cfg.AuthJWTSecret))

		api.Route("/visits", func(visits chi.Router) {
			visits.With(doctorOnly).Post("/", cfg.VisitHandler.Open)
			visits.Route("/{visitID}", func(r chi.Router) {
				r.With(careTeam).Get("/", cfg.VisitHandler.Get)
				r.With(careTeam).Get("/transcript", cfg.VisitHandler.Transcript)
				r.With(careTeam).Get("/stream", cfg.VisitHandler.Stream)
				r.With(careTeam).Get("/suggestions", cfg.VisitHandler.Suggestions)

				r.With(doctorOnly).Delete("/", cfg.VisitHandler.Close)
				r.With(doctorOnly).Post("/messages", cfg.VisitHandler.SendMessage)
				r.With(doctorOnly).Post("/questions/{index}/select", cfg.VisitHandler.SelectQuestion)
				r.With(doctorOnly).Post("/questions/cancel", cfg.VisitHandler.CancelQuestion)
				r.With(doctorOnly).Post("/questions/answer", cfg.VisitHandler.AnswerQuestion)
				r.With(doctorOnly).Post("/suggestions", cfg.VisitHandler.RefreshSuggestions)
			})
		})

		if cfg.StatsHandler != nil {
			api.With(careTeam).Get("/stats/visits", cfg.StatsHandler.GetVisitStats)
		}
	})

	return r
}
