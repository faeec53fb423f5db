package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/shootingwala/inbox/internal/api/middleware"
	"github.com/shootingwala/inbox/internal/handlers"
)

// Options configures the bridge router.
type Options struct {
	CORSOrigins []string
	RateLimit   middleware.RateLimiterConfig

	// Verifier enables bearer token auth on /api and /ws when set. Only
	// tokens issued for ActorID are admitted.
	Verifier middleware.TokenVerifier
	ActorID  string
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024)) // 8KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	limiter := middleware.NewRateLimiter(logger, opts.RateLimit)
	r.Use(limiter.Middleware)

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		if opts.Verifier != nil {
			r.Use(middleware.NewAuthMiddleware(opts.Verifier, opts.ActorID).RequireActor)
		}

		r.Get("/api/state", h.State)
		r.Get("/api/stats", h.Stats)
		r.Post("/api/refresh", h.Refresh)
		r.Post("/api/conversations/{id}/select", h.SelectConversation)
		r.Post("/api/conversations/{id}/read", h.MarkRead)
		r.Delete("/api/conversations/active", h.Deselect)
		r.Put("/api/draft", h.SetDraft)
		r.Post("/api/messages", h.SendMessage)
		r.Get("/ws", h.Stream)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.Error(w, http.StatusNotFound, "not found")
	})

	return r
}
