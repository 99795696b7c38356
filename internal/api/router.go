package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/TheInfexted/livechat-cs-sub000/internal/api/middleware"
	"github.com/TheInfexted/livechat-cs-sub000/internal/config"
	"github.com/TheInfexted/livechat-cs-sub000/internal/handlers"
	"github.com/TheInfexted/livechat-cs-sub000/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(cfg *config.Config, logger zerolog.Logger, h *handlers.Handler, messages *store.RedisMessageStore) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(64 * 1024)) // file messages carry attachment metadata

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	limiter := middleware.NewRateLimiter(messages.Client(), logger, cfg.RateLimitWhitelist)
	r.Use(limiter.Middleware)

	// CORS - the chat widget embeds on customer sites, agents call from anywhere
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/healthz", h.Health)

	// Websocket chat endpoint
	r.Handle("/ws", h.ChatSocket())

	// REST surface: session lifecycle plus polling fallback for clients
	// without a live socket
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Get("/", h.ListSessions)
		r.Get("/{token}", h.GetSession)
		r.Get("/{token}/messages", h.ListMessages)
		r.Post("/{token}/read", h.MarkRead)
	})

	return r
}
