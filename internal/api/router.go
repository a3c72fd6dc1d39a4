package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dcollien/Chatitat/internal/api/middleware"
	"github.com/dcollien/Chatitat/internal/chat"
	"github.com/dcollien/Chatitat/internal/handlers"
)

// NewRouter creates and configures the HTTP router: the websocket endpoint,
// the auxiliary query endpoints and the permissive catch-all.
func NewRouter(logger zerolog.Logger, broker *chat.Broker) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024)) // 8KB max body

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// CORS - clients connect from anywhere
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(broker)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", h.Health)

	// Websocket transport
	r.Get("/ws", chat.ServeWS(broker))

	// History retrieval and purge
	r.Get("/history", h.MissingChannel)
	r.Delete("/history", h.MissingChannel)
	r.Get("/history/{channel}", h.History)
	r.Delete("/history/{channel}", h.History)
	r.Get("/history/{channel}/{count}", h.History)
	r.Delete("/history/{channel}/{count}", h.History)

	// Presence
	r.Get("/list", h.MissingChannel)
	r.Get("/list/{channel}", h.List)

	// Reference signature computation
	r.Get("/hmac/{salt}/{user}/{channel}/{issued}", h.HMAC)

	// Anything else gets the permissive informational response.
	r.NotFound(h.Fallback)
	r.MethodNotAllowed(h.Fallback)

	return r
}
