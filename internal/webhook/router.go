// Package webhook exposes the relay's HTTP surface: the inbound Telegram
// webhook endpoint, webhook health probes and read-only delivery history.
package webhook

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a chi router with all relay endpoints.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()

	// middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// basic cors for the dashboard reading history
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	// health check
	r.Get("/health", handler.Health)

	// inbound webhook surface
	r.Post("/webhook/telegram/{secret}", handler.TelegramWebhook)
	r.Get("/webhook/telegram/{secret}/health", handler.WebhookHealth)

	// read-only history for the dashboard
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/links/{linkID}/history", handler.LinkHistory)
	})

	return r
}
