package routes

import (
	"github.com/go-chi/chi"

	"github.com/jidehen/smart-sdk-travel-agent/internal/gatesvc/handlers"
)

func SetRoutes(r *chi.Mux) {
	h := handlers.NewHandler()
	r.Route("/v1", func(r chi.Router) {
		r.Get("/ws", h.HandleWebSocket)
		r.Get("/health", h.HealthHandler)
	})
}
