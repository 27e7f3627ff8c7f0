package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all aggregation routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolio", func(r chi.Router) {
		r.Get("/overview", h.HandleOverview)
		r.Get("/movers", h.HandleMovers)
	})
}
