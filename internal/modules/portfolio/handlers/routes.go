package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/positions", func(r chi.Router) {
		r.Get("/", h.HandleListPositions)
		r.Get("/{identifier}", h.HandleGetPosition)
		r.Post("/recalculate", h.HandleRecalculate)
	})

	r.Get("/splits", h.HandleListSplits)
	r.Post("/transactions/import", h.HandleImportTransactions)
}
