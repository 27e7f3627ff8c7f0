// Package handlers provides HTTP handlers for aggregated portfolio views.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/AxelFooley/trackfolio/internal/modules/aggregation"
)

// Handler handles aggregation HTTP requests
type Handler struct {
	aggregator *aggregation.Aggregator
	log        zerolog.Logger
}

// NewHandler creates a new aggregation handler
func NewHandler(aggregator *aggregation.Aggregator, log zerolog.Logger) *Handler {
	return &Handler{
		aggregator: aggregator,
		log:        log.With().Str("handler", "aggregation").Logger(),
	}
}

// HandleOverview handles GET /api/portfolio/overview
func (h *Handler) HandleOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.aggregator.Overview(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build portfolio overview")
		http.Error(w, "failed to build overview", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{"data": overview})
}

// HandleMovers handles GET /api/portfolio/movers
func (h *Handler) HandleMovers(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	movers, err := h.aggregator.Movers(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute movers")
		http.Error(w, "failed to compute movers", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{"data": movers})
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
