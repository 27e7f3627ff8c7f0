// Package handlers provides HTTP handlers for position and ledger operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/AxelFooley/trackfolio/internal/domain"
	"github.com/AxelFooley/trackfolio/internal/modules/ledger"
	"github.com/AxelFooley/trackfolio/internal/modules/portfolio"
	"github.com/AxelFooley/trackfolio/internal/modules/splits"
)

// Invalidator clears memoized aggregate views after state changes.
// Implemented by aggregation.Aggregator.
type Invalidator interface {
	Invalidate()
}

// Handler handles portfolio HTTP requests
type Handler struct {
	positions   *portfolio.PositionRepository
	manager     *portfolio.Manager
	splitRepo   *splits.SplitRepository
	importSvc   *ledger.ImportService
	invalidator Invalidator
	log         zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(
	positions *portfolio.PositionRepository,
	manager *portfolio.Manager,
	splitRepo *splits.SplitRepository,
	importSvc *ledger.ImportService,
	invalidator Invalidator,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		positions:   positions,
		manager:     manager,
		splitRepo:   splitRepo,
		importSvc:   importSvc,
		invalidator: invalidator,
		log:         log.With().Str("handler", "portfolio").Logger(),
	}
}

// positionResponse is the read-only snapshot exposed to the presentation layer
type positionResponse struct {
	Identifier       string `json:"identifier"`
	Ticker           string `json:"ticker"`
	Description      string `json:"description,omitempty"`
	AssetClass       string `json:"asset_class"`
	Quantity         string `json:"quantity"`
	AvgCost          string `json:"avg_cost"`
	CostBasis        string `json:"cost_basis"`
	Currency         string `json:"currency"`
	LastRecalculated string `json:"last_recalculated"`
}

func toPositionResponse(p domain.Position) positionResponse {
	return positionResponse{
		Identifier:       p.Identifier,
		Ticker:           p.Ticker,
		Description:      p.Description,
		AssetClass:       string(p.AssetClass),
		Quantity:         p.Quantity.String(),
		AvgCost:          p.AvgCost.String(),
		CostBasis:        p.CostBasis.String(),
		Currency:         p.Currency,
		LastRecalculated: p.LastRecalculated.UTC().Format(time.RFC3339),
	}
}

// HandleListPositions handles GET /api/positions
func (h *Handler) HandleListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.positions.GetAll()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list positions")
		http.Error(w, "failed to list positions", http.StatusInternalServerError)
		return
	}

	response := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		response = append(response, toPositionResponse(p))
	}
	writeJSON(w, map[string]interface{}{"data": response, "count": len(response)})
}

// HandleGetPosition handles GET /api/positions/{identifier}
func (h *Handler) HandleGetPosition(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")

	position, err := h.positions.GetByIdentifier(identifier)
	if err != nil {
		h.log.Error().Err(err).Str("identifier", identifier).Msg("Failed to get position")
		http.Error(w, "failed to get position", http.StatusInternalServerError)
		return
	}
	if position == nil {
		http.Error(w, "position not found", http.StatusNotFound)
		return
	}

	writeJSON(w, map[string]interface{}{"data": toPositionResponse(*position)})
}

// HandleRecalculate handles POST /api/positions/recalculate
func (h *Handler) HandleRecalculate(w http.ResponseWriter, r *http.Request) {
	summary, err := h.manager.RecalculateAll()
	if err != nil {
		h.log.Error().Err(err).Msg("Recalculation failed")
		http.Error(w, "recalculation failed", http.StatusInternalServerError)
		return
	}

	h.invalidator.Invalidate()

	writeJSON(w, map[string]interface{}{
		"data": map[string]interface{}{
			"live_positions": summary.LivePositions,
			"processed":      summary.Processed,
			"failed":         summary.Failed,
		},
	})
}

// HandleListSplits handles GET /api/splits
func (h *Handler) HandleListSplits(w http.ResponseWriter, r *http.Request) {
	events, err := h.splitRepo.GetAll()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list split events")
		http.Error(w, "failed to list split events", http.StatusInternalServerError)
		return
	}

	type splitResponse struct {
		Identifier string `json:"identifier"`
		SplitDate  string `json:"split_date"`
		Ratio      string `json:"ratio"`
		OldTicker  string `json:"old_ticker"`
		NewTicker  string `json:"new_ticker"`
	}

	response := make([]splitResponse, 0, len(events))
	for _, e := range events {
		response = append(response, splitResponse{
			Identifier: e.Identifier,
			SplitDate:  e.SplitDate.UTC().Format("2006-01-02"),
			Ratio:      e.Ratio(),
			OldTicker:  e.OldTicker,
			NewTicker:  e.NewTicker,
		})
	}
	writeJSON(w, map[string]interface{}{"data": response, "count": len(response)})
}

// importTransactionRequest is one normalized transaction record as supplied
// by an import collaborator (CSV importer, manual entry, exchange export).
type importTransactionRequest struct {
	OperationDate  string `json:"operation_date"` // ISO date
	Type           string `json:"type"`
	ISIN           string `json:"isin,omitempty"`
	Ticker         string `json:"ticker"`
	Description    string `json:"description,omitempty"`
	Quantity       string `json:"quantity"`
	PricePerUnit   string `json:"price_per_unit"`
	GrossAmount    string `json:"gross_amount,omitempty"`
	Currency       string `json:"currency"`
	Fees           string `json:"fees,omitempty"`
	OrderReference string `json:"order_reference,omitempty"`
}

func (req *importTransactionRequest) toDomain() (domain.Transaction, error) {
	var t domain.Transaction

	opDate, err := time.Parse("2006-01-02", req.OperationDate)
	if err != nil {
		return t, err
	}

	parse := func(s string) (decimal.Decimal, error) {
		if s == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(s)
	}

	quantity, err := parse(req.Quantity)
	if err != nil {
		return t, err
	}
	price, err := parse(req.PricePerUnit)
	if err != nil {
		return t, err
	}
	gross, err := parse(req.GrossAmount)
	if err != nil {
		return t, err
	}
	fees, err := parse(req.Fees)
	if err != nil {
		return t, err
	}

	return domain.Transaction{
		OperationDate:  opDate.UTC(),
		Type:           domain.TransactionType(req.Type),
		ISIN:           req.ISIN,
		Ticker:         req.Ticker,
		Description:    req.Description,
		Quantity:       quantity,
		PricePerUnit:   price,
		GrossAmount:    gross,
		Currency:       req.Currency,
		Fees:           fees,
		OrderReference: req.OrderReference,
	}, nil
}

// HandleImportTransactions handles POST /api/transactions/import
func (h *Handler) HandleImportTransactions(w http.ResponseWriter, r *http.Request) {
	var requests []importTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&requests); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	batch := make([]domain.Transaction, 0, len(requests))
	for i, req := range requests {
		t, err := req.toDomain()
		if err != nil {
			h.log.Warn().Err(err).Int("index", i).Msg("Rejecting unparseable transaction")
			continue
		}
		batch = append(batch, t)
	}

	result, err := h.importSvc.Import(batch)
	if err != nil {
		h.log.Error().Err(err).Msg("Import failed")
		http.Error(w, "import failed", http.StatusInternalServerError)
		return
	}

	if result.Imported > 0 {
		h.invalidator.Invalidate()
	}

	writeJSON(w, map[string]interface{}{"data": result})
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
