// Package aggregation composes independent position sets into a single
// currency-normalized reporting view.
package aggregation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/AxelFooley/trackfolio/internal/clients/prices"
	"github.com/AxelFooley/trackfolio/internal/domain"
)

// Holding is one holding as contributed by a source, valued in the source's
// native currency.
type Holding struct {
	Identifier       string
	Ticker           string
	AssetClass       domain.AssetClass
	Quantity         float64
	Value            float64
	CostBasis        float64
	DayChange        float64
	DayChangePercent *float64 // nil when no previous close is known
}

// Source is one independent position set with its own native reporting
// currency. Sources are fetched independently so a slow or failing source
// degrades only its own contribution.
type Source interface {
	Name() string
	Currency() string
	Holdings(ctx context.Context) ([]Holding, error)
}

// PositionLister provides the stored positions.
// Implemented by portfolio.PositionRepository.
type PositionLister interface {
	GetAll() ([]domain.Position, error)
}

// QuoteProvider supplies current prices per ticker.
// Implemented by prices.Client.
type QuoteProvider interface {
	GetQuote(ctx context.Context, ticker string) (*prices.Quote, error)
}

// PositionSource adapts the position store into an aggregation source,
// filtered by asset class. A per-ticker quote failure downgrades that
// holding to its cost basis instead of failing the source.
type PositionSource struct {
	name      string
	currency  string
	classes   map[domain.AssetClass]bool
	positions PositionLister
	quotes    QuoteProvider
	log       zerolog.Logger
}

// NewPositionSource creates a source over the stored positions limited to
// the given asset classes.
func NewPositionSource(
	name, currency string,
	classes []domain.AssetClass,
	positions PositionLister,
	quotes QuoteProvider,
	log zerolog.Logger,
) *PositionSource {
	classSet := make(map[domain.AssetClass]bool, len(classes))
	for _, c := range classes {
		classSet[c] = true
	}
	return &PositionSource{
		name:      name,
		currency:  currency,
		classes:   classSet,
		positions: positions,
		quotes:    quotes,
		log:       log.With().Str("source", name).Logger(),
	}
}

// Name returns the source name
func (s *PositionSource) Name() string { return s.name }

// Currency returns the source's native reporting currency
func (s *PositionSource) Currency() string { return s.currency }

// Holdings values every matching position at its current quote
func (s *PositionSource) Holdings(ctx context.Context) ([]Holding, error) {
	positions, err := s.positions.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}

	var holdings []Holding
	for _, pos := range positions {
		if !s.classes[pos.AssetClass] {
			continue
		}

		quantity, _ := pos.Quantity.Float64()
		costBasis, _ := pos.CostBasis.Float64()

		h := Holding{
			Identifier: pos.Identifier,
			Ticker:     pos.Ticker,
			AssetClass: pos.AssetClass,
			Quantity:   quantity,
			CostBasis:  costBasis,
		}

		quote, err := s.quotes.GetQuote(ctx, pos.Ticker)
		if err != nil {
			// Per-ticker failure: value at cost so the total stays meaningful
			s.log.Warn().Err(err).Str("ticker", pos.Ticker).Msg("Quote unavailable, valuing at cost")
			h.Value = costBasis
			holdings = append(holdings, h)
			continue
		}

		h.Value = quantity * quote.Price
		if pct, ok := quote.DayChangePercent(); ok {
			h.DayChangePercent = &pct
			h.DayChange = quantity * (quote.Price - quote.PreviousClose)
		}

		holdings = append(holdings, h)
	}

	return holdings, nil
}
