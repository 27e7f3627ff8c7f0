package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/AxelFooley/trackfolio/internal/domain"
)

// RateSyncer defines the contract for exchange rate pre-warming
// Used by scheduler to enable testing with mocks
type RateSyncer interface {
	SyncRates(ctx context.Context, currencies []string) error
}

// PositionLister provides the current position set so the job can derive
// which currency pairs need fresh rates
type PositionLister interface {
	GetAll() ([]domain.Position, error)
}

// FxSyncJob keeps exchange rate caches warm so that aggregation requests
// rarely hit the live rate provider
type FxSyncJob struct {
	rates        RateSyncer
	positions    PositionLister
	baseCurrency string
	log          zerolog.Logger
}

// NewFxSyncJob creates a new FX rate sync job
func NewFxSyncJob(rates RateSyncer, positions PositionLister, baseCurrency string, log zerolog.Logger) *FxSyncJob {
	return &FxSyncJob{
		rates:        rates,
		positions:    positions,
		baseCurrency: baseCurrency,
		log:          log.With().Str("job", "fx_sync").Logger(),
	}
}

// Run refreshes rates for every currency held in the portfolio
func (j *FxSyncJob) Run() error {
	positions, err := j.positions.GetAll()
	if err != nil {
		return err
	}

	seen := map[string]bool{j.baseCurrency: true}
	currencies := []string{j.baseCurrency}
	for _, p := range positions {
		if p.Currency == "" || seen[p.Currency] {
			continue
		}
		seen[p.Currency] = true
		currencies = append(currencies, p.Currency)
	}

	// Nothing to refresh when every position settles in the base currency.
	if len(currencies) < 2 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := j.rates.SyncRates(ctx, currencies); err != nil {
		return err
	}

	j.log.Info().Strs("currencies", currencies).Msg("Exchange rates refreshed")
	return nil
}

// Name returns the job name for scheduling and logging
func (j *FxSyncJob) Name() string {
	return "fx_sync"
}
