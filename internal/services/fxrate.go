// Package services contains cross-module application services.
package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/AxelFooley/trackfolio/internal/clientdata"
)

// RateClient is the live FX rate source. Implemented by exchangerate.Client.
type RateClient interface {
	GetRate(ctx context.Context, fromCurrency, toCurrency string) (float64, error)
}

// fallbackRates is the static table of approximate rates used only when the
// live source and the cache are both unavailable. Keyed by "FROM:TO".
var fallbackRates = map[string]float64{
	"EUR:USD": 1.09,
	"USD:EUR": 0.92,
	"EUR:GBP": 0.86,
	"EUR:CHF": 0.94,
	"GBP:USD": 1.27,
}

// RateService resolves currency-pair conversion rates through a degradation
// ladder: fresh cache, then live fetch (cached on success), then the static
// fallback table (direct or inverted). Correctness is preferred, but an
// approximate rate is preferred over total failure for aggregate displays.
//
// The cache check and write are deliberately non-atomic: two callers missing
// concurrently both fetch and the last write wins, which is harmless.
type RateService struct {
	client    RateClient
	cacheRepo *clientdata.Repository
	log       zerolog.Logger
}

// NewRateService creates a new FX rate service
func NewRateService(client RateClient, cacheRepo *clientdata.Repository, log zerolog.Logger) *RateService {
	return &RateService{
		client:    client,
		cacheRepo: cacheRepo,
		log:       log.With().Str("service", "fx_rate").Logger(),
	}
}

// cachedRate is the structure stored in the exchangerate cache table
type cachedRate struct {
	Rate float64 `json:"rate"`
}

// GetRate returns a rate such that amount_in_from * rate = amount_in_to.
// Same-currency requests return 1.0 without touching cache or network.
func (s *RateService) GetRate(ctx context.Context, fromCurrency, toCurrency string) (float64, error) {
	return s.getRate(ctx, fromCurrency, toCurrency, true)
}

// GetRateStrict behaves like GetRate but never consults the static fallback
// table. Use it where an approximate rate would do more harm than no rate.
func (s *RateService) GetRateStrict(ctx context.Context, fromCurrency, toCurrency string) (float64, error) {
	return s.getRate(ctx, fromCurrency, toCurrency, false)
}

func (s *RateService) getRate(ctx context.Context, fromCurrency, toCurrency string, allowFallback bool) (float64, error) {
	if fromCurrency == toCurrency {
		return 1.0, nil
	}

	pair := fromCurrency + ":" + toCurrency

	if data, err := s.cacheRepo.GetIfFresh("exchangerate", pair); err == nil && data != nil {
		var cached cachedRate
		if err := json.Unmarshal(data, &cached); err == nil && cached.Rate > 0 {
			s.log.Debug().Str("pair", pair).Float64("rate", cached.Rate).Msg("Cache hit")
			return cached.Rate, nil
		}
	}

	rate, err := s.client.GetRate(ctx, fromCurrency, toCurrency)
	if err == nil && rate > 0 {
		s.cache(pair, rate)
		return rate, nil
	}

	if !allowFallback {
		return 0, fmt.Errorf("no rate available for %s/%s: %w", fromCurrency, toCurrency, err)
	}

	if rate, ok := s.fallbackRate(fromCurrency, toCurrency); ok {
		s.log.Warn().
			Err(err).
			Str("pair", pair).
			Float64("rate", rate).
			Msg("Live rate unavailable, using static fallback rate")
		return rate, nil
	}

	return 0, fmt.Errorf("no rate available for %s/%s: %w", fromCurrency, toCurrency, err)
}

// fallbackRate looks up the static table, trying the inverse pair when the
// direct pair is absent.
func (s *RateService) fallbackRate(fromCurrency, toCurrency string) (float64, bool) {
	if rate, ok := fallbackRates[fromCurrency+":"+toCurrency]; ok {
		return rate, true
	}
	if inverse, ok := fallbackRates[toCurrency+":"+fromCurrency]; ok && inverse > 0 {
		return 1.0 / inverse, true
	}
	return 0, false
}

func (s *RateService) cache(pair string, rate float64) {
	data, err := json.Marshal(cachedRate{Rate: rate})
	if err != nil {
		return
	}
	if err := s.cacheRepo.Store("exchangerate", pair, data, clientdata.TTLExchangeRate); err != nil {
		s.log.Warn().Err(err).Str("pair", pair).Msg("Failed to cache exchange rate")
	}
}

// SyncRates pre-warms the cache for all pairs of the given currencies.
// Partial success is fine and logged; it fails only when every fetch fails.
func (s *RateService) SyncRates(ctx context.Context, currencies []string) error {
	successCount, errorCount := 0, 0

	for _, from := range currencies {
		for _, to := range currencies {
			if from == to {
				continue
			}
			if _, err := s.getRate(ctx, from, to, false); err != nil {
				s.log.Warn().Err(err).Str("from", from).Str("to", to).Msg("Failed to sync rate")
				errorCount++
				continue
			}
			successCount++
		}
	}

	s.log.Info().
		Int("success", successCount).
		Int("errors", errorCount).
		Msg("Exchange rate sync completed")

	if successCount == 0 && errorCount > 0 {
		return fmt.Errorf("all rate fetches failed")
	}
	return nil
}
