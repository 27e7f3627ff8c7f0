package aggregation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/AxelFooley/trackfolio/internal/clientdata"
	"github.com/AxelFooley/trackfolio/internal/modules/finance"
)

// RateProvider resolves currency conversion rates.
// Implemented by services.RateService.
type RateProvider interface {
	GetRate(ctx context.Context, fromCurrency, toCurrency string) (float64, error)
}

// ClassBreakdown is the per-asset-class slice of the overview
type ClassBreakdown struct {
	Value     float64 `msgpack:"value" json:"value"`
	CostBasis float64 `msgpack:"cost_basis" json:"cost_basis"`
	Profit    float64 `msgpack:"profit" json:"profit"`
}

// Overview is the unified multi-source view, normalized to one currency
type Overview struct {
	Currency       string                    `msgpack:"currency" json:"currency"`
	TotalValue     float64                   `msgpack:"total_value" json:"total_value"`
	TotalCostBasis float64                   `msgpack:"total_cost_basis" json:"total_cost_basis"`
	TotalProfit    float64                   `msgpack:"total_profit" json:"total_profit"`
	ReturnPercent  *float64                  `msgpack:"return_percent" json:"return_percent"`
	TodayChange    float64                   `msgpack:"today_change" json:"today_change"`
	ByAssetClass   map[string]ClassBreakdown `msgpack:"by_asset_class" json:"by_asset_class"`
	Incomplete     []string                  `msgpack:"incomplete" json:"incomplete"`
	ComputedAt     int64                     `msgpack:"computed_at" json:"computed_at"`
}

// Mover is one holding ranked by day-over-day change. Ranking uses the raw
// percentage, independent of currency normalization; the value is reported
// in the normalized currency for display.
type Mover struct {
	Identifier    string  `msgpack:"identifier" json:"identifier"`
	Ticker        string  `msgpack:"ticker" json:"ticker"`
	AssetClass    string  `msgpack:"asset_class" json:"asset_class"`
	ChangePercent float64 `msgpack:"change_percent" json:"change_percent"`
	Value         float64 `msgpack:"value" json:"value"`
}

// Movers holds the ranked gainer and loser lists
type Movers struct {
	Gainers []Mover `msgpack:"gainers" json:"gainers"`
	Losers  []Mover `msgpack:"losers" json:"losers"`
}

// sourceResult carries one source's fetched holdings or its failure
type sourceResult struct {
	name     string
	currency string
	holdings []Holding
	err      error
}

// Aggregator combines N independent sources into one normalized view.
// Overview results are memoized in the metrics cache with a short TTL; a
// cache miss or expiry always falls back to full recomputation.
type Aggregator struct {
	sources      []Source
	rates        RateProvider
	cacheRepo    *clientdata.Repository
	baseCurrency string
	log          zerolog.Logger
}

// NewAggregator creates a new portfolio aggregator
func NewAggregator(
	sources []Source,
	rates RateProvider,
	cacheRepo *clientdata.Repository,
	baseCurrency string,
	log zerolog.Logger,
) *Aggregator {
	return &Aggregator{
		sources:      sources,
		rates:        rates,
		cacheRepo:    cacheRepo,
		baseCurrency: baseCurrency,
		log:          log.With().Str("service", "aggregator").Logger(),
	}
}

// overviewCacheKey is the memoization key for the unified overview
func (a *Aggregator) overviewCacheKey() string {
	return "overview:" + a.baseCurrency
}

// Overview returns the unified view across all sources. Each source is
// fetched independently: a failing source is listed under Incomplete and
// its contribution omitted, never failing the whole view.
func (a *Aggregator) Overview(ctx context.Context) (*Overview, error) {
	if data, err := a.cacheRepo.GetIfFresh("metrics", a.overviewCacheKey()); err == nil && data != nil {
		var cached Overview
		if err := msgpack.Unmarshal(data, &cached); err == nil {
			a.log.Debug().Msg("Overview served from cache")
			return &cached, nil
		}
	}

	results := a.fetchSources(ctx)

	overview := &Overview{
		Currency:     a.baseCurrency,
		ByAssetClass: make(map[string]ClassBreakdown),
		ComputedAt:   time.Now().Unix(),
	}

	for _, res := range results {
		if res.err != nil {
			a.log.Error().Err(res.err).Str("source", res.name).Msg("Source failed, reporting partial view")
			overview.Incomplete = append(overview.Incomplete, res.name)
			continue
		}

		rate := 1.0
		if res.currency != a.baseCurrency {
			r, err := a.rates.GetRate(ctx, res.currency, a.baseCurrency)
			if err != nil {
				a.log.Error().Err(err).Str("source", res.name).Str("currency", res.currency).
					Msg("No conversion rate, reporting partial view")
				overview.Incomplete = append(overview.Incomplete, res.name)
				continue
			}
			rate = r
		}

		for _, h := range res.holdings {
			value, err := finance.ConvertAmount(h.Value, res.currency, a.baseCurrency, rate)
			if err != nil {
				return nil, err
			}
			cost, err := finance.ConvertAmount(h.CostBasis, res.currency, a.baseCurrency, rate)
			if err != nil {
				return nil, err
			}
			change, err := finance.ConvertAmount(h.DayChange, res.currency, a.baseCurrency, rate)
			if err != nil {
				return nil, err
			}

			overview.TotalValue += value
			overview.TotalCostBasis += cost
			overview.TodayChange += change

			breakdown := overview.ByAssetClass[string(h.AssetClass)]
			breakdown.Value += value
			breakdown.CostBasis += cost
			breakdown.Profit += value - cost
			overview.ByAssetClass[string(h.AssetClass)] = breakdown
		}
	}

	overview.TotalProfit = overview.TotalValue - overview.TotalCostBasis
	if overview.TotalCostBasis > 0 {
		pct := overview.TotalProfit / overview.TotalCostBasis * 100
		overview.ReturnPercent = &pct
	}

	if data, err := msgpack.Marshal(overview); err == nil {
		if err := a.cacheRepo.Store("metrics", a.overviewCacheKey(), data, clientdata.TTLMetrics); err != nil {
			a.log.Warn().Err(err).Msg("Failed to memoize overview")
		}
	}

	return overview, nil
}

// Movers returns the top gainers and losers across all sources by
// day-over-day percentage change. Holdings without a known previous close
// are excluded from ranking.
func (a *Aggregator) Movers(ctx context.Context, limit int) (*Movers, error) {
	if limit <= 0 {
		limit = 5
	}

	results := a.fetchSources(ctx)

	var candidates []Mover
	for _, res := range results {
		if res.err != nil {
			a.log.Warn().Err(res.err).Str("source", res.name).Msg("Source failed, excluded from movers")
			continue
		}

		rate := 1.0
		if res.currency != a.baseCurrency {
			r, err := a.rates.GetRate(ctx, res.currency, a.baseCurrency)
			if err != nil {
				a.log.Warn().Err(err).Str("source", res.name).Msg("No conversion rate, excluded from movers")
				continue
			}
			rate = r
		}

		for _, h := range res.holdings {
			if h.DayChangePercent == nil {
				continue
			}
			value, err := finance.ConvertAmount(h.Value, res.currency, a.baseCurrency, rate)
			if err != nil {
				continue
			}
			candidates = append(candidates, Mover{
				Identifier:    h.Identifier,
				Ticker:        h.Ticker,
				AssetClass:    string(h.AssetClass),
				ChangePercent: *h.DayChangePercent,
				Value:         value,
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ChangePercent > candidates[j].ChangePercent
	})

	movers := &Movers{}
	for i := 0; i < len(candidates) && i < limit; i++ {
		if candidates[i].ChangePercent > 0 {
			movers.Gainers = append(movers.Gainers, candidates[i])
		}
	}
	for i := len(candidates) - 1; i >= 0 && len(movers.Losers) < limit; i-- {
		if candidates[i].ChangePercent < 0 {
			movers.Losers = append(movers.Losers, candidates[i])
		}
	}

	return movers, nil
}

// Invalidate clears all memoized overview results, forcing the next read to
// recompute. Called after recalculation changes position state.
func (a *Aggregator) Invalidate() {
	if _, err := a.cacheRepo.DeleteMatching("metrics", "overview:%"); err != nil {
		a.log.Warn().Err(err).Msg("Failed to invalidate overview cache")
	}
}

// fetchSources fetches every source concurrently and independently
func (a *Aggregator) fetchSources(ctx context.Context) []sourceResult {
	results := make([]sourceResult, len(a.sources))

	var wg sync.WaitGroup
	for i, src := range a.sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			holdings, err := src.Holdings(ctx)
			results[i] = sourceResult{
				name:     src.Name(),
				currency: src.Currency(),
				holdings: holdings,
				err:      err,
			}
		}(i, src)
	}
	wg.Wait()

	return results
}
