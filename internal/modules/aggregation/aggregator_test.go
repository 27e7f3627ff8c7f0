package aggregation

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AxelFooley/trackfolio/internal/clientdata"
	"github.com/AxelFooley/trackfolio/internal/domain"
)

type staticSource struct {
	name     string
	currency string
	holdings []Holding
	err      error
	calls    int
}

func (s *staticSource) Name() string     { return s.name }
func (s *staticSource) Currency() string { return s.currency }
func (s *staticSource) Holdings(_ context.Context) ([]Holding, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.holdings, nil
}

type staticRates struct {
	rates map[string]float64
}

func (r *staticRates) GetRate(_ context.Context, fromCurrency, toCurrency string) (float64, error) {
	if fromCurrency == toCurrency {
		return 1.0, nil
	}
	if rate, ok := r.rates[fromCurrency+":"+toCurrency]; ok {
		return rate, nil
	}
	return 0, errors.New("no rate")
}

func setupAggCache(t *testing.T) *clientdata.Repository {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE exchangerate (pair TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE metrics (key TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE current_prices (ticker TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL);`)
	require.NoError(t, err)

	return clientdata.NewRepository(db)
}

func pct(v float64) *float64 { return &v }

func TestOverviewNormalizesCurrencies(t *testing.T) {
	eurSource := &staticSource{
		name: "securities", currency: "EUR",
		holdings: []Holding{
			{Identifier: "IE00B4L5Y983", Ticker: "SWDA.MI", AssetClass: domain.AssetClassETF, Value: 50000, CostBasis: 40000},
		},
	}
	usdSource := &staticSource{
		name: "us-stocks", currency: "USD",
		holdings: []Holding{
			{Identifier: "US0378331005", Ticker: "AAPL", AssetClass: domain.AssetClassStock, Value: 25000, CostBasis: 20000},
		},
	}
	rates := &staticRates{rates: map[string]float64{"USD:EUR": 0.92}}

	agg := NewAggregator([]Source{eurSource, usdSource}, rates, setupAggCache(t), "EUR", zerolog.Nop())

	overview, err := agg.Overview(context.Background())
	require.NoError(t, err)

	// 50000 EUR + 25000 USD * 0.92 = 73000 EUR
	assert.InDelta(t, 73000, overview.TotalValue, 1e-6)
	assert.InDelta(t, 58400, overview.TotalCostBasis, 1e-6)
	assert.InDelta(t, 14600, overview.TotalProfit, 1e-6)
	assert.Equal(t, "EUR", overview.Currency)
	assert.Empty(t, overview.Incomplete)

	require.NotNil(t, overview.ReturnPercent)
	assert.InDelta(t, 25.0, *overview.ReturnPercent, 1e-6)

	assert.InDelta(t, 50000, overview.ByAssetClass["etf"].Value, 1e-6)
	assert.InDelta(t, 23000, overview.ByAssetClass["stock"].Value, 1e-6)
}

func TestOverviewIsMemoized(t *testing.T) {
	source := &staticSource{
		name: "securities", currency: "EUR",
		holdings: []Holding{
			{Identifier: "X", Ticker: "X", AssetClass: domain.AssetClassStock, Value: 100, CostBasis: 80},
		},
	}
	agg := NewAggregator([]Source{source}, &staticRates{}, setupAggCache(t), "EUR", zerolog.Nop())

	first, err := agg.Overview(context.Background())
	require.NoError(t, err)
	second, err := agg.Overview(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, source.calls)
	assert.Equal(t, first.TotalValue, second.TotalValue)
	assert.Equal(t, first.ComputedAt, second.ComputedAt)
}

func TestOverviewInvalidate(t *testing.T) {
	source := &staticSource{
		name: "securities", currency: "EUR",
		holdings: []Holding{
			{Identifier: "X", Ticker: "X", AssetClass: domain.AssetClassStock, Value: 100, CostBasis: 80},
		},
	}
	agg := NewAggregator([]Source{source}, &staticRates{}, setupAggCache(t), "EUR", zerolog.Nop())

	_, err := agg.Overview(context.Background())
	require.NoError(t, err)

	agg.Invalidate()

	_, err = agg.Overview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls)
}

func TestOverviewSourceFailureIsPartial(t *testing.T) {
	healthy := &staticSource{
		name: "securities", currency: "EUR",
		holdings: []Holding{
			{Identifier: "X", Ticker: "X", AssetClass: domain.AssetClassStock, Value: 100, CostBasis: 80},
		},
	}
	broken := &staticSource{name: "crypto", currency: "EUR", err: errors.New("backend down")}

	agg := NewAggregator([]Source{healthy, broken}, &staticRates{}, setupAggCache(t), "EUR", zerolog.Nop())

	overview, err := agg.Overview(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 100, overview.TotalValue, 1e-6)
	assert.Equal(t, []string{"crypto"}, overview.Incomplete)
}

func TestOverviewMissingRateIsPartial(t *testing.T) {
	usdSource := &staticSource{
		name: "us-stocks", currency: "USD",
		holdings: []Holding{
			{Identifier: "X", Ticker: "X", AssetClass: domain.AssetClassStock, Value: 100, CostBasis: 80},
		},
	}

	agg := NewAggregator([]Source{usdSource}, &staticRates{}, setupAggCache(t), "EUR", zerolog.Nop())

	overview, err := agg.Overview(context.Background())
	require.NoError(t, err)

	assert.Zero(t, overview.TotalValue)
	assert.Equal(t, []string{"us-stocks"}, overview.Incomplete)
	assert.Nil(t, overview.ReturnPercent)
}

func TestMoversRanking(t *testing.T) {
	source := &staticSource{
		name: "securities", currency: "EUR",
		holdings: []Holding{
			{Identifier: "A", Ticker: "A", AssetClass: domain.AssetClassStock, Value: 100, DayChangePercent: pct(4.2)},
			{Identifier: "B", Ticker: "B", AssetClass: domain.AssetClassStock, Value: 100, DayChangePercent: pct(-1.5)},
			{Identifier: "C", Ticker: "C", AssetClass: domain.AssetClassStock, Value: 100, DayChangePercent: pct(2.0)},
			{Identifier: "D", Ticker: "D", AssetClass: domain.AssetClassStock, Value: 100, DayChangePercent: pct(-3.7)},
			{Identifier: "E", Ticker: "E", AssetClass: domain.AssetClassStock, Value: 100}, // no previous close
		},
	}

	agg := NewAggregator([]Source{source}, &staticRates{}, setupAggCache(t), "EUR", zerolog.Nop())

	movers, err := agg.Movers(context.Background(), 2)
	require.NoError(t, err)

	require.Len(t, movers.Gainers, 2)
	assert.Equal(t, "A", movers.Gainers[0].Identifier)
	assert.Equal(t, "C", movers.Gainers[1].Identifier)

	require.Len(t, movers.Losers, 2)
	assert.Equal(t, "D", movers.Losers[0].Identifier)
	assert.Equal(t, "B", movers.Losers[1].Identifier)
}

func TestMoversOnlyGainers(t *testing.T) {
	source := &staticSource{
		name: "securities", currency: "EUR",
		holdings: []Holding{
			{Identifier: "A", Ticker: "A", AssetClass: domain.AssetClassStock, Value: 100, DayChangePercent: pct(1.0)},
		},
	}

	agg := NewAggregator([]Source{source}, &staticRates{}, setupAggCache(t), "EUR", zerolog.Nop())

	movers, err := agg.Movers(context.Background(), 5)
	require.NoError(t, err)

	assert.Len(t, movers.Gainers, 1)
	assert.Empty(t, movers.Losers)
}
