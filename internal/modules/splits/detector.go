// Package splits detects stock splits from ticker and price discontinuities
// in the transaction history and persists the resulting events.
package splits

import (
	"strings"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/AxelFooley/trackfolio/internal/domain"
)

// splitRatio is one entry of the known forward/reverse split ratio table
type splitRatio struct {
	numerator   int
	denominator int
}

// value returns the expected old-mean-price / new-mean-price ratio
func (r splitRatio) value() float64 {
	return float64(r.numerator) / float64(r.denominator)
}

// knownRatios covers the common forward and reverse splits. A forward N:1
// split divides the price by N, so the old/new mean price ratio is N.
var knownRatios = []splitRatio{
	{1, 2}, {1, 3}, {1, 4}, {1, 5}, {1, 10},
	{2, 1}, {3, 1}, {4, 1}, {5, 1}, {10, 1},
}

// ratioTolerance is the relative tolerance band for matching a mean price
// ratio against the table. Wide enough to absorb ordinary price drift
// between the last old-ticker trade and the first new-ticker trade.
const ratioTolerance = 0.15

// Detector infers split events from a security's transaction history.
//
// This is a heuristic classifier, not a certainty: it assumes at most one
// ticker change per identifier and that the first and last seen tickers
// bracket the split. It can misfire on independent ticker renames or ISIN
// reuse. An unmatched ticker change is logged and treated as "no split",
// never as an error.
type Detector struct {
	log zerolog.Logger
}

// NewDetector creates a new split detector
func NewDetector(log zerolog.Logger) *Detector {
	return &Detector{log: log.With().Str("service", "split_detector").Logger()}
}

// Detect inspects the ordered transaction history for one identifier and
// returns a split hypothesis, or nil when no split is evident.
func (d *Detector) Detect(identifier string, txs []domain.Transaction) *domain.StockSplitEvent {
	if len(txs) < 2 {
		return nil
	}

	oldTicker := normalizeTicker(txs[0].Ticker)
	newTicker := normalizeTicker(txs[len(txs)-1].Ticker)
	if oldTicker == newTicker {
		return nil
	}

	var oldPrices, newPrices []float64
	splitDate := txs[len(txs)-1].OperationDate
	for i := range txs {
		t := &txs[i]
		price, _ := t.PricePerUnit.Float64()
		if price <= 0 {
			continue
		}
		switch normalizeTicker(t.Ticker) {
		case oldTicker:
			oldPrices = append(oldPrices, price)
		case newTicker:
			newPrices = append(newPrices, price)
			if t.OperationDate.Before(splitDate) {
				splitDate = t.OperationDate
			}
		}
	}

	if len(oldPrices) == 0 || len(newPrices) == 0 {
		return nil
	}

	oldMean := stat.Mean(oldPrices, nil)
	newMean := stat.Mean(newPrices, nil)
	if newMean <= 0 {
		return nil
	}

	ratio := oldMean / newMean
	for _, known := range knownRatios {
		expected := known.value()
		if relativeDiff(ratio, expected) <= ratioTolerance {
			d.log.Info().
				Str("identifier", identifier).
				Str("old_ticker", oldTicker).
				Str("new_ticker", newTicker).
				Float64("price_ratio", ratio).
				Str("matched", (&domain.StockSplitEvent{RatioNumerator: known.numerator, RatioDenominator: known.denominator}).Ratio()).
				Msg("Split detected")

			return &domain.StockSplitEvent{
				Identifier:       identifier,
				SplitDate:        splitDate,
				RatioNumerator:   known.numerator,
				RatioDenominator: known.denominator,
				OldTicker:        oldTicker,
				NewTicker:        newTicker,
			}
		}
	}

	d.log.Warn().
		Str("identifier", identifier).
		Str("old_ticker", oldTicker).
		Str("new_ticker", newTicker).
		Float64("price_ratio", ratio).
		Msg("Ticker change without a matching split ratio, not recording")

	return nil
}

func normalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

func relativeDiff(actual, expected float64) float64 {
	diff := actual - expected
	if diff < 0 {
		diff = -diff
	}
	return diff / expected
}
