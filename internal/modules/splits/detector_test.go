package splits

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AxelFooley/trackfolio/internal/domain"
)

func splitTx(date, ticker string, price float64) domain.Transaction {
	day, _ := time.Parse("2006-01-02", date)
	return domain.Transaction{
		OperationDate: day,
		Type:          domain.TransactionBuy,
		Ticker:        ticker,
		Quantity:      decimal.NewFromInt(10),
		PricePerUnit:  decimal.NewFromFloat(price),
		Currency:      "USD",
	}
}

func TestDetectForwardSplit(t *testing.T) {
	d := NewDetector(zerolog.Nop())

	// Price roughly halves across a ticker change: a 2:1 forward split.
	// 2.02 is within the 15% tolerance band around 2.0.
	event := d.Detect("US000TEST001", []domain.Transaction{
		splitTx("2024-01-10", "ACME", 202),
		splitTx("2024-02-10", "ACME", 202),
		splitTx("2024-03-10", "ACME2", 100),
		splitTx("2024-04-10", "ACME2", 100),
	})

	require.NotNil(t, event)
	assert.Equal(t, "US000TEST001", event.Identifier)
	assert.Equal(t, "2:1", event.Ratio())
	assert.Equal(t, "ACME", event.OldTicker)
	assert.Equal(t, "ACME2", event.NewTicker)
	assert.Equal(t, "2024-03-10", event.SplitDate.Format("2006-01-02"))
}

func TestDetectReverseSplit(t *testing.T) {
	d := NewDetector(zerolog.Nop())

	// Price multiplies by ten: a 1:10 reverse split
	event := d.Detect("US000TEST002", []domain.Transaction{
		splitTx("2024-01-10", "PENNY", 1.02),
		splitTx("2024-03-10", "PENNYR", 10.0),
	})

	require.NotNil(t, event)
	assert.Equal(t, "1:10", event.Ratio())
}

func TestDetectNoSplitOutsideTolerance(t *testing.T) {
	d := NewDetector(zerolog.Nop())

	// A 1.5x price ratio matches no known split ratio
	event := d.Detect("US000TEST003", []domain.Transaction{
		splitTx("2024-01-10", "ACME", 150),
		splitTx("2024-03-10", "ACME2", 100),
	})

	assert.Nil(t, event)
}

func TestDetectNoTickerChange(t *testing.T) {
	d := NewDetector(zerolog.Nop())

	// Same ticker throughout, however the price moved
	event := d.Detect("US000TEST004", []domain.Transaction{
		splitTx("2024-01-10", "ACME", 200),
		splitTx("2024-03-10", "ACME", 100),
	})

	assert.Nil(t, event)
}

func TestDetectTickerCaseInsensitive(t *testing.T) {
	d := NewDetector(zerolog.Nop())

	event := d.Detect("US000TEST005", []domain.Transaction{
		splitTx("2024-01-10", "acme", 200),
		splitTx("2024-03-10", "ACME ", 100),
	})

	assert.Nil(t, event)
}

func TestDetectTooFewTransactions(t *testing.T) {
	d := NewDetector(zerolog.Nop())

	assert.Nil(t, d.Detect("US000TEST006", nil))
	assert.Nil(t, d.Detect("US000TEST006", []domain.Transaction{
		splitTx("2024-01-10", "ACME", 200),
	}))
}

func TestDetectIgnoresZeroPrices(t *testing.T) {
	d := NewDetector(zerolog.Nop())

	event := d.Detect("US000TEST007", []domain.Transaction{
		splitTx("2024-01-10", "ACME", 200),
		splitTx("2024-01-20", "ACME", 0),
		splitTx("2024-03-10", "ACME2", 100),
	})

	require.NotNil(t, event)
	assert.Equal(t, "2:1", event.Ratio())
}
