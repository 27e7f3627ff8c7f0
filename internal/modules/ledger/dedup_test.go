package ledger

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AxelFooley/trackfolio/internal/domain"
)

type fakeFingerprintStore struct {
	persisted map[string]bool
}

func (s *fakeFingerprintStore) ExistingFingerprints(fingerprints []string) (map[string]bool, error) {
	result := make(map[string]bool)
	for _, fp := range fingerprints {
		if s.persisted[fp] {
			result[fp] = true
		}
	}
	return result, nil
}

func testTx(date, ticker, qty, price, orderRef string) domain.Transaction {
	day, _ := time.Parse("2006-01-02", date)
	q, _ := decimal.NewFromString(qty)
	p, _ := decimal.NewFromString(price)
	return domain.Transaction{
		OperationDate:  day,
		Type:           domain.TransactionBuy,
		Ticker:         ticker,
		Quantity:       q,
		PricePerUnit:   p,
		Currency:       "USD",
		OrderReference: orderRef,
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	a := testTx("2024-01-10", "AAPL", "10", "100", "ORD-1")
	b := testTx("2024-01-10", "AAPL", "10", "100", "ORD-1")

	assert.Equal(t, Fingerprint(&a), Fingerprint(&b))
	assert.Len(t, Fingerprint(&a), 64)
}

func TestFingerprintNormalizesTicker(t *testing.T) {
	a := testTx("2024-01-10", "aapl", "10", "100", "ORD-1")
	b := testTx("2024-01-10", " AAPL ", "10", "100", "ORD-1")

	assert.Equal(t, Fingerprint(&a), Fingerprint(&b))
}

func TestFingerprintDistinguishesPartialFills(t *testing.T) {
	// Two fills of the same order differ in quantity, so they must not
	// collapse into one fingerprint.
	a := testTx("2024-01-10", "AAPL", "6", "100", "ORD-1")
	b := testTx("2024-01-10", "AAPL", "4", "100", "ORD-1")

	assert.NotEqual(t, Fingerprint(&a), Fingerprint(&b))
}

func TestFingerprintSensitiveToEachField(t *testing.T) {
	base := testTx("2024-01-10", "AAPL", "10", "100", "ORD-1")

	variants := []domain.Transaction{
		testTx("2024-01-11", "AAPL", "10", "100", "ORD-1"),
		testTx("2024-01-10", "MSFT", "10", "100", "ORD-1"),
		testTx("2024-01-10", "AAPL", "11", "100", "ORD-1"),
		testTx("2024-01-10", "AAPL", "10", "101", "ORD-1"),
		testTx("2024-01-10", "AAPL", "10", "100", "ORD-2"),
	}

	for i := range variants {
		assert.NotEqual(t, Fingerprint(&base), Fingerprint(&variants[i]), "variant %d", i)
	}
}

func TestCheckDuplicatesInBatch(t *testing.T) {
	svc := NewDedupService(&fakeFingerprintStore{}, zerolog.Nop())

	batch := []domain.Transaction{
		testTx("2024-01-10", "AAPL", "10", "100", "ORD-1"),
		testTx("2024-01-10", "AAPL", "10", "100", "ORD-1"), // exact repeat
		testTx("2024-01-10", "MSFT", "5", "300", "ORD-2"),
	}

	result, err := svc.CheckDuplicates(batch)
	require.NoError(t, err)

	assert.NotEmpty(t, result.BatchID)
	assert.Len(t, result.New, 2)
	assert.Len(t, result.Duplicates, 1)
	assert.Equal(t, "AAPL", result.Duplicates[0].Ticker)
}

func TestCheckDuplicatesAgainstLedger(t *testing.T) {
	existing := testTx("2024-01-10", "AAPL", "10", "100", "ORD-1")
	store := &fakeFingerprintStore{persisted: map[string]bool{Fingerprint(&existing): true}}
	svc := NewDedupService(store, zerolog.Nop())

	batch := []domain.Transaction{
		testTx("2024-01-10", "AAPL", "10", "100", "ORD-1"),
		testTx("2024-01-11", "AAPL", "10", "102", "ORD-3"),
	}

	result, err := svc.CheckDuplicates(batch)
	require.NoError(t, err)

	require.Len(t, result.New, 1)
	assert.Equal(t, "ORD-3", result.New[0].OrderReference)
	assert.Len(t, result.Duplicates, 1)
}

func TestCheckDuplicatesPopulatesFingerprints(t *testing.T) {
	svc := NewDedupService(&fakeFingerprintStore{}, zerolog.Nop())

	result, err := svc.CheckDuplicates([]domain.Transaction{
		testTx("2024-01-10", "AAPL", "10", "100", "ORD-1"),
	})
	require.NoError(t, err)
	require.Len(t, result.New, 1)
	assert.NotEmpty(t, result.New[0].Fingerprint)
}

func TestCheckDuplicatesEmptyBatch(t *testing.T) {
	svc := NewDedupService(&fakeFingerprintStore{}, zerolog.Nop())

	result, err := svc.CheckDuplicates(nil)
	require.NoError(t, err)
	assert.Empty(t, result.New)
	assert.Empty(t, result.Duplicates)
}
