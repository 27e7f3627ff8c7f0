package portfolio

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AxelFooley/trackfolio/internal/domain"
	"github.com/AxelFooley/trackfolio/internal/modules/splits"
)

type fakeTransactionSource struct {
	histories map[string][]domain.Transaction
}

func (s *fakeTransactionSource) GetByIdentifier(identifier string) ([]domain.Transaction, error) {
	return s.histories[identifier], nil
}

func (s *fakeTransactionSource) DistinctIdentifiers() ([]string, error) {
	var identifiers []string
	for id := range s.histories {
		identifiers = append(identifiers, id)
	}
	return identifiers, nil
}

type fakeSplitStore struct {
	events []domain.StockSplitEvent
}

func (s *fakeSplitStore) InsertIfAbsent(event domain.StockSplitEvent) (bool, error) {
	for _, e := range s.events {
		if e.Identifier == event.Identifier && e.SplitDate.Equal(event.SplitDate) {
			return false, nil
		}
	}
	s.events = append(s.events, event)
	return true, nil
}

func managerTx(date, ticker string, txType domain.TransactionType, qty, price string) domain.Transaction {
	day, _ := time.Parse("2006-01-02", date)
	q, _ := decimal.NewFromString(qty)
	p, _ := decimal.NewFromString(price)
	return domain.Transaction{
		OperationDate: day,
		Type:          txType,
		Ticker:        ticker,
		Description:   "Test holding",
		Quantity:      q,
		PricePerUnit:  p,
		Currency:      "USD",
	}
}

func newTestManager(t *testing.T, histories map[string][]domain.Transaction) (*Manager, *PositionRepository, *fakeSplitStore) {
	db := setupPositionDB(t)
	t.Cleanup(func() { db.Close() })

	positions := NewPositionRepository(db, zerolog.Nop())
	splitStore := &fakeSplitStore{}
	manager := NewManager(
		&fakeTransactionSource{histories: histories},
		positions,
		splitStore,
		splits.NewDetector(zerolog.Nop()),
		zerolog.Nop(),
	)
	return manager, positions, splitStore
}

func TestRecalculatePosition(t *testing.T) {
	manager, _, _ := newTestManager(t, map[string][]domain.Transaction{
		"US0378331005": {
			managerTx("2024-01-10", "AAPL", domain.TransactionBuy, "10", "100"),
			managerTx("2024-02-10", "AAPL", domain.TransactionBuy, "10", "120"),
		},
	})

	position, err := manager.RecalculatePosition("US0378331005")
	require.NoError(t, err)
	require.NotNil(t, position)

	assert.True(t, position.Quantity.Equal(decimal.NewFromInt(20)))
	assert.True(t, position.CostBasis.Equal(decimal.NewFromInt(2200)))
	assert.True(t, position.AvgCost.Equal(decimal.NewFromInt(110)))
	assert.Equal(t, "AAPL", position.Ticker)
	assert.Equal(t, domain.AssetClassStock, position.AssetClass)
}

func TestRecalculatePositionIsIdempotent(t *testing.T) {
	manager, positions, _ := newTestManager(t, map[string][]domain.Transaction{
		"US0378331005": {
			managerTx("2024-01-10", "AAPL", domain.TransactionBuy, "10", "100"),
		},
	})

	first, err := manager.RecalculatePosition("US0378331005")
	require.NoError(t, err)
	second, err := manager.RecalculatePosition("US0378331005")
	require.NoError(t, err)

	assert.True(t, first.Quantity.Equal(second.Quantity))
	assert.True(t, first.CostBasis.Equal(second.CostBasis))

	count, err := positions.GetCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRecalculateDeletesClosedPosition(t *testing.T) {
	histories := map[string][]domain.Transaction{
		"US0378331005": {
			managerTx("2024-01-10", "AAPL", domain.TransactionBuy, "10", "100"),
		},
	}
	manager, positions, _ := newTestManager(t, histories)

	_, err := manager.RecalculatePosition("US0378331005")
	require.NoError(t, err)

	// Selling the whole holding closes the position
	histories["US0378331005"] = append(histories["US0378331005"],
		managerTx("2024-03-10", "AAPL", domain.TransactionSell, "10", "150"))

	position, err := manager.RecalculatePosition("US0378331005")
	require.NoError(t, err)
	assert.Nil(t, position)

	stored, err := positions.GetByIdentifier("US0378331005")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestRecalculateDeletesWhenHistoryEmpty(t *testing.T) {
	manager, positions, _ := newTestManager(t, map[string][]domain.Transaction{})

	require.NoError(t, positions.Upsert(testPosition("US0378331005", "AAPL")))

	position, err := manager.RecalculatePosition("US0378331005")
	require.NoError(t, err)
	assert.Nil(t, position)

	stored, err := positions.GetByIdentifier("US0378331005")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestRecalculateUsesLatestTicker(t *testing.T) {
	manager, _, _ := newTestManager(t, map[string][]domain.Transaction{
		"US000TEST001": {
			managerTx("2024-01-10", "ACME", domain.TransactionBuy, "10", "200"),
			managerTx("2024-03-10", "ACME2", domain.TransactionBuy, "10", "100"),
		},
	})

	position, err := manager.RecalculatePosition("US000TEST001")
	require.NoError(t, err)
	require.NotNil(t, position)
	assert.Equal(t, "ACME2", position.Ticker)
}

func TestRecalculateAll(t *testing.T) {
	manager, positions, _ := newTestManager(t, map[string][]domain.Transaction{
		"US0378331005": {
			managerTx("2024-01-10", "AAPL", domain.TransactionBuy, "10", "100"),
		},
		"US5949181045": {
			managerTx("2024-01-10", "MSFT", domain.TransactionBuy, "5", "300"),
		},
		"US000CLOSED1": {
			managerTx("2024-01-10", "XYZ", domain.TransactionBuy, "10", "50"),
			managerTx("2024-02-10", "XYZ", domain.TransactionSell, "10", "60"),
		},
	})

	summary, err := manager.RecalculateAll()
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 2, summary.LivePositions)
	assert.Empty(t, summary.Failed)

	count, err := positions.GetCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDetectAndRecordSplits(t *testing.T) {
	manager, _, splitStore := newTestManager(t, map[string][]domain.Transaction{
		"US000TEST001": {
			managerTx("2024-01-10", "ACME", domain.TransactionBuy, "10", "200"),
			managerTx("2024-03-10", "ACME2", domain.TransactionBuy, "20", "100"),
		},
		"US0378331005": {
			managerTx("2024-01-10", "AAPL", domain.TransactionBuy, "10", "100"),
		},
	})

	recorded, err := manager.DetectAndRecordSplits()
	require.NoError(t, err)
	assert.Equal(t, 1, recorded)
	require.Len(t, splitStore.events, 1)
	assert.Equal(t, "2:1", splitStore.events[0].Ratio())

	// Running again records nothing new
	recorded, err = manager.DetectAndRecordSplits()
	require.NoError(t, err)
	assert.Equal(t, 0, recorded)
}
