package portfolio

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AxelFooley/trackfolio/internal/domain"
	"github.com/AxelFooley/trackfolio/internal/modules/finance"
	"github.com/AxelFooley/trackfolio/internal/modules/splits"
)

// TransactionSource provides ordered transaction history from the ledger.
// Implemented by ledger.TransactionRepository.
type TransactionSource interface {
	GetByIdentifier(identifier string) ([]domain.Transaction, error)
	DistinctIdentifiers() ([]string, error)
}

// PositionStore persists derived positions.
// Implemented by PositionRepository.
type PositionStore interface {
	Upsert(position domain.Position) error
	Delete(identifier string) error
	GetCount() (int, error)
}

// SplitStore persists detected split events.
// Implemented by splits.SplitRepository.
type SplitStore interface {
	InsertIfAbsent(event domain.StockSplitEvent) (bool, error)
}

// Manager orchestrates ledger replay per security identifier. Replay for the
// same identifier is serialized through a per-identifier lock; replay across
// different identifiers runs concurrently.
type Manager struct {
	transactions TransactionSource
	positions    PositionStore
	splitStore   SplitStore
	detector     *splits.Detector
	log          zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a new position manager
func NewManager(
	transactions TransactionSource,
	positions PositionStore,
	splitStore SplitStore,
	detector *splits.Detector,
	log zerolog.Logger,
) *Manager {
	return &Manager{
		transactions: transactions,
		positions:    positions,
		splitStore:   splitStore,
		detector:     detector,
		log:          log.With().Str("service", "position_manager").Logger(),
		locks:        make(map[string]*sync.Mutex),
	}
}

// identifierLock returns the mutex serializing replay for one identifier
func (m *Manager) identifierLock(identifier string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[identifier]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[identifier] = lock
	}
	return lock
}

// RecalculatePosition replays the full transaction history for one
// identifier and upserts the resulting position, or deletes it when the net
// quantity is zero or the history is empty. Returns the current position, or
// nil when the position is closed or absent.
func (m *Manager) RecalculatePosition(identifier string) (*domain.Position, error) {
	lock := m.identifierLock(identifier)
	lock.Lock()
	defer lock.Unlock()

	txs, err := m.transactions.GetByIdentifier(identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions for %s: %w", identifier, err)
	}

	if len(txs) == 0 {
		if err := m.positions.Delete(identifier); err != nil {
			return nil, fmt.Errorf("failed to delete position %s: %w", identifier, err)
		}
		return nil, nil
	}

	book := finance.Replay(txs)
	if !book.Quantity.IsPositive() {
		// Closed position
		if err := m.positions.Delete(identifier); err != nil {
			return nil, fmt.Errorf("failed to delete closed position %s: %w", identifier, err)
		}
		m.log.Debug().Str("identifier", identifier).Msg("Position closed, deleted")
		return nil, nil
	}

	last := txs[len(txs)-1]
	description := ""
	for i := len(txs) - 1; i >= 0; i-- {
		if txs[i].Description != "" {
			description = txs[i].Description
			break
		}
	}

	position := domain.Position{
		Identifier:       identifier,
		Ticker:           last.Ticker, // supports post-split ticker changes
		Description:      description,
		AssetClass:       ClassifyAssetClass(identifier, last.Ticker, description),
		Quantity:         book.Quantity,
		AvgCost:          book.AvgCost,
		CostBasis:        book.CostBasis,
		Currency:         last.Currency,
		LastRecalculated: time.Now().UTC(),
	}

	if err := m.positions.Upsert(position); err != nil {
		return nil, fmt.Errorf("failed to upsert position %s: %w", identifier, err)
	}

	return &position, nil
}

// RecalculationSummary reports the outcome of a full recalculation pass:
// identifiers that failed are listed alongside the successes, they never
// abort the pass.
type RecalculationSummary struct {
	LivePositions int
	Processed     int
	Failed        []string
}

// RecalculateAll replays every distinct identifier present in the ledger.
// Invoking it twice in a row with no new transactions yields identical
// position state. Work is spread across workers; replay per identifier stays
// serialized through the per-identifier locks.
func (m *Manager) RecalculateAll() (*RecalculationSummary, error) {
	identifiers, err := m.transactions.DistinctIdentifiers()
	if err != nil {
		return nil, fmt.Errorf("failed to list identifiers: %w", err)
	}

	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}

	var (
		wg       sync.WaitGroup
		failedMu sync.Mutex
		failed   []string
	)
	work := make(chan string)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for identifier := range work {
				if _, err := m.RecalculatePosition(identifier); err != nil {
					m.log.Error().Err(err).Str("identifier", identifier).Msg("Recalculation failed, continuing")
					failedMu.Lock()
					failed = append(failed, identifier)
					failedMu.Unlock()
				}
			}
		}()
	}

	for _, identifier := range identifiers {
		work <- identifier
	}
	close(work)
	wg.Wait()

	live, err := m.positions.GetCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count live positions: %w", err)
	}

	m.log.Info().
		Int("identifiers", len(identifiers)).
		Int("live_positions", live).
		Int("failed", len(failed)).
		Msg("Full recalculation completed")

	return &RecalculationSummary{
		LivePositions: live,
		Processed:     len(identifiers),
		Failed:        failed,
	}, nil
}

// DetectAndRecordSplits runs the split detector over every identifier and
// persists newly detected events. Re-detecting an already-recorded split is
// a no-op. Returns the number of newly recorded events.
func (m *Manager) DetectAndRecordSplits() (int, error) {
	identifiers, err := m.transactions.DistinctIdentifiers()
	if err != nil {
		return 0, fmt.Errorf("failed to list identifiers: %w", err)
	}

	recorded := 0
	for _, identifier := range identifiers {
		txs, err := m.transactions.GetByIdentifier(identifier)
		if err != nil {
			m.log.Error().Err(err).Str("identifier", identifier).Msg("Failed to load history for split detection, skipping")
			continue
		}

		event := m.detector.Detect(identifier, txs)
		if event == nil {
			continue
		}

		inserted, err := m.splitStore.InsertIfAbsent(*event)
		if err != nil {
			m.log.Error().Err(err).Str("identifier", identifier).Msg("Failed to record split event, skipping")
			continue
		}
		if inserted {
			recorded++
		}
	}

	return recorded, nil
}
