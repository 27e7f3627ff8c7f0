package ledger

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/AxelFooley/trackfolio/internal/domain"
)

// TransactionStore persists accepted transactions.
// Implemented by TransactionRepository.
type TransactionStore interface {
	InsertBatch(txs []domain.Transaction) error
}

// Recalculator triggers position replay after new transactions land.
// Implemented by portfolio.Manager.
type Recalculator interface {
	RecalculatePosition(identifier string) (*domain.Position, error)
}

// ImportService runs the import pipeline: deduplicate, persist the accepted
// transactions, and replay the affected positions.
type ImportService struct {
	dedup  *DedupService
	store  TransactionStore
	recalc Recalculator
	log    zerolog.Logger
}

// NewImportService creates a new import service
func NewImportService(dedup *DedupService, store TransactionStore, recalc Recalculator, log zerolog.Logger) *ImportService {
	return &ImportService{
		dedup:  dedup,
		store:  store,
		recalc: recalc,
		log:    log.With().Str("service", "import").Logger(),
	}
}

// ImportResult reports what one import batch did
type ImportResult struct {
	BatchID        string   `json:"batch_id"`
	Imported       int      `json:"imported"`
	Duplicates     int      `json:"duplicates"`
	Recalculated   []string `json:"recalculated"`
	RecalcFailed   []string `json:"recalc_failed,omitempty"`
	InvalidSkipped int      `json:"invalid_skipped,omitempty"`
}

// Import deduplicates and persists a batch, then replays every identifier
// the accepted transactions touch. Malformed records are rejected
// per-record and never reach the ledger; a recalculation failure for one
// identifier is reported but does not undo the import.
func (s *ImportService) Import(batch []domain.Transaction) (*ImportResult, error) {
	valid := make([]domain.Transaction, 0, len(batch))
	invalid := 0
	for i := range batch {
		if err := batch[i].Validate(); err != nil {
			s.log.Warn().Err(err).Int("index", i).Msg("Rejecting malformed transaction")
			invalid++
			continue
		}
		valid = append(valid, batch[i])
	}

	checked, err := s.dedup.CheckDuplicates(valid)
	if err != nil {
		return nil, fmt.Errorf("duplicate check failed: %w", err)
	}

	result := &ImportResult{
		BatchID:        checked.BatchID,
		Duplicates:     len(checked.Duplicates),
		InvalidSkipped: invalid,
	}

	if len(checked.New) == 0 {
		return result, nil
	}

	if err := s.store.InsertBatch(checked.New); err != nil {
		return nil, fmt.Errorf("failed to persist transactions: %w", err)
	}
	result.Imported = len(checked.New)

	// Replay each touched identifier once
	touched := make(map[string]bool)
	for i := range checked.New {
		touched[checked.New[i].Identifier()] = true
	}
	for identifier := range touched {
		if _, err := s.recalc.RecalculatePosition(identifier); err != nil {
			s.log.Error().Err(err).Str("identifier", identifier).Msg("Post-import recalculation failed")
			result.RecalcFailed = append(result.RecalcFailed, identifier)
			continue
		}
		result.Recalculated = append(result.Recalculated, identifier)
	}

	s.log.Info().
		Str("batch_id", result.BatchID).
		Int("imported", result.Imported).
		Int("duplicates", result.Duplicates).
		Int("recalculated", len(result.Recalculated)).
		Msg("Import completed")

	return result, nil
}
