package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AxelFooley/trackfolio/internal/domain"
)

// FingerprintStore is the persisted-fingerprint lookup needed by the
// deduplication check. Implemented by TransactionRepository.
type FingerprintStore interface {
	ExistingFingerprints(fingerprints []string) (map[string]bool, error)
}

// DedupService assigns deterministic fingerprints to incoming transactions
// and filters duplicates against both the current batch and the persisted
// ledger. The check is pure: persisting accepted transactions is the
// caller's responsibility.
type DedupService struct {
	store FingerprintStore
	log   zerolog.Logger
}

// NewDedupService creates a new deduplication service
func NewDedupService(store FingerprintStore, log zerolog.Logger) *DedupService {
	return &DedupService{
		store: store,
		log:   log.With().Str("service", "dedup").Logger(),
	}
}

// DedupResult is the outcome of a duplicate check on one import batch
type DedupResult struct {
	BatchID    string
	New        []domain.Transaction
	Duplicates []domain.Transaction
}

// Fingerprint computes the content fingerprint for a transaction: a SHA-256
// hash over the canonical string of operation date, upper-cased ticker,
// quantity and price at fixed 8-decimal precision, and the order reference.
// Quantity and price participate so that legitimate partial fills sharing an
// order reference do not collapse into one record.
func Fingerprint(t *domain.Transaction) string {
	canonical := fmt.Sprintf("%s|%s|%s|%s|%s",
		t.OperationDate.UTC().Format("2006-01-02"),
		strings.ToUpper(strings.TrimSpace(t.Ticker)),
		t.Quantity.StringFixed(8),
		t.PricePerUnit.StringFixed(8),
		t.OrderReference,
	)

	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// CheckDuplicates fingerprints the batch and partitions it into transactions
// that are new to the ledger and duplicates. Within the batch the first
// occurrence of a fingerprint wins; the rest are duplicates. Surviving
// fingerprints are then checked against the persisted ledger.
//
// Returned transactions carry their fingerprint populated.
func (s *DedupService) CheckDuplicates(batch []domain.Transaction) (*DedupResult, error) {
	result := &DedupResult{BatchID: uuid.New().String()}

	seen := make(map[string]bool, len(batch))
	var inBatchUnique []domain.Transaction
	var fingerprints []string

	for _, t := range batch {
		t.Fingerprint = Fingerprint(&t)
		if seen[t.Fingerprint] {
			s.log.Debug().
				Str("batch_id", result.BatchID).
				Str("fingerprint", t.Fingerprint).
				Str("ticker", t.Ticker).
				Msg("In-batch duplicate")
			result.Duplicates = append(result.Duplicates, t)
			continue
		}
		seen[t.Fingerprint] = true
		inBatchUnique = append(inBatchUnique, t)
		fingerprints = append(fingerprints, t.Fingerprint)
	}

	existing, err := s.store.ExistingFingerprints(fingerprints)
	if err != nil {
		return nil, fmt.Errorf("failed to check persisted fingerprints: %w", err)
	}

	for _, t := range inBatchUnique {
		if existing[t.Fingerprint] {
			s.log.Debug().
				Str("batch_id", result.BatchID).
				Str("fingerprint", t.Fingerprint).
				Str("ticker", t.Ticker).
				Msg("Already persisted, skipping")
			result.Duplicates = append(result.Duplicates, t)
			continue
		}
		result.New = append(result.New, t)
	}

	s.log.Info().
		Str("batch_id", result.BatchID).
		Int("batch_size", len(batch)).
		Int("new", len(result.New)).
		Int("duplicates", len(result.Duplicates)).
		Msg("Duplicate check completed")

	return result, nil
}
