package splits

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/AxelFooley/trackfolio/internal/domain"
)

const splitColumns = `id, identifier, split_date, ratio_numerator, ratio_denominator,
	old_ticker, new_ticker, created_at`

// SplitRepository handles stock split event database operations
type SplitRepository struct {
	portfolioDB *sql.DB
	log         zerolog.Logger
}

// NewSplitRepository creates a new split repository
func NewSplitRepository(portfolioDB *sql.DB, log zerolog.Logger) *SplitRepository {
	return &SplitRepository{
		portfolioDB: portfolioDB,
		log:         log.With().Str("repo", "split").Logger(),
	}
}

// InsertIfAbsent records a split event unless one already exists for the
// same (identifier, split date). Returns true when a new row was inserted.
// Re-recording an already-detected split is a no-op.
func (r *SplitRepository) InsertIfAbsent(event domain.StockSplitEvent) (bool, error) {
	query := `
		INSERT OR IGNORE INTO stock_split_events
		(identifier, split_date, ratio_numerator, ratio_denominator,
		 old_ticker, new_ticker, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.portfolioDB.Exec(query,
		event.Identifier,
		event.SplitDate.Unix(),
		event.RatioNumerator,
		event.RatioDenominator,
		event.OldTicker,
		event.NewTicker,
		time.Now().Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert split event: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if inserted > 0 {
		r.log.Info().
			Str("identifier", event.Identifier).
			Str("ratio", event.Ratio()).
			Str("old_ticker", event.OldTicker).
			Str("new_ticker", event.NewTicker).
			Msg("Split event recorded")
	}

	return inserted > 0, nil
}

// GetByIdentifier returns all recorded splits for one identifier in date order
func (r *SplitRepository) GetByIdentifier(identifier string) ([]domain.StockSplitEvent, error) {
	query := "SELECT " + splitColumns + " FROM stock_split_events WHERE identifier = ? ORDER BY split_date ASC"
	return r.query(query, identifier)
}

// GetAll returns all recorded split events in date order
func (r *SplitRepository) GetAll() ([]domain.StockSplitEvent, error) {
	query := "SELECT " + splitColumns + " FROM stock_split_events ORDER BY split_date ASC"
	return r.query(query)
}

func (r *SplitRepository) query(query string, args ...interface{}) ([]domain.StockSplitEvent, error) {
	rows, err := r.portfolioDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query split events: %w", err)
	}
	defer rows.Close()

	var events []domain.StockSplitEvent
	for rows.Next() {
		var e domain.StockSplitEvent
		var splitDate, createdAt int64
		if err := rows.Scan(
			&e.ID,
			&e.Identifier,
			&splitDate,
			&e.RatioNumerator,
			&e.RatioDenominator,
			&e.OldTicker,
			&e.NewTicker,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan split event: %w", err)
		}
		e.SplitDate = time.Unix(splitDate, 0).UTC()
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating split events: %w", err)
	}

	return events, nil
}
