// Package portfolio owns derived position state: classification, storage,
// and the ledger-replay manager that keeps positions consistent with the
// transaction ledger.
package portfolio

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/AxelFooley/trackfolio/internal/domain"
)

const positionColumns = `identifier, ticker, description, asset_class, quantity,
	avg_cost, cost_basis, currency, last_recalculated`

// PositionRepository handles position database operations
type PositionRepository struct {
	portfolioDB *sql.DB
	log         zerolog.Logger
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(portfolioDB *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		portfolioDB: portfolioDB,
		log:         log.With().Str("repo", "position").Logger(),
	}
}

// GetAll returns all positions
func (r *PositionRepository) GetAll() ([]domain.Position, error) {
	query := "SELECT " + positionColumns + " FROM positions ORDER BY identifier"

	rows, err := r.portfolioDB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, pos)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

// GetByIdentifier returns a position by its security identifier, or nil when
// no position exists.
func (r *PositionRepository) GetByIdentifier(identifier string) (*domain.Position, error) {
	identifier = strings.ToUpper(strings.TrimSpace(identifier))

	query := "SELECT " + positionColumns + " FROM positions WHERE identifier = ?"
	rows, err := r.portfolioDB.Query(query, identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to query position %s: %w", identifier, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error reading position %s: %w", identifier, err)
		}
		return nil, nil
	}

	pos, err := scanPosition(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan position: %w", err)
	}
	return &pos, nil
}

// GetCount returns the total number of positions
func (r *PositionRepository) GetCount() (int, error) {
	var count int
	if err := r.portfolioDB.QueryRow("SELECT COUNT(*) FROM positions").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get position count: %w", err)
	}
	return count, nil
}

// Upsert inserts or updates a position
func (r *PositionRepository) Upsert(position domain.Position) error {
	if position.Identifier == "" {
		return errors.New("identifier is required for position upsert")
	}
	position.Identifier = strings.ToUpper(strings.TrimSpace(position.Identifier))
	position.Ticker = strings.ToUpper(strings.TrimSpace(position.Ticker))

	lastRecalculated := position.LastRecalculated
	if lastRecalculated.IsZero() {
		lastRecalculated = time.Now()
	}

	query := `
		INSERT OR REPLACE INTO positions
		(identifier, ticker, description, asset_class, quantity,
		 avg_cost, cost_basis, currency, last_recalculated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.portfolioDB.Exec(query,
		position.Identifier,
		position.Ticker,
		position.Description,
		string(position.AssetClass),
		position.Quantity.String(),
		position.AvgCost.String(),
		position.CostBasis.String(),
		position.Currency,
		lastRecalculated.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert position: %w", err)
	}

	r.log.Debug().
		Str("identifier", position.Identifier).
		Str("ticker", position.Ticker).
		Str("quantity", position.Quantity.String()).
		Msg("Position upserted")
	return nil
}

// Delete removes a position by identifier. Deleting an absent position is
// not an error.
func (r *PositionRepository) Delete(identifier string) error {
	identifier = strings.ToUpper(strings.TrimSpace(identifier))

	result, err := r.portfolioDB.Exec("DELETE FROM positions WHERE identifier = ?", identifier)
	if err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}

	if rowsAffected, _ := result.RowsAffected(); rowsAffected > 0 {
		r.log.Info().Str("identifier", identifier).Msg("Position deleted")
	}
	return nil
}

// scanPosition scans a database row into a domain.Position
func scanPosition(rows *sql.Rows) (domain.Position, error) {
	var pos domain.Position
	var description sql.NullString
	var assetClass string
	var quantity, avgCost, costBasis string
	var lastRecalculated int64

	err := rows.Scan(
		&pos.Identifier,
		&pos.Ticker,
		&description,
		&assetClass,
		&quantity,
		&avgCost,
		&costBasis,
		&pos.Currency,
		&lastRecalculated,
	)
	if err != nil {
		return pos, err
	}

	pos.Description = description.String
	pos.AssetClass = domain.AssetClass(assetClass)
	pos.LastRecalculated = time.Unix(lastRecalculated, 0).UTC()

	for _, field := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&pos.Quantity, quantity},
		{&pos.AvgCost, avgCost},
		{&pos.CostBasis, costBasis},
	} {
		d, err := decimal.NewFromString(field.src)
		if err != nil {
			return pos, fmt.Errorf("malformed decimal %q: %w", field.src, err)
		}
		*field.dst = d
	}

	if pos.Currency == "" {
		pos.Currency = "EUR"
	}

	return pos, nil
}
