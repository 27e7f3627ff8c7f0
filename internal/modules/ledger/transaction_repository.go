// Package ledger owns the immutable transaction ledger: persistence of
// imported transactions and duplicate detection for incoming batches.
package ledger

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/AxelFooley/trackfolio/internal/database"
	"github.com/AxelFooley/trackfolio/internal/domain"
)

// transactionColumns is the column list for the transactions table.
// Avoids SELECT * which breaks silently when the schema changes.
const transactionColumns = `id, fingerprint, operation_date, value_date, type, isin, ticker,
	description, quantity, price_per_unit, gross_amount, gross_amount_native,
	currency, fees, order_reference, created_at`

// TransactionRepository handles ledger database operations
type TransactionRepository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(ledgerDB *sql.DB, log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "transaction").Logger(),
	}
}

// InsertBatch appends transactions to the ledger within a single database
// transaction. Records are validated first; the ledger never accepts a
// malformed row.
func (r *TransactionRepository) InsertBatch(txs []domain.Transaction) error {
	for i := range txs {
		if err := txs[i].Validate(); err != nil {
			return fmt.Errorf("invalid transaction at index %d: %w", i, err)
		}
		if txs[i].Fingerprint == "" {
			return fmt.Errorf("transaction at index %d has no fingerprint", i)
		}
	}

	now := time.Now().Unix()

	return database.WithTransaction(r.ledgerDB, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO transactions
			(fingerprint, operation_date, value_date, type, isin, ticker, description,
			 quantity, price_per_unit, gross_amount, gross_amount_native,
			 currency, fees, order_reference, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, t := range txs {
			var valueDate sql.NullInt64
			if t.ValueDate != nil {
				valueDate = sql.NullInt64{Int64: t.ValueDate.Unix(), Valid: true}
			}

			_, err := stmt.Exec(
				t.Fingerprint,
				t.OperationDate.Unix(),
				valueDate,
				string(t.Type),
				nullString(t.ISIN),
				strings.ToUpper(strings.TrimSpace(t.Ticker)),
				nullString(t.Description),
				t.Quantity.String(),
				t.PricePerUnit.String(),
				t.GrossAmount.String(),
				t.GrossAmountNative.String(),
				strings.ToUpper(t.Currency),
				t.Fees.String(),
				nullString(t.OrderReference),
				now,
			)
			if err != nil {
				return fmt.Errorf("failed to insert transaction %s: %w", t.Fingerprint, err)
			}
		}

		return nil
	})
}

// GetByIdentifier returns all transactions for a security identifier in
// operation-date order. The identifier matches the ISIN when one was
// imported, otherwise the ticker symbol.
func (r *TransactionRepository) GetByIdentifier(identifier string) ([]domain.Transaction, error) {
	identifier = strings.ToUpper(strings.TrimSpace(identifier))

	query := "SELECT " + transactionColumns + ` FROM transactions
		WHERE UPPER(COALESCE(NULLIF(isin, ''), ticker)) = ?
		ORDER BY operation_date ASC, id ASC`

	rows, err := r.ledgerDB.Query(query, identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions for %s: %w", identifier, err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return txs, nil
}

// DistinctIdentifiers returns every security identifier present in the ledger
func (r *TransactionRepository) DistinctIdentifiers() ([]string, error) {
	query := `SELECT DISTINCT UPPER(COALESCE(NULLIF(isin, ''), ticker)) AS identifier
		FROM transactions ORDER BY identifier`

	rows, err := r.ledgerDB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct identifiers: %w", err)
	}
	defer rows.Close()

	var identifiers []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan identifier: %w", err)
		}
		identifiers = append(identifiers, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating identifiers: %w", err)
	}

	return identifiers, nil
}

// ExistingFingerprints returns the subset of the given fingerprints that are
// already persisted in the ledger.
func (r *TransactionRepository) ExistingFingerprints(fingerprints []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(fingerprints) == 0 {
		return existing, nil
	}

	// Chunk the IN clause to stay well under SQLite's bound-parameter limit
	const chunkSize = 500
	for start := 0; start < len(fingerprints); start += chunkSize {
		end := start + chunkSize
		if end > len(fingerprints) {
			end = len(fingerprints)
		}
		chunk := fingerprints[start:end]

		placeholders := strings.Repeat("?,", len(chunk))
		placeholders = placeholders[:len(placeholders)-1]

		args := make([]interface{}, len(chunk))
		for i, fp := range chunk {
			args[i] = fp
		}

		query := "SELECT fingerprint FROM transactions WHERE fingerprint IN (" + placeholders + ")"
		rows, err := r.ledgerDB.Query(query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query fingerprints: %w", err)
		}

		for rows.Next() {
			var fp string
			if err := rows.Scan(&fp); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
			}
			existing[fp] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("error iterating fingerprints: %w", err)
		}
		rows.Close()
	}

	return existing, nil
}

// Count returns the total number of ledger transactions
func (r *TransactionRepository) Count() (int, error) {
	var count int
	if err := r.ledgerDB.QueryRow("SELECT COUNT(*) FROM transactions").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// scanTransaction scans a database row into a domain.Transaction
func scanTransaction(rows *sql.Rows) (domain.Transaction, error) {
	var t domain.Transaction
	var operationDate int64
	var valueDate sql.NullInt64
	var txType string
	var isin, description, orderRef sql.NullString
	var quantity, price, gross, grossNative, fees string
	var createdAt int64

	err := rows.Scan(
		&t.ID,
		&t.Fingerprint,
		&operationDate,
		&valueDate,
		&txType,
		&isin,
		&t.Ticker,
		&description,
		&quantity,
		&price,
		&gross,
		&grossNative,
		&t.Currency,
		&fees,
		&orderRef,
		&createdAt,
	)
	if err != nil {
		return t, err
	}

	t.OperationDate = time.Unix(operationDate, 0).UTC()
	if valueDate.Valid {
		vd := time.Unix(valueDate.Int64, 0).UTC()
		t.ValueDate = &vd
	}
	t.Type = domain.TransactionType(txType)
	t.ISIN = isin.String
	t.Description = description.String
	t.OrderReference = orderRef.String
	t.CreatedAt = time.Unix(createdAt, 0).UTC()

	for _, field := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&t.Quantity, quantity},
		{&t.PricePerUnit, price},
		{&t.GrossAmount, gross},
		{&t.GrossAmountNative, grossNative},
		{&t.Fees, fees},
	} {
		d, err := decimal.NewFromString(field.src)
		if err != nil {
			return t, fmt.Errorf("malformed decimal %q: %w", field.src, err)
		}
		*field.dst = d
	}

	return t, nil
}

func nullString(val string) sql.NullString {
	if val == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: val, Valid: true}
}
