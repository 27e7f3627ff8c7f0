// Package domain contains the core data model shared across modules.
// It has no infrastructure dependencies.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the kind of ledger transaction
type TransactionType string

const (
	TransactionBuy  TransactionType = "buy"
	TransactionSell TransactionType = "sell"
)

// AssetClass is the classification of a held security, resolved once at
// classification time and stored on the position.
type AssetClass string

const (
	AssetClassStock  AssetClass = "stock"
	AssetClassETF    AssetClass = "etf"
	AssetClassCrypto AssetClass = "crypto"
)

// CryptoIdentifierPrefix is the identifier namespace used for crypto holdings
// that have no ISIN. Example: "CRYPTO:BTC".
const CryptoIdentifierPrefix = "CRYPTO:"

// Transaction is an immutable, append-only ledger record. It is created by
// import and never mutated; only ever inserted or left absent.
type Transaction struct {
	ID                int64
	Fingerprint       string
	OperationDate     time.Time
	ValueDate         *time.Time
	Type              TransactionType
	ISIN              string // optional; empty when the broker export has none
	Ticker            string
	Description       string
	Quantity          decimal.Decimal
	PricePerUnit      decimal.Decimal
	GrossAmount       decimal.Decimal // in the reporting currency
	GrossAmountNative decimal.Decimal // in the transaction's native currency
	Currency          string
	Fees              decimal.Decimal
	OrderReference    string // broker order id, repeated across partial fills
	CreatedAt         time.Time
}

// Identifier returns the stable key used to group transactions into a
// position: the ISIN when present, otherwise the ticker symbol.
func (t *Transaction) Identifier() string {
	if t.ISIN != "" {
		return strings.ToUpper(strings.TrimSpace(t.ISIN))
	}
	return strings.ToUpper(strings.TrimSpace(t.Ticker))
}

// Validate checks a transaction before it enters the ledger
func (t *Transaction) Validate() error {
	if t.Type != TransactionBuy && t.Type != TransactionSell {
		return fmt.Errorf("invalid transaction type: %q", t.Type)
	}
	if strings.TrimSpace(t.Ticker) == "" {
		return fmt.Errorf("transaction ticker is required")
	}
	if t.Quantity.IsNegative() {
		return fmt.Errorf("transaction quantity must be >= 0, got %s", t.Quantity)
	}
	if t.OperationDate.IsZero() {
		return fmt.Errorf("transaction operation date is required")
	}
	return nil
}

// Position is the derived holding for one security identifier. It is always
// fully reproducible by replaying the identifier's transactions in
// operation-date order; there is no incremental mutation path.
type Position struct {
	Identifier       string // ISIN, or ticker fallback when no ISIN is known
	Ticker           string // ticker of the most recent transaction (may change after a split)
	Description      string
	AssetClass       AssetClass
	Quantity         decimal.Decimal
	AvgCost          decimal.Decimal
	CostBasis        decimal.Decimal
	Currency         string
	LastRecalculated time.Time
}

// StockSplitEvent records a detected corporate action. Unique per
// (identifier, split date); created only by the split detector.
type StockSplitEvent struct {
	ID               int64
	Identifier       string
	SplitDate        time.Time
	RatioNumerator   int
	RatioDenominator int
	OldTicker        string
	NewTicker        string
	CreatedAt        time.Time
}

// Ratio returns the split ratio as "N:D"
func (s *StockSplitEvent) Ratio() string {
	return fmt.Sprintf("%d:%d", s.RatioNumerator, s.RatioDenominator)
}

// CashFlow is a dated signed cash flow used by the IRR calculation.
// Negative amounts are outflows (purchases and fees), positive amounts are
// inflows (the terminal valuation flow).
type CashFlow struct {
	Date   time.Time
	Amount float64
}
