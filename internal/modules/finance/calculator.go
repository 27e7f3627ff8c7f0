// Package finance contains pure, stateless financial calculations operating
// on ordered transaction lists and decimal-precision values. None of these
// functions touch shared state; they are safe to call from any goroutine.
//
// Numerical degeneracy (zero cost basis, non-convergent root finding,
// non-positive time spans) is reported as absence of a result via an ok
// boolean, never as an error. Callers must treat "no metric available" as an
// expected state.
package finance

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AxelFooley/trackfolio/internal/domain"
)

const (
	daysPerYear = 365.25

	// XIRR root-finder parameters
	irrInitialGuess  = 0.10
	irrMaxIterations = 100
	irrTolerance     = 1e-6

	// Results outside this band indicate a malformed cash-flow series
	// (for example near-zero time spans) rather than a real return.
	irrMinResult = -0.99
	irrMaxResult = 99.0
)

// Book is the result of replaying a transaction history: the open quantity,
// weighted-average cost per unit, and total cost basis.
type Book struct {
	Quantity  decimal.Decimal
	AvgCost   decimal.Decimal
	CostBasis decimal.Decimal
}

// Replay performs the single forward pass over a transaction history, in the
// order given. Buys add (gross amount + fees) to the cost basis and quantity
// to the share count. Sells reduce the cost basis by the average cost at the
// time of the sell times the sold quantity, never retroactively. Quantity and
// cost basis are floored at zero at every step.
func Replay(txs []domain.Transaction) Book {
	quantity := decimal.Zero
	costBasis := decimal.Zero

	for i := range txs {
		t := &txs[i]
		gross := t.GrossAmount
		if gross.IsZero() {
			gross = t.Quantity.Mul(t.PricePerUnit)
		}

		switch t.Type {
		case domain.TransactionBuy:
			costBasis = costBasis.Add(gross).Add(t.Fees)
			quantity = quantity.Add(t.Quantity)

		case domain.TransactionSell:
			if quantity.IsPositive() {
				avgCost := costBasis.Div(quantity)
				costBasis = costBasis.Sub(avgCost.Mul(t.Quantity))
			}
			quantity = quantity.Sub(t.Quantity)
		}

		if quantity.IsNegative() {
			quantity = decimal.Zero
		}
		if costBasis.IsNegative() {
			costBasis = decimal.Zero
		}
	}

	avgCost := decimal.Zero
	if quantity.IsPositive() {
		avgCost = costBasis.Div(quantity)
	}

	return Book{Quantity: quantity, AvgCost: avgCost, CostBasis: costBasis}
}

// UnrealizedGain returns current value minus cost basis
func UnrealizedGain(currentValue, costBasis decimal.Decimal) decimal.Decimal {
	return currentValue.Sub(costBasis)
}

// SimpleReturn returns (current value - cost basis) / cost basis.
// Undefined when the cost basis is not positive.
func SimpleReturn(currentValue, costBasis decimal.Decimal) (float64, bool) {
	if !costBasis.IsPositive() {
		return 0, false
	}
	ret, _ := currentValue.Sub(costBasis).Div(costBasis).Float64()
	return ret, true
}

// TimeWeightedReturn computes the annualized growth rate between two
// valuation points: (ending/beginning)^(365.25/days) - 1.
// Undefined when the beginning value or the elapsed days are not positive.
func TimeWeightedReturn(beginValue, endValue float64, days float64) (float64, bool) {
	if beginValue <= 0 || days <= 0 {
		return 0, false
	}
	return math.Pow(endValue/beginValue, daysPerYear/days) - 1, true
}

// IRR solves for the internal rate of return of irregularly-dated cash flows
// (XIRR): the rate r with sum(cf / (1+r)^dt) == 0, dt in years since the
// first flow. Negative flows are outflows, positive flows are inflows.
//
// Newton's method is tried first; if it fails to converge or diverges, a
// bisection fallback scans for a bracketing interval. A result outside
// (-99%, +9900%) is discarded as numerically degenerate.
func IRR(flows []domain.CashFlow) (float64, bool) {
	if len(flows) < 2 {
		return 0, false
	}

	sorted := make([]domain.CashFlow, len(flows))
	copy(sorted, flows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	// All-positive or all-negative series have no root
	hasPositive, hasNegative := false, false
	for _, f := range sorted {
		if f.Amount > 0 {
			hasPositive = true
		}
		if f.Amount < 0 {
			hasNegative = true
		}
	}
	if !hasPositive || !hasNegative {
		return 0, false
	}

	start := sorted[0].Date
	years := make([]float64, len(sorted))
	for i, f := range sorted {
		years[i] = f.Date.Sub(start).Hours() / 24 / daysPerYear
	}

	if rate, ok := irrNewton(sorted, years); ok {
		return rate, true
	}
	return irrBisect(sorted, years)
}

// npv evaluates sum(cf / (1+r)^dt) and its derivative with respect to r
func npv(flows []domain.CashFlow, years []float64, rate float64) (value, derivative float64) {
	for i, f := range flows {
		base := math.Pow(1+rate, years[i])
		value += f.Amount / base
		derivative -= years[i] * f.Amount / (base * (1 + rate))
	}
	return value, derivative
}

func irrNewton(flows []domain.CashFlow, years []float64) (float64, bool) {
	rate := irrInitialGuess

	for i := 0; i < irrMaxIterations; i++ {
		if rate <= -1 {
			return 0, false
		}

		value, derivative := npv(flows, years, rate)
		if math.Abs(value) < irrTolerance {
			if rate <= irrMinResult || rate >= irrMaxResult || math.IsNaN(rate) {
				return 0, false
			}
			return rate, true
		}
		if derivative == 0 || math.IsNaN(derivative) {
			return 0, false
		}

		rate -= value / derivative
	}

	return 0, false
}

// irrBisect scans the valid rate band for a sign change and bisects it
func irrBisect(flows []domain.CashFlow, years []float64) (float64, bool) {
	lo, hi := irrMinResult, irrMaxResult
	fLo, _ := npv(flows, years, lo)
	fHi, _ := npv(flows, years, hi)

	if fLo*fHi > 0 {
		// No sign change across the band: scan for an interior bracket
		const steps = 200
		prev := lo
		fPrev := fLo
		found := false
		for i := 1; i <= steps; i++ {
			r := lo + (hi-lo)*float64(i)/steps
			fr, _ := npv(flows, years, r)
			if fPrev*fr <= 0 {
				lo, hi, fLo = prev, r, fPrev
				found = true
				break
			}
			prev, fPrev = r, fr
		}
		if !found {
			return 0, false
		}
	}

	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		fMid, _ := npv(flows, years, mid)
		if math.Abs(fMid) < irrTolerance {
			if mid <= irrMinResult || mid >= irrMaxResult {
				return 0, false
			}
			return mid, true
		}
		if fLo*fMid < 0 {
			hi = mid
		} else {
			lo = mid
			fLo = fMid
		}
	}

	return 0, false
}

// BuildCashFlows converts a transaction history and a terminal valuation
// into the signed cash-flow series used by IRR: purchases and fees are
// outflows, sells are inflows, and the current value is the final inflow at
// the evaluation date.
func BuildCashFlows(txs []domain.Transaction, currentValue float64, asOf time.Time) []domain.CashFlow {
	flows := make([]domain.CashFlow, 0, len(txs)+1)

	for i := range txs {
		t := &txs[i]
		gross := t.GrossAmount
		if gross.IsZero() {
			gross = t.Quantity.Mul(t.PricePerUnit)
		}
		amount, _ := gross.Add(t.Fees).Float64()

		switch t.Type {
		case domain.TransactionBuy:
			flows = append(flows, domain.CashFlow{Date: t.OperationDate, Amount: -amount})
		case domain.TransactionSell:
			grossOnly, _ := gross.Float64()
			flows = append(flows, domain.CashFlow{Date: t.OperationDate, Amount: grossOnly})
		}
	}

	if currentValue > 0 {
		flows = append(flows, domain.CashFlow{Date: asOf, Amount: currentValue})
	}

	return flows
}

// ConvertAmount converts an amount between currencies given a rate such that
// amount_in_from * rate = amount_in_to. Same-currency conversion is the
// identity. A non-positive rate for a cross-currency pair is an explicit
// error, never a silently unconverted amount.
func ConvertAmount(amount float64, fromCurrency, toCurrency string, rate float64) (float64, error) {
	if fromCurrency == toCurrency {
		return amount, nil
	}
	if rate <= 0 {
		return 0, fmt.Errorf("unsupported currency pair %s/%s: no rate available", fromCurrency, toCurrency)
	}
	return amount * rate, nil
}
