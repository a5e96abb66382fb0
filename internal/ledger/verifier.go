// Package ledger validates raw accounting ledger rows extracted from a
// spreadsheet: folio continuity, duplication, and tax/base ratio checks.
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Verif is the tax ratio consistency flag of a row.
type Verif string

const (
	// VerifOK means the declared tax matches a statutory rate.
	VerifOK Verif = "OK"
	// VerifCheck marks the row for human review.
	VerifCheck Verif = "CHECK"
)

// RateTable holds the statutory tax rates of the jurisdiction and the
// absolute tolerance absorbing rounding in source data. Both come from
// configuration, not from code.
type RateTable struct {
	Rates     []decimal.Decimal
	Tolerance decimal.Decimal
}

// NewRateTable parses decimal-string rates and tolerance.
func NewRateTable(rates []string, tolerance string) (RateTable, error) {
	t := RateTable{}
	for _, s := range rates {
		r, err := decimal.NewFromString(s)
		if err != nil {
			return RateTable{}, fmt.Errorf("invalid rate %q: %w", s, err)
		}
		t.Rates = append(t.Rates, r)
	}
	tol, err := decimal.NewFromString(tolerance)
	if err != nil {
		return RateTable{}, fmt.Errorf("invalid tolerance %q: %w", tolerance, err)
	}
	t.Tolerance = tol
	return t, nil
}

// DefaultRateTable returns the Colombian statutory rates (0%, 5%, 19%)
// with a 0.001 absolute tolerance.
func DefaultRateTable() RateTable {
	return RateTable{
		Rates: []decimal.Decimal{
			decimal.Zero,
			decimal.RequireFromString("0.05"),
			decimal.RequireFromString("0.19"),
		},
		Tolerance: decimal.RequireFromString("0.001"),
	}
}

// Classify computes the effective rate tax/base and compares it against
// the statutory rates. A zero base is OK only for zero tax; tax with no
// base is suspicious.
func (t RateTable) Classify(base, tax decimal.Decimal) Verif {
	if base.IsZero() {
		if tax.IsZero() {
			return VerifOK
		}
		return VerifCheck
	}
	ratio := tax.Div(base)
	for _, rate := range t.Rates {
		if ratio.Sub(rate).Abs().LessThanOrEqual(t.Tolerance) {
			return VerifOK
		}
	}
	return VerifCheck
}
