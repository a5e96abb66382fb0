// Package money holds decimal helpers for currency and tax arithmetic.
// All amounts are exact decimals; binary floating point never enters the
// totals a human reconciles against source documents.
package money

import (
	"github.com/shopspring/decimal"
)

// Zero is decimal zero
var Zero = decimal.Zero

// FromString parses a decimal from string
func FromString(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// MustFromString parses a decimal from string, panics on error
func MustFromString(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FromStringOrZero parses a decimal, falling back to zero on empty or
// malformed input. Used for optional document amounts.
func FromStringOrZero(s string) decimal.Decimal {
	if s == "" {
		return Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero
	}
	return d
}

// Round2 rounds to 2 decimal places (COP invoice amounts carry cents)
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Ratio computes a/b, or zero when b is zero
func Ratio(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return Zero
	}
	return a.Div(b)
}

// Sum sums a slice of decimals
func Sum(values []decimal.Decimal) decimal.Decimal {
	result := Zero
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}

// IsPositive returns true if decimal is greater than zero
func IsPositive(d decimal.Decimal) bool {
	return d.GreaterThan(Zero)
}
