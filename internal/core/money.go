// Package core provides money parsing and handling utilities.
//
// This file contains the Money type used for every ledger amount together
// with the parsing and Rupiah formatting helpers used at the edges.
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an exact currency amount. Sums of Money never lose precision, so
// totals and balance are exact.
type Money struct {
	decimal.Decimal
}

// NewMoney builds a Money from a float literal, mostly for tests and seeds.
func NewMoney(v float64) Money {
	return Money{Decimal: decimal.NewFromFloat(v)}
}

// ZeroMoney returns a zero amount.
func ZeroMoney() Money {
	return Money{Decimal: decimal.Zero}
}

// Amount limits. Larger or finer values are rejected before any arithmetic
// so a short input cannot expand into millions of digits.
const (
	MaxAmountExponent = 15
	MaxFractionDigits = 8
)

var maxAmount = decimal.New(1, MaxAmountExponent)

// ParseAmount converts user input into a positive amount.
//
// Surrounding whitespace is ignored, a lone decimal comma is accepted as the
// separator and exponent notation is allowed. Non-numbers, zero, negative
// values, amounts above 1e15 and amounts with more than eight fraction digits
// are rejected with ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("50")     -> 50, nil
//	ParseAmount("12,5")   -> 12.5, nil
//	ParseAmount("1e3")    -> 1000, nil
//	ParseAmount("-1")     -> ErrInvalidAmount
//	ParseAmount("1e20")   -> ErrInvalidAmount
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	m := Money{Decimal: d}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

// Validate checks 0 < m <= 1e15 with at most eight fraction digits.
// The exponent is checked first so oversized values are never rescaled.
func (m Money) Validate() error {
	if !m.Decimal.IsPositive() {
		return ErrInvalidAmount
	}
	exp := m.Decimal.Exponent()
	if exp > MaxAmountExponent || exp < -MaxFractionDigits {
		return fmt.Errorf("%w: out of range", ErrInvalidAmount)
	}
	if m.Decimal.GreaterThan(maxAmount) {
		return fmt.Errorf("%w: exceeds %s", ErrInvalidAmount, maxAmount.String())
	}
	return nil
}

func (m Money) Add(o Money) Money {
	return Money{Decimal: m.Decimal.Add(o.Decimal)}
}

func (m Money) Sub(o Money) Money {
	return Money{Decimal: m.Decimal.Sub(o.Decimal)}
}

// Equal reports exact numeric equality (1.50 == 1.5).
func (m Money) Equal(o Money) bool {
	return m.Decimal.Equal(o.Decimal)
}

// FormatRupiah formats an amount as Indonesian Rupiah with two fraction
// digits, e.g. "Rp1.234.567,50".
func FormatRupiah(m Money) string {
	intPart, frac, neg := splitFixed(m)
	s := "Rp" + groupDigits(intPart, ".") + "," + frac
	if neg {
		return "-" + s
	}
	return s
}

// FormatSigned renders a history amount: "+1,234.00" for income and
// "-50.00" for expense.
func FormatSigned(t TransactionType, m Money) string {
	intPart, frac, _ := splitFixed(m)
	sign := "+"
	if t == Expense {
		sign = "-"
	}
	return sign + groupDigits(intPart, ",") + "." + frac
}

// splitFixed rounds to two places and returns the absolute integer digits,
// the two fraction digits and the sign.
func splitFixed(m Money) (string, string, bool) {
	d := m.Decimal.Round(2)
	neg := d.IsNegative()
	if neg {
		d = d.Neg()
	}
	fixed := d.StringFixed(2)
	dot := strings.IndexByte(fixed, '.')
	return fixed[:dot], fixed[dot+1:], neg
}

// FormatWhole rounds to whole units and groups thousands with commas, the
// form used by chart legends ("1,234").
func FormatWhole(m Money) string {
	d := m.Decimal.Round(0)
	if d.IsNegative() {
		return "-" + groupDigits(d.Neg().String(), ",")
	}
	return groupDigits(d.String(), ",")
}

func groupDigits(digits, sep string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
