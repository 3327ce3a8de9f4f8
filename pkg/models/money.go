package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Money is an exact fixed-point monetary amount with three fractional
// digits, which is the same scale as the ledger's milliunit wire format
// (1 currency unit == 1000 milliunits). Amounts never pass through
// floating point.
type Money struct {
	value    int64 // thousandths of a currency unit
	currency string
}

// ParseMoney parses a decimal amount string like "-50.00" or "1234.567".
// More than three fractional digits is an error because the value could
// not round-trip through the milliunit representation.
func ParseMoney(s, currency string) (Money, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Money{}, fmt.Errorf("empty amount")
	}
	neg := false
	switch raw[0] {
	case '-':
		neg = true
		raw = raw[1:]
	case '+':
		raw = raw[1:]
	}
	intPart, fracPart, _ := strings.Cut(raw, ".")
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > 3 {
		return Money{}, fmt.Errorf("amount %q has more than three fractional digits", s)
	}
	for len(fracPart) < 3 {
		fracPart += "0"
	}
	units, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	frac, err := strconv.ParseInt(fracPart, 10, 64)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	v := units*1000 + frac
	if neg {
		v = -v
	}
	return Money{value: v, currency: currency}, nil
}

// MoneyFromMilliunits converts the ledger's integer milliunit amount back
// into a domain amount. Together with Milliunits this is the only place
// where the two representations meet.
func MoneyFromMilliunits(v int64, currency string) Money {
	return Money{value: v, currency: currency}
}

// Milliunits returns the ledger wire representation, the decimal amount
// multiplied by 1000. Lossless for every amount with at most three
// fractional digits.
func (m Money) Milliunits() int64 {
	return m.value
}

func (m Money) Currency() string {
	return m.currency
}

func (m Money) IsZero() bool {
	return m.value == 0
}

func (m Money) IsNegative() bool {
	return m.value < 0
}

// Equal reports value and currency equality.
func (m Money) Equal(o Money) bool {
	return m.value == o.value && m.currency == o.currency
}

// Add sums two amounts. Both must share a currency; summing across
// currencies is a programming error surfaced to the caller.
func (m Money) Add(o Money) (Money, error) {
	if m.currency != o.currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.currency, o.currency)
	}
	return Money{value: m.value + o.value, currency: m.currency}, nil
}

// WithinBasisPoints reports whether o deviates from m by at most bp basis
// points (1 bp = 0.01%) of m's magnitude. Pure integer arithmetic;
// currencies are not compared because callers match ledger amounts whose
// currency is implied by the budget.
func (m Money) WithinBasisPoints(o Money, bp int64) bool {
	diff := m.value - o.value
	if diff < 0 {
		diff = -diff
	}
	ref := m.value
	if ref < 0 {
		ref = -ref
	}
	return diff*10000 <= ref*bp
}

// String renders the decimal amount with two fractional digits, or three
// when the thousandth is significant.
func (m Money) String() string {
	v := m.value
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	units := v / 1000
	frac := v % 1000
	var s string
	if frac%10 == 0 {
		s = fmt.Sprintf("%s%d.%02d", sign, units, frac/10)
	} else {
		s = fmt.Sprintf("%s%d.%03d", sign, units, frac)
	}
	if m.currency != "" {
		return s + " " + m.currency
	}
	return s
}
