package invoice

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrEmptyAmount is returned by ParseAmount for blank input.
var ErrEmptyAmount = errors.New("empty amount")

// CurrencyPlaces is the minor-unit precision used for total comparisons.
const CurrencyPlaces = 2

// ParseAmount parses a decimal amount written with either '.' or ',' as
// decimal separator and optional '.', ',' or space thousands separators.
//
//	"1234.56"  -> 1234.56
//	"1.234,56" -> 1234.56
//	"1 234,56" -> 1234.56
func ParseAmount(s string) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\u00a0', '\u202f', '\'':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if cleaned == "" {
		return decimal.Zero, ErrEmptyAmount
	}

	lastDot := strings.LastIndex(cleaned, ".")
	lastComma := strings.LastIndex(cleaned, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		// The separator that comes last is the decimal one.
		if lastComma > lastDot {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(cleaned, ",") > 1 {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		} else {
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		}
	case strings.Count(cleaned, ".") > 1:
		cleaned = strings.ReplaceAll(cleaned, ".", "")
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// FormatAmount renders d keeping the scale it was parsed with, so "8.50"
// stays "8.50" and "8" stays "8".
func FormatAmount(d decimal.Decimal) string {
	exp := d.Exponent()
	if exp >= 0 {
		return d.StringFixed(0)
	}
	return d.StringFixed(-exp)
}

// RoundCents rounds to the currency minor unit.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPlaces)
}

// EqualCents compares two amounts at currency precision.
func EqualCents(a, b decimal.Decimal) bool {
	return RoundCents(a).Equal(RoundCents(b))
}
