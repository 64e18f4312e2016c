// Package core provides the ledger entities read by the aggregation engine and
// money helpers.
//
// This file contains parsing of monetary amounts from strings, the single
// rounding rule applied to finalized amounts and ISO 4217 currency handling.
package core

import (
	"errors"
	"strings"
	"unicode"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimals kept on finalized monetary outputs.
const MoneyPlaces = 2

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidCurrency = errors.New("invalid currency")
)

var hundred = decimal.NewFromInt(100)

// ParseAmount converts a decimal string to an exact decimal.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Unlike
// stored values, user input never carries a sign. No rounding is applied: the
// value keeps every digit until it is finalized with RoundMoney.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,345") -> 12.345
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, p := range parts {
		for _, r := range p {
			if !unicode.IsDigit(r) {
				return decimal.Zero, ErrInvalidAmount
			}
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// RoundMoney rounds half away from zero to two decimals, which is half-up for
// the non-negative amounts the ledger stores.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// Percent returns part/whole*100 rounded to two decimals, or zero when whole is zero.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(MoneyPlaces)
}

// NormalizeCurrency upper-cases and trims an ISO code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateCurrency checks the code against the ISO 4217 table.
func ValidateCurrency(code string) error {
	if money.GetCurrency(NormalizeCurrency(code)) == nil {
		return ErrInvalidCurrency
	}
	return nil
}

// FormatAmount renders d with the currency's symbol, separators and fraction,
// e.g. "$1,234.50" or "€1,234.50".
func FormatAmount(d decimal.Decimal, code string) string {
	code = NormalizeCurrency(code)
	cur := money.GetCurrency(code)
	if cur == nil {
		return d.StringFixed(MoneyPlaces) + " " + code
	}
	minor := d.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, code).Display()
}

// Allocate splits amount into n two-decimal parts that always sum back to the
// rounded amount. Residual cents go to the first parts, one cent each.
func Allocate(amount decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	total := RoundMoney(amount).Shift(MoneyPlaces).IntPart()
	base := total / int64(n)
	rem := total % int64(n)
	step := int64(1)
	if rem < 0 {
		rem, step = -rem, -1
	}
	parts := make([]decimal.Decimal, n)
	for i := range parts {
		cents := base
		if int64(i) < rem {
			cents += step
		}
		parts[i] = decimal.New(cents, -MoneyPlaces)
	}
	return parts
}
