package currency

import (
	"bilancio/internal/core"

	"github.com/shopspring/decimal"
)

// Convert translates amount from one currency to another. Same-currency
// amounts are returned untouched, with their full precision. Otherwise the
// amount is multiplied by the cached rate and rounded to two decimals.
//
// Callers must load the closure of every currency they convert; a missing pair
// panics.
func Convert(amount decimal.Decimal, from, to string, cache RateCache) decimal.Decimal {
	if core.NormalizeCurrency(from) == core.NormalizeCurrency(to) {
		return amount
	}
	rate, ok := cache.Rate(from, to)
	if !ok {
		panic("currency: no rate loaded for " + Key(from, to))
	}
	return core.RoundMoney(amount.Mul(rate))
}

// Amount is a value in its native currency.
type Amount struct {
	Value    decimal.Decimal
	Currency string
}

// Sum adds amounts that may be recorded in different currencies. Values are
// summed exactly per native currency and each group is converted once, so a
// total is rounded once per currency rather than once per amount. The result
// is rounded to two decimals.
func Sum(amounts []Amount, to string, cache RateCache) decimal.Decimal {
	if len(amounts) == 0 {
		return decimal.Zero
	}
	groups := make(map[string]decimal.Decimal)
	for _, a := range amounts {
		cur := core.NormalizeCurrency(a.Currency)
		groups[cur] = groups[cur].Add(a.Value)
	}
	total := decimal.Zero
	for cur, v := range groups {
		total = total.Add(Convert(v, cur, to, cache))
	}
	return core.RoundMoney(total)
}
