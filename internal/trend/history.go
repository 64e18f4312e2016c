// Package trend builds the rolling multi-month income/expense history.
package trend

import (
	"iter"
	"slices"

	"bilancio/internal/core"
	"bilancio/internal/currency"

	"github.com/shopspring/decimal"
)

// DefaultMonths is the width of the history window.
const DefaultMonths = 6

// Point is one month of the history, in the preferred currency.
type Point struct {
	Month   core.Month      `json:"month"`
	Label   string          `json:"label"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Net     decimal.Decimal `json:"net"`
}

// Window yields n months ending at and including end, oldest first.
// A non-positive n falls back to DefaultMonths.
func Window(end core.Month, n int) iter.Seq[core.Month] {
	if n <= 0 {
		n = DefaultMonths
	}
	return func(yield func(core.Month) bool) {
		for i := n - 1; i >= 0; i-- {
			if !yield(end.AddMonths(-i)) {
				return
			}
		}
	}
}

// Start returns the first month of the window ending at end.
func Start(end core.Month, n int) core.Month {
	for m := range Window(end, n) {
		return m
	}
	return end
}

// Build yields one Point per month of the window. Every point is computed
// from scratch out of txs, so the sequence can be ranged over any number of
// times. Months without transactions yield zeros.
func Build(end core.Month, n int, txs []core.Transaction, preferred string, rates currency.RateCache) iter.Seq[Point] {
	return func(yield func(Point) bool) {
		for m := range Window(end, n) {
			if !yield(Aggregate(m, txs, preferred, rates)) {
				return
			}
		}
	}
}

// History collects Build into a slice.
func History(end core.Month, n int, txs []core.Transaction, preferred string, rates currency.RateCache) []Point {
	return slices.Collect(Build(end, n, txs, preferred, rates))
}

// Aggregate computes income, expense and net of the transactions in month m.
func Aggregate(m core.Month, txs []core.Transaction, preferred string, rates currency.RateCache) Point {
	var in, out []currency.Amount
	for _, tx := range txs {
		if !tx.Month.Equal(m) {
			continue
		}
		a := currency.Amount{Value: tx.Amount, Currency: tx.Currency}
		switch tx.Type {
		case core.Income:
			in = append(in, a)
		case core.Expense:
			out = append(out, a)
		}
	}
	income := currency.Sum(in, preferred, rates)
	expense := currency.Sum(out, preferred, rates)
	return Point{
		Month:   m,
		Label:   m.Label(),
		Income:  income,
		Expense: expense,
		Net:     income.Sub(expense),
	}
}
