// Package budget joins the budgets of a month with the actual spend per category.
package budget

import (
	"cmp"
	"slices"

	"bilancio/internal/core"
	"bilancio/internal/currency"

	"github.com/shopspring/decimal"
)

// Summary is one budget row expressed in the preferred currency. Overspent is
// only set on expense rows; an income row keeps its negative remaining when the
// target was beaten.
type Summary struct {
	BudgetID       string               `json:"budgetId"`
	CategoryID     string               `json:"categoryId"`
	CategoryName   string               `json:"categoryName"`
	CategoryType   core.TransactionType `json:"categoryType"`
	Planned        decimal.Decimal      `json:"planned"`
	Actual         decimal.Decimal      `json:"actual"`
	Remaining      decimal.Decimal      `json:"remaining"`
	PercentUsed    decimal.Decimal      `json:"percentUsed"`
	Overspent      bool                 `json:"overspent"`
	Currency       string               `json:"currency"`
	NativeCurrency string               `json:"nativeCurrency"`
}

// Summarize computes planned, actual and remaining per budget row.
//
// Actual is the sum of the month's transactions with the budget's category,
// converted to the budget currency. Planned and actual are then converted to
// preferred, and remaining = planned - actual may be negative. Rows are ordered
// by category name.
func Summarize(budgets []core.Budget, txs []core.Transaction, categories []core.Category, preferred string, rates currency.RateCache) []Summary {
	byCategory := make(map[string]core.Category, len(categories))
	for _, c := range categories {
		byCategory[c.ID] = c
	}

	out := make([]Summary, 0, len(budgets))
	for _, b := range budgets {
		var matching []currency.Amount
		for _, tx := range txs {
			if tx.CategoryID == b.CategoryID && tx.Month.Equal(b.Month) {
				matching = append(matching, currency.Amount{Value: tx.Amount, Currency: tx.Currency})
			}
		}
		actualNative := currency.Sum(matching, b.Currency, rates)

		planned := core.RoundMoney(currency.Convert(b.Planned, b.Currency, preferred, rates))
		actual := core.RoundMoney(currency.Convert(actualNative, b.Currency, preferred, rates))
		remaining := planned.Sub(actual)

		cat := byCategory[b.CategoryID]
		typ := typeOf(cat)
		out = append(out, Summary{
			BudgetID:       b.ID,
			CategoryID:     b.CategoryID,
			CategoryName:   cat.Name,
			CategoryType:   typ,
			Planned:        planned,
			Actual:         actual,
			Remaining:      remaining,
			PercentUsed:    core.Percent(actual, planned),
			Overspent:      typ == core.Expense && remaining.IsNegative(),
			Currency:       core.NormalizeCurrency(preferred),
			NativeCurrency: core.NormalizeCurrency(b.Currency),
		})
	}

	slices.SortStableFunc(out, func(a, b Summary) int {
		return cmp.Or(cmp.Compare(a.CategoryName, b.CategoryName), cmp.Compare(a.CategoryID, b.CategoryID))
	})
	return out
}

// A budget whose category is unknown is treated as an expense line.
func typeOf(c core.Category) core.TransactionType {
	if c.Type == core.Income {
		return core.Income
	}
	return core.Expense
}

// Totals aggregates the rows the dashboard headline stats need.
type Totals struct {
	PlannedIncome    decimal.Decimal
	PlannedExpense   decimal.Decimal
	ActualExpense    decimal.Decimal
	RemainingExpense decimal.Decimal // sum of max(remaining, 0) over expense rows
}

func Total(rows []Summary) Totals {
	t := Totals{
		PlannedIncome:    decimal.Zero,
		PlannedExpense:   decimal.Zero,
		ActualExpense:    decimal.Zero,
		RemainingExpense: decimal.Zero,
	}
	for _, r := range rows {
		if r.CategoryType == core.Income {
			t.PlannedIncome = t.PlannedIncome.Add(r.Planned)
			continue
		}
		t.PlannedExpense = t.PlannedExpense.Add(r.Planned)
		t.ActualExpense = t.ActualExpense.Add(r.Actual)
		t.RemainingExpense = t.RemainingExpense.Add(decimal.Max(r.Remaining, decimal.Zero))
	}
	return t
}
