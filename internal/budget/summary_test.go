package budget

import (
	"testing"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/currency"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var rates = currency.RateCache{
	"EUR:EUR": d("1"), "USD:USD": d("1"),
	"EUR:USD": d("1.18"), "USD:EUR": d("0.85"),
}

func tx(id, cat string, typ core.TransactionType, amount, cur string, day time.Time) core.Transaction {
	return core.Transaction{ID: id, AccountID: "acc", CategoryID: cat, Type: typ, Amount: d(amount), Currency: cur, Date: day, Month: core.MonthOf(day)}
}

func TestSummarize(t *testing.T) {
	march := core.NewMonth(2025, 3)
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	categories := []core.Category{
		{ID: "groceries", Name: "Groceries", Type: core.Expense},
		{ID: "salary", Name: "Salary", Type: core.Income},
		{ID: "travel", Name: "Travel", Type: core.Expense},
		{ID: "books", Name: "Books", Type: core.Expense},
	}
	budgets := []core.Budget{
		{ID: "b1", AccountID: "acc", CategoryID: "salary", Month: march, Planned: d("3000"), Currency: "USD"},
		{ID: "b2", AccountID: "acc", CategoryID: "groceries", Month: march, Planned: d("500"), Currency: "USD"},
		{ID: "b3", AccountID: "acc", CategoryID: "travel", Month: march, Planned: d("600"), Currency: "EUR"},
		{ID: "b4", AccountID: "acc", CategoryID: "books", Month: march, Planned: d("0"), Currency: "USD"},
	}
	txs := []core.Transaction{
		tx("t1", "salary", core.Income, "3000", "USD", day),
		tx("t2", "groceries", core.Expense, "100", "USD", day),
		tx("t3", "groceries", core.Expense, "50", "USD", day),
		tx("t4", "groceries", core.Expense, "999", "USD", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)),
		tx("t5", "books", core.Expense, "20", "USD", day),
	}

	rows := Summarize(budgets, txs, categories, "USD", rates)
	require.Len(t, rows, 4)

	names := []string{rows[0].CategoryName, rows[1].CategoryName, rows[2].CategoryName, rows[3].CategoryName}
	assert.Equal(t, []string{"Books", "Groceries", "Salary", "Travel"}, names)

	books, groceries, salary, travel := rows[0], rows[1], rows[2], rows[3]

	assert.True(t, groceries.Actual.Equal(d("150")), "previous month spend must not count")
	assert.True(t, groceries.Remaining.Equal(d("350")))
	assert.True(t, groceries.PercentUsed.Equal(d("30")))
	assert.False(t, groceries.Overspent)

	assert.Equal(t, core.Income, salary.CategoryType)
	assert.True(t, salary.Remaining.IsZero())

	assert.Equal(t, "708.00", travel.Planned.StringFixed(2))
	assert.True(t, travel.Planned.Equal(d("708")))
	assert.True(t, travel.Actual.IsZero())
	assert.True(t, travel.Remaining.Equal(d("708")))
	assert.Equal(t, "EUR", travel.NativeCurrency)
	assert.Equal(t, "USD", travel.Currency)

	assert.True(t, books.Remaining.Equal(d("-20")), "overspend stays negative")
	assert.True(t, books.PercentUsed.IsZero(), "zero planned must not divide")
	assert.True(t, books.Overspent)

	for _, r := range rows {
		assert.True(t, r.Remaining.Equal(r.Planned.Sub(r.Actual)), "remaining = planned - actual for %s", r.CategoryName)
	}
}

func TestSummarizeConvertsActualThroughBudgetCurrency(t *testing.T) {
	march := core.NewMonth(2025, 3)
	day := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	budgets := []core.Budget{{ID: "b", AccountID: "acc", CategoryID: "food", Month: march, Planned: d("100"), Currency: "EUR"}}
	txs := []core.Transaction{tx("t", "food", core.Expense, "20", "USD", day)}

	rows := Summarize(budgets, txs, nil, "EUR", rates)
	require.Len(t, rows, 1)
	// 20 USD -> 17.00 EUR
	assert.True(t, rows[0].Actual.Equal(d("17")))
	assert.True(t, rows[0].Remaining.Equal(d("83")))
	assert.Equal(t, core.Expense, rows[0].CategoryType)
}

func TestSummarizeOverEarnedIncomeIsNotOverspent(t *testing.T) {
	march := core.NewMonth(2025, 3)
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	categories := []core.Category{{ID: "salary", Name: "Salary", Type: core.Income}}
	budgets := []core.Budget{{ID: "b", AccountID: "acc", CategoryID: "salary", Month: march, Planned: d("3000"), Currency: "USD"}}
	txs := []core.Transaction{tx("t", "salary", core.Income, "3500", "USD", day)}

	rows := Summarize(budgets, txs, categories, "USD", rates)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Remaining.Equal(d("-500")), "sign is kept for income rows")
	assert.False(t, rows[0].Overspent)
}

func TestTotalLeftToSpendIgnoresOverspendAndIncome(t *testing.T) {
	rows := []Summary{
		{CategoryType: core.Income, Planned: d("3000"), Actual: d("3000"), Remaining: d("0")},
		{CategoryType: core.Expense, Planned: d("500"), Actual: d("150"), Remaining: d("350")},
		{CategoryType: core.Expense, Planned: d("100"), Actual: d("130"), Remaining: d("-30")},
	}
	got := Total(rows)
	assert.True(t, got.PlannedIncome.Equal(d("3000")))
	assert.True(t, got.PlannedExpense.Equal(d("600")))
	assert.True(t, got.ActualExpense.Equal(d("280")))
	assert.True(t, got.RemainingExpense.Equal(d("350")))
}
