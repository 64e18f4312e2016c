package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/currency"
	"bilancio/internal/income"
	"bilancio/internal/log"
	"bilancio/internal/memory"
	"bilancio/internal/seed"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var march = core.NewMonth(2025, 3)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func tx(id, cat string, typ core.TransactionType, amount, cur, day string) core.Transaction {
	t, _ := time.Parse(time.DateOnly, day)
	return core.Transaction{ID: id, AccountID: "acc", CategoryID: cat, Type: typ, Amount: d(amount), Currency: cur, Date: t, Month: core.MonthOf(t)}
}

// earnedBudgets: a 3000 USD income budget fully earned, a 500 USD expense budget with 150 spent.
func earnedBudgets() seed.Seed {
	return seed.Seed{
		Accounts: []core.Account{{ID: "acc", Name: "Main", Currency: "USD"}},
		Categories: []core.Category{
			{ID: "salary", Name: "Salary", Type: core.Income},
			{ID: "food", Name: "Food", Type: core.Expense},
		},
		Transactions: []core.Transaction{
			tx("t1", "salary", core.Income, "3000", "USD", "2025-03-01"),
			tx("t2", "food", core.Expense, "150", "USD", "2025-03-10"),
			tx("t0", "salary", core.Income, "1000", "USD", "2025-02-01"),
			tx("t00", "food", core.Expense, "400", "USD", "2025-02-11"),
		},
		Budgets: []core.Budget{
			{ID: "b1", AccountID: "acc", CategoryID: "salary", Month: march, Planned: d("3000"), Currency: "USD"},
			{ID: "b2", AccountID: "acc", CategoryID: "food", Month: march, Planned: d("500"), Currency: "USD"},
		},
	}
}

func newService(s seed.Seed) *Service {
	return NewService(memory.New(s), memory.New(s), memory.New(s), log.Discard(), DefaultServiceConfig())
}

func stat(t *testing.T, r *Report, key string) Stat {
	t.Helper()
	s, ok := r.Stat(key)
	require.True(t, ok, "missing stat %s", key)
	return s
}

func assertStat(t *testing.T, r *Report, key, value, variant string) {
	t.Helper()
	s := stat(t, r, key)
	assert.True(t, s.Value.Equal(d(value)), "%s = %s, want %s", key, s.Value, value)
	assert.Equal(t, variant, s.Variant, "%s variant", key)
}

func TestReportIncomeBudgetFallback(t *testing.T) {
	r, err := newService(earnedBudgets()).Report(context.Background(), Request{AccountID: "acc", Month: march, PreferredCurrency: "USD"})
	require.NoError(t, err)

	keys := make([]string, 0, len(r.Stats))
	for _, s := range r.Stats {
		keys = append(keys, s.Key)
	}
	assert.Equal(t, []string{StatNet, StatOnTrack, StatLeftToSpend, StatMonthlyTarget}, keys)

	assertStat(t, r, StatNet, "2850", VariantPositive)
	assertStat(t, r, StatOnTrack, "2500", VariantPositive)
	assertStat(t, r, StatLeftToSpend, "350", VariantNeutral)
	assertStat(t, r, StatMonthlyTarget, "2500", VariantPositive)

	assert.Equal(t, income.SourceIncomeBudget, r.MonthlyIncomeGoal.Source)
	assert.True(t, r.MonthlyIncomeGoal.IsDefault)
	assert.True(t, r.ActualIncome.Equal(d("3000")))

	require.Len(t, r.Budgets, 2)
	assert.Equal(t, "Food", r.Budgets[0].CategoryName, "rows are ordered by category name")
	assert.True(t, r.Budgets[0].Remaining.Equal(d("350")))
}

func TestReportRecurringIncomeOverridesBudget(t *testing.T) {
	s := earnedBudgets()
	s.Recurring = []core.RecurringTemplate{
		{ID: "r1", AccountID: "acc", Type: core.Income, Amount: d("5000"), DayOfMonth: 27, IsActive: true, StartMonth: core.NewMonth(2025, 1)},
		{ID: "r2", AccountID: "acc", Type: core.Income, Amount: d("900"), DayOfMonth: 1, IsActive: false, StartMonth: core.NewMonth(2025, 1)},
		{ID: "r3", AccountID: "acc", Type: core.Expense, Amount: d("1200"), DayOfMonth: 1, IsActive: true, StartMonth: core.NewMonth(2025, 1)},
	}
	r, err := newService(s).Report(context.Background(), Request{AccountID: "acc", Month: march, PreferredCurrency: "USD"})
	require.NoError(t, err)

	assertStat(t, r, StatMonthlyTarget, "4500", VariantPositive)
	assert.Equal(t, income.SourceRecurringIncome, r.MonthlyIncomeGoal.Source)
	assert.True(t, r.MonthlyIncomeGoal.IsDefault)
}

func TestReportExplicitGoalWins(t *testing.T) {
	s := earnedBudgets()
	s.Recurring = []core.RecurringTemplate{
		{ID: "r1", AccountID: "acc", Type: core.Income, Amount: d("5000"), DayOfMonth: 27, IsActive: true, StartMonth: core.NewMonth(2025, 1)},
	}
	s.IncomeGoals = []core.MonthlyIncomeGoal{{AccountID: "acc", Month: march, Amount: d("7000"), Currency: "USD"}}

	r, err := newService(s).Report(context.Background(), Request{AccountID: "acc", Month: march, PreferredCurrency: "USD"})
	require.NoError(t, err)

	assertStat(t, r, StatMonthlyTarget, "6500", VariantPositive)
	assert.False(t, r.MonthlyIncomeGoal.IsDefault)
	assert.Equal(t, income.SourceMonthlyGoal, r.MonthlyIncomeGoal.Source)
}

func TestReportConvertsForeignBudget(t *testing.T) {
	s := seed.Seed{
		Accounts:   []core.Account{{ID: "acc", Currency: "EUR"}},
		Categories: []core.Category{{ID: "rent", Name: "Rent", Type: core.Expense}},
		Budgets:    []core.Budget{{ID: "b1", AccountID: "acc", CategoryID: "rent", Month: march, Planned: d("600"), Currency: "EUR"}},
		Rates:      map[string]decimal.Decimal{"EUR:USD": d("1.18")},
	}
	r, err := newService(s).Report(context.Background(), Request{AccountID: "acc", Month: march, PreferredCurrency: "usd"})
	require.NoError(t, err)

	require.Len(t, r.Budgets, 1)
	b := r.Budgets[0]
	assert.Equal(t, "708.00", b.Planned.StringFixed(2))
	assert.True(t, b.Planned.Equal(d("708")))
	assert.True(t, b.Actual.IsZero())
	assert.True(t, b.Remaining.Equal(d("708")))
	assert.Equal(t, "USD", b.Currency)
	assert.Equal(t, "EUR", b.NativeCurrency)
	assertStat(t, r, StatLeftToSpend, "708", VariantNeutral)
	assertStat(t, r, StatMonthlyTarget, "-708", VariantNegative)
}

func TestReportComparisonAndHistory(t *testing.T) {
	r, err := newService(earnedBudgets()).Report(context.Background(), Request{AccountID: "acc", Month: march, PreferredCurrency: "USD"})
	require.NoError(t, err)

	assert.Equal(t, "Feb 2025", r.Comparison.PreviousMonth)
	assert.True(t, r.Comparison.PreviousNet.Equal(d("600")))
	assert.True(t, r.Comparison.Change.Equal(d("2250")))

	require.Len(t, r.History, 6)
	assert.Equal(t, "2024-10", r.History[0].Month.Key())
	assert.Equal(t, "2025-03", r.History[5].Month.Key())
	for i, p := range r.History[:4] {
		assert.True(t, p.Net.IsZero(), "month %d should be zero-filled", i)
	}
	assert.True(t, r.History[4].Net.Equal(d("600")))
	assert.True(t, r.History[5].Net.Equal(d("2850")))
}

func TestReportMultiCurrencyNet(t *testing.T) {
	s := seed.Seed{
		Accounts: []core.Account{{ID: "acc", Currency: "EUR"}},
		Transactions: []core.Transaction{
			tx("t1", "", core.Income, "1000", "EUR", "2025-03-01"),
			tx("t2", "", core.Income, "100", "USD", "2025-03-02"),
			tx("t3", "", core.Expense, "10.10", "EUR", "2025-03-03"),
			tx("t4", "", core.Expense, "20.20", "EUR", "2025-03-04"),
		},
		Rates: map[string]decimal.Decimal{"USD:EUR": d("0.9")},
	}
	r, err := newService(s).Report(context.Background(), Request{AccountID: "acc", Month: march, PreferredCurrency: "EUR"})
	require.NoError(t, err)

	assert.True(t, r.ActualIncome.Equal(d("1090")))
	assert.True(t, r.ActualExpense.Equal(d("30.30")))
	assertStat(t, r, StatNet, "1059.70", VariantPositive)
}

func TestReportUsesAccountDefaultsInGoalCurrency(t *testing.T) {
	goal := d("2000")
	s := earnedBudgets()
	s.Accounts[0].DefaultIncomeGoal = &goal
	s.Accounts[0].DefaultIncomeGoalCurrency = "EUR"
	s.Rates = map[string]decimal.Decimal{"EUR:USD": d("1.1")}

	r, err := newService(s).Report(context.Background(), Request{AccountID: "acc", Month: march, PreferredCurrency: "USD"})
	require.NoError(t, err)

	assert.Equal(t, income.SourceAccountDefault, r.MonthlyIncomeGoal.Source)
	assert.Equal(t, "EUR", r.MonthlyIncomeGoal.Currency)
	// 2000 EUR -> 2200 USD, minus 500 planned expense
	assertStat(t, r, StatMonthlyTarget, "1700", VariantPositive)
}

func TestReportCallerSuppliedAccounts(t *testing.T) {
	s := earnedBudgets()
	store := &failingStore{Store: memory.New(s), failAccounts: true}
	svc := NewService(store, memory.New(s), nil, log.Discard(), DefaultServiceConfig())

	r, err := svc.Report(context.Background(), Request{
		AccountID: "acc", Month: march, PreferredCurrency: "USD",
		Accounts: s.Accounts, Categories: s.Categories,
	})
	require.NoError(t, err, "supplied accounts must not be fetched")
	assert.Len(t, r.Accounts, 1)
}

func TestReportAccountDefaultWithoutSuppliedAccount(t *testing.T) {
	goal := d("4000")
	s := earnedBudgets()
	s.Accounts[0].DefaultIncomeGoal = &goal
	s.Accounts[0].DefaultIncomeGoalCurrency = "USD"
	svc := NewService(memory.New(s), memory.New(s), nil, log.Discard(), DefaultServiceConfig())

	r, err := svc.Report(context.Background(), Request{
		AccountID: "acc", Month: march, PreferredCurrency: "USD",
		Accounts: []core.Account{{ID: "other", Currency: "USD"}},
	})
	require.NoError(t, err)

	assert.Equal(t, income.SourceAccountDefault, r.MonthlyIncomeGoal.Source)
	assert.True(t, r.MonthlyIncomeGoal.Amount.Equal(goal), "goal = %s", r.MonthlyIncomeGoal.Amount)
	assert.True(t, r.MonthlyIncomeGoal.IsDefault)
	// 4000 goal minus 500 planned expense
	assertStat(t, r, StatMonthlyTarget, "3500", VariantPositive)
}

type failingStore struct {
	*memory.Store
	failAccounts bool
	failBudgets  bool
}

var errUpstream = errors.New("upstream unavailable")

func (f *failingStore) ListAccounts(ctx context.Context, userID string) ([]core.Account, error) {
	if f.failAccounts {
		return nil, errUpstream
	}
	return f.Store.ListAccounts(ctx, userID)
}

func (f *failingStore) ListBudgets(ctx context.Context, accountID string, m core.Month) ([]core.Budget, error) {
	if f.failBudgets {
		return nil, errUpstream
	}
	return f.Store.ListBudgets(ctx, accountID, m)
}

type failingRates struct{}

func (failingRates) LoadRates(context.Context, []string) (map[string]decimal.Decimal, error) {
	return nil, errUpstream
}

func TestReportFailures(t *testing.T) {
	multi := earnedBudgets()
	multi.Accounts = append(multi.Accounts, core.Account{ID: "other", Currency: "GBP"})

	tests := []struct {
		name    string
		svc     *Service
		req     Request
		wantErr error
	}{
		{
			name:    "store failure",
			svc:     NewService(&failingStore{Store: memory.New(earnedBudgets()), failBudgets: true}, memory.New(earnedBudgets()), nil, log.Discard(), DefaultServiceConfig()),
			req:     Request{AccountID: "acc", Month: march, PreferredCurrency: "USD"},
			wantErr: errUpstream,
		},
		{
			name:    "rate source failure",
			svc:     NewService(memory.New(earnedBudgets()), failingRates{}, nil, log.Discard(), DefaultServiceConfig()),
			req:     Request{AccountID: "acc", Month: march, PreferredCurrency: "EUR"},
			wantErr: errUpstream,
		},
		{
			name:    "missing rate pair",
			svc:     newService(multi),
			req:     Request{AccountID: "acc", Month: march, PreferredCurrency: "USD"},
			wantErr: currency.ErrIncompleteRates,
		},
		{
			name:    "no account",
			svc:     newService(earnedBudgets()),
			req:     Request{Month: march},
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "bad currency",
			svc:     newService(earnedBudgets()),
			req:     Request{AccountID: "acc", Month: march, PreferredCurrency: "ZZZ"},
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "zero month",
			svc:     newService(earnedBudgets()),
			req:     Request{AccountID: "acc"},
			wantErr: ErrInvalidRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := tt.svc.Report(context.Background(), tt.req)
			assert.Nil(t, r, "no partial report")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestReportDefaultsPreferredCurrency(t *testing.T) {
	cfg := DefaultServiceConfig()
	cfg.DefaultCurrency = "USD"
	cfg.HistoryMonths = 3
	s := earnedBudgets()
	svc := NewService(memory.New(s), memory.New(s), nil, log.Discard(), cfg)

	r, err := svc.Report(context.Background(), Request{AccountID: "acc", Month: march})
	require.NoError(t, err)
	assert.Equal(t, "USD", r.PreferredCurrency)
	assert.Len(t, r.History, 3)
}

type countingPrices struct {
	calls int
	*memory.Store
}

func (c *countingPrices) LoadPrices(ctx context.Context, symbols []string) (map[string]core.Quote, error) {
	c.calls++
	return c.Store.LoadPrices(ctx, symbols)
}

func TestHoldingsReport(t *testing.T) {
	fetched := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s := seed.Seed{
		Holdings: []core.Holding{
			{ID: "h1", AccountID: "acc", Symbol: "aapl", Quantity: d("10"), AverageCost: d("150"), Currency: "USD"},
			{ID: "h2", AccountID: "acc", Symbol: "AAPL", Quantity: d("1"), AverageCost: d("170"), Currency: "USD"},
			{ID: "h3", AccountID: "acc", Symbol: "VWCE", Quantity: d("2"), AverageCost: d("100"), Currency: "EUR"},
			{ID: "h4", AccountID: "other", Symbol: "MSFT", Quantity: d("1"), AverageCost: d("300"), Currency: "USD"},
		},
		Rates:  map[string]decimal.Decimal{"USD:EUR": d("0.9")},
		Prices: map[string]core.Quote{"AAPL": {Price: d("180"), FetchedAt: fetched}},
	}
	prices := &countingPrices{Store: memory.New(s)}
	svc := NewService(memory.New(s), memory.New(s), prices, log.Discard(), DefaultServiceConfig())

	r, err := svc.Holdings(context.Background(), HoldingsRequest{AccountID: "acc", PreferredCurrency: "EUR"})
	require.NoError(t, err)

	assert.Equal(t, 1, prices.calls, "one batched price lookup")
	require.Len(t, r.Holdings, 3)
	assert.Equal(t, "aapl", r.Holdings[0].Symbol)
	require.NotNil(t, r.Holdings[0].MarketValueConverted)
	assert.True(t, r.Holdings[0].MarketValueConverted.Equal(d("1620")))
	assert.Nil(t, r.Holdings[2].CurrentPrice)

	// cost: 1350 + 153 + 200, market: 1620 + 162 + 200
	assert.True(t, r.Totals.CostBasis.Equal(d("1703")), "cost %s", r.Totals.CostBasis)
	assert.True(t, r.Totals.MarketValue.Equal(d("1982")), "market %s", r.Totals.MarketValue)
	assert.Equal(t, 1, r.Totals.UnpricedCount)

	all, err := svc.Holdings(context.Background(), HoldingsRequest{PreferredCurrency: "USD"})
	require.NoError(t, err)
	assert.Len(t, all.Holdings, 4)
}

func TestHoldingsWithoutPriceSource(t *testing.T) {
	s := seed.Seed{Holdings: []core.Holding{{ID: "h1", AccountID: "acc", Symbol: "X", Quantity: d("2"), AverageCost: d("5"), Currency: "USD"}}}
	svc := NewService(memory.New(s), memory.New(s), nil, log.Discard(), DefaultServiceConfig())

	r, err := svc.Holdings(context.Background(), HoldingsRequest{PreferredCurrency: "USD"})
	require.NoError(t, err)
	assert.True(t, r.Totals.GainLoss.IsZero())
	assert.True(t, r.Totals.GainLossPercent.IsZero())
}
