package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bilancio/internal/budget"
	"bilancio/internal/core"
	"bilancio/internal/currency"
	"bilancio/internal/income"
	"bilancio/internal/log"
	"bilancio/internal/ports"
	"bilancio/internal/trend"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Stat variants.
const (
	VariantPositive = "positive"
	VariantNegative = "negative"
	VariantNeutral  = "neutral"
)

// Stat keys, in display order.
const (
	StatNet           = "net"
	StatOnTrack       = "on_track"
	StatLeftToSpend   = "left_to_spend"
	StatMonthlyTarget = "monthly_target"
)

// Request selects the account, month and currency of a report. Accounts and
// Categories may be supplied by a caller that already holds them; nil means
// fetch.
type Request struct {
	AccountID         string
	UserID            string
	Month             core.Month
	PreferredCurrency string
	HistoryMonths     int
	Accounts          []core.Account
	Categories        []core.Category
}

type Stat struct {
	Key      string          `json:"key"`
	Label    string          `json:"label"`
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
	Variant  string          `json:"variant"`
}

// Comparison is the current month against the previous one.
type Comparison struct {
	PreviousMonth string          `json:"previousMonth"`
	PreviousNet   decimal.Decimal `json:"previousNet"`
	CurrentNet    decimal.Decimal `json:"currentNet"`
	Change        decimal.Decimal `json:"change"`
}

type Report struct {
	AccountID         string           `json:"accountId"`
	Month             core.Month       `json:"month"`
	PreferredCurrency string           `json:"preferredCurrency"`
	Stats             []Stat           `json:"stats"`
	Budgets           []budget.Summary `json:"budgets"`
	Comparison        Comparison       `json:"comparison"`
	History           []trend.Point    `json:"history"`
	Accounts          []core.Account   `json:"accounts"`
	ActualIncome      decimal.Decimal  `json:"actualIncome"`
	ActualExpense     decimal.Decimal  `json:"actualExpense"`
	MonthlyIncomeGoal income.Goal      `json:"monthlyIncomeGoal"`
	GeneratedAt       time.Time        `json:"generatedAt"`
}

// Stat returns the stat with key, or false.
func (r *Report) Stat(key string) (Stat, bool) {
	for _, s := range r.Stats {
		if s.Key == key {
			return s, true
		}
	}
	return Stat{}, false
}

// records is everything a report reads from the store.
type records struct {
	accounts    []core.Account
	categories  []core.Category
	current     []core.Transaction
	previous    []core.Transaction
	history     []core.Transaction
	budgets     []core.Budget
	recurring   []core.RecurringTemplate
	monthlyGoal *core.MonthlyIncomeGoal
	defaults    *core.AccountDefaults
}

// Normalize validates req and fills the configured defaults. Requests that
// normalize to the same value produce the same report.
func (s *Service) Normalize(req Request) (Request, error) {
	req.AccountID = strings.TrimSpace(req.AccountID)
	if req.AccountID == "" {
		return req, fmt.Errorf("%w: account id is required", ErrInvalidRequest)
	}
	if err := req.Month.Validate(); err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	req.PreferredCurrency = core.NormalizeCurrency(req.PreferredCurrency)
	if req.PreferredCurrency == "" {
		req.PreferredCurrency = core.NormalizeCurrency(s.config.DefaultCurrency)
	}
	if err := core.ValidateCurrency(req.PreferredCurrency); err != nil {
		return req, fmt.Errorf("%w: preferred currency %q", ErrInvalidRequest, req.PreferredCurrency)
	}
	if req.HistoryMonths <= 0 {
		req.HistoryMonths = s.config.HistoryMonths
	}
	return req, nil
}

// Report builds the dashboard for one account and month.
func (s *Service) Report(ctx context.Context, req Request) (*Report, error) {
	start := s.now()
	req, err := s.Normalize(req)
	if err != nil {
		return nil, err
	}
	logger := s.logger.WithFields(log.NewFields().
		WithOperation(log.OpReport).
		WithAccount(req.AccountID).
		WithMonth(req.Month).
		WithCurrency(req.PreferredCurrency))

	recs, err := s.fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	logger.DebugContext(ctx, "Report records fetched",
		"transactions", len(recs.current)+len(recs.previous)+len(recs.history),
		"budgets", len(recs.budgets),
		"recurring", len(recs.recurring))

	rates, err := currency.Load(ctx, s.rates, closure(req.PreferredCurrency, recs)...)
	if err != nil {
		return nil, err
	}

	report := compute(req, recs, rates)
	report.GeneratedAt = s.now()
	logger.InfoContext(ctx, "Report built", log.FieldDuration, report.GeneratedAt.Sub(start).Milliseconds())
	return report, nil
}

// fetch issues every read concurrently. The first failure cancels the rest.
func (s *Service) fetch(ctx context.Context, req Request) (*records, error) {
	recs := &records{accounts: req.Accounts, categories: req.Categories}
	g, ctx := errgroup.WithContext(ctx)

	if recs.accounts == nil {
		g.Go(func() (err error) {
			recs.accounts, err = s.store.ListAccounts(ctx, req.UserID)
			return wrap("list accounts", err)
		})
	}
	if recs.categories == nil {
		// archived categories still name old budgets
		g.Go(func() (err error) {
			recs.categories, err = s.store.ListCategories(ctx, req.UserID, true)
			return wrap("list categories", err)
		})
	}
	g.Go(func() (err error) {
		recs.current, err = s.store.ListTransactions(ctx, ports.TransactionFilter{AccountID: req.AccountID, From: req.Month, To: req.Month})
		return wrap("list current transactions", err)
	})
	g.Go(func() (err error) {
		prev := req.Month.Previous()
		recs.previous, err = s.store.ListTransactions(ctx, ports.TransactionFilter{AccountID: req.AccountID, From: prev, To: prev})
		return wrap("list previous transactions", err)
	})
	g.Go(func() (err error) {
		from := trend.Start(req.Month, req.HistoryMonths)
		recs.history, err = s.store.ListTransactions(ctx, ports.TransactionFilter{AccountID: req.AccountID, From: from, To: req.Month})
		return wrap("list history transactions", err)
	})
	g.Go(func() (err error) {
		recs.budgets, err = s.store.ListBudgets(ctx, req.AccountID, req.Month)
		return wrap("list budgets", err)
	})
	g.Go(func() (err error) {
		recs.recurring, err = s.store.ListRecurringTemplates(ctx, req.AccountID)
		return wrap("list recurring templates", err)
	})
	g.Go(func() (err error) {
		recs.monthlyGoal, err = s.store.GetMonthlyIncomeGoal(ctx, req.AccountID, req.Month)
		return wrap("get monthly income goal", err)
	})
	g.Go(func() (err error) {
		recs.defaults, err = s.store.GetAccountDefaults(ctx, req.AccountID)
		return wrap("get account defaults", err)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	recs.accounts = mergeDefaults(recs.accounts, recs.defaults)
	return recs, nil
}

func wrap(op string, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// mergeDefaults attaches the defaults row to its account without mutating
// the caller's slice.
func mergeDefaults(accounts []core.Account, d *core.AccountDefaults) []core.Account {
	if d == nil || d.DefaultIncomeGoal == nil {
		return accounts
	}
	out := make([]core.Account, len(accounts))
	copy(out, accounts)
	for i := range out {
		if out[i].ID != d.AccountID {
			continue
		}
		goal := *d.DefaultIncomeGoal
		out[i].DefaultIncomeGoal = &goal
		if d.Currency != "" {
			out[i].DefaultIncomeGoalCurrency = d.Currency
		}
	}
	return out
}

// closure lists every currency a report may convert from or to.
func closure(preferred string, r *records) []string {
	codes := []string{preferred}
	for _, a := range r.accounts {
		codes = append(codes, a.Currency, a.DefaultIncomeGoalCurrency)
	}
	for _, b := range r.budgets {
		codes = append(codes, b.Currency)
	}
	for _, set := range [][]core.Transaction{r.current, r.previous, r.history} {
		for _, t := range set {
			codes = append(codes, t.Currency)
		}
	}
	if r.monthlyGoal != nil {
		codes = append(codes, r.monthlyGoal.Currency)
	}
	if r.defaults != nil {
		codes = append(codes, r.defaults.Currency)
	}
	return currency.Closure(codes...)
}

func compute(req Request, r *records, rates currency.RateCache) *Report {
	pref := req.PreferredCurrency

	summaries := budget.Summarize(r.budgets, r.current, r.categories, pref, rates)
	totals := budget.Total(summaries)
	current := trend.Aggregate(req.Month, r.current, pref, rates)
	previous := trend.Aggregate(req.Month.Previous(), r.previous, pref, rates)

	goal := income.Resolve(income.Inputs{
		AccountID:            req.AccountID,
		Month:                req.Month,
		MonthlyGoal:          r.monthlyGoal,
		Defaults:             r.defaults,
		Accounts:             r.accounts,
		Recurring:            r.recurring,
		IncomeBudgetTotal:    totals.PlannedIncome,
		IncomeBudgetCurrency: pref,
	})
	if goal.Currency == "" {
		goal.Currency = pref
	}
	goalPref := core.RoundMoney(currency.Convert(goal.Amount, goal.Currency, pref, rates))

	onTrack := current.Income.Sub(current.Expense.Add(totals.RemainingExpense))
	plannedNet := goalPref.Sub(totals.PlannedExpense)

	stats := []Stat{
		{Key: StatNet, Label: "Net this month", Value: current.Net, Currency: pref, Variant: polarity(current.Net)},
		{Key: StatOnTrack, Label: "On track for", Value: onTrack, Currency: pref, Variant: polarity(onTrack)},
		{Key: StatLeftToSpend, Label: "Left to spend", Value: totals.RemainingExpense, Currency: pref, Variant: VariantNeutral},
		{Key: StatMonthlyTarget, Label: "Monthly target", Value: plannedNet, Currency: pref, Variant: polarity(plannedNet)},
	}

	return &Report{
		AccountID:         req.AccountID,
		Month:             req.Month,
		PreferredCurrency: pref,
		Stats:             stats,
		Budgets:           summaries,
		Comparison: Comparison{
			PreviousMonth: req.Month.Previous().Label(),
			PreviousNet:   previous.Net,
			CurrentNet:    current.Net,
			Change:        current.Net.Sub(previous.Net),
		},
		History:           trend.History(req.Month, req.HistoryMonths, r.history, pref, rates),
		Accounts:          r.accounts,
		ActualIncome:      current.Income,
		ActualExpense:     current.Expense,
		MonthlyIncomeGoal: goal,
	}
}

func polarity(d decimal.Decimal) string {
	if d.IsNegative() {
		return VariantNegative
	}
	return VariantPositive
}
