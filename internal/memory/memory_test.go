package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/ports"
	"bilancio/internal/seed"

	"github.com/shopspring/decimal"
)

func date(s string) time.Time {
	t, _ := time.Parse(time.DateOnly, s)
	return t
}

func tx(id, acc string, typ core.TransactionType, amount, day string) core.Transaction {
	d := date(day)
	return core.Transaction{ID: id, AccountID: acc, Type: typ, Amount: decimal.RequireFromString(amount), Currency: "USD", Date: d, Month: core.MonthOf(d)}
}

func TestListTransactionsFilter(t *testing.T) {
	s := New(seed.Seed{Transactions: []core.Transaction{
		tx("t3", "a", core.Expense, "10", "2025-03-20"),
		tx("t1", "a", core.Income, "100", "2025-01-05"),
		tx("t2", "a", core.Expense, "5", "2025-02-10"),
		tx("t4", "b", core.Expense, "7", "2025-03-01"),
	}})
	ctx := context.Background()

	tests := []struct {
		name   string
		filter ports.TransactionFilter
		want   []string
	}{
		{"all", ports.TransactionFilter{}, []string{"t1", "t2", "t4", "t3"}},
		{"account", ports.TransactionFilter{AccountID: "a"}, []string{"t1", "t2", "t3"}},
		{"range", ports.TransactionFilter{AccountID: "a", From: core.NewMonth(2025, 2), To: core.NewMonth(2025, 3)}, []string{"t2", "t3"}},
		{"type", ports.TransactionFilter{Type: core.Expense, To: core.NewMonth(2025, 2)}, []string{"t2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListTransactions(ctx, tt.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d transactions, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Fatalf("position %d: got %s want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestOptionalRowsReturnNil(t *testing.T) {
	goal := decimal.NewFromInt(4000)
	s := New(seed.Seed{
		Accounts:    []core.Account{{ID: "a", Currency: "USD"}, {ID: "b", Currency: "EUR", DefaultIncomeGoal: &goal, DefaultIncomeGoalCurrency: "EUR"}},
		IncomeGoals: []core.MonthlyIncomeGoal{{AccountID: "b", Month: core.NewMonth(2025, 3), Amount: goal, Currency: "EUR"}},
	})
	ctx := context.Background()

	if d, err := s.GetAccountDefaults(ctx, "a"); err != nil || d != nil {
		t.Fatalf("expected nil defaults, got %v %v", d, err)
	}
	d, err := s.GetAccountDefaults(ctx, "b")
	if err != nil || d == nil || !d.DefaultIncomeGoal.Equal(goal) {
		t.Fatalf("unexpected defaults %v %v", d, err)
	}
	if g, _ := s.GetMonthlyIncomeGoal(ctx, "b", core.NewMonth(2025, 4)); g != nil {
		t.Fatalf("expected no goal for April")
	}
	if g, _ := s.GetMonthlyIncomeGoal(ctx, "b", core.NewMonth(2025, 3)); g == nil {
		t.Fatalf("expected March goal")
	}
}

func TestLoadRatesOnlyRequestedPairs(t *testing.T) {
	s := New(seed.Seed{Rates: map[string]decimal.Decimal{
		"USD:EUR": decimal.RequireFromString("0.9"),
		"GBP:EUR": decimal.RequireFromString("1.17"),
	}})
	got, err := s.LoadRates(context.Background(), []string{"usd", "EUR"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected USD:EUR plus two identities, got %v", got)
	}
	if _, ok := got["GBP:EUR"]; ok {
		t.Fatalf("unrequested pair returned")
	}
}

func TestLoadPricesStaleness(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(seed.Seed{})
	s.StaleAfter = 15 * time.Minute
	s.SetClock(func() time.Time { return now })
	s.SetQuote("aapl", core.Quote{Price: decimal.NewFromInt(180), FetchedAt: now.Add(-time.Hour)})
	s.SetQuote("MSFT", core.Quote{Price: decimal.NewFromInt(400), FetchedAt: now.Add(-time.Minute)})

	got, err := s.LoadPrices(context.Background(), []string{"AAPL", "msft", "NOPE"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got["AAPL"].IsStale || got["MSFT"].IsStale {
		t.Fatalf("unexpected staleness: %+v", got)
	}
	if _, ok := got["NOPE"]; ok {
		t.Fatalf("unknown symbols must be absent")
	}
}

func TestNewFromDir(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFromDir(dir)
	if err != nil {
		t.Fatalf("missing seed should not fail: %v", err)
	}
	if accs, _ := s.ListAccounts(context.Background(), ""); len(accs) != 0 {
		t.Fatalf("expected empty store")
	}

	content := `{"accounts": [{"id": "a", "userId": "u1", "name": "Main", "currency": "EUR"}, {"id": "b", "userId": "u2", "currency": "EUR"}]}`
	if err := os.WriteFile(filepath.Join(dir, SeedFile), []byte(content), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	s, err = NewFromDir(dir)
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	accs, _ := s.ListAccounts(context.Background(), "u1")
	if len(accs) != 1 || accs[0].ID != "a" {
		t.Fatalf("unexpected accounts for u1: %+v", accs)
	}

	if err := os.WriteFile(filepath.Join(dir, SeedFile), []byte(`{"accounts": [{"id": ""}]}`), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	if _, err := NewFromDir(dir); err == nil {
		t.Fatalf("expected invalid seed to fail")
	}
}
