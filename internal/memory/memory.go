// Package memory is an in-process record store, rate source and price source.
// It backs the memory data backend and doubles as the fake collaborator in tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/ports"
	"bilancio/internal/seed"

	"github.com/shopspring/decimal"
)

// SeedFile is the fixture NewFromDir looks for.
const SeedFile = "seed.json"

var (
	_ ports.RecordStore = (*Store)(nil)
	_ ports.RateSource  = (*Store)(nil)
	_ ports.PriceSource = (*Store)(nil)
)

type Store struct {
	mu   sync.RWMutex
	data seed.Seed

	// StaleAfter marks quotes older than this as stale. Zero disables it.
	StaleAfter time.Duration
	now        func() time.Time
}

func New(s seed.Seed) *Store {
	return &Store{data: s, now: time.Now}
}

// NewFromDir loads base/seed.json. A missing file yields an empty store.
func NewFromDir(base string) (*Store, error) {
	path := filepath.Join(base, SeedFile)
	s, err := seed.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(seed.Seed{}), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return New(s), nil
}

// SetClock replaces the time source used for quote staleness.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetQuote upserts one quote, for tests and the price watcher demo.
func (s *Store) SetQuote(symbol string, q core.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.Prices == nil {
		s.data.Prices = map[string]core.Quote{}
	}
	s.data.Prices[core.NormalizeSymbol(symbol)] = q
}

func (s *Store) ListAccounts(_ context.Context, userID string) ([]core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Account
	for _, a := range s.data.Accounts {
		if userID == "" || a.UserID == "" || a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) GetAccountDefaults(_ context.Context, accountID string) (*core.AccountDefaults, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.data.Accounts {
		if a.ID != accountID || a.DefaultIncomeGoal == nil {
			continue
		}
		goal := *a.DefaultIncomeGoal
		return &core.AccountDefaults{AccountID: a.ID, DefaultIncomeGoal: &goal, Currency: a.DefaultIncomeGoalCurrency}, nil
	}
	return nil, nil
}

func (s *Store) ListCategories(_ context.Context, userID string, includeArchived bool) ([]core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Category
	for _, c := range s.data.Categories {
		if c.Archived && !includeArchived {
			continue
		}
		if userID != "" && c.UserID != "" && c.UserID != userID {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) ListTransactions(_ context.Context, f ports.TransactionFilter) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Transaction
	for _, t := range s.data.Transactions {
		if f.AccountID != "" && t.AccountID != f.AccountID {
			continue
		}
		if !f.From.IsZero() && t.Month.Before(f.From.Time) {
			continue
		}
		if !f.To.IsZero() && t.Month.After(f.To.Time) {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b core.Transaction) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) ListBudgets(_ context.Context, accountID string, month core.Month) ([]core.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Budget
	for _, b := range s.data.Budgets {
		if b.AccountID == accountID && b.Month.Equal(month) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) ListRecurringTemplates(_ context.Context, accountID string) ([]core.RecurringTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.RecurringTemplate
	for _, r := range s.data.Recurring {
		if r.AccountID == accountID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) GetMonthlyIncomeGoal(_ context.Context, accountID string, month core.Month) (*core.MonthlyIncomeGoal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.data.IncomeGoals {
		if g.AccountID == accountID && g.Month.Equal(month) {
			goal := g
			return &goal, nil
		}
	}
	return nil, nil
}

func (s *Store) ListHoldings(_ context.Context, accountID string) ([]core.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Holding
	for _, h := range s.data.Holdings {
		if accountID == "" || h.AccountID == accountID {
			out = append(out, h)
		}
	}
	return out, nil
}

// LoadRates returns every stored pair whose ends are both requested.
func (s *Store) LoadRates(_ context.Context, currencies []string) (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[string]bool, len(currencies))
	for _, c := range currencies {
		want[core.NormalizeCurrency(c)] = true
	}
	out := make(map[string]decimal.Decimal)
	for k, v := range s.data.Rates {
		from, to, ok := strings.Cut(k, ":")
		if ok && want[from] && want[to] {
			out[k] = v
		}
	}
	for c := range want {
		out[c+":"+c] = decimal.NewFromInt(1)
	}
	return out, nil
}

func (s *Store) LoadPrices(_ context.Context, symbols []string) (map[string]core.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	out := make(map[string]core.Quote, len(symbols))
	for _, sym := range symbols {
		sym = core.NormalizeSymbol(sym)
		q, ok := s.data.Prices[sym]
		if !ok {
			continue
		}
		if s.StaleAfter > 0 && now.Sub(q.FetchedAt) > s.StaleAfter {
			q.IsStale = true
		}
		out[sym] = q
	}
	return out, nil
}
