// Package seed reads the JSON fixture format shared by the memory backend and
// the SQLite import command.
package seed

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"bilancio/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Seed is a full snapshot of ledger records plus rates and quotes.
type Seed struct {
	Accounts     []core.Account
	Categories   []core.Category
	Transactions []core.Transaction
	Budgets      []core.Budget
	Recurring    []core.RecurringTemplate
	IncomeGoals  []core.MonthlyIncomeGoal
	Holdings     []core.Holding
	Rates        map[string]decimal.Decimal // "FROM:TO"
	Prices       map[string]core.Quote      // upper-case symbol
}

// Validate runs the entity checks on every record.
func (s Seed) Validate() error {
	for _, a := range s.Accounts {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("account %q: %w", a.ID, err)
		}
	}
	for _, c := range s.Categories {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("category %q: %w", c.ID, err)
		}
	}
	for _, t := range s.Transactions {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("transaction %q: %w", t.ID, err)
		}
	}
	for _, b := range s.Budgets {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("budget %q: %w", b.ID, err)
		}
	}
	for _, r := range s.Recurring {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("recurring template %q: %w", r.ID, err)
		}
	}
	for _, g := range s.IncomeGoals {
		if err := core.ValidateCurrency(g.Currency); err != nil {
			return fmt.Errorf("income goal %s/%s: %w", g.AccountID, g.Month, err)
		}
	}
	for _, h := range s.Holdings {
		if err := h.Validate(); err != nil {
			return fmt.Errorf("holding %q: %w", h.ID, err)
		}
	}
	return nil
}

type file struct {
	Accounts []struct {
		ID                        string           `json:"id"`
		UserID                    string           `json:"userId"`
		Name                      string           `json:"name"`
		Currency                  string           `json:"currency"`
		DefaultIncomeGoal         *decimal.Decimal `json:"defaultIncomeGoal"`
		DefaultIncomeGoalCurrency string           `json:"defaultIncomeGoalCurrency"`
	} `json:"accounts"`
	Categories []struct {
		ID       string `json:"id"`
		UserID   string `json:"userId"`
		Name     string `json:"name"`
		Type     string `json:"type"`
		Archived bool   `json:"archived"`
	} `json:"categories"`
	Transactions []struct {
		ID          string          `json:"id"`
		AccountID   string          `json:"accountId"`
		CategoryID  string          `json:"categoryId"`
		Type        string          `json:"type"`
		Amount      decimal.Decimal `json:"amount"`
		Currency    string          `json:"currency"`
		Date        string          `json:"date"`
		Description string          `json:"description"`
	} `json:"transactions"`
	Budgets []struct {
		ID         string          `json:"id"`
		AccountID  string          `json:"accountId"`
		CategoryID string          `json:"categoryId"`
		Month      core.Month      `json:"month"`
		Planned    decimal.Decimal `json:"planned"`
		Currency   string          `json:"currency"`
	} `json:"budgets"`
	Recurring []struct {
		ID         string          `json:"id"`
		AccountID  string          `json:"accountId"`
		CategoryID string          `json:"categoryId"`
		Type       string          `json:"type"`
		Amount     decimal.Decimal `json:"amount"`
		DayOfMonth int             `json:"dayOfMonth"`
		IsActive   bool            `json:"isActive"`
		StartMonth core.Month      `json:"startMonth"`
		EndMonth   *core.Month     `json:"endMonth"`
	} `json:"recurring"`
	IncomeGoals []struct {
		AccountID string          `json:"accountId"`
		Month     core.Month      `json:"month"`
		Amount    decimal.Decimal `json:"amount"`
		Currency  string          `json:"currency"`
	} `json:"incomeGoals"`
	Holdings []struct {
		ID          string          `json:"id"`
		AccountID   string          `json:"accountId"`
		CategoryID  string          `json:"categoryId"`
		Symbol      string          `json:"symbol"`
		Quantity    decimal.Decimal `json:"quantity"`
		AverageCost decimal.Decimal `json:"averageCost"`
		Currency    string          `json:"currency"`
	} `json:"holdings"`
	Rates  map[string]decimal.Decimal `json:"rates"`
	Prices map[string]struct {
		Price         decimal.Decimal `json:"price"`
		ChangePercent decimal.Decimal `json:"changePercent"`
		FetchedAt     time.Time       `json:"fetchedAt"`
	} `json:"prices"`
}

// ReadFile decodes and validates a seed file.
func ReadFile(path string) (Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return Seed{}, fmt.Errorf("open seed: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes a seed document. Transaction dates use "2006-01-02", months use
// "2006-01" and amounts may be JSON strings or numbers. Transactions, budgets,
// recurring templates and holdings without an id get a fresh UUID.
func Read(r io.Reader) (Seed, error) {
	var f file
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}

	var s Seed
	for _, a := range f.Accounts {
		s.Accounts = append(s.Accounts, core.Account{
			ID:                        a.ID,
			UserID:                    a.UserID,
			Name:                      a.Name,
			Currency:                  core.NormalizeCurrency(a.Currency),
			DefaultIncomeGoal:         a.DefaultIncomeGoal,
			DefaultIncomeGoalCurrency: core.NormalizeCurrency(a.DefaultIncomeGoalCurrency),
		})
	}
	for _, c := range f.Categories {
		typ, err := core.ParseTransactionType(c.Type)
		if err != nil {
			return Seed{}, fmt.Errorf("category %q: %w", c.ID, err)
		}
		s.Categories = append(s.Categories, core.Category{ID: c.ID, UserID: c.UserID, Name: c.Name, Type: typ, Archived: c.Archived})
	}
	for _, t := range f.Transactions {
		typ, err := core.ParseTransactionType(t.Type)
		if err != nil {
			return Seed{}, fmt.Errorf("transaction %q: %w", t.ID, err)
		}
		date, err := time.Parse(time.DateOnly, t.Date)
		if err != nil {
			return Seed{}, fmt.Errorf("transaction %q: parse date: %w", t.ID, err)
		}
		s.Transactions = append(s.Transactions, core.Transaction{
			ID:          newID(t.ID),
			AccountID:   t.AccountID,
			CategoryID:  t.CategoryID,
			Type:        typ,
			Amount:      t.Amount,
			Currency:    core.NormalizeCurrency(t.Currency),
			Date:        date,
			Month:       core.MonthOf(date),
			Description: t.Description,
		})
	}
	for _, b := range f.Budgets {
		s.Budgets = append(s.Budgets, core.Budget{
			ID: newID(b.ID), AccountID: b.AccountID, CategoryID: b.CategoryID,
			Month: b.Month, Planned: b.Planned, Currency: core.NormalizeCurrency(b.Currency),
		})
	}
	for _, r := range f.Recurring {
		typ, err := core.ParseTransactionType(r.Type)
		if err != nil {
			return Seed{}, fmt.Errorf("recurring template %q: %w", r.ID, err)
		}
		tpl := core.RecurringTemplate{
			ID: newID(r.ID), AccountID: r.AccountID, CategoryID: r.CategoryID, Type: typ,
			Amount: r.Amount, DayOfMonth: r.DayOfMonth, IsActive: r.IsActive, StartMonth: r.StartMonth,
		}
		if r.EndMonth != nil {
			tpl.EndMonth = *r.EndMonth
		}
		s.Recurring = append(s.Recurring, tpl)
	}
	for _, g := range f.IncomeGoals {
		s.IncomeGoals = append(s.IncomeGoals, core.MonthlyIncomeGoal{
			AccountID: g.AccountID, Month: g.Month, Amount: g.Amount, Currency: core.NormalizeCurrency(g.Currency),
		})
	}
	for _, h := range f.Holdings {
		s.Holdings = append(s.Holdings, core.Holding{
			ID: newID(h.ID), AccountID: h.AccountID, CategoryID: h.CategoryID, Symbol: h.Symbol,
			Quantity: h.Quantity, AverageCost: h.AverageCost, Currency: core.NormalizeCurrency(h.Currency),
		})
	}
	if len(f.Rates) > 0 {
		s.Rates = make(map[string]decimal.Decimal, len(f.Rates))
		for k, v := range f.Rates {
			s.Rates[strings.ToUpper(strings.TrimSpace(k))] = v
		}
	}
	if len(f.Prices) > 0 {
		s.Prices = make(map[string]core.Quote, len(f.Prices))
		for sym, p := range f.Prices {
			s.Prices[core.NormalizeSymbol(sym)] = core.Quote{Price: p.Price, ChangePercent: p.ChangePercent, FetchedAt: p.FetchedAt}
		}
	}

	if err := s.Validate(); err != nil {
		return Seed{}, err
	}
	return s, nil
}

func newID(id string) string {
	if strings.TrimSpace(id) == "" {
		return uuid.NewString()
	}
	return id
}
