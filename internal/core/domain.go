package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "INCOME"
	Expense TransactionType = "EXPENSE"
)

type (
	// TransactionType classifies transactions, categories, budgets and recurring templates.
	TransactionType string

	Account struct {
		ID       string
		UserID   string // owner; empty for accounts visible to everyone
		Name     string
		Currency string
		// Optional account-level income goal. Nil when never set.
		DefaultIncomeGoal         *decimal.Decimal
		DefaultIncomeGoalCurrency string
	}

	Category struct {
		ID       string
		UserID   string // empty for shared categories
		Name     string
		Type     TransactionType
		Archived bool
	}

	Transaction struct {
		ID          string
		AccountID   string
		CategoryID  string
		Type        TransactionType
		Amount      decimal.Decimal
		Currency    string
		Date        time.Time
		Month       Month // always MonthOf(Date)
		Description string
	}

	Budget struct {
		ID         string
		AccountID  string
		CategoryID string
		Month      Month
		Planned    decimal.Decimal
		Currency   string
	}

	RecurringTemplate struct {
		ID         string
		AccountID  string
		CategoryID string
		Type       TransactionType
		Amount     decimal.Decimal
		DayOfMonth int
		IsActive   bool
		StartMonth Month
		EndMonth   Month // zero when open-ended
	}

	MonthlyIncomeGoal struct {
		AccountID string
		Month     Month
		Amount    decimal.Decimal
		Currency  string
	}

	// AccountDefaults is the default income goal attached to an account record.
	AccountDefaults struct {
		AccountID         string
		DefaultIncomeGoal *decimal.Decimal
		Currency          string
	}

	Holding struct {
		ID          string
		AccountID   string
		CategoryID  string
		Symbol      string // display symbol, preserved as stored
		Quantity    decimal.Decimal
		AverageCost decimal.Decimal
		Currency    string
	}

	// Quote is a price source answer for one symbol.
	Quote struct {
		Price         decimal.Decimal
		ChangePercent decimal.Decimal
		FetchedAt     time.Time
		IsStale       bool
	}
)

var (
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrEmptyID          = errors.New("empty id")
	ErrEmptySymbol      = errors.New("empty symbol")
	ErrNegativeQuantity = errors.New("negative quantity")
)

// Validate reports whether t is INCOME or EXPENSE.
func (t TransactionType) Validate() error {
	switch t {
	case Income, Expense:
		return nil
	default:
		return ErrInvalidType
	}
}

// ParseTransactionType accepts any casing of "income" / "expense".
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToUpper(strings.TrimSpace(s)))
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

// LookupSymbol is the key used against the price source.
func (h Holding) LookupSymbol() string {
	return NormalizeSymbol(h.Symbol)
}

func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// The Validate methods below are used by the store adapters when rows enter the
// system. The aggregation packages assume already valid records.

func (a Account) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return ErrEmptyID
	}
	if err := ValidateCurrency(a.Currency); err != nil {
		return err
	}
	if a.DefaultIncomeGoal != nil && a.DefaultIncomeGoalCurrency != "" {
		return ValidateCurrency(a.DefaultIncomeGoalCurrency)
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return ErrEmptyID
	}
	return c.Type.Validate()
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" || strings.TrimSpace(t.AccountID) == "" {
		return ErrEmptyID
	}
	if err := t.Type.Validate(); err != nil {
		return err
	}
	if t.Date.IsZero() {
		return ErrInvalidMonth
	}
	if !t.Month.Equal(MonthOf(t.Date)) {
		return errors.New("transaction month does not match its date")
	}
	if t.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	return ValidateCurrency(t.Currency)
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.ID) == "" || strings.TrimSpace(b.AccountID) == "" || strings.TrimSpace(b.CategoryID) == "" {
		return ErrEmptyID
	}
	if err := b.Month.Validate(); err != nil {
		return err
	}
	if b.Planned.IsNegative() {
		return ErrInvalidAmount
	}
	return ValidateCurrency(b.Currency)
}

func (r RecurringTemplate) Validate() error {
	if strings.TrimSpace(r.ID) == "" || strings.TrimSpace(r.AccountID) == "" {
		return ErrEmptyID
	}
	if err := r.Type.Validate(); err != nil {
		return err
	}
	if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
		return errors.New("invalid day of month")
	}
	if !r.EndMonth.IsZero() && r.EndMonth.Before(r.StartMonth.Time) {
		return errors.New("end month must not precede start month")
	}
	return nil
}

func (h Holding) Validate() error {
	if strings.TrimSpace(h.ID) == "" {
		return ErrEmptyID
	}
	if h.LookupSymbol() == "" {
		return ErrEmptySymbol
	}
	if h.Quantity.IsNegative() {
		return ErrNegativeQuantity
	}
	return ValidateCurrency(h.Currency)
}
