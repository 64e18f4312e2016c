package income

import (
	"bilancio/internal/core"

	"github.com/shopspring/decimal"
)

// Source names the tier a goal was resolved from.
type Source string

const (
	SourceMonthlyGoal     Source = "monthly_goal"
	SourceAccountDefault  Source = "account_default"
	SourceRecurringIncome Source = "recurring_income"
	SourceIncomeBudget    Source = "income_budget"
)

// Goal is the resolved target income. IsDefault is false only when an explicit
// monthly goal was found.
type Goal struct {
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	IsDefault bool            `json:"isDefault"`
	Source    Source          `json:"source"`
}

// Inputs carries every candidate source for one account and month.
type Inputs struct {
	AccountID   string
	Month       core.Month
	MonthlyGoal *core.MonthlyIncomeGoal
	Defaults    *core.AccountDefaults // wins over the default on the Accounts entry
	Accounts    []core.Account
	Recurring   []core.RecurringTemplate
	// IncomeBudgetTotal is the planned income budget of the month, already
	// expressed in IncomeBudgetCurrency.
	IncomeBudgetTotal    decimal.Decimal
	IncomeBudgetCurrency string
}

// tiers is the product precedence, highest first.
var tiers = []Tier[Inputs, Goal]{
	monthlyGoal,
	accountDefault,
	recurringIncome,
	incomeBudget,
}

// Resolve returns the goal from the highest tier that has a usable value.
// The income budget tier always matches, so Resolve never comes back empty.
func Resolve(in Inputs) Goal {
	goal, _ := FirstMatch(in, tiers...)
	return goal
}

func monthlyGoal(in Inputs) (Goal, bool) {
	g := in.MonthlyGoal
	if g == nil || g.AccountID != in.AccountID || !g.Month.Equal(in.Month) {
		return Goal{}, false
	}
	return Goal{Amount: g.Amount, Currency: g.Currency, IsDefault: false, Source: SourceMonthlyGoal}, true
}

func accountDefault(in Inputs) (Goal, bool) {
	acc, found := findAccount(in.Accounts, in.AccountID)
	if d := in.Defaults; d != nil && d.AccountID == in.AccountID && d.DefaultIncomeGoal != nil {
		cur := d.Currency
		if cur == "" && found {
			cur = acc.Currency
		}
		return Goal{Amount: *d.DefaultIncomeGoal, Currency: cur, IsDefault: true, Source: SourceAccountDefault}, true
	}
	if !found || acc.DefaultIncomeGoal == nil {
		return Goal{}, false
	}
	cur := acc.DefaultIncomeGoalCurrency
	if cur == "" {
		cur = acc.Currency
	}
	return Goal{Amount: *acc.DefaultIncomeGoal, Currency: cur, IsDefault: true, Source: SourceAccountDefault}, true
}

// recurringIncome sums active INCOME templates. Templates carry no currency of
// their own and are expressed in the account currency.
func recurringIncome(in Inputs) (Goal, bool) {
	total := decimal.Zero
	matched := 0
	for _, r := range in.Recurring {
		if r.AccountID != in.AccountID || !r.IsActive || r.Type != core.Income {
			continue
		}
		total = total.Add(r.Amount)
		matched++
	}
	if matched == 0 {
		return Goal{}, false
	}
	cur := in.IncomeBudgetCurrency
	if acc, ok := findAccount(in.Accounts, in.AccountID); ok {
		cur = acc.Currency
	}
	return Goal{Amount: total, Currency: cur, IsDefault: true, Source: SourceRecurringIncome}, true
}

func incomeBudget(in Inputs) (Goal, bool) {
	return Goal{
		Amount:    in.IncomeBudgetTotal,
		Currency:  in.IncomeBudgetCurrency,
		IsDefault: true,
		Source:    SourceIncomeBudget,
	}, true
}

func findAccount(accounts []core.Account, id string) (core.Account, bool) {
	for _, a := range accounts {
		if a.ID == id {
			return a, true
		}
	}
	return core.Account{}, false
}
