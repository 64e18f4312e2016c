package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/ports"

	"github.com/shopspring/decimal"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds the SQL of the repository. Amounts are stored as decimal text
// and months as YYYY-MM.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const listAccounts = `SELECT id, user_id, name, currency, default_income_goal, default_income_goal_currency
FROM accounts WHERE ?1 = '' OR user_id = '' OR user_id = ?1 ORDER BY name, id`

func (q *Queries) ListAccounts(ctx context.Context, userID string) ([]core.Account, error) {
	rows, err := q.db.QueryContext(ctx, listAccounts, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Account
	for rows.Next() {
		var (
			a    core.Account
			goal decimal.NullDecimal
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.Currency, &goal, &a.DefaultIncomeGoalCurrency); err != nil {
			return nil, err
		}
		if goal.Valid {
			a.DefaultIncomeGoal = &goal.Decimal
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const getAccountDefaults = `SELECT default_income_goal, default_income_goal_currency FROM accounts WHERE id = ?`

func (q *Queries) GetAccountDefaults(ctx context.Context, accountID string) (*core.AccountDefaults, error) {
	var (
		goal decimal.NullDecimal
		cur  string
	)
	err := q.db.QueryRowContext(ctx, getAccountDefaults, accountID).Scan(&goal, &cur)
	if err != nil {
		return nil, err
	}
	if !goal.Valid {
		return nil, nil
	}
	return &core.AccountDefaults{AccountID: accountID, DefaultIncomeGoal: &goal.Decimal, Currency: cur}, nil
}

const upsertAccount = `INSERT INTO accounts (id, user_id, name, currency, default_income_goal, default_income_goal_currency)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET user_id = excluded.user_id, name = excluded.name, currency = excluded.currency,
    default_income_goal = excluded.default_income_goal, default_income_goal_currency = excluded.default_income_goal_currency`

func (q *Queries) UpsertAccount(ctx context.Context, a core.Account) error {
	var goal decimal.NullDecimal
	if a.DefaultIncomeGoal != nil {
		goal = decimal.NewNullDecimal(*a.DefaultIncomeGoal)
	}
	_, err := q.db.ExecContext(ctx, upsertAccount, a.ID, a.UserID, a.Name, a.Currency, goal, a.DefaultIncomeGoalCurrency)
	return err
}

const listCategories = `SELECT id, user_id, name, type, archived FROM categories
WHERE (?1 = '' OR user_id = '' OR user_id = ?1) AND (?2 OR archived = 0) ORDER BY name, id`

func (q *Queries) ListCategories(ctx context.Context, userID string, includeArchived bool) ([]core.Category, error) {
	rows, err := q.db.QueryContext(ctx, listCategories, userID, includeArchived)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Type, &c.Archived); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const upsertCategory = `INSERT INTO categories (id, user_id, name, type, archived) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET user_id = excluded.user_id, name = excluded.name, type = excluded.type, archived = excluded.archived`

func (q *Queries) UpsertCategory(ctx context.Context, c core.Category) error {
	_, err := q.db.ExecContext(ctx, upsertCategory, c.ID, c.UserID, c.Name, string(c.Type), c.Archived)
	return err
}

// ListTransactions builds its WHERE clause from the non-zero filter fields.
func (q *Queries) ListTransactions(ctx context.Context, f ports.TransactionFilter) ([]core.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if !f.From.IsZero() {
		where = append(where, "month >= ?")
		args = append(args, f.From.Key())
	}
	if !f.To.IsZero() {
		where = append(where, "month <= ?")
		args = append(args, f.To.Key())
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	query := `SELECT id, account_id, category_id, type, amount, currency, date, description FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date, id"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Transaction
	for rows.Next() {
		var (
			t    core.Transaction
			date string
		)
		if err := rows.Scan(&t.ID, &t.AccountID, &t.CategoryID, &t.Type, &t.Amount, &t.Currency, &date, &t.Description); err != nil {
			return nil, err
		}
		if t.Date, err = time.Parse(time.DateOnly, date); err != nil {
			return nil, fmt.Errorf("transaction %s: parse date: %w", t.ID, err)
		}
		t.Month = core.MonthOf(t.Date)
		out = append(out, t)
	}
	return out, rows.Err()
}

const upsertTransaction = `INSERT INTO transactions (id, account_id, category_id, type, amount, currency, date, month, description)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET account_id = excluded.account_id, category_id = excluded.category_id, type = excluded.type,
    amount = excluded.amount, currency = excluded.currency, date = excluded.date, month = excluded.month,
    description = excluded.description`

func (q *Queries) UpsertTransaction(ctx context.Context, t core.Transaction) error {
	_, err := q.db.ExecContext(ctx, upsertTransaction, t.ID, t.AccountID, t.CategoryID, string(t.Type), t.Amount,
		t.Currency, t.Date.Format(time.DateOnly), core.MonthOf(t.Date).Key(), t.Description)
	return err
}

const listBudgets = `SELECT id, account_id, category_id, month, planned, currency FROM budgets
WHERE account_id = ? AND month = ? ORDER BY id`

func (q *Queries) ListBudgets(ctx context.Context, accountID string, month core.Month) ([]core.Budget, error) {
	rows, err := q.db.QueryContext(ctx, listBudgets, accountID, month.Key())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Budget
	for rows.Next() {
		var b core.Budget
		if err := rows.Scan(&b.ID, &b.AccountID, &b.CategoryID, &b.Month, &b.Planned, &b.Currency); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

const upsertBudget = `INSERT INTO budgets (id, account_id, category_id, month, planned, currency) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(account_id, category_id, month) DO UPDATE SET planned = excluded.planned, currency = excluded.currency`

func (q *Queries) UpsertBudget(ctx context.Context, b core.Budget) error {
	_, err := q.db.ExecContext(ctx, upsertBudget, b.ID, b.AccountID, b.CategoryID, b.Month.Key(), b.Planned, b.Currency)
	return err
}

const listRecurring = `SELECT id, account_id, category_id, type, amount, day_of_month, is_active, start_month, end_month
FROM recurring_templates WHERE account_id = ? ORDER BY id`

func (q *Queries) ListRecurringTemplates(ctx context.Context, accountID string) ([]core.RecurringTemplate, error) {
	rows, err := q.db.QueryContext(ctx, listRecurring, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.RecurringTemplate
	for rows.Next() {
		var (
			r   core.RecurringTemplate
			end sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.AccountID, &r.CategoryID, &r.Type, &r.Amount, &r.DayOfMonth, &r.IsActive, &r.StartMonth, &end); err != nil {
			return nil, err
		}
		if end.Valid && end.String != "" {
			if r.EndMonth, err = core.ParseMonth(end.String); err != nil {
				return nil, fmt.Errorf("recurring template %s: %w", r.ID, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const upsertRecurring = `INSERT INTO recurring_templates (id, account_id, category_id, type, amount, day_of_month, is_active, start_month, end_month)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET account_id = excluded.account_id, category_id = excluded.category_id, type = excluded.type,
    amount = excluded.amount, day_of_month = excluded.day_of_month, is_active = excluded.is_active,
    start_month = excluded.start_month, end_month = excluded.end_month`

func (q *Queries) UpsertRecurringTemplate(ctx context.Context, r core.RecurringTemplate) error {
	var end sql.NullString
	if !r.EndMonth.IsZero() {
		end = sql.NullString{String: r.EndMonth.Key(), Valid: true}
	}
	_, err := q.db.ExecContext(ctx, upsertRecurring, r.ID, r.AccountID, r.CategoryID, string(r.Type), r.Amount,
		r.DayOfMonth, r.IsActive, r.StartMonth.Key(), end)
	return err
}

const getMonthlyIncomeGoal = `SELECT amount, currency FROM monthly_income_goals WHERE account_id = ? AND month = ?`

func (q *Queries) GetMonthlyIncomeGoal(ctx context.Context, accountID string, month core.Month) (*core.MonthlyIncomeGoal, error) {
	g := core.MonthlyIncomeGoal{AccountID: accountID, Month: month}
	if err := q.db.QueryRowContext(ctx, getMonthlyIncomeGoal, accountID, month.Key()).Scan(&g.Amount, &g.Currency); err != nil {
		return nil, err
	}
	return &g, nil
}

const upsertMonthlyIncomeGoal = `INSERT INTO monthly_income_goals (account_id, month, amount, currency) VALUES (?, ?, ?, ?)
ON CONFLICT(account_id, month) DO UPDATE SET amount = excluded.amount, currency = excluded.currency`

func (q *Queries) UpsertMonthlyIncomeGoal(ctx context.Context, g core.MonthlyIncomeGoal) error {
	_, err := q.db.ExecContext(ctx, upsertMonthlyIncomeGoal, g.AccountID, g.Month.Key(), g.Amount, g.Currency)
	return err
}

const listHoldings = `SELECT id, account_id, category_id, symbol, quantity, average_cost, currency FROM holdings
WHERE ?1 = '' OR account_id = ?1 ORDER BY account_id, symbol, id`

func (q *Queries) ListHoldings(ctx context.Context, accountID string) ([]core.Holding, error) {
	rows, err := q.db.QueryContext(ctx, listHoldings, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Holding
	for rows.Next() {
		var h core.Holding
		if err := rows.Scan(&h.ID, &h.AccountID, &h.CategoryID, &h.Symbol, &h.Quantity, &h.AverageCost, &h.Currency); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

const upsertHolding = `INSERT INTO holdings (id, account_id, category_id, symbol, quantity, average_cost, currency)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET account_id = excluded.account_id, category_id = excluded.category_id, symbol = excluded.symbol,
    quantity = excluded.quantity, average_cost = excluded.average_cost, currency = excluded.currency`

func (q *Queries) UpsertHolding(ctx context.Context, h core.Holding) error {
	_, err := q.db.ExecContext(ctx, upsertHolding, h.ID, h.AccountID, h.CategoryID, h.Symbol, h.Quantity, h.AverageCost, h.Currency)
	return err
}

func (q *Queries) ListRates(ctx context.Context, currencies []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	if len(currencies) == 0 {
		return out, nil
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(currencies)), ",")
	query := `SELECT from_currency, to_currency, rate FROM exchange_rates
WHERE from_currency IN (` + marks + `) AND to_currency IN (` + marks + `)`
	args := make([]any, 0, 2*len(currencies))
	for range 2 {
		for _, c := range currencies {
			args = append(args, c)
		}
	}
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			from, to string
			rate     decimal.Decimal
		)
		if err := rows.Scan(&from, &to, &rate); err != nil {
			return nil, err
		}
		out[from+":"+to] = rate
	}
	return out, rows.Err()
}

const upsertRate = `INSERT INTO exchange_rates (from_currency, to_currency, rate, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(from_currency, to_currency) DO UPDATE SET rate = excluded.rate, updated_at = excluded.updated_at`

func (q *Queries) UpsertRate(ctx context.Context, from, to string, rate decimal.Decimal, at time.Time) error {
	_, err := q.db.ExecContext(ctx, upsertRate, from, to, rate, at.UTC())
	return err
}
