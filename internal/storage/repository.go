// Package storage is the SQLite record store and exchange-rate table.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/ports"
	"bilancio/internal/seed"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

var (
	_ ports.RecordStore = (*SQLiteRepository)(nil)
	_ ports.RateSource  = (*SQLiteRepository)(nil)
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	logger  *log.Logger
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	version, err := migrateSchema(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentStorage)
	logger.Debug("SQLite schema ready", "path", dbPath, "version", version)
	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		logger:  logger,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) ListAccounts(ctx context.Context, userID string) ([]core.Account, error) {
	accs, err := r.queries.ListAccounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accs, nil
}

// GetAccount returns ErrNotFound for an unknown id.
func (r *SQLiteRepository) GetAccount(ctx context.Context, id string) (core.Account, error) {
	accs, err := r.ListAccounts(ctx, "")
	if err != nil {
		return core.Account{}, err
	}
	for _, a := range accs {
		if a.ID == id {
			return a, nil
		}
	}
	return core.Account{}, fmt.Errorf("account %s: %w", id, ErrNotFound)
}

// GetAccountDefaults returns nil, nil when the account is unknown or has no goal.
func (r *SQLiteRepository) GetAccountDefaults(ctx context.Context, accountID string) (*core.AccountDefaults, error) {
	d, err := r.queries.GetAccountDefaults(ctx, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account defaults: %w", err)
	}
	return d, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, userID string, includeArchived bool) ([]core.Category, error) {
	cats, err := r.queries.ListCategories(ctx, userID, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, f ports.TransactionFilter) ([]core.Transaction, error) {
	txs, err := r.queries.ListTransactions(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context, accountID string, month core.Month) ([]core.Budget, error) {
	budgets, err := r.queries.ListBudgets(ctx, accountID, month)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	return budgets, nil
}

func (r *SQLiteRepository) ListRecurringTemplates(ctx context.Context, accountID string) ([]core.RecurringTemplate, error) {
	tpls, err := r.queries.ListRecurringTemplates(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list recurring templates: %w", err)
	}
	return tpls, nil
}

func (r *SQLiteRepository) GetMonthlyIncomeGoal(ctx context.Context, accountID string, month core.Month) (*core.MonthlyIncomeGoal, error) {
	g, err := r.queries.GetMonthlyIncomeGoal(ctx, accountID, month)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get monthly income goal: %w", err)
	}
	return g, nil
}

func (r *SQLiteRepository) ListHoldings(ctx context.Context, accountID string) ([]core.Holding, error) {
	hs, err := r.queries.ListHoldings(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list holdings: %w", err)
	}
	return hs, nil
}

// LoadRates implements ports.RateSource over the exchange_rates table.
func (r *SQLiteRepository) LoadRates(ctx context.Context, currencies []string) (map[string]decimal.Decimal, error) {
	codes := make([]string, 0, len(currencies))
	for _, c := range currencies {
		codes = append(codes, core.NormalizeCurrency(c))
	}
	rates, err := r.queries.ListRates(ctx, codes)
	if err != nil {
		return nil, fmt.Errorf("list rates: %w", err)
	}
	return rates, nil
}

func (r *SQLiteRepository) SaveRate(ctx context.Context, from, to string, rate decimal.Decimal) error {
	if !rate.IsPositive() {
		return fmt.Errorf("save rate %s:%s: %w", from, to, core.ErrInvalidAmount)
	}
	if err := r.queries.UpsertRate(ctx, core.NormalizeCurrency(from), core.NormalizeCurrency(to), rate, time.Now()); err != nil {
		return fmt.Errorf("save rate: %w", err)
	}
	return nil
}

// ImportStats counts the rows written by Import.
type ImportStats struct {
	Accounts, Categories, Transactions, Budgets, Recurring, IncomeGoals, Holdings, Rates int
}

// Import upserts every record of s in one transaction.
func (r *SQLiteRepository) Import(ctx context.Context, s seed.Seed) (ImportStats, error) {
	var stats ImportStats
	if err := s.Validate(); err != nil {
		return stats, fmt.Errorf("validate seed: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	for _, a := range s.Accounts {
		if err := q.UpsertAccount(ctx, a); err != nil {
			return stats, fmt.Errorf("import account %s: %w", a.ID, err)
		}
		stats.Accounts++
	}
	for _, c := range s.Categories {
		if err := q.UpsertCategory(ctx, c); err != nil {
			return stats, fmt.Errorf("import category %s: %w", c.ID, err)
		}
		stats.Categories++
	}
	for _, t := range s.Transactions {
		if err := q.UpsertTransaction(ctx, t); err != nil {
			return stats, fmt.Errorf("import transaction %s: %w", t.ID, err)
		}
		stats.Transactions++
	}
	for _, b := range s.Budgets {
		if err := q.UpsertBudget(ctx, b); err != nil {
			return stats, fmt.Errorf("import budget %s: %w", b.ID, err)
		}
		stats.Budgets++
	}
	for _, rt := range s.Recurring {
		if err := q.UpsertRecurringTemplate(ctx, rt); err != nil {
			return stats, fmt.Errorf("import recurring template %s: %w", rt.ID, err)
		}
		stats.Recurring++
	}
	for _, g := range s.IncomeGoals {
		if err := q.UpsertMonthlyIncomeGoal(ctx, g); err != nil {
			return stats, fmt.Errorf("import income goal %s/%s: %w", g.AccountID, g.Month, err)
		}
		stats.IncomeGoals++
	}
	for _, h := range s.Holdings {
		if err := q.UpsertHolding(ctx, h); err != nil {
			return stats, fmt.Errorf("import holding %s: %w", h.ID, err)
		}
		stats.Holdings++
	}
	now := time.Now()
	for pair, rate := range s.Rates {
		from, to, ok := strings.Cut(pair, ":")
		if !ok {
			return stats, fmt.Errorf("import rate %q: expected FROM:TO", pair)
		}
		if err := q.UpsertRate(ctx, from, to, rate, now); err != nil {
			return stats, fmt.Errorf("import rate %s: %w", pair, err)
		}
		stats.Rates++
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("commit import: %w", err)
	}
	r.logger.InfoContext(ctx, "Seed imported",
		"accounts", stats.Accounts,
		"transactions", stats.Transactions,
		"budgets", stats.Budgets,
		"holdings", stats.Holdings,
		"rates", stats.Rates)
	return stats, nil
}
