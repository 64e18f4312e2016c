package ports

import (
	"context"

	"bilancio/internal/core"

	"github.com/shopspring/decimal"
)

// TransactionFilter narrows ListTransactions. Zero fields do not filter.
type TransactionFilter struct {
	AccountID string
	From      core.Month // inclusive
	To        core.Month // inclusive
	Type      core.TransactionType
}

// Ports for outbound adapters. The aggregation engine only reads through them.
type (
	AccountReader interface {
		// ListAccounts returns the accounts visible to userID; empty means all.
		ListAccounts(ctx context.Context, userID string) ([]core.Account, error)
		// GetAccountDefaults returns nil when the account has no default income goal row.
		GetAccountDefaults(ctx context.Context, accountID string) (*core.AccountDefaults, error)
	}

	CategoryReader interface {
		ListCategories(ctx context.Context, userID string, includeArchived bool) ([]core.Category, error)
	}

	TransactionLister interface {
		ListTransactions(ctx context.Context, filter TransactionFilter) ([]core.Transaction, error)
	}

	BudgetReader interface {
		ListBudgets(ctx context.Context, accountID string, month core.Month) ([]core.Budget, error)
	}

	RecurringReader interface {
		ListRecurringTemplates(ctx context.Context, accountID string) ([]core.RecurringTemplate, error)
	}

	IncomeGoalReader interface {
		// GetMonthlyIncomeGoal returns nil when no explicit goal exists for the month.
		GetMonthlyIncomeGoal(ctx context.Context, accountID string, month core.Month) (*core.MonthlyIncomeGoal, error)
	}

	HoldingLister interface {
		// ListHoldings returns holdings of one account, or of every account when accountID is empty.
		ListHoldings(ctx context.Context, accountID string) ([]core.Holding, error)
	}

	// RecordStore is the full read surface of the persistence layer.
	RecordStore interface {
		AccountReader
		CategoryReader
		TransactionLister
		BudgetReader
		RecurringReader
		IncomeGoalReader
		HoldingLister
	}

	// RateSource returns a flat mapping keyed by "FROM:TO" for the requested codes.
	RateSource interface {
		LoadRates(ctx context.Context, currencies []string) (map[string]decimal.Decimal, error)
	}

	// PriceSource returns quotes keyed by upper-case symbol. Symbols without a
	// quote are simply absent from the result.
	PriceSource interface {
		LoadPrices(ctx context.Context, symbols []string) (map[string]core.Quote, error)
	}
)
