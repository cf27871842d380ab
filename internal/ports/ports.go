package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"costalloc/internal/core"
)

// Ports for outbound adapters. Readers return core.ErrNotFound (wrapped) for
// missing records; callers treat that as empty state.
type (
	// CategoryRegistry lists the allocation categories of a project type in
	// display order.
	CategoryRegistry interface {
		Categories(ctx context.Context, t core.ProjectType) ([]core.Category, error)
	}

	ProjectDirectory interface {
		Projects(ctx context.Context, t core.ProjectType) ([]core.Project, error)
	}

	// FinancialsProvider supplies the revenue and direct cost of a project,
	// computed outside this system.
	FinancialsProvider interface {
		Financials(ctx context.Context, projectID string, p core.Period) (core.ProjectFinancials, error)
	}

	// FixedCostTotals supplies the budget of the fixed category.
	FixedCostTotals interface {
		FixedCostTotal(ctx context.Context, p core.Period, t core.ProjectType) (decimal.Decimal, error)
	}

	// BudgetSource supplies the approved budget per category ID.
	BudgetSource interface {
		ApprovedBudgets(ctx context.Context, p core.Period, t core.ProjectType) (map[string]decimal.Decimal, error)
	}

	PeriodStore interface {
		GetPeriodRecord(ctx context.Context, p core.Period) (*core.PeriodRecord, error)
		PutPeriodRecord(ctx context.Context, rec *core.PeriodRecord) error
	}

	LedgerStore interface {
		GetLedger(ctx context.Context, projectID string, p core.Period) (*core.LedgerRecord, error)
		PutLedger(ctx context.Context, ledger *core.LedgerRecord) error
	}

	// ReferenceWriter loads the external reference data. Used for seeding
	// and by the admin CLI.
	ReferenceWriter interface {
		PutCategories(ctx context.Context, t core.ProjectType, cats []core.Category) error
		PutProject(ctx context.Context, p core.Project) error
		PutFinancials(ctx context.Context, f core.ProjectFinancials) error
		PutFixedCostTotal(ctx context.Context, p core.Period, t core.ProjectType, amount decimal.Decimal) error
		PutApprovedBudget(ctx context.Context, p core.Period, t core.ProjectType, categoryID string, amount decimal.Decimal) error
	}

	// Store is everything a data backend provides.
	Store interface {
		CategoryRegistry
		ProjectDirectory
		FinancialsProvider
		FixedCostTotals
		BudgetSource
		PeriodStore
		LedgerStore
		ReferenceWriter
		Close() error
	}
)
