package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"costalloc/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository implements every port on a single SQLite file. Period
// records and ledgers are stored as JSON documents, one row each.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("SQLite repository ready", "path", dbPath, "schema_version", version)
	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the connection. Used by the readiness check.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Categories returns the registry of t in position order.
func (r *SQLiteRepository) Categories(ctx context.Context, t core.ProjectType) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, label, fixed, header FROM categories WHERE project_type = ? ORDER BY position`, string(t))
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.Label, &c.Fixed, &c.Header); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PutCategories replaces the registry of t in one transaction.
func (r *SQLiteRepository) PutCategories(ctx context.Context, t core.ProjectType, cats []core.Category) error {
	for _, c := range cats {
		if err := c.Validate(); err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin categories tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE project_type = ?`, string(t)); err != nil {
		return fmt.Errorf("clear categories: %w", err)
	}
	for i, c := range cats {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO categories (project_type, id, position, label, fixed, header) VALUES (?, ?, ?, ?, ?, ?)`,
			string(t), c.ID, i, c.Label, c.Fixed, c.Header)
		if err != nil {
			return fmt.Errorf("insert category %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepository) Projects(ctx context.Context, t core.ProjectType) ([]core.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, project_type FROM projects WHERE project_type = ? ORDER BY id`, string(t))
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var out []core.Project
	for rows.Next() {
		var p core.Project
		var typ string
		if err := rows.Scan(&p.ID, &p.Name, &typ); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.Type = core.ProjectType(typ)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) PutProject(ctx context.Context, p core.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, project_type) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, project_type = excluded.project_type`,
		p.ID, p.Name, string(p.Type))
	if err != nil {
		return fmt.Errorf("upsert project %s: %w", p.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Financials(ctx context.Context, projectID string, p core.Period) (core.ProjectFinancials, error) {
	f := core.ProjectFinancials{ProjectID: projectID, Period: p}
	var costs string
	err := r.db.QueryRowContext(ctx,
		`SELECT revenue, direct_costs FROM project_financials WHERE project_id = ? AND period = ?`,
		projectID, p.Key()).Scan(&f.Revenue, &costs)
	if errors.Is(err, sql.ErrNoRows) {
		return f, fmt.Errorf("financials %s %s: %w", projectID, p, core.ErrNotFound)
	}
	if err != nil {
		return f, fmt.Errorf("query financials %s %s: %w", projectID, p, err)
	}
	if err := json.Unmarshal([]byte(costs), &f.DirectCostByCategory); err != nil {
		return f, fmt.Errorf("decode direct costs %s %s: %w", projectID, p, err)
	}
	return f, nil
}

// PutFinancials stores f with normalized cost labels.
func (r *SQLiteRepository) PutFinancials(ctx context.Context, f core.ProjectFinancials) error {
	costs, err := json.Marshal(core.NormalizeCosts(f.DirectCostByCategory))
	if err != nil {
		return fmt.Errorf("encode direct costs: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO project_financials (project_id, period, revenue, direct_costs) VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id, period) DO UPDATE SET revenue = excluded.revenue, direct_costs = excluded.direct_costs`,
		f.ProjectID, f.Period.Key(), f.Revenue, string(costs))
	if err != nil {
		return fmt.Errorf("upsert financials %s %s: %w", f.ProjectID, f.Period, err)
	}
	return nil
}

func (r *SQLiteRepository) FixedCostTotal(ctx context.Context, p core.Period, t core.ProjectType) (decimal.Decimal, error) {
	var amount decimal.Decimal
	err := r.db.QueryRowContext(ctx,
		`SELECT amount FROM fixed_cost_totals WHERE period = ? AND project_type = ?`,
		p.Key(), string(t)).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("fixed cost total %s %s: %w", p, t, core.ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("query fixed cost total: %w", err)
	}
	return amount, nil
}

func (r *SQLiteRepository) PutFixedCostTotal(ctx context.Context, p core.Period, t core.ProjectType, amount decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO fixed_cost_totals (period, project_type, amount) VALUES (?, ?, ?)
		ON CONFLICT(period, project_type) DO UPDATE SET amount = excluded.amount`,
		p.Key(), string(t), amount)
	if err != nil {
		return fmt.Errorf("upsert fixed cost total %s %s: %w", p, t, err)
	}
	return nil
}

func (r *SQLiteRepository) ApprovedBudgets(ctx context.Context, p core.Period, t core.ProjectType) (map[string]decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT category_id, amount FROM approved_budgets WHERE period = ? AND project_type = ?`,
		p.Key(), string(t))
	if err != nil {
		return nil, fmt.Errorf("query approved budgets: %w", err)
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var id string
		var amount decimal.Decimal
		if err := rows.Scan(&id, &amount); err != nil {
			return nil, fmt.Errorf("scan approved budget: %w", err)
		}
		out[id] = amount
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) PutApprovedBudget(ctx context.Context, p core.Period, t core.ProjectType, categoryID string, amount decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO approved_budgets (period, project_type, category_id, amount) VALUES (?, ?, ?, ?)
		ON CONFLICT(period, project_type, category_id) DO UPDATE SET amount = excluded.amount`,
		p.Key(), string(t), categoryID, amount)
	if err != nil {
		return fmt.Errorf("upsert approved budget %s %s %s: %w", p, t, categoryID, err)
	}
	return nil
}
