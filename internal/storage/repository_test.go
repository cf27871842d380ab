package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"costalloc/internal/core"
	"costalloc/internal/ports"
)

var _ ports.Store = (*SQLiteRepository)(nil)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	v1, err := RunMigrations(path)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	v2, err := RunMigrations(path)
	if err != nil || v1 != v2 || v1 == 0 {
		t.Fatalf("second run: v1=%d v2=%d err=%v", v1, v2, err)
	}
}

func TestRepositoryReferenceData(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	q1 := core.MustPeriod(2025, 1)

	cats := []core.Category{
		{ID: "hdr", Label: "General", Header: true},
		{ID: "ovh", Label: "Overhead"},
		{ID: "fix", Label: "Personnel", Fixed: true},
	}
	if err := repo.PutCategories(ctx, core.Construction, cats); err != nil {
		t.Fatalf("put categories: %v", err)
	}
	if err := repo.PutCategories(ctx, core.Construction, cats); err != nil {
		t.Fatalf("replace categories: %v", err)
	}
	got, err := repo.Categories(ctx, core.Construction)
	if err != nil || len(got) != 3 {
		t.Fatalf("categories = %v err=%v", got, err)
	}
	if got[0] != cats[0] || got[1] != cats[1] || got[2] != cats[2] {
		t.Fatalf("categories out of order or altered: %+v", got)
	}

	if err := repo.PutProject(ctx, core.Project{ID: "p1", Name: "Bridge", Type: core.Construction}); err != nil {
		t.Fatalf("put project: %v", err)
	}
	if err := repo.PutProject(ctx, core.Project{ID: "p1", Name: "Bridge 2", Type: core.Construction}); err != nil {
		t.Fatalf("update project: %v", err)
	}
	projects, _ := repo.Projects(ctx, core.Construction)
	if len(projects) != 1 || projects[0].Name != "Bridge 2" {
		t.Fatalf("projects = %+v", projects)
	}

	err = repo.PutFinancials(ctx, core.ProjectFinancials{
		ProjectID:            "p1",
		Period:               q1,
		Revenue:              decimal.RequireFromString("100000.25"),
		DirectCostByCategory: map[string]decimal.Decimal{"Overhead": decimal.NewFromInt(1500)},
	})
	if err != nil {
		t.Fatalf("put financials: %v", err)
	}
	f, err := repo.Financials(ctx, "p1", q1)
	if err != nil {
		t.Fatalf("financials: %v", err)
	}
	if !f.Revenue.Equal(decimal.RequireFromString("100000.25")) || !f.DirectCost("overhead").Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("financials = %+v", f)
	}
	if _, err := repo.Financials(ctx, "p2", q1); !core.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	if _, err := repo.FixedCostTotal(ctx, q1, core.Construction); !core.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	_ = repo.PutFixedCostTotal(ctx, q1, core.Construction, decimal.NewFromInt(7000))
	_ = repo.PutFixedCostTotal(ctx, q1, core.Construction, decimal.NewFromInt(7500))
	if v, err := repo.FixedCostTotal(ctx, q1, core.Construction); err != nil || !v.Equal(decimal.NewFromInt(7500)) {
		t.Fatalf("fixed total = %s err=%v", v, err)
	}

	_ = repo.PutApprovedBudget(ctx, q1, core.Construction, "ovh", decimal.NewFromInt(20000))
	budgets, err := repo.ApprovedBudgets(ctx, q1, core.Construction)
	if err != nil || len(budgets) != 1 || !budgets["ovh"].Equal(decimal.NewFromInt(20000)) {
		t.Fatalf("budgets = %v err=%v", budgets, err)
	}
}

func TestRepositoryPeriodRecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	q2 := core.MustPeriod(2025, 2)

	if _, err := repo.GetPeriodRecord(ctx, q2); !core.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	rec := core.NewPeriodRecord(q2)
	row := rec.EnsureRow(core.CategoryRef{ID: "ovh", Label: "Overhead"})
	st := row.EnsureState(core.Factory)
	st.Saved = true
	st.Pct = decimal.RequireFromString("12.5")
	st.OverrunCumulative = decimal.NewFromInt(-8500)
	st.PerProjectOverrun = map[string]decimal.Decimal{"p1": decimal.NewFromInt(1000)}
	row.SetFunded("p1", decimal.NewFromInt(11000))
	rec.SetTotalOverrun(core.Factory, decimal.NewFromInt(-8500))

	if err := repo.PutPeriodRecord(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := repo.GetPeriodRecord(ctx, q2)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	gst, ok := got.State("ovh", core.Factory)
	if !ok || !gst.Saved || !gst.Pct.Equal(decimal.RequireFromString("12.5")) || !gst.OverrunCumulative.Equal(decimal.NewFromInt(-8500)) {
		t.Fatalf("state = %+v", gst)
	}
	if !gst.PerProjectOverrun["p1"].Equal(decimal.NewFromInt(1000)) || !got.Row("ovh").Funded["p1"].Equal(decimal.NewFromInt(11000)) {
		t.Fatalf("per-project figures lost")
	}
	if !got.TotalOverrunThisQuarter[core.Factory].Equal(decimal.NewFromInt(-8500)) || got.UpdatedAt.IsZero() {
		t.Fatalf("record metadata lost: %+v", got)
	}

	got.Row("ovh").EnsureState(core.Investment).CarryOverIn = decimal.NewFromInt(3)
	if err := repo.PutPeriodRecord(ctx, got); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	again, _ := repo.GetPeriodRecord(ctx, q2)
	if _, ok := again.State("ovh", core.Investment); !ok {
		t.Fatalf("overwrite lost the new type state")
	}
}

func TestRepositoryLedgerRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	q1 := core.MustPeriod(2025, 1)

	if _, err := repo.GetLedger(ctx, "p1", q1); !core.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	ledger := &core.LedgerRecord{ProjectID: "p1", Period: q1, Items: []core.LineItem{
		{ID: "ovh", Label: "Overhead", Cost: decimal.NewFromInt(10)},
		{Label: "Insurance"},
	}}
	if err := repo.PutLedger(ctx, ledger); err != nil {
		t.Fatalf("put: %v", err)
	}
	ledger.Items[0].Allocated = decimal.NewFromInt(6667)
	if err := repo.PutLedger(ctx, ledger); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := repo.GetLedger(ctx, "p1", q1)
	if err != nil || len(got.Items) != 2 || !got.Items[0].Allocated.Equal(decimal.NewFromInt(6667)) {
		t.Fatalf("ledger = %+v err=%v", got, err)
	}
	if got.Period != q1 || got.Items[1].ID != "" {
		t.Fatalf("ledger fields altered: %+v", got)
	}
}
