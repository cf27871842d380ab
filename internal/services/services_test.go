package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"costalloc/internal/allocation"
	"costalloc/internal/core"
	"costalloc/internal/memory"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

var (
	q1 = core.MustPeriod(2025, 1)
	q2 = core.MustPeriod(2025, 2)
	q3 = core.MustPeriod(2025, 3)
	q4 = core.MustPeriod(2025, 4)
)

var testCategories = []core.Category{
	{ID: "hdr", Label: "Site costs", Header: true},
	{ID: "ovh", Label: "Overhead"},
	{ID: "ins", Label: "Insurance"},
	{ID: "fix", Label: "Personnel", Fixed: true},
}

// newTestStore seeds two visible factory projects, one project without
// financials and a construction project that must never be touched.
func newTestStore(t *testing.T, p core.Period, budget int64) *memory.Store {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	must(s.PutCategories(ctx, core.Factory, testCategories))
	must(s.PutCategories(ctx, core.Construction, testCategories))
	for _, pr := range []core.Project{
		{ID: "p1", Name: "Mill", Type: core.Factory},
		{ID: "p2", Name: "Press", Type: core.Factory},
		{ID: "p3", Name: "Idle", Type: core.Factory},
		{ID: "c1", Name: "Bridge", Type: core.Construction},
	} {
		must(s.PutProject(ctx, pr))
	}
	must(s.PutFinancials(ctx, core.ProjectFinancials{ProjectID: "p1", Period: p, Revenue: d(100000)}))
	must(s.PutFinancials(ctx, core.ProjectFinancials{ProjectID: "p2", Period: p, Revenue: d(200000)}))
	must(s.PutFixedCostTotal(ctx, p, core.Factory, d(7000)))
	must(s.PutApprovedBudget(ctx, p, core.Factory, "ovh", d(budget)))
	must(s.PutApprovedBudget(ctx, p, core.Factory, "ins", d(budget)))

	must(s.PutLedger(ctx, &core.LedgerRecord{ProjectID: "p1", Period: p, Items: []core.LineItem{
		{ID: "ovh", Label: "Overhead"},
		{ID: "ins", Label: "Insurance"},
	}}))
	must(s.PutLedger(ctx, &core.LedgerRecord{ProjectID: "p2", Period: p, Items: []core.LineItem{
		{Label: "overhead "},
		{Label: "Other"},
	}}))
	return s
}

func newTestServices(store *memory.Store, trigger bool) (*AllocationService, *CascadeService) {
	cascade := NewCascadeService(store, store, 0, nil)
	opts := AllocationOptions{Cascade: cascade, FetchConcurrency: 2}
	if trigger {
		opts.Trigger = cascade
	}
	return NewAllocationService(DepsFromStore(store), opts), cascade
}

func state(t *testing.T, store *memory.Store, p core.Period, cat string, typ core.ProjectType) *core.TypeState {
	t.Helper()
	rec, err := store.GetPeriodRecord(context.Background(), p)
	if err != nil {
		t.Fatalf("record %s: %v", p, err)
	}
	st, ok := rec.State(cat, typ)
	if !ok {
		t.Fatalf("record %s has no %s/%s state", p, cat, typ)
	}
	return st
}

func setPct(t *testing.T, ws *allocation.Worksheet, engine allocation.Engine, pct int64) {
	t.Helper()
	for _, r := range ws.StandardRows() {
		r.Pct = d(pct)
	}
	ws.Recompute(engine)
}

func TestLoadBuildsWorksheet(t *testing.T) {
	store := newTestStore(t, q1, 20000)
	svc, _ := newTestServices(store, false)

	ws, err := svc.Load(context.Background(), q1, core.Factory)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(ws.Rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(ws.Rows))
	}
	if len(ws.Projects) != 2 {
		t.Fatalf("visible projects = %d, want 2", len(ws.Projects))
	}
	if _, ok := ws.Rows[0].(*core.HeaderRow); !ok {
		t.Errorf("first row should be a header, got %s", core.RowKind(ws.Rows[0]))
	}
	fixed, ok := ws.Rows[3].(*core.FixedRow)
	if !ok || !fixed.AllocatedBudget.Equal(d(7000)) {
		t.Errorf("fixed row = %+v", ws.Rows[3])
	}
	ovh, _ := ws.Standard("ovh")
	if !ovh.AllocatedBudget.Equal(d(20000)) || !ovh.Pct.IsZero() {
		t.Errorf("ovh row budget=%s pct=%s", ovh.AllocatedBudget, ovh.Pct)
	}

	if _, err := svc.Load(context.Background(), q1, "shipyard"); !errors.Is(err, core.ErrInvalidProjectType) {
		t.Errorf("expected invalid project type, got %v", err)
	}
}

func TestSaveScenarioA(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, q1, 20000)
	svc, _ := newTestServices(store, false)

	ws, err := svc.Load(ctx, q1, core.Factory)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	setPct(t, ws, svc.Engine(), 10)

	saved, err := svc.Save(ctx, ws)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	row, _ := saved.Standard("ovh")
	if !row.Funding.Scaled || !row.Funding.Funded["p1"].Equal(d(6667)) || !row.Funding.Funded["p2"].Equal(d(13333)) {
		t.Fatalf("funded = %v", row.Funding.Funded)
	}

	cur := state(t, store, q1, "ovh", core.Factory)
	if !cur.Saved || !cur.Pct.Equal(d(10)) || !cur.UsedTotal.Equal(d(20000)) {
		t.Errorf("current state = %+v", cur)
	}
	if !cur.OverrunThisQuarter.IsZero() || !cur.OverrunCumulative.IsZero() {
		t.Errorf("current overrun = %s / %s", cur.OverrunThisQuarter, cur.OverrunCumulative)
	}
	rec, _ := store.GetPeriodRecord(ctx, q1)
	if !rec.Row("ovh").Funded["p1"].Equal(d(6667)) {
		t.Errorf("record funded = %v", rec.Row("ovh").Funded)
	}
	if rec.Row("fix") != nil || rec.Row("hdr") != nil {
		t.Errorf("fixed and header rows must not be persisted")
	}
	if !rec.TotalOverrunThisQuarter[core.Factory].IsZero() {
		t.Errorf("total overrun = %s", rec.TotalOverrunThisQuarter[core.Factory])
	}

	next := state(t, store, q2, "ovh", core.Factory)
	if next.Saved {
		t.Errorf("carried state must not be marked saved")
	}
	if !next.CarryOverIn.IsZero() {
		t.Errorf("next carryOverIn = %s", next.CarryOverIn)
	}
	if !next.PerProjectOverrun["p1"].Equal(d(3333)) || !next.PerProjectOverrun["p2"].Equal(d(6667)) {
		t.Errorf("next perProjectOverrun = %v", next.PerProjectOverrun)
	}
}

func TestSaveEchoesFundedIntoLedgers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, q1, 20000)
	svc, _ := newTestServices(store, false)

	ws, _ := svc.Load(ctx, q1, core.Factory)
	setPct(t, ws, svc.Engine(), 10)
	saved, err := svc.Save(ctx, ws)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	ovh, _ := saved.Standard("ovh")
	ins, _ := saved.Standard("ins")
	for _, pid := range []string{"p1", "p2"} {
		ledger, err := store.GetLedger(ctx, pid, q1)
		if err != nil {
			t.Fatalf("ledger %s: %v", pid, err)
		}
		for _, row := range []*core.StandardRow{ovh, ins} {
			for _, item := range ledger.Items {
				matches := item.ID == row.Cat.ID || (item.ID == "" && core.NormalizeLabel(item.Label) == core.NormalizeLabel(row.Cat.Label))
				if matches && !item.Allocated.Equal(row.Funding.Funded[pid]) {
					t.Errorf("%s %s: allocated %s, funded %s", pid, row.Cat.ID, item.Allocated, row.Funding.Funded[pid])
				}
			}
		}
	}

	p2, _ := store.GetLedger(ctx, "p2", q1)
	if !p2.Items[0].Allocated.Equal(d(13333)) {
		t.Errorf("label fallback not applied: %+v", p2.Items[0])
	}
	if !p2.Items[1].Allocated.IsZero() {
		t.Errorf("unrelated line item changed: %+v", p2.Items[1])
	}
}

func TestSaveClearsProjectsNoLongerVisible(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, q1, 20000)
	svc, _ := newTestServices(store, false)

	ws, _ := svc.Load(ctx, q1, core.Factory)
	setPct(t, ws, svc.Engine(), 10)
	if _, err := svc.Save(ctx, ws); err != nil {
		t.Fatalf("first save: %v", err)
	}

	// p2 loses its financials and leaves the worksheet.
	if err := store.PutFinancials(ctx, core.ProjectFinancials{ProjectID: "p2", Period: q1}); err != nil {
		t.Fatal(err)
	}
	ws, err := svc.Load(ctx, q1, core.Factory)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(ws.Projects) != 1 {
		t.Fatalf("visible projects = %d, want 1", len(ws.Projects))
	}
	if _, err := svc.Save(ctx, ws); err != nil {
		t.Fatalf("second save: %v", err)
	}

	rec, _ := store.GetPeriodRecord(ctx, q1)
	for _, cat := range []string{"ovh", "ins"} {
		row := rec.Row(cat)
		if _, ok := row.Funded["p2"]; ok {
			t.Errorf("%s: stale funded amount kept for p2: %v", cat, row.Funded)
		}
		sum := decimal.Zero
		for _, v := range row.Funded {
			sum = sum.Add(v)
		}
		st := state(t, store, q1, cat, core.Factory)
		if !sum.Equal(st.UsedTotal) {
			t.Errorf("%s: funded sum %s, usedTotal %s", cat, sum, st.UsedTotal)
		}
	}

	ledger, err := store.GetLedger(ctx, "p2", q1)
	if err != nil {
		t.Fatalf("ledger p2: %v", err)
	}
	if !ledger.Items[0].Allocated.IsZero() {
		t.Errorf("dropped project still allocated: %+v", ledger.Items[0])
	}
}

func TestSaveScenarioBFoldsCarriedDebt(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, q2, 40000)
	svc, _ := newTestServices(store, false)

	prev := core.NewPeriodRecord(q1)
	st := prev.EnsureRow(core.CategoryRef{ID: "ovh", Label: "Overhead"}).EnsureState(core.Factory)
	st.Saved = true
	st.Pct = d(10)
	carried := core.NewPeriodRecord(q2)
	cst := carried.EnsureRow(core.CategoryRef{ID: "ovh", Label: "Overhead"}).EnsureState(core.Factory)
	cst.PerProjectOverrun = map[string]decimal.Decimal{"p1": d(1000), "p2": d(500)}
	if err := store.PutPeriodRecord(ctx, prev); err != nil {
		t.Fatal(err)
	}
	if err := store.PutPeriodRecord(ctx, carried); err != nil {
		t.Fatal(err)
	}

	ws, err := svc.Load(ctx, q2, core.Factory)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	row, _ := ws.Standard("ovh")
	if !row.Pct.Equal(d(10)) {
		t.Fatalf("pct should default to last saved value, got %s", row.Pct)
	}

	if _, err := svc.Save(ctx, ws); err != nil {
		t.Fatalf("save: %v", err)
	}
	cur := state(t, store, q2, "ovh", core.Factory)
	if !cur.UsedTotal.Equal(d(31500)) || !cur.OverrunThisQuarter.Equal(d(-8500)) {
		t.Errorf("current = used %s otq %s", cur.UsedTotal, cur.OverrunThisQuarter)
	}
	rec, _ := store.GetPeriodRecord(ctx, q2)
	if !rec.Row("ovh").Funded["p1"].Equal(d(11000)) || !rec.Row("ovh").Funded["p2"].Equal(d(20500)) {
		t.Errorf("funded = %v", rec.Row("ovh").Funded)
	}

	next := state(t, store, q3, "ovh", core.Factory)
	if len(next.PerProjectOverrun) != 0 {
		t.Errorf("folded debt must not be carried again: %v", next.PerProjectOverrun)
	}
	if !next.CarryOverIn.Equal(d(-8500)) {
		t.Errorf("next carryOverIn = %s, want -8500", next.CarryOverIn)
	}
}

func TestSaveKeepsOtherTypes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, q1, 20000)
	svc, _ := newTestServices(store, false)

	rec := core.NewPeriodRecord(q1)
	other := rec.EnsureRow(core.CategoryRef{ID: "ovh", Label: "Overhead"}).EnsureState(core.Construction)
	other.Saved = true
	other.Pct = d(42)
	rec.SetTotalOverrun(core.Construction, d(-5))
	if err := store.PutPeriodRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}

	ws, _ := svc.Load(ctx, q1, core.Factory)
	setPct(t, ws, svc.Engine(), 10)
	if _, err := svc.Save(ctx, ws); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := state(t, store, q1, "ovh", core.Construction)
	if !got.Pct.Equal(d(42)) {
		t.Errorf("construction state overwritten: %+v", got)
	}
	after, _ := store.GetPeriodRecord(ctx, q1)
	if !after.TotalOverrunThisQuarter[core.Construction].Equal(d(-5)) {
		t.Errorf("construction total overrun overwritten")
	}
}

type failingLedgers struct {
	*memory.Store
	failFor string
}

func (f *failingLedgers) PutLedger(ctx context.Context, ledger *core.LedgerRecord) error {
	if ledger.ProjectID == f.failFor {
		return errors.New("disk full")
	}
	return f.Store.PutLedger(ctx, ledger)
}

func TestSaveCollectsLedgerFailures(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, q1, 20000)
	deps := DepsFromStore(store)
	deps.Ledgers = &failingLedgers{Store: store, failFor: "p2"}
	svc := NewAllocationService(deps, AllocationOptions{})
	sessions := NewSessionManager(svc, 0, nil)

	sess, err := sessions.Open(ctx, q1, core.Factory)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := sessions.Edit(ctx, sess.ID, "ovh", allocation.FieldPct, "10"); err != nil {
		t.Fatalf("edit: %v", err)
	}

	_, err = sessions.Save(ctx, sess.ID)
	var perr *core.PersistenceError
	var pw *core.PartialWriteError
	if !errors.As(err, &perr) || !errors.As(err, &pw) {
		t.Fatalf("expected persistence error wrapping partial write, got %v", err)
	}
	if _, ok := pw.Failures["p2"]; !ok || len(pw.Failures) != 1 {
		t.Errorf("failures = %v", pw.Failures)
	}
	if !IsPartialWrite(err) {
		t.Errorf("IsPartialWrite should be true")
	}

	p1, _ := store.GetLedger(ctx, "p1", q1)
	if !p1.Items[0].Allocated.Equal(d(6667)) {
		t.Errorf("sibling ledger should still be written: %+v", p1.Items[0])
	}
	if _, err := store.GetPeriodRecord(ctx, q1); err != nil {
		t.Errorf("records should be written before ledgers: %v", err)
	}
	if !sess.Dirty("ovh")[allocation.FieldPct] {
		t.Errorf("dirty marks must survive a failed save")
	}
}

func TestSaveTriggersCascade(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, q1, 40000)
	svc, _ := newTestServices(store, true)

	ws, _ := svc.Load(ctx, q1, core.Factory)
	setPct(t, ws, svc.Engine(), 10)
	if _, err := svc.Save(ctx, ws); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Q1 leaves 10000 unspent per category; with no activity afterwards
	// the carry stays put through the rest of the year.
	for _, p := range []core.Period{q2, q3, q4} {
		st := state(t, store, p, "ovh", core.Factory)
		if !st.CarryOverIn.Equal(d(-10000)) || !st.OverrunCumulative.Equal(d(-10000)) {
			t.Errorf("%s: carryOverIn=%s cumulative=%s", p, st.CarryOverIn, st.OverrunCumulative)
		}
	}
	if _, err := store.GetPeriodRecord(ctx, core.MustPeriod(2026, 1)); !core.IsNotFound(err) {
		t.Errorf("cascade must not cross the year boundary")
	}
}

func TestCascadeKeepsTotalOverrunInStep(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, q1, 40000)
	for _, err := range []error{
		store.PutFinancials(ctx, core.ProjectFinancials{ProjectID: "p1", Period: q2, Revenue: d(100000)}),
		store.PutFinancials(ctx, core.ProjectFinancials{ProjectID: "p2", Period: q2, Revenue: d(200000)}),
		store.PutFixedCostTotal(ctx, q2, core.Factory, d(7000)),
		store.PutApprovedBudget(ctx, q2, core.Factory, "ovh", d(20000)),
		store.PutApprovedBudget(ctx, q2, core.Factory, "ins", d(20000)),
	} {
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	svc, _ := newTestServices(store, true)

	saveAt := func(p core.Period, pct int64) {
		t.Helper()
		ws, err := svc.Load(ctx, p, core.Factory)
		if err != nil {
			t.Fatalf("load %s: %v", p, err)
		}
		setPct(t, ws, svc.Engine(), pct)
		if _, err := svc.Save(ctx, ws); err != nil {
			t.Fatalf("save %s: %v", p, err)
		}
	}
	saveAt(q1, 10)
	saveAt(q2, 10)
	saveAt(q1, 20)

	for _, p := range []core.Period{q2, q3, q4} {
		rec, err := store.GetPeriodRecord(ctx, p)
		if err != nil {
			t.Fatalf("record %s: %v", p, err)
		}
		sum := decimal.Zero
		for _, row := range rec.Rows {
			if st, ok := row.ByType[core.Factory]; ok {
				sum = sum.Add(st.OverrunThisQuarter)
			}
		}
		if got := rec.TotalOverrunThisQuarter[core.Factory]; !got.Equal(sum) {
			t.Errorf("%s: total overrun %s, rows sum to %s", p, got, sum)
		}
	}
}

func TestCascadeService(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, q1, 40000)
	_, cascade := newTestServices(store, false)

	written, err := cascade.Cascade(ctx, q1, core.Factory)
	if err != nil || written != nil {
		t.Fatalf("cascade without record: %v %v", written, err)
	}

	rec := core.NewPeriodRecord(q3)
	st := rec.EnsureRow(core.CategoryRef{ID: "ins", Label: "Insurance"}).EnsureState(core.Factory)
	st.Saved = true
	st.UsedTotal, st.AllocatedBudget, st.OverrunCumulative = d(900), d(1000), d(400)
	if err := store.PutPeriodRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}
	later := core.NewPeriodRecord(q4)
	lst := later.EnsureRow(core.CategoryRef{ID: "ins", Label: "Insurance"}).EnsureState(core.Factory)
	lst.UsedTotal, lst.AllocatedBudget = d(1200), d(1000)
	if err := store.PutPeriodRecord(ctx, later); err != nil {
		t.Fatal(err)
	}

	written, err = cascade.Cascade(ctx, q3, core.Factory)
	if err != nil {
		t.Fatalf("cascade: %v", err)
	}
	if len(written) != 1 || written[0] != q4 {
		t.Fatalf("written = %v, want [Q4]", written)
	}
	got := state(t, store, q4, "ins", core.Factory)
	if !got.CarryOverIn.Equal(d(400)) || !got.OverrunThisQuarter.Equal(d(200)) || !got.OverrunCumulative.Equal(d(600)) {
		t.Errorf("Q4 state = %+v", got)
	}

	written, err = cascade.Cascade(ctx, q4, core.Factory)
	if err != nil || len(written) != 0 {
		t.Errorf("cascade from Q4 should write nothing: %v %v", written, err)
	}
}
