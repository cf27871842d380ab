package allocation

import (
	"testing"

	"github.com/shopspring/decimal"

	"costalloc/internal/core"
)

var cascadeCategories = []core.Category{
	{ID: "hdr", Label: "General", Header: true},
	{ID: "ovh", Label: "Overhead"},
	{ID: "ins", Label: "Insurance"},
	{ID: "fix", Label: "Personnel", Fixed: true},
}

func TestPlanCascadeKeepsCarryConstantWithoutActivity(t *testing.T) {
	out := PlanCascade(CascadeInput{
		From:       core.MustPeriod(2025, 1),
		Type:       core.Construction,
		Categories: cascadeCategories,
		Carry:      map[string]decimal.Decimal{"ovh": d(1500), "ins": d(-200)},
		Records:    map[core.Period]*core.PeriodRecord{},
		MaxHops:    DefaultMaxHops,
	})
	if len(out) != 3 {
		t.Fatalf("expected 3 hops, got %d", len(out))
	}
	for i, rec := range out {
		if want := core.MustPeriod(2025, i+2); rec.Period != want {
			t.Fatalf("hop %d period = %s, want %s", i, rec.Period, want)
		}
		st, ok := rec.State("ovh", core.Construction)
		if !ok || !st.CarryOverIn.Equal(d(1500)) || !st.OverrunCumulative.Equal(d(1500)) {
			t.Fatalf("hop %d: unexpected ovh state %+v", i, st)
		}
		st, ok = rec.State("ins", core.Construction)
		if !ok || !st.CarryOverIn.Equal(d(-200)) {
			t.Fatalf("hop %d: unexpected ins state %+v", i, st)
		}
		if rec.Row("fix") != nil || rec.Row("hdr") != nil {
			t.Fatalf("hop %d: fixed and header categories must be skipped", i)
		}
	}
}

func TestPlanCascadeStopsAtYearEnd(t *testing.T) {
	in := CascadeInput{
		From:       core.MustPeriod(2025, 3),
		Type:       core.Factory,
		Categories: cascadeCategories,
		Carry:      map[string]decimal.Decimal{"ovh": d(10)},
		MaxHops:    3,
	}
	out := PlanCascade(in)
	if len(out) != 1 || out[0].Period != core.MustPeriod(2025, 4) {
		t.Fatalf("expected a single hop into Q4, got %d records", len(out))
	}

	in.From = core.MustPeriod(2025, 4)
	if out := PlanCascade(in); len(out) != 0 {
		t.Fatalf("expected no hops from Q4, got %d", len(out))
	}

	in.From = core.MustPeriod(2025, 1)
	in.MaxHops = 1
	if out := PlanCascade(in); len(out) != 1 {
		t.Fatalf("expected hops bounded by MaxHops, got %d", len(out))
	}
}

func TestPlanCascadeChainsStoredFigures(t *testing.T) {
	q2 := core.NewPeriodRecord(core.MustPeriod(2025, 2))
	st := q2.EnsureRow(core.CategoryRef{ID: "ovh", Label: "Overhead"}).EnsureState(core.Investment)
	st.Saved = true
	st.UsedTotal = d(12000)
	st.AllocatedBudget = d(10000)
	st.PerProjectOverrun = map[string]decimal.Decimal{"p1": d(7)}
	other := q2.Row("ovh").EnsureState(core.Construction)
	other.CarryOverIn = d(99)

	q3 := core.NewPeriodRecord(core.MustPeriod(2025, 3))
	st3 := q3.EnsureRow(core.CategoryRef{ID: "ovh", Label: "Overhead"}).EnsureState(core.Investment)
	st3.UsedTotal = d(5000)
	st3.AllocatedBudget = d(8000)

	records := map[core.Period]*core.PeriodRecord{q2.Period: q2, q3.Period: q3}
	out := PlanCascade(CascadeInput{
		From:       core.MustPeriod(2025, 1),
		Type:       core.Investment,
		Categories: cascadeCategories,
		Carry:      map[string]decimal.Decimal{"ovh": d(1000)},
		Records:    records,
	})

	got2, _ := out[0].State("ovh", core.Investment)
	if !got2.CarryOverIn.Equal(d(1000)) || !got2.OverrunThisQuarter.Equal(d(2000)) || !got2.OverrunCumulative.Equal(d(3000)) {
		t.Fatalf("unexpected Q2 state %+v", got2)
	}
	if !got2.PerProjectOverrun["p1"].Equal(d(7)) || !got2.UsedTotal.Equal(d(12000)) {
		t.Fatalf("cascade must not touch per-project figures")
	}
	if c, _ := out[0].State("ovh", core.Construction); !c.CarryOverIn.Equal(d(99)) {
		t.Fatalf("other project types must be untouched")
	}

	got3, _ := out[1].State("ovh", core.Investment)
	if !got3.CarryOverIn.Equal(d(3000)) || !got3.OverrunCumulative.Equal(d(0)) {
		t.Fatalf("unexpected Q3 state %+v", got3)
	}
	got4, _ := out[2].State("ovh", core.Investment)
	if !got4.CarryOverIn.IsZero() {
		t.Fatalf("unexpected Q4 state %+v", got4)
	}

	if q2.Row("ovh").ByType[core.Investment].CarryOverIn.IsPositive() {
		t.Fatalf("input records must not be modified")
	}
}

func TestPlanCascadeRefreshesTotalOverrun(t *testing.T) {
	q2 := core.NewPeriodRecord(core.MustPeriod(2025, 2))
	ovh := q2.EnsureRow(core.CategoryRef{ID: "ovh", Label: "Overhead"}).EnsureState(core.Factory)
	ovh.UsedTotal, ovh.AllocatedBudget = d(12000), d(10000)
	ins := q2.EnsureRow(core.CategoryRef{ID: "ins", Label: "Insurance"}).EnsureState(core.Factory)
	ins.UsedTotal, ins.AllocatedBudget = d(4000), d(5000)
	q2.SetTotalOverrun(core.Factory, d(999))
	q2.SetTotalOverrun(core.Construction, d(-5))

	q3 := core.NewPeriodRecord(core.MustPeriod(2025, 3))
	st3 := q3.EnsureRow(core.CategoryRef{ID: "ovh", Label: "Overhead"}).EnsureState(core.Factory)
	st3.UsedTotal, st3.AllocatedBudget = d(5000), d(8000)

	out := PlanCascade(CascadeInput{
		From:       core.MustPeriod(2025, 1),
		Type:       core.Factory,
		Categories: cascadeCategories,
		Carry:      map[string]decimal.Decimal{"ovh": d(1000), "ins": d(0)},
		Records:    map[core.Period]*core.PeriodRecord{q2.Period: q2, q3.Period: q3},
	})
	if len(out) != 3 {
		t.Fatalf("expected 3 hops, got %d", len(out))
	}

	tests := []struct {
		name string
		hop  int
		want decimal.Decimal
	}{
		{name: "Q2 sums both categories", hop: 0, want: d(1000)},
		{name: "Q3 sums stored figures", hop: 1, want: d(-3000)},
		{name: "Q4 without activity", hop: 2, want: d(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := out[tt.hop]
			if got := rec.TotalOverrunThisQuarter[core.Factory]; !got.Equal(tt.want) {
				t.Errorf("total overrun = %s, want %s", got, tt.want)
			}
			sum := decimal.Zero
			for _, row := range rec.Rows {
				if st, ok := row.ByType[core.Factory]; ok {
					sum = sum.Add(st.OverrunThisQuarter)
				}
			}
			if !sum.Equal(rec.TotalOverrunThisQuarter[core.Factory]) {
				t.Errorf("total %s does not match row sum %s", rec.TotalOverrunThisQuarter[core.Factory], sum)
			}
		})
	}

	if !out[0].TotalOverrunThisQuarter[core.Construction].Equal(d(-5)) {
		t.Errorf("other project types' totals must be untouched")
	}
	if !q2.TotalOverrunThisQuarter[core.Factory].Equal(d(999)) {
		t.Errorf("input records must not be modified")
	}
}

func TestStartingCarry(t *testing.T) {
	rec := core.NewPeriodRecord(core.MustPeriod(2025, 1))
	rec.EnsureRow(core.CategoryRef{ID: "ovh"}).EnsureState(core.Factory).OverrunCumulative = d(42)
	rec.EnsureRow(core.CategoryRef{ID: "fix"}).EnsureState(core.Factory).OverrunCumulative = d(1)

	carry := StartingCarry(rec, core.Factory, cascadeCategories)
	if len(carry) != 1 || !carry["ovh"].Equal(d(42)) {
		t.Fatalf("unexpected carry %v", carry)
	}
	if len(StartingCarry(nil, core.Factory, cascadeCategories)) != 0 {
		t.Fatalf("nil record has no carry")
	}
}
