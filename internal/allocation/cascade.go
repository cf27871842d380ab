package allocation

import (
	"github.com/shopspring/decimal"

	"costalloc/internal/core"
)

// DefaultMaxHops bounds how many periods one cascade walks.
const DefaultMaxHops = 3

// CascadeInput describes one cascade run for a project type.
type CascadeInput struct {
	From       core.Period
	Type       core.ProjectType
	Categories []core.Category
	// Carry is the overrunCumulative saved in From, per category ID.
	Carry map[string]decimal.Decimal
	// Records holds the stored records of the periods after From. Missing
	// periods are created empty.
	Records map[core.Period]*core.PeriodRecord
	MaxHops int
}

// StartingCarry reads the overrunCumulative of every standard category of t
// saved in rec.
func StartingCarry(rec *core.PeriodRecord, t core.ProjectType, categories []core.Category) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, cat := range categories {
		if cat.Fixed || cat.Header {
			continue
		}
		if st, ok := rec.State(cat.ID, t); ok {
			out[cat.ID] = st.OverrunCumulative
		}
	}
	return out
}

// PlanCascade folds the carry chain over the periods following From in the
// same year and returns the updated copies of their records, in order.
//
// Each hop only rewrites the scalar carry fields of a category from its own
// stored usedTotal and allocatedBudget, then refreshes the type's total
// overrun this quarter. Funded amounts are left alone. Records in the input
// are not modified.
func PlanCascade(in CascadeInput) []*core.PeriodRecord {
	hops := in.MaxHops
	if hops <= 0 {
		hops = DefaultMaxHops
	}

	var out []*core.PeriodRecord
	carry := in.Carry
	for _, p := range in.From.FollowingInYear(hops) {
		rec := in.Records[p].Clone()
		if rec == nil {
			rec = core.NewPeriodRecord(p)
		}
		carry = cascadeHop(rec, in.Type, in.Categories, carry)
		rec.SetTotalOverrun(in.Type, totalOverrun(rec, in.Type, in.Categories))
		out = append(out, rec)
	}
	return out
}

func cascadeHop(rec *core.PeriodRecord, t core.ProjectType, categories []core.Category, carry map[string]decimal.Decimal) map[string]decimal.Decimal {
	next := make(map[string]decimal.Decimal, len(carry))
	for _, cat := range categories {
		if cat.Fixed || cat.Header {
			continue
		}
		in, ok := carry[cat.ID]
		if !ok {
			continue
		}
		st := rec.EnsureRow(cat.Ref()).EnsureState(t)
		st.CarryOverIn = in
		st.OverrunThisQuarter = st.UsedTotal.Sub(st.AllocatedBudget)
		st.OverrunCumulative = st.OverrunThisQuarter.Add(in)
		next[cat.ID] = st.OverrunCumulative
	}
	return next
}

// totalOverrun sums overrunThisQuarter over the standard categories of t, the
// same rows a save aggregates.
func totalOverrun(rec *core.PeriodRecord, t core.ProjectType, categories []core.Category) decimal.Decimal {
	total := decimal.Zero
	for _, cat := range categories {
		if cat.Fixed || cat.Header {
			continue
		}
		if st, ok := rec.State(cat.ID, t); ok {
			total = total.Add(st.OverrunThisQuarter)
		}
	}
	return total
}
