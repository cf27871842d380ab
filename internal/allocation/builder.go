package allocation

import (
	"github.com/shopspring/decimal"

	"costalloc/internal/core"
)

// BuildInput is what BuildRows assembles a worksheet from.
type BuildInput struct {
	Period     core.Period
	Type       core.ProjectType
	Categories []core.Category
	// Record is the persisted record of Period; nil when nothing was saved
	// or carried into it yet.
	Record *core.PeriodRecord
	// Budgets holds the externally approved budget per category ID. A
	// category missing here keeps the budget last saved with it.
	Budgets map[string]decimal.Decimal
	// FixedTotal is the budget of the fixed category.
	FixedTotal decimal.Decimal
	// PctDefaults holds the last edited pct per category ID, used for rows
	// never saved in Period.
	PctDefaults map[string]decimal.Decimal
}

// BuildRows returns one row per category in registry order. Standard rows
// start with zero funding; run the engine to fill it in.
func BuildRows(in BuildInput) []core.AllocationRow {
	rows := make([]core.AllocationRow, 0, len(in.Categories))
	for _, cat := range in.Categories {
		switch {
		case cat.Header:
			rows = append(rows, &core.HeaderRow{Cat: cat})
		case cat.Fixed:
			rows = append(rows, &core.FixedRow{Cat: cat, AllocatedBudget: in.FixedTotal})
		default:
			rows = append(rows, buildStandard(in, cat))
		}
	}
	return rows
}

func buildStandard(in BuildInput, cat core.Category) *core.StandardRow {
	row := &core.StandardRow{
		Cat: cat,
		Pct: in.PctDefaults[cat.ID],
		Funding: core.Funding{
			Need:   map[string]decimal.Decimal{},
			Funded: map[string]decimal.Decimal{},
		},
	}
	if st, ok := in.Record.State(cat.ID, in.Type); ok {
		row.CarryOverIn = st.CarryOverIn
		row.PreviousOverrun = core.CloneAmounts(st.PerProjectOverrun)
		if st.Saved {
			row.Pct = st.Pct
			row.AllocatedBudget = st.AllocatedBudget
		}
	}
	if budget, ok := in.Budgets[cat.ID]; ok {
		row.AllocatedBudget = budget
	}
	return row
}

// PctDefaults collects the pct of every category saved for t in rec.
func PctDefaults(rec *core.PeriodRecord, t core.ProjectType) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	if rec == nil {
		return out
	}
	for _, row := range rec.Rows {
		if st, ok := row.ByType[t]; ok && st != nil && st.Saved {
			out[row.ID] = st.Pct
		}
	}
	return out
}
