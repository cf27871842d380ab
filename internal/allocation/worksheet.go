package allocation

import (
	"github.com/shopspring/decimal"

	"costalloc/internal/core"
)

// Worksheet is the working set of rows for one period and project type,
// together with the visible projects the rows are computed against.
type Worksheet struct {
	Period   core.Period
	Type     core.ProjectType
	Rows     []core.AllocationRow
	Projects []core.ProjectFinancials
}

// Summary aggregates a worksheet for reporting.
type Summary struct {
	AllocatedBudget    decimal.Decimal `json:"allocatedBudget"`
	UsedTotal          decimal.Decimal `json:"usedTotal"`
	OverrunThisQuarter decimal.Decimal `json:"overrunThisQuarter"`
	OverrunCumulative  decimal.Decimal `json:"overrunCumulative"`
}

// NewWorksheet builds the rows and computes every standard row.
func NewWorksheet(in BuildInput, projects []core.ProjectFinancials, engine Engine) *Worksheet {
	ws := &Worksheet{
		Period:   in.Period,
		Type:     in.Type,
		Rows:     BuildRows(in),
		Projects: VisibleProjects(projects),
	}
	ws.Recompute(engine)
	return ws
}

// VisibleProjects keeps the projects with revenue or cost in the period.
func VisibleProjects(all []core.ProjectFinancials) []core.ProjectFinancials {
	out := make([]core.ProjectFinancials, 0, len(all))
	for _, f := range all {
		if f.Visible() {
			out = append(out, f)
		}
	}
	return out
}

// Recompute reruns the engine on every standard row.
func (w *Worksheet) Recompute(engine Engine) {
	for _, row := range w.Rows {
		if r, ok := row.(*core.StandardRow); ok {
			engine.RecomputeRow(r, w.Projects)
		}
	}
}

// Row returns the row of category id.
func (w *Worksheet) Row(id string) (core.AllocationRow, bool) {
	for _, row := range w.Rows {
		if row.Category().ID == id {
			return row, true
		}
	}
	return nil, false
}

// Standard returns the standard row of category id.
func (w *Worksheet) Standard(id string) (*core.StandardRow, bool) {
	row, ok := w.Row(id)
	if !ok {
		return nil, false
	}
	r, ok := row.(*core.StandardRow)
	return r, ok
}

// StandardRows lists the standard rows in order.
func (w *Worksheet) StandardRows() []*core.StandardRow {
	var out []*core.StandardRow
	for _, row := range w.Rows {
		if r, ok := row.(*core.StandardRow); ok {
			out = append(out, r)
		}
	}
	return out
}

// Summary totals the standard and fixed rows. Fixed rows count their budget
// as used.
func (w *Worksheet) Summary() Summary {
	s := Summary{
		AllocatedBudget:    decimal.Zero,
		UsedTotal:          decimal.Zero,
		OverrunThisQuarter: decimal.Zero,
		OverrunCumulative:  decimal.Zero,
	}
	for _, row := range w.Rows {
		switch r := row.(type) {
		case *core.StandardRow:
			s.AllocatedBudget = s.AllocatedBudget.Add(r.AllocatedBudget)
			s.UsedTotal = s.UsedTotal.Add(r.Funding.UsedTotal)
			s.OverrunThisQuarter = s.OverrunThisQuarter.Add(r.Funding.OverrunThisQuarter)
			s.OverrunCumulative = s.OverrunCumulative.Add(r.Funding.OverrunCumulative)
		case *core.FixedRow:
			s.AllocatedBudget = s.AllocatedBudget.Add(r.AllocatedBudget)
			s.UsedTotal = s.UsedTotal.Add(r.UsedTotal())
		}
	}
	return s
}

// Clone returns a deep copy. Projects are shared; they are never mutated.
func (w *Worksheet) Clone() *Worksheet {
	c := &Worksheet{
		Period:   w.Period,
		Type:     w.Type,
		Rows:     make([]core.AllocationRow, 0, len(w.Rows)),
		Projects: w.Projects,
	}
	for _, row := range w.Rows {
		c.Rows = append(c.Rows, core.CloneRow(row))
	}
	return c
}
