// Package allocation holds the pure part of the cost allocation engine: row
// assembly, the per-row funding computation, the carry-over cascade fold and
// the session reducer used by editors.
//
// Nothing in this package performs I/O. Callers in internal/services read
// the inputs from the stores and persist the results.
package allocation

import (
	"github.com/shopspring/decimal"

	"costalloc/internal/core"
)

// DefaultEpsilon is the dead-band, in currency units, inside which a gap
// between used total and net budget is treated as rounding residue.
var DefaultEpsilon = decimal.NewFromInt(2)

// Engine recomputes standard rows. The zero value is not usable; use
// NewEngine.
type Engine struct {
	epsilon decimal.Decimal
}

// NewEngine returns an engine with the given rounding dead-band. A negative
// epsilon falls back to DefaultEpsilon.
func NewEngine(epsilon decimal.Decimal) Engine {
	if epsilon.IsNegative() {
		epsilon = DefaultEpsilon
	}
	return Engine{epsilon: epsilon}
}

// Epsilon returns the configured dead-band.
func (e Engine) Epsilon() decimal.Decimal {
	return e.epsilon
}

// ProjectInput is the per-project data a category needs.
type ProjectInput struct {
	ProjectID  string
	Revenue    decimal.Decimal
	DirectCost decimal.Decimal
}

// RecomputeInput carries everything Recompute reads. PreviousOverrun is the
// per-project debt rolled in from the previous period.
type RecomputeInput struct {
	Pct             decimal.Decimal
	AllocatedBudget decimal.Decimal
	CarryOverIn     decimal.Decimal
	PreviousOverrun map[string]decimal.Decimal
	Projects        []ProjectInput
}

// Recompute turns need into funded amounts for one category.
//
// Need is the share of revenue given by pct minus what the project already
// booked directly, never negative. When total need exceeds the budget left
// after honoring carry-over, every project is cut in proportion to its need.
// Otherwise projects get their full need and, if the budget still has room
// for it, the debt rolled in from the previous period as well.
func (e Engine) Recompute(in RecomputeInput) core.Funding {
	out := core.Funding{
		Need:   make(map[string]decimal.Decimal, len(in.Projects)),
		Funded: make(map[string]decimal.Decimal, len(in.Projects)),
	}

	totalNeed := decimal.Zero
	for _, p := range in.Projects {
		need := core.NonNegative(core.RoundUnits(core.PercentOf(p.Revenue, in.Pct).Sub(p.DirectCost)))
		out.Need[p.ProjectID] = out.Need[p.ProjectID].Add(need)
		totalNeed = totalNeed.Add(need)
	}
	out.TotalNeed = totalNeed
	out.BudgetNet = in.AllocatedBudget.Sub(in.CarryOverIn)

	if totalNeed.GreaterThan(out.BudgetNet) && out.BudgetNet.IsPositive() {
		out.Scaled = true
		for id, need := range out.Need {
			out.Funded[id] = core.RoundUnits(need.Mul(out.BudgetNet).Div(totalNeed))
		}
	} else {
		for id, need := range out.Need {
			out.Funded[id] = need
		}
	}

	if !out.Scaled {
		wouldBe := decimal.Zero
		for id, funded := range out.Funded {
			wouldBe = wouldBe.Add(funded).Add(previousOverrun(in.PreviousOverrun, id))
		}
		if wouldBe.LessThanOrEqual(out.BudgetNet) {
			for id, funded := range out.Funded {
				if debt := previousOverrun(in.PreviousOverrun, id); debt.IsPositive() {
					out.Funded[id] = funded.Add(debt)
					out.OverrunFolded = true
				}
			}
		}
	}

	out.UsedTotal = core.SumAmounts(out.Funded)
	if out.UsedTotal.Sub(out.BudgetNet).Abs().LessThan(e.epsilon) {
		out.OverrunThisQuarter = decimal.Zero
	} else {
		out.OverrunThisQuarter = out.UsedTotal.Sub(in.AllocatedBudget)
	}
	out.OverrunCumulative = out.UsedTotal.Sub(in.AllocatedBudget).Add(in.CarryOverIn)
	return out
}

// RecomputeRow runs Recompute for a standard row against the visible
// projects and stores the result on the row.
func (e Engine) RecomputeRow(row *core.StandardRow, projects []core.ProjectFinancials) {
	in := RecomputeInput{
		Pct:             row.Pct,
		AllocatedBudget: row.AllocatedBudget,
		CarryOverIn:     row.CarryOverIn,
		PreviousOverrun: row.PreviousOverrun,
		Projects:        make([]ProjectInput, 0, len(projects)),
	}
	for _, f := range projects {
		in.Projects = append(in.Projects, ProjectInput{
			ProjectID:  f.ProjectID,
			Revenue:    f.Revenue,
			DirectCost: f.DirectCost(row.Cat.Label),
		})
	}
	row.Funding = e.Recompute(in)
}

func previousOverrun(m map[string]decimal.Decimal, id string) decimal.Decimal {
	if m == nil {
		return decimal.Zero
	}
	return core.NonNegative(m[id])
}
