package core

import "github.com/shopspring/decimal"

// AllocationRow is one line of a worksheet. It is one of *StandardRow,
// *FixedRow or *HeaderRow; callers dispatch with a type switch.
type AllocationRow interface {
	Category() Category
	allocationRow()
}

// Funding is the output of recomputing a standard row.
type Funding struct {
	Need               map[string]decimal.Decimal `json:"need"`
	Funded             map[string]decimal.Decimal `json:"funded"`
	TotalNeed          decimal.Decimal            `json:"totalNeed"`
	BudgetNet          decimal.Decimal            `json:"budgetNet"`
	UsedTotal          decimal.Decimal            `json:"usedTotal"`
	OverrunThisQuarter decimal.Decimal            `json:"overrunThisQuarter"`
	OverrunCumulative  decimal.Decimal            `json:"overrunCumulative"`
	Scaled             bool                       `json:"scaled"`
	// OverrunFolded is set when the previous overrun was added back to the
	// funded amounts in this pass.
	OverrunFolded bool `json:"overrunFolded"`
}

// Shortfall returns max(0, need - funded) for every project with a need.
func (f Funding) Shortfall() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(f.Need))
	for p, need := range f.Need {
		out[p] = NonNegative(need.Sub(f.Funded[p]))
	}
	return out
}

// StandardRow is a category whose funding is computed from project need.
type StandardRow struct {
	Cat             Category                   `json:"category"`
	Pct             decimal.Decimal            `json:"pct"`
	AllocatedBudget decimal.Decimal            `json:"allocatedBudget"`
	CarryOverIn     decimal.Decimal            `json:"carryOverIn"`
	PreviousOverrun map[string]decimal.Decimal `json:"previousOverrun,omitempty"`
	Funding         Funding                    `json:"funding"`
	Dirty           bool                       `json:"dirty"`
}

// FixedRow is a category whose budget is supplied as a single total.
type FixedRow struct {
	Cat             Category        `json:"category"`
	AllocatedBudget decimal.Decimal `json:"allocatedBudget"`
}

// HeaderRow is a section title.
type HeaderRow struct {
	Cat Category `json:"category"`
}

func (r *StandardRow) Category() Category { return r.Cat }
func (r *FixedRow) Category() Category    { return r.Cat }
func (r *HeaderRow) Category() Category   { return r.Cat }

func (*StandardRow) allocationRow() {}
func (*FixedRow) allocationRow()    {}
func (*HeaderRow) allocationRow()   {}

// UsedTotal of a fixed row is its budget, as given.
func (r *FixedRow) UsedTotal() decimal.Decimal {
	return r.AllocatedBudget
}

// Clone returns a deep copy of the row.
func (r *StandardRow) Clone() *StandardRow {
	c := *r
	c.PreviousOverrun = CloneAmounts(r.PreviousOverrun)
	c.Funding.Need = CloneAmounts(r.Funding.Need)
	c.Funding.Funded = CloneAmounts(r.Funding.Funded)
	return &c
}

// CloneRow deep-copies any row variant.
func CloneRow(row AllocationRow) AllocationRow {
	switch r := row.(type) {
	case *StandardRow:
		return r.Clone()
	case *FixedRow:
		c := *r
		return &c
	case *HeaderRow:
		c := *r
		return &c
	}
	return row
}

// RowKind names the variant for serialization.
func RowKind(row AllocationRow) string {
	switch row.(type) {
	case *StandardRow:
		return "standard"
	case *FixedRow:
		return "fixed"
	case *HeaderRow:
		return "header"
	}
	return "unknown"
}
