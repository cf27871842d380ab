package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type (
	// PeriodRecord is the persisted allocation state of one period. One
	// record holds the rows of all three project types side by side.
	PeriodRecord struct {
		Period                  Period                          `json:"period"`
		Rows                    []*RecordRow                    `json:"rows"`
		TotalOverrunThisQuarter map[ProjectType]decimal.Decimal `json:"totalOverrunThisQuarter,omitempty"`
		UpdatedAt               time.Time                       `json:"updatedAt"`
	}

	// RecordRow is the persisted state of one category. Funded is keyed by
	// project ID; a project belongs to a single type so the map is shared.
	RecordRow struct {
		ID     string                     `json:"id"`
		Label  string                     `json:"label"`
		ByType map[ProjectType]*TypeState `json:"byType"`
		Funded map[string]decimal.Decimal `json:"funded,omitempty"`
	}

	// TypeState holds the figures of a category for one project type.
	// Saved is false when the state was only written as carry-over by the
	// save of the previous period or by a cascade.
	TypeState struct {
		Saved              bool                       `json:"saved,omitempty"`
		Pct                decimal.Decimal            `json:"pct"`
		AllocatedBudget    decimal.Decimal            `json:"allocatedBudget"`
		UsedTotal          decimal.Decimal            `json:"usedTotal"`
		CarryOverIn        decimal.Decimal            `json:"carryOverIn"`
		OverrunThisQuarter decimal.Decimal            `json:"overrunThisQuarter"`
		OverrunCumulative  decimal.Decimal            `json:"overrunCumulative"`
		PerProjectOverrun  map[string]decimal.Decimal `json:"perProjectOverrun,omitempty"`
	}

	// LedgerRecord is a project's own cost ledger for one period.
	LedgerRecord struct {
		ProjectID string     `json:"projectId"`
		Period    Period     `json:"period"`
		Items     []LineItem `json:"items"`
		UpdatedAt time.Time  `json:"updatedAt"`
	}

	// LineItem is one cost line of a project ledger. Allocated is the only
	// field written by the allocation engine.
	LineItem struct {
		ID        string          `json:"id,omitempty" toml:"id"`
		Label     string          `json:"label" toml:"label"`
		Cost      decimal.Decimal `json:"cost" toml:"cost"`
		Allocated decimal.Decimal `json:"allocated" toml:"allocated"`
	}
)

// NewPeriodRecord returns an empty record for p.
func NewPeriodRecord(p Period) *PeriodRecord {
	return &PeriodRecord{
		Period:                  p,
		TotalOverrunThisQuarter: make(map[ProjectType]decimal.Decimal),
	}
}

// Row returns the row with the given category ID, or nil.
func (r *PeriodRecord) Row(id string) *RecordRow {
	if r == nil {
		return nil
	}
	for _, row := range r.Rows {
		if row.ID == id {
			return row
		}
	}
	return nil
}

// EnsureRow returns the row for ref, appending an empty one when missing.
// The stored label follows the registry.
func (r *PeriodRecord) EnsureRow(ref CategoryRef) *RecordRow {
	if row := r.Row(ref.ID); row != nil {
		if ref.Label != "" {
			row.Label = ref.Label
		}
		return row
	}
	row := &RecordRow{ID: ref.ID, Label: ref.Label, ByType: make(map[ProjectType]*TypeState)}
	r.Rows = append(r.Rows, row)
	return row
}

// State returns the figures of category id for type t.
func (r *PeriodRecord) State(id string, t ProjectType) (*TypeState, bool) {
	row := r.Row(id)
	if row == nil || row.ByType == nil {
		return nil, false
	}
	st, ok := row.ByType[t]
	return st, ok && st != nil
}

// EnsureState returns the figures of the row for type t, creating them.
func (row *RecordRow) EnsureState(t ProjectType) *TypeState {
	if row.ByType == nil {
		row.ByType = make(map[ProjectType]*TypeState)
	}
	st, ok := row.ByType[t]
	if !ok || st == nil {
		st = &TypeState{}
		row.ByType[t] = st
	}
	return st
}

// SetFunded stores a project's funded amount.
func (row *RecordRow) SetFunded(projectID string, amount decimal.Decimal) {
	if row.Funded == nil {
		row.Funded = make(map[string]decimal.Decimal)
	}
	row.Funded[projectID] = amount
}

// RemoveFunded drops a project's funded amount.
func (row *RecordRow) RemoveFunded(projectID string) {
	delete(row.Funded, projectID)
}

// SetTotalOverrun stores the aggregated overrun of a type.
func (r *PeriodRecord) SetTotalOverrun(t ProjectType, amount decimal.Decimal) {
	if r.TotalOverrunThisQuarter == nil {
		r.TotalOverrunThisQuarter = make(map[ProjectType]decimal.Decimal)
	}
	r.TotalOverrunThisQuarter[t] = amount
}

// Clone returns a deep copy of the record.
func (r *PeriodRecord) Clone() *PeriodRecord {
	if r == nil {
		return nil
	}
	c := &PeriodRecord{
		Period:    r.Period,
		UpdatedAt: r.UpdatedAt,
		Rows:      make([]*RecordRow, 0, len(r.Rows)),
	}
	if r.TotalOverrunThisQuarter != nil {
		c.TotalOverrunThisQuarter = make(map[ProjectType]decimal.Decimal, len(r.TotalOverrunThisQuarter))
		for k, v := range r.TotalOverrunThisQuarter {
			c.TotalOverrunThisQuarter[k] = v
		}
	}
	for _, row := range r.Rows {
		c.Rows = append(c.Rows, row.Clone())
	}
	return c
}

// Clone returns a deep copy of the row.
func (row *RecordRow) Clone() *RecordRow {
	c := &RecordRow{
		ID:     row.ID,
		Label:  row.Label,
		Funded: CloneAmounts(row.Funded),
		ByType: make(map[ProjectType]*TypeState, len(row.ByType)),
	}
	for t, st := range row.ByType {
		if st == nil {
			continue
		}
		s := *st
		s.PerProjectOverrun = CloneAmounts(st.PerProjectOverrun)
		c.ByType[t] = &s
	}
	return c
}

// Clone returns a deep copy of the ledger.
func (l *LedgerRecord) Clone() *LedgerRecord {
	if l == nil {
		return nil
	}
	c := *l
	c.Items = append([]LineItem(nil), l.Items...)
	return &c
}
