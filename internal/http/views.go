package http

import (
	"sort"

	"github.com/shopspring/decimal"

	"costalloc/internal/allocation"
	"costalloc/internal/core"
)

// rowView is the wire form of one worksheet row. Fields that do not apply
// to the row kind are omitted.
type rowView struct {
	Kind            string           `json:"kind"`
	ID              string           `json:"id"`
	Label           string           `json:"label"`
	Pct             *decimal.Decimal `json:"pct,omitempty"`
	AllocatedBudget *decimal.Decimal `json:"allocatedBudget,omitempty"`
	CarryOverIn     *decimal.Decimal `json:"carryOverIn,omitempty"`
	Funding         *core.Funding    `json:"funding,omitempty"`
	Dirty           bool             `json:"dirty,omitempty"`
	DirtyFields     []string         `json:"dirtyFields,omitempty"`
}

type projectView struct {
	ID      string          `json:"id"`
	Revenue decimal.Decimal `json:"revenue"`
}

type worksheetView struct {
	Session  string             `json:"session,omitempty"`
	Period   string             `json:"period"`
	Year     int                `json:"year"`
	Quarter  int                `json:"quarter"`
	Type     core.ProjectType   `json:"type"`
	Rows     []rowView          `json:"rows"`
	Projects []projectView      `json:"projects"`
	Summary  allocation.Summary `json:"summary"`
	Saving   bool               `json:"saving,omitempty"`
}

type cascadeView struct {
	From    string   `json:"from"`
	Type    string   `json:"type"`
	Updated []string `json:"updated"`
}

// dirtyFunc reports the pending fields of a category. Nil outside sessions.
type dirtyFunc func(categoryID string) map[allocation.Field]bool

func newRowView(row core.AllocationRow, dirty dirtyFunc) rowView {
	cat := row.Category()
	v := rowView{Kind: core.RowKind(row), ID: cat.ID, Label: cat.Label}
	switch r := row.(type) {
	case *core.StandardRow:
		pct, budget, carry, funding := r.Pct, r.AllocatedBudget, r.CarryOverIn, r.Funding
		v.Pct, v.AllocatedBudget, v.CarryOverIn, v.Funding = &pct, &budget, &carry, &funding
		v.Dirty = r.Dirty
		if dirty != nil {
			for f := range dirty(cat.ID) {
				v.DirtyFields = append(v.DirtyFields, string(f))
			}
			sort.Strings(v.DirtyFields)
		}
	case *core.FixedRow:
		budget := r.AllocatedBudget
		v.AllocatedBudget = &budget
	}
	return v
}

func newWorksheetView(ws *allocation.Worksheet, dirty dirtyFunc) worksheetView {
	v := worksheetView{
		Period:   ws.Period.Key(),
		Year:     ws.Period.Year,
		Quarter:  int(ws.Period.Quarter),
		Type:     ws.Type,
		Rows:     make([]rowView, 0, len(ws.Rows)),
		Projects: make([]projectView, 0, len(ws.Projects)),
		Summary:  ws.Summary(),
	}
	for _, row := range ws.Rows {
		v.Rows = append(v.Rows, newRowView(row, dirty))
	}
	for _, p := range ws.Projects {
		v.Projects = append(v.Projects, projectView{ID: p.ProjectID, Revenue: p.Revenue})
	}
	return v
}

func newSessionView(sess *allocation.Session) worksheetView {
	v := newWorksheetView(sess.Snapshot(), sess.Dirty)
	v.Session = sess.ID
	v.Saving = sess.Saving()
	return v
}
