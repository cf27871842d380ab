package allocation

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"costalloc/internal/core"
)

var (
	ErrSaveInProgress = errors.New("save already in progress")
	ErrNotEditable    = errors.New("row is not editable")
	ErrUnknownField   = errors.New("unknown field")
)

// Field names an editable input of a standard row.
type Field string

const (
	FieldPct         Field = "pct"
	FieldCarryOverIn Field = "carryOverIn"
)

// ParseField accepts the JSON names of the editable fields.
func ParseField(s string) (Field, error) {
	switch f := Field(s); f {
	case FieldPct, FieldCarryOverIn:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
}

// Session is one editor's view of a worksheet. It keeps the local drafts and
// which of their fields were edited and not yet saved, so a refresh from the
// store never overwrites a pending edit.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu     sync.Mutex
	engine Engine
	ws     *Worksheet
	// dirty maps category ID to the edited fields. The value is the edit
	// sequence number, used to keep edits made while a save was running.
	dirty  map[string]map[Field]uint64
	seq    uint64
	saving bool
	saved  map[string]map[Field]uint64
}

// NewSession starts a session on ws.
func NewSession(id string, ws *Worksheet, engine Engine) *Session {
	return &Session{
		ID:        id,
		CreatedAt: time.Now(),
		engine:    engine,
		ws:        ws.Clone(),
		dirty:     make(map[string]map[Field]uint64),
	}
}

// Period returns the period being edited.
func (s *Session) Period() core.Period {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws.Period
}

// Type returns the project type being edited.
func (s *Session) Type() core.ProjectType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws.Type
}

// Snapshot returns a copy of the working set with dirty flags applied.
func (s *Session) Snapshot() *Worksheet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() *Worksheet {
	ws := s.ws.Clone()
	for _, r := range ws.StandardRows() {
		r.Dirty = len(s.dirty[r.Cat.ID]) > 0
	}
	return ws
}

// Dirty reports the pending fields of a category.
func (s *Session) Dirty(categoryID string) map[Field]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirtySetLocked(categoryID)
}

func (s *Session) dirtySetLocked(categoryID string) map[Field]bool {
	out := make(map[Field]bool, len(s.dirty[categoryID]))
	for f := range s.dirty[categoryID] {
		out[f] = true
	}
	return out
}

// Edit sets a field of a standard row from raw user input and recomputes
// the row. Non-numeric input is stored as zero; the returned
// *core.ValidationError is a warning and the edit is still applied.
func (s *Session) Edit(categoryID string, field Field, raw string) (*core.StandardRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.ws.Row(categoryID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownCategory, categoryID)
	}
	std, ok := row.(*core.StandardRow)
	if !ok {
		return nil, fmt.Errorf("%w: %s is a %s row", ErrNotEditable, categoryID, core.RowKind(row))
	}

	value, warn := core.CoerceAmount(string(field), raw)
	switch field {
	case FieldPct:
		std.Pct = value
	case FieldCarryOverIn:
		std.CarryOverIn = value
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	s.seq++
	if s.dirty[categoryID] == nil {
		s.dirty[categoryID] = make(map[Field]uint64)
	}
	s.dirty[categoryID][field] = s.seq

	s.engine.RecomputeRow(std, s.ws.Projects)
	out := std.Clone()
	out.Dirty = true
	return out, warn
}

// ApplyRemote merges a freshly loaded worksheet into the session. Rows take
// the remote values except for the fields with a pending local edit, then
// everything is recomputed against the remote projects.
func (s *Session) ApplyRemote(remote *Worksheet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := remote.Clone()
	for i, row := range merged.Rows {
		r, ok := row.(*core.StandardRow)
		if !ok {
			continue
		}
		local, ok := s.ws.Standard(r.Cat.ID)
		if !ok {
			continue
		}
		merged.Rows[i] = MergeRow(local, r, s.dirtySetLocked(r.Cat.ID))
	}
	merged.Recompute(s.engine)
	s.ws = merged
}

// MergeRow resolves a local draft against a remote row. Fields in dirty come
// from local, everything else from remote. The result is a new row; its
// funding must be recomputed by the caller.
func MergeRow(local, remote *core.StandardRow, dirty map[Field]bool) *core.StandardRow {
	out := remote.Clone()
	if dirty[FieldPct] {
		out.Pct = local.Pct
	}
	if dirty[FieldCarryOverIn] {
		out.CarryOverIn = local.CarryOverIn
	}
	out.Dirty = dirty[FieldPct] || dirty[FieldCarryOverIn]
	return out
}

// BeginSave marks the session as saving and returns the worksheet to
// persist. A second call before EndSave fails with ErrSaveInProgress.
func (s *Session) BeginSave() (*Worksheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saving {
		return nil, ErrSaveInProgress
	}
	s.saving = true
	s.saved = make(map[string]map[Field]uint64, len(s.dirty))
	for id, fields := range s.dirty {
		s.saved[id] = make(map[Field]uint64, len(fields))
		for f, n := range fields {
			s.saved[id][f] = n
		}
	}
	return s.snapshotLocked(), nil
}

// EndSave finishes a save. On success the saved worksheet replaces the
// drafts and the dirty marks covered by the save are cleared; edits made
// while saving stay pending. On failure every mark is kept so the save can
// be retried.
func (s *Session) EndSave(saved *Worksheet, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saving = false
	if err != nil || saved == nil {
		s.saved = nil
		return
	}

	for id, fields := range s.saved {
		for f, n := range fields {
			if s.dirty[id][f] == n {
				delete(s.dirty[id], f)
			}
		}
		if len(s.dirty[id]) == 0 {
			delete(s.dirty, id)
		}
	}
	s.saved = nil

	s.ws = applyPending(saved.Clone(), s.ws, s.dirty)
	s.ws.Recompute(s.engine)
}

func applyPending(base, drafts *Worksheet, dirty map[string]map[Field]uint64) *Worksheet {
	for i, row := range base.Rows {
		r, ok := row.(*core.StandardRow)
		if !ok || len(dirty[r.Cat.ID]) == 0 {
			continue
		}
		local, ok := drafts.Standard(r.Cat.ID)
		if !ok {
			continue
		}
		set := make(map[Field]bool, len(dirty[r.Cat.ID]))
		for f := range dirty[r.Cat.ID] {
			set[f] = true
		}
		base.Rows[i] = MergeRow(local, r, set)
	}
	return base
}

// Saving reports whether a save is outstanding.
func (s *Session) Saving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saving
}

// FieldValue returns the current value of an editable field.
func FieldValue(row *core.StandardRow, f Field) decimal.Decimal {
	switch f {
	case FieldPct:
		return row.Pct
	case FieldCarryOverIn:
		return row.CarryOverIn
	}
	return decimal.Zero
}
