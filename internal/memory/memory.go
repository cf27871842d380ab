// Package memory is an in-process implementation of every port. It backs
// development runs and the service tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"costalloc/internal/core"
)

type Store struct {
	mu         sync.Mutex
	categories map[core.ProjectType][]core.Category
	projects   []core.Project
	financials map[string]core.ProjectFinancials
	fixed      map[string]decimal.Decimal
	budgets    map[string]map[string]decimal.Decimal
	records    map[core.Period]*core.PeriodRecord
	ledgers    map[string]*core.LedgerRecord
	now        func() time.Time
}

func New() *Store {
	return &Store{
		categories: make(map[core.ProjectType][]core.Category),
		financials: make(map[string]core.ProjectFinancials),
		fixed:      make(map[string]decimal.Decimal),
		budgets:    make(map[string]map[string]decimal.Decimal),
		records:    make(map[core.Period]*core.PeriodRecord),
		ledgers:    make(map[string]*core.LedgerRecord),
		now:        time.Now,
	}
}

func projectKey(projectID string, p core.Period) string {
	return projectID + "@" + p.Key()
}

func trackKey(p core.Period, t core.ProjectType) string {
	return p.Key() + "/" + string(t)
}

// Categories returns the registry of t in order.
func (s *Store) Categories(_ context.Context, t core.ProjectType) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Category(nil), s.categories[t]...), nil
}

// PutCategories replaces the registry of t.
func (s *Store) PutCategories(_ context.Context, t core.ProjectType, cats []core.Category) error {
	for _, c := range cats {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[t] = append([]core.Category(nil), cats...)
	return nil
}

// Projects returns the projects of t in insertion order.
func (s *Store) Projects(_ context.Context, t core.ProjectType) ([]core.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Project
	for _, p := range s.projects {
		if p.Type == t {
			out = append(out, p)
		}
	}
	return out, nil
}

// PutProject adds or replaces a project.
func (s *Store) PutProject(_ context.Context, p core.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.projects {
		if s.projects[i].ID == p.ID {
			s.projects[i] = p
			return nil
		}
	}
	s.projects = append(s.projects, p)
	return nil
}

func (s *Store) Financials(_ context.Context, projectID string, p core.Period) (core.ProjectFinancials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.financials[projectKey(projectID, p)]
	if !ok {
		return core.ProjectFinancials{}, fmt.Errorf("financials %s %s: %w", projectID, p, core.ErrNotFound)
	}
	f.DirectCostByCategory = core.CloneAmounts(f.DirectCostByCategory)
	return f, nil
}

// PutFinancials stores f, normalizing the category labels of its costs.
func (s *Store) PutFinancials(_ context.Context, f core.ProjectFinancials) error {
	f.DirectCostByCategory = core.NormalizeCosts(f.DirectCostByCategory)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.financials[projectKey(f.ProjectID, f.Period)] = f
	return nil
}

func (s *Store) FixedCostTotal(_ context.Context, p core.Period, t core.ProjectType) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.fixed[trackKey(p, t)]
	if !ok {
		return decimal.Zero, fmt.Errorf("fixed cost total %s %s: %w", p, t, core.ErrNotFound)
	}
	return v, nil
}

func (s *Store) PutFixedCostTotal(_ context.Context, p core.Period, t core.ProjectType, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixed[trackKey(p, t)] = amount
	return nil
}

func (s *Store) ApprovedBudgets(_ context.Context, p core.Period, t core.ProjectType) (map[string]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := core.CloneAmounts(s.budgets[trackKey(p, t)])
	if out == nil {
		out = make(map[string]decimal.Decimal)
	}
	return out, nil
}

func (s *Store) PutApprovedBudget(_ context.Context, p core.Period, t core.ProjectType, categoryID string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := trackKey(p, t)
	if s.budgets[key] == nil {
		s.budgets[key] = make(map[string]decimal.Decimal)
	}
	s.budgets[key][categoryID] = amount
	return nil
}

// GetPeriodRecord returns a copy of the stored record.
func (s *Store) GetPeriodRecord(_ context.Context, p core.Period) (*core.PeriodRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[p]
	if !ok {
		return nil, fmt.Errorf("period record %s: %w", p, core.ErrNotFound)
	}
	return rec.Clone(), nil
}

// PutPeriodRecord replaces the record of rec.Period with a copy of rec.
func (s *Store) PutPeriodRecord(_ context.Context, rec *core.PeriodRecord) error {
	if err := rec.Period.Validate(); err != nil {
		return err
	}
	c := rec.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	c.UpdatedAt = s.now()
	s.records[c.Period] = c
	return nil
}

func (s *Store) GetLedger(_ context.Context, projectID string, p core.Period) (*core.LedgerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.ledgers[projectKey(projectID, p)]
	if !ok {
		return nil, fmt.Errorf("ledger %s %s: %w", projectID, p, core.ErrNotFound)
	}
	return l.Clone(), nil
}

func (s *Store) PutLedger(_ context.Context, ledger *core.LedgerRecord) error {
	c := ledger.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	c.UpdatedAt = s.now()
	s.ledgers[projectKey(c.ProjectID, c.Period)] = c
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
