package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"costalloc/internal/core"
	"costalloc/internal/ports"
)

// Seed is the reference data loaded at startup from SEED_FILE: the category
// registry, projects, their financials and budgets, and opening ledgers.
//
//	[[category]]
//	type = "construction"
//	id = "ovh"
//	label = "Overhead"
//
//	[[financials]]
//	project = "p1"
//	period = "2025-Q1"
//	revenue = 100000
//	[financials.direct_cost]
//	"Overhead" = 500
type Seed struct {
	Categories []SeedCategory   `toml:"category"`
	Projects   []core.Project   `toml:"project"`
	Financials []SeedFinancials `toml:"financials"`
	FixedCosts []SeedAmount     `toml:"fixed_cost"`
	Budgets    []SeedAmount     `toml:"budget"`
	Ledgers    []SeedLedger     `toml:"ledger"`
}

type SeedCategory struct {
	Type core.ProjectType `toml:"type"`
	core.Category
}

type SeedFinancials struct {
	Project    string                     `toml:"project"`
	Period     string                     `toml:"period"`
	Revenue    decimal.Decimal            `toml:"revenue"`
	DirectCost map[string]decimal.Decimal `toml:"direct_cost"`
}

// SeedAmount is a fixed cost total (no category) or an approved budget.
type SeedAmount struct {
	Period   string           `toml:"period"`
	Type     core.ProjectType `toml:"type"`
	Category string           `toml:"category"`
	Amount   decimal.Decimal  `toml:"amount"`
}

type SeedLedger struct {
	Project string          `toml:"project"`
	Period  string          `toml:"period"`
	Items   []core.LineItem `toml:"item"`
}

// SeedTarget is what a seed is written into.
type SeedTarget interface {
	ports.ReferenceWriter
	ports.LedgerStore
}

// LoadSeed parses and validates a seed file.
func LoadSeed(path string) (*Seed, error) {
	var s Seed
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return nil, fmt.Errorf("decode seed %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("seed %s: %w", path, err)
	}
	return &s, nil
}

// DecodeSeed parses seed data from a string.
func DecodeSeed(data string) (*Seed, error) {
	var s Seed
	if _, err := toml.Decode(data, &s); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks types, periods and references.
func (s *Seed) Validate() error {
	var errs []string
	fixedPerType := map[core.ProjectType]int{}
	for i, c := range s.Categories {
		if !c.Type.IsValid() {
			errs = append(errs, fmt.Sprintf("category %d: invalid type %q", i, c.Type))
		}
		if err := c.Category.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("category %d: %v", i, err))
		}
		if c.Fixed {
			fixedPerType[c.Type]++
		}
	}
	for t, n := range fixedPerType {
		if n > 1 {
			errs = append(errs, fmt.Sprintf("type %s has %d fixed categories, at most one allowed", t, n))
		}
	}

	known := map[string]bool{}
	for _, p := range s.Projects {
		if err := p.Validate(); err != nil {
			errs = append(errs, err.Error())
		}
		known[p.ID] = true
	}
	for i, f := range s.Financials {
		if !known[f.Project] {
			errs = append(errs, fmt.Sprintf("financials %d: unknown project %q", i, f.Project))
		}
		if _, err := core.ParsePeriod(f.Period); err != nil {
			errs = append(errs, fmt.Sprintf("financials %d: %v", i, err))
		}
	}
	for i, a := range append(append([]SeedAmount(nil), s.FixedCosts...), s.Budgets...) {
		if _, err := core.ParsePeriod(a.Period); err != nil {
			errs = append(errs, fmt.Sprintf("amount %d: %v", i, err))
		}
		if !a.Type.IsValid() {
			errs = append(errs, fmt.Sprintf("amount %d: invalid type %q", i, a.Type))
		}
	}
	for i, b := range s.Budgets {
		if b.Category == "" {
			errs = append(errs, fmt.Sprintf("budget %d: category is required", i))
		}
	}
	for i, l := range s.Ledgers {
		if !known[l.Project] {
			errs = append(errs, fmt.Sprintf("ledger %d: unknown project %q", i, l.Project))
		}
		if _, err := core.ParsePeriod(l.Period); err != nil {
			errs = append(errs, fmt.Sprintf("ledger %d: %v", i, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid seed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// Apply writes the seed into a store. Ledgers already present are left
// alone so a restart does not wipe allocated amounts.
func (s *Seed) Apply(ctx context.Context, w SeedTarget) error {
	byType := map[core.ProjectType][]core.Category{}
	for _, c := range s.Categories {
		byType[c.Type] = append(byType[c.Type], c.Category)
	}
	for t, cats := range byType {
		if err := w.PutCategories(ctx, t, cats); err != nil {
			return fmt.Errorf("seed categories %s: %w", t, err)
		}
	}
	for _, p := range s.Projects {
		if err := w.PutProject(ctx, p); err != nil {
			return fmt.Errorf("seed project %s: %w", p.ID, err)
		}
	}
	for _, f := range s.Financials {
		period, _ := core.ParsePeriod(f.Period)
		err := w.PutFinancials(ctx, core.ProjectFinancials{
			ProjectID:            f.Project,
			Period:               period,
			Revenue:              f.Revenue,
			DirectCostByCategory: f.DirectCost,
		})
		if err != nil {
			return fmt.Errorf("seed financials %s %s: %w", f.Project, f.Period, err)
		}
	}
	for _, a := range s.FixedCosts {
		period, _ := core.ParsePeriod(a.Period)
		if err := w.PutFixedCostTotal(ctx, period, a.Type, a.Amount); err != nil {
			return fmt.Errorf("seed fixed cost %s %s: %w", a.Period, a.Type, err)
		}
	}
	for _, b := range s.Budgets {
		period, _ := core.ParsePeriod(b.Period)
		if err := w.PutApprovedBudget(ctx, period, b.Type, b.Category, b.Amount); err != nil {
			return fmt.Errorf("seed budget %s %s %s: %w", b.Period, b.Type, b.Category, err)
		}
	}
	for _, l := range s.Ledgers {
		period, _ := core.ParsePeriod(l.Period)
		if _, err := w.GetLedger(ctx, l.Project, period); err == nil {
			continue
		} else if !core.IsNotFound(err) {
			return fmt.Errorf("seed ledger %s %s: %w", l.Project, l.Period, err)
		}
		ledger := &core.LedgerRecord{ProjectID: l.Project, Period: period, Items: l.Items}
		if err := w.PutLedger(ctx, ledger); err != nil {
			return fmt.Errorf("seed ledger %s %s: %w", l.Project, l.Period, err)
		}
	}
	return nil
}
