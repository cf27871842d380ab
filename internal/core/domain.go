package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	Construction ProjectType = "construction"
	Factory      ProjectType = "factory"
	Investment   ProjectType = "investment"
)

type (
	// ProjectType selects one of the independent allocation tracks kept for
	// the same category.
	ProjectType string

	// Category is an allocation bucket from the registry. A Fixed category
	// takes its budget from the fixed cost totals; a Header category is a
	// section title in the grid and carries no figures.
	Category struct {
		ID     string `json:"id" toml:"id"`
		Label  string `json:"label" toml:"label"`
		Fixed  bool   `json:"fixed,omitempty" toml:"fixed"`
		Header bool   `json:"header,omitempty" toml:"header"`
	}

	// CategoryRef is the stable reference used to find a category's line
	// item in a project ledger: ID first, normalized label as fallback.
	CategoryRef struct {
		ID    string `json:"id"`
		Label string `json:"label"`
	}

	Project struct {
		ID   string      `json:"id" toml:"id"`
		Name string      `json:"name" toml:"name"`
		Type ProjectType `json:"type" toml:"type"`
	}

	// ProjectFinancials is the externally computed revenue and direct cost of
	// a project for one period. DirectCostByCategory is keyed by normalized
	// category label.
	ProjectFinancials struct {
		ProjectID            string                     `json:"projectId"`
		Period               Period                     `json:"period"`
		Revenue              decimal.Decimal            `json:"revenue"`
		DirectCostByCategory map[string]decimal.Decimal `json:"directCostByCategory,omitempty"`
	}
)

// AllProjectTypes lists the tracks in display order.
func AllProjectTypes() []ProjectType {
	return []ProjectType{Construction, Factory, Investment}
}

// ParseProjectType accepts the canonical names case-insensitively.
func ParseProjectType(s string) (ProjectType, error) {
	t := ProjectType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidProjectType, s)
	}
	return t, nil
}

// IsValid returns true if the project type is known
func (t ProjectType) IsValid() bool {
	switch t {
	case Construction, Factory, Investment:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer
func (t ProjectType) String() string {
	return string(t)
}

func (c Category) Ref() CategoryRef {
	return CategoryRef{ID: c.ID, Label: c.Label}
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return ErrEmptyCategoryID
	}
	if strings.TrimSpace(c.Label) == "" {
		return ErrEmptyLabel
	}
	if c.Fixed && c.Header {
		return fmt.Errorf("category %s cannot be both fixed and header", c.ID)
	}
	return nil
}

func (p Project) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("empty project id")
	}
	if !p.Type.IsValid() {
		return fmt.Errorf("project %s: %w: %q", p.ID, ErrInvalidProjectType, p.Type)
	}
	return nil
}

// DirectCost returns the direct cost booked against a category label.
func (f ProjectFinancials) DirectCost(label string) decimal.Decimal {
	if f.DirectCostByCategory == nil {
		return decimal.Zero
	}
	return f.DirectCostByCategory[NormalizeLabel(label)]
}

// Visible reports whether the project had any revenue or cost this period.
// Only visible projects take part in an allocation.
func (f ProjectFinancials) Visible() bool {
	if !f.Revenue.IsZero() {
		return true
	}
	for _, v := range f.DirectCostByCategory {
		if !v.IsZero() {
			return true
		}
	}
	return false
}

// NormalizeCosts rewrites a label → cost map with normalized keys, summing
// labels that fold to the same key.
func NormalizeCosts(in map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in))
	for label, v := range in {
		key := NormalizeLabel(label)
		out[key] = out[key].Add(v)
	}
	return out
}
