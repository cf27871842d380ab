package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"costalloc/internal/core"
	"costalloc/internal/ports"
)

const defaultFinancialsEntries = 4096

// Financials caches the read-only external inputs of a worksheet: project
// financials and fixed cost totals. Concurrent misses on the same key share
// one upstream call. Errors are never cached.
type Financials struct {
	provider ports.FinancialsProvider
	fixed    ports.FixedCostTotals

	financials *LRUCache[core.ProjectFinancials]
	totals     *LRUCache[decimal.Decimal]
	group      singleflight.Group
}

func NewFinancials(provider ports.FinancialsProvider, fixed ports.FixedCostTotals, ttl time.Duration) *Financials {
	return &Financials{
		provider:   provider,
		fixed:      fixed,
		financials: NewLRUCache[core.ProjectFinancials](defaultFinancialsEntries, ttl),
		totals:     NewLRUCache[decimal.Decimal](256, ttl),
	}
}

// Register adds both caches to m.
func (c *Financials) Register(m *Manager) {
	m.Register(c.financials)
	m.Register(c.totals)
}

func financialsKey(projectID string, p core.Period) string {
	return fmt.Sprintf("fin:%s:%s", p.Key(), projectID)
}

func fixedKey(p core.Period, t core.ProjectType) string {
	return fmt.Sprintf("fix:%s:%s", p.Key(), t)
}

func (c *Financials) Financials(ctx context.Context, projectID string, p core.Period) (core.ProjectFinancials, error) {
	key := financialsKey(projectID, p)
	if f, ok := c.financials.Get(key); ok {
		return f, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		f, err := c.provider.Financials(ctx, projectID, p)
		if err != nil {
			return core.ProjectFinancials{}, err
		}
		c.financials.Set(key, f)
		return f, nil
	})
	if err != nil {
		return core.ProjectFinancials{ProjectID: projectID, Period: p}, err
	}
	return v.(core.ProjectFinancials), nil
}

func (c *Financials) FixedCostTotal(ctx context.Context, p core.Period, t core.ProjectType) (decimal.Decimal, error) {
	key := fixedKey(p, t)
	if v, ok := c.totals.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		amount, err := c.fixed.FixedCostTotal(ctx, p, t)
		if err != nil {
			return decimal.Zero, err
		}
		c.totals.Set(key, amount)
		return amount, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

// Invalidate drops every cached entry of period p.
func (c *Financials) Invalidate(p core.Period) int {
	fin, fix := "fin:"+p.Key()+":", "fix:"+p.Key()+":"
	match := func(key string) bool {
		return strings.HasPrefix(key, fin) || strings.HasPrefix(key, fix)
	}
	return c.financials.DeleteFunc(match) + c.totals.DeleteFunc(match)
}
