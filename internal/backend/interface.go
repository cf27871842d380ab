package backend

import (
	"context"

	"costalloc/internal/cache"
	"costalloc/internal/ports"
	"costalloc/internal/services"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds the store and the financial sources chosen for it.
type BackendResult struct {
	Store ports.Store
	// Financials and FixedCosts are the store itself, the Sheets client, or
	// either behind the LRU cache.
	Financials ports.FinancialsProvider
	FixedCosts ports.FixedCostTotals
	// Cache is nil when caching is disabled.
	Cache   *cache.Financials
	Cleanup CleanupFunc
}

// Deps returns the service dependencies, reading financials from the chosen
// source and everything else from the store.
func (r *BackendResult) Deps() services.Deps {
	deps := services.DepsFromStore(r.Store)
	deps.Financials = r.Financials
	deps.FixedCosts = r.FixedCosts
	return deps
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// FinancialsSource selects where project financials and fixed totals are
// read from.
type FinancialsSource string

const (
	FinancialsFromStore  FinancialsSource = "store"
	FinancialsFromSheets FinancialsSource = "sheets"
)

func (s FinancialsSource) IsValid() bool {
	return s == FinancialsFromStore || s == FinancialsFromSheets
}
