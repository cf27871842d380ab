package backend

import (
	"context"
	"fmt"

	"costalloc/internal/cache"
	"costalloc/internal/config"
	"costalloc/internal/log"
	"costalloc/internal/memory"
	"costalloc/internal/ports"
	gsheet "costalloc/internal/sheets/google"
	"costalloc/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend opens the store, applies the seed and wires the financials
// source.
func (f *DefaultFactory) CreateBackend(ctx context.Context, cfg Config) (*BackendResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := f.createStore(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.SeedFile != "" {
		if err := f.applySeed(ctx, cfg.SeedFile, store); err != nil {
			store.Close()
			return nil, err
		}
	}

	result := &BackendResult{
		Store:      store,
		Financials: store,
		FixedCosts: store,
		Cleanup:    store.Close,
	}

	if cfg.Financials == FinancialsFromSheets {
		opts := cfg.Sheets
		opts.Logger = f.logger
		client, err := gsheet.New(ctx, opts)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		result.Financials = client
		result.FixedCosts = client
		f.logger.Info("Reading financials from Google Sheets",
			"spreadsheet_id", opts.SpreadsheetID,
			"financials_sheet", opts.FinancialsSheet,
			"fixed_costs_sheet", opts.FixedCostsSheet)
	}

	if cfg.CacheTTL > 0 {
		result.Cache = cache.NewFinancials(result.Financials, result.FixedCosts, cfg.CacheTTL)
		result.Financials = result.Cache
		result.FixedCosts = result.Cache
	}

	f.logger.Info("Initialized backend",
		"type", cfg.Type.String(),
		"financials", string(cfg.Financials),
		"cache_ttl", cfg.CacheTTL.String())
	return result, nil
}

func (f *DefaultFactory) createStore(cfg Config) (ports.Store, error) {
	switch cfg.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite store", "db_path", cfg.SQLiteDBPath)
		return repo, nil
	case MemoryBackend:
		f.logger.Info("Initialized memory store")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Type)
	}
}

func (f *DefaultFactory) applySeed(ctx context.Context, path string, store ports.Store) error {
	seed, err := config.LoadSeed(path)
	if err != nil {
		return err
	}
	if err := seed.Apply(ctx, store); err != nil {
		return fmt.Errorf("apply seed: %w", err)
	}
	f.logger.Info("Seed applied",
		"path", path,
		"categories", len(seed.Categories),
		"projects", len(seed.Projects))
	return nil
}
