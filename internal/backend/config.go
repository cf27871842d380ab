package backend

import (
	"fmt"
	"time"

	"costalloc/internal/config"
	gsheet "costalloc/internal/sheets/google"
)

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// SeedFile is an optional TOML file applied after the store opens.
	SeedFile string

	Financials FinancialsSource
	// CacheTTL of zero disables the financials cache.
	CacheTTL time.Duration
	Sheets   gsheet.Options
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:         backendType,
		SQLiteDBPath: appConfig.SQLiteDBPath,
		SeedFile:     appConfig.SeedFile,
		Financials:   FinancialsSource(appConfig.FinancialsSource),
		CacheTTL:     appConfig.FinancialsCacheTTL,
		Sheets: gsheet.Options{
			SpreadsheetID:      appConfig.GoogleSpreadsheetID,
			FinancialsSheet:    appConfig.GoogleFinancialsSheet,
			FixedCostsSheet:    appConfig.GoogleFixedCostsSheet,
			ServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
			ServiceAccountFile: appConfig.GoogleServiceAccountFile,
		},
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Type == SQLiteBackend && c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for sqlite backend")
	}

	switch c.Financials {
	case "", FinancialsFromStore:
	case FinancialsFromSheets:
		if c.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets financials")
		}
	default:
		return fmt.Errorf("invalid financials source: %s", c.Financials)
	}

	if c.CacheTTL < 0 {
		return fmt.Errorf("invalid financials cache TTL: %v", c.CacheTTL)
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, MemoryBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
