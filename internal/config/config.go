package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Backend and mode names accepted in the environment.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"

	FinancialsStore  = "store"
	FinancialsSheets = "sheets"

	CascadeAMQP = "amqp"
	CascadeSync = "sync"
	CascadeOff  = "off"
)

type Config struct {
	// HTTP Server
	Port string

	// Storage
	DataBackend  string
	SQLiteDBPath string
	SeedFile     string

	// Project financials and fixed totals
	FinancialsSource          string
	FinancialsCacheTTL        time.Duration
	FinancialsFetchConcurrent int

	// Google Sheets source
	GoogleSpreadsheetID      string
	GoogleFinancialsSheet    string
	GoogleFixedCostsSheet    string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Allocation
	CascadeMode    string
	CascadeMaxHops int
	OverrunEpsilon string
	SessionTTL     time.Duration

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8081"),

		DataBackend:  getEnv("DATA_BACKEND", BackendMemory),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/costalloc.db"),
		SeedFile:     getEnv("SEED_FILE", ""),

		FinancialsSource:          getEnv("FINANCIALS_SOURCE", FinancialsStore),
		FinancialsCacheTTL:        getEnvDuration("FINANCIALS_CACHE_TTL", 5*time.Minute),
		FinancialsFetchConcurrent: getEnvInt("FINANCIALS_FETCH_CONCURRENCY", 8),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleFinancialsSheet:    getEnv("GOOGLE_FINANCIALS_SHEET", "Financials"),
		GoogleFixedCostsSheet:    getEnv("GOOGLE_FIXED_COSTS_SHEET", "FixedCosts"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "costalloc"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "cascade_requests"),

		CascadeMode:    getEnv("CASCADE_MODE", CascadeSync),
		CascadeMaxHops: getEnvInt("CASCADE_MAX_HOPS", 3),
		OverrunEpsilon: getEnv("OVERRUN_EPSILON", "2"),
		SessionTTL:     getEnvDuration("SESSION_TTL", 2*time.Hour),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !oneOf(c.DataBackend, BackendMemory, BackendSQLite) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of [memory sqlite]", c.DataBackend))
	}

	if c.DataBackend == BackendSQLite {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.SeedFile != "" {
		if _, err := os.Stat(c.SeedFile); err != nil {
			errors = append(errors, fmt.Sprintf("seed file not readable: %s", c.SeedFile))
		}
	}

	if !oneOf(c.FinancialsSource, FinancialsStore, FinancialsSheets) {
		errors = append(errors, fmt.Sprintf("invalid financials source '%s': must be one of [store sheets]", c.FinancialsSource))
	}
	if c.FinancialsSource == FinancialsSheets {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when financials come from sheets")
		}
		if c.GoogleFinancialsSheet == "" || c.GoogleFixedCostsSheet == "" {
			errors = append(errors, "Google financials and fixed costs sheet names cannot be empty")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets financials")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}
	if c.FinancialsCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid financials cache TTL %v: must not be negative", c.FinancialsCacheTTL))
	}
	if c.FinancialsFetchConcurrent < 1 || c.FinancialsFetchConcurrent > 64 {
		errors = append(errors, fmt.Sprintf("invalid financials fetch concurrency %d: must be between 1 and 64", c.FinancialsFetchConcurrent))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if !oneOf(c.CascadeMode, CascadeAMQP, CascadeSync, CascadeOff) {
		errors = append(errors, fmt.Sprintf("invalid cascade mode '%s': must be one of [amqp sync off]", c.CascadeMode))
	}
	if c.CascadeMode == CascadeAMQP && c.AMQPURL == "" {
		errors = append(errors, "AMQP URL is required when cascade mode is amqp")
	}
	if c.CascadeMaxHops < 1 || c.CascadeMaxHops > 3 {
		errors = append(errors, fmt.Sprintf("invalid cascade max hops %d: must be between 1 and 3", c.CascadeMaxHops))
	}

	if eps, err := decimal.NewFromString(c.OverrunEpsilon); err != nil {
		errors = append(errors, fmt.Sprintf("invalid overrun epsilon '%s': must be a number", c.OverrunEpsilon))
	} else if eps.IsNegative() {
		errors = append(errors, fmt.Sprintf("invalid overrun epsilon %s: must not be negative", eps))
	}

	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}

	if !oneOf(strings.ToLower(c.LogLevel), "debug", "info", "warn", "warning", "error") {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of [debug info warn error]", c.LogLevel))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Epsilon returns the parsed overrun dead-band. Call after Validate.
func (c *Config) Epsilon() decimal.Decimal {
	eps, err := decimal.NewFromString(c.OverrunEpsilon)
	if err != nil {
		return decimal.NewFromInt(2)
	}
	return eps
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
