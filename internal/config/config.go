package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/log"
)

// Backend names.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendSheets = "sheets"
)

type Config struct {
	// HTTP Server
	Port     string
	LogLevel string

	// Records
	DataBackend   string
	SQLiteDBPath  string
	DataDirectory string

	// Rates and prices
	RateBackend     string
	PriceBackend    string
	PriceStaleAfter time.Duration
	QuoteCacheTTL   time.Duration

	// Reports
	DefaultCurrency string
	HistoryMonths   int
	ReportCacheSize int
	ReportCacheTTL  time.Duration

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleRatesSheetName     string
	GooglePricesSheetName    string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	SheetsRequestsPerSecond  float64

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Worker
	PriceWatchInterval time.Duration
}

func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8081"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DataBackend:   getEnv("DATA_BACKEND", BackendMemory),
		SQLiteDBPath:  getEnv("SQLITE_DB_PATH", "./data/bilancio.db"),
		DataDirectory: getEnv("DATA_DIRECTORY", "data"),

		RateBackend:     getEnv("RATE_BACKEND", BackendMemory),
		PriceBackend:    getEnv("PRICE_BACKEND", BackendNone),
		PriceStaleAfter: getEnvDuration("PRICE_STALE_AFTER", 15*time.Minute),
		QuoteCacheTTL:   getEnvDuration("QUOTE_CACHE_TTL", time.Minute),

		DefaultCurrency: core.NormalizeCurrency(getEnv("DEFAULT_CURRENCY", "EUR")),
		HistoryMonths:   getEnvInt("HISTORY_MONTHS", 6),
		ReportCacheSize: getEnvInt("REPORT_CACHE_SIZE", 128),
		ReportCacheTTL:  getEnvDuration("REPORT_CACHE_TTL", 5*time.Minute),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleRatesSheetName:     getEnv("GOOGLE_RATES_SHEET_NAME", "Rates"),
		GooglePricesSheetName:    getEnv("GOOGLE_PRICES_SHEET_NAME", "Prices"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		SheetsRequestsPerSecond:  getEnvFloat("SHEETS_REQUESTS_PER_SECOND", 1),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "bilancio"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "report_invalidations"),

		PriceWatchInterval: getEnvDuration("PRICE_WATCH_INTERVAL", 5*time.Minute),
	}
}

// UsesSheets reports whether any source reads from Google Sheets.
func (c *Config) UsesSheets() bool {
	return c.RateBackend == BackendSheets || c.PriceBackend == BackendSheets
}

// Validate validates the configuration and returns an error listing every problem.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	errors = appendChoice(errors, "data backend", c.DataBackend, BackendMemory, BackendSQLite)
	errors = appendChoice(errors, "rate backend", c.RateBackend, BackendMemory, BackendSQLite, BackendSheets)
	errors = appendChoice(errors, "price backend", c.PriceBackend, BackendNone, BackendMemory, BackendSheets)

	needsSQLite := c.DataBackend == BackendSQLite || c.RateBackend == BackendSQLite
	if needsSQLite {
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
	if c.DataBackend == BackendMemory && c.DataDirectory == "" {
		errors = append(errors, "data directory cannot be empty when using memory backend")
	}

	if err := core.ValidateCurrency(c.DefaultCurrency); err != nil {
		errors = append(errors, fmt.Sprintf("invalid default currency '%s': not an ISO 4217 code", c.DefaultCurrency))
	}
	if c.HistoryMonths < 1 || c.HistoryMonths > 36 {
		errors = append(errors, fmt.Sprintf("invalid history months %d: must be between 1 and 36", c.HistoryMonths))
	}
	if c.ReportCacheSize < 0 {
		errors = append(errors, fmt.Sprintf("invalid report cache size %d: must not be negative", c.ReportCacheSize))
	}
	if c.ReportCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid report cache TTL %v: must not be negative", c.ReportCacheTTL))
	}
	if c.PriceStaleAfter <= 0 {
		errors = append(errors, fmt.Sprintf("invalid price stale threshold %v: must be positive", c.PriceStaleAfter))
	}

	if c.UsesSheets() {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.RateBackend == BackendSheets && c.GoogleRatesSheetName == "" {
			errors = append(errors, "Google rates sheet name is required when rates come from sheets")
		}
		if c.PriceBackend == BackendSheets && c.GooglePricesSheetName == "" {
			errors = append(errors, "Google prices sheet name is required when prices come from sheets")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
		if c.SheetsRequestsPerSecond <= 0 {
			errors = append(errors, fmt.Sprintf("invalid sheets request rate %v: must be positive", c.SheetsRequestsPerSecond))
		}
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

	if c.PriceWatchInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid price watch interval %v: must be at least 1 second", c.PriceWatchInterval))
	} else if c.PriceWatchInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid price watch interval %v: must be at most 24 hours", c.PriceWatchInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func appendChoice(errors []string, name, value string, valid ...string) []string {
	if slices.Contains(valid, value) {
		return errors
	}
	return append(errors, fmt.Sprintf("invalid %s '%s': must be one of %v", name, value, valid))
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
