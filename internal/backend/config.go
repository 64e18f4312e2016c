package backend

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"bilancio/internal/config"
	"bilancio/internal/sheets/google"
)

// Config holds configuration for backend creation
type Config struct {
	Data   BackendType
	Rates  BackendType
	Prices BackendType

	SQLiteDBPath  string
	DataDirectory string
	// StaleAfter applies to quotes served by the memory backend.
	StaleAfter time.Duration

	Sheets google.Config
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	cfg := Config{
		Data:          BackendType(appConfig.DataBackend),
		Rates:         BackendType(appConfig.RateBackend),
		Prices:        BackendType(appConfig.PriceBackend),
		SQLiteDBPath:  appConfig.SQLiteDBPath,
		DataDirectory: appConfig.DataDirectory,
		StaleAfter:    appConfig.PriceStaleAfter,
		Sheets: google.Config{
			SpreadsheetID:     appConfig.GoogleSpreadsheetID,
			RatesSheet:        appConfig.GoogleRatesSheetName,
			PricesSheet:       appConfig.GooglePricesSheetName,
			CredentialsJSON:   appConfig.GoogleServiceAccountJSON,
			CredentialsFile:   appConfig.GoogleServiceAccountFile,
			RequestsPerSecond: appConfig.SheetsRequestsPerSecond,
			StaleAfter:        appConfig.PriceStaleAfter,
			CacheTTL:          appConfig.QuoteCacheTTL,
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !slices.Contains(DataBackends, c.Data) {
		return fmt.Errorf("invalid data backend: %q", c.Data)
	}
	if !slices.Contains(RateBackends, c.Rates) {
		return fmt.Errorf("invalid rate backend: %q", c.Rates)
	}
	if !slices.Contains(PriceBackends, c.Prices) {
		return fmt.Errorf("invalid price backend: %q", c.Prices)
	}
	if c.usesSQLite() && c.SQLiteDBPath == "" {
		return errors.New("SQLite database path is required for sqlite backend")
	}
	if c.usesSheets() && c.Sheets.SpreadsheetID == "" {
		return errors.New("Google Spreadsheet ID is required for sheets backend")
	}
	return nil
}

func (c Config) usesSQLite() bool {
	return c.Data == SQLiteBackend || c.Rates == SQLiteBackend
}

func (c Config) usesMemory() bool {
	return c.Data == MemoryBackend || c.Rates == MemoryBackend || c.Prices == MemoryBackend
}

func (c Config) usesSheets() bool {
	return c.Rates == SheetsBackend || c.Prices == SheetsBackend
}
