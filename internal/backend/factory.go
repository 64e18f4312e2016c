package backend

import (
	"context"
	"errors"
	"fmt"

	"bilancio/internal/log"
	"bilancio/internal/memory"
	"bilancio/internal/sheets/google"
	"bilancio/internal/storage"
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

// Create opens every implementation the config names once and shares it
// between roles, e.g. one SQLite handle serves both records and rates.
func (f *DefaultFactory) Create(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var cleanups []CleanupFunc
	cleanup := func() error {
		var errs []error
		for i := len(cleanups) - 1; i >= 0; i-- {
			errs = append(errs, cleanups[i]())
		}
		return errors.Join(errs...)
	}

	var (
		repo  *storage.SQLiteRepository
		store *memory.Store
		sheet *google.Client
		err   error
	)

	if config.usesSQLite() {
		repo, err = storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		cleanups = append(cleanups, repo.Close)
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	}

	if config.usesMemory() {
		dataDir := config.DataDirectory
		if dataDir == "" {
			dataDir = "data"
		}
		store, err = memory.NewFromDir(dataDir)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to initialize memory backend: %w", err)
		}
		store.StaleAfter = config.StaleAfter
		f.logger.Info("Initialized memory backend", "data_directory", dataDir)
	}

	if config.usesSheets() {
		sheet, err = google.New(ctx, config.Sheets, f.logger)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		f.logger.Info("Initialized Google Sheets backend", "spreadsheet_id", config.Sheets.SpreadsheetID)
	}

	result := &Result{Cleanup: cleanup}

	switch config.Data {
	case SQLiteBackend:
		result.Store = repo
		result.Importer = repo
	case MemoryBackend:
		result.Store = store
	}

	switch config.Rates {
	case SQLiteBackend:
		result.Rates = repo
	case MemoryBackend:
		result.Rates = store
	case SheetsBackend:
		result.Rates = sheet
	}

	switch config.Prices {
	case MemoryBackend:
		result.Prices = store
	case SheetsBackend:
		result.Prices = sheet
	}

	f.logger.Info("Backends ready", log.FieldBackend, string(config.Data),
		"rates", string(config.Rates), "prices", string(config.Prices))
	return result, nil
}
