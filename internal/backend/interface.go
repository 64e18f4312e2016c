package backend

import (
	"context"

	"bilancio/internal/ports"
	"bilancio/internal/seed"
	"bilancio/internal/storage"
)

// Importer loads a seed snapshot into persistent storage.
type Importer interface {
	Import(ctx context.Context, s seed.Seed) (storage.ImportStats, error)
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result holds the sources a binary wires into the dashboard service.
type Result struct {
	Store  ports.RecordStore
	Rates  ports.RateSource
	Prices ports.PriceSource // nil when prices are disabled
	// Importer is nil unless records live in SQLite.
	Importer Importer
	Cleanup  CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	Create(ctx context.Context, config Config) (*Result, error)
}

// BackendType names an implementation of a source.
type BackendType string

const (
	NoBackend     BackendType = "none"
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
	SheetsBackend BackendType = "sheets"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// Valid backend types per role.
var (
	DataBackends  = []BackendType{MemoryBackend, SQLiteBackend}
	RateBackends  = []BackendType{MemoryBackend, SQLiteBackend, SheetsBackend}
	PriceBackends = []BackendType{NoBackend, MemoryBackend, SheetsBackend}
)
