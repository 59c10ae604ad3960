// Package storage defines the record store abstraction and a registry of
// backend factories keyed by kind ("memory", "sqlite", "postgres", "mssql",
// "mysql", "mongo").
//
// Backends register themselves in init; import internal/storage/all to make
// every built-in kind available.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/amirmursal/medinet-process-data/internal/config"
	"github.com/amirmursal/medinet-process-data/internal/query"
	"github.com/amirmursal/medinet-process-data/internal/record"
)

// Repository is a schema-less record store.
type Repository interface {
	// InsertMany persists recs in one bulk operation and returns the number
	// stored. An empty slice is a no-op.
	InsertMany(ctx context.Context, recs []record.Record) (int64, error)
	// Find returns every record matching p in insertion order.
	Find(ctx context.Context, p query.Predicate) ([]record.Stored, error)
	// DeleteByID removes the record with the given id and reports how many
	// records were removed. Removing an absent id is not an error.
	DeleteByID(ctx context.Context, id string) (int64, error)
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Close releases the backend's resources.
	Close()
}

// Config is the backend-agnostic store configuration.
type Config struct {
	Kind string
	DSN  string
	// Collection is the table or collection holding records.
	Collection string
	// Options carries backend-specific settings, e.g. mongo "database".
	Options config.Options
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs (or replaces) the factory for kind.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New opens a Repository using the factory registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered kinds in sorted order.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
