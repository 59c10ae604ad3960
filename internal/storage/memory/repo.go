// Package memory implements an in-process storage.Repository. Records live
// in a map guarded by a RWMutex and are returned in insertion order. It is
// the default backend and the reference for predicate semantics.
package memory

import (
	"context"
	"log"
	"sync"

	"github.com/amirmursal/medinet-process-data/internal/query"
	"github.com/amirmursal/medinet-process-data/internal/record"
	"github.com/amirmursal/medinet-process-data/internal/storage"
)

// Repository is a memory-backed record store.
type Repository struct {
	mu    sync.RWMutex
	order []string
	docs  map[string]record.Record
}

// NewRepository returns an empty store.
func NewRepository() *Repository {
	return &Repository{docs: map[string]record.Record{}}
}

// InsertMany stores a copy of every record under a fresh id.
func (r *Repository) InsertMany(ctx context.Context, recs []record.Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range recs {
		id := storage.NewID()
		cp := make(record.Record, len(rec))
		for k, v := range rec {
			cp[k] = v
		}
		r.docs[id] = cp
		r.order = append(r.order, id)
	}
	return int64(len(recs)), nil
}

// Find evaluates p against every record with query.Match.
func (r *Repository) Find(ctx context.Context, p query.Predicate) ([]record.Stored, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []record.Stored{}
	for _, id := range r.order {
		doc := r.docs[id]
		if !query.Match(p, doc) {
			continue
		}
		cp := make(record.Record, len(doc))
		for k, v := range doc {
			cp[k] = v
		}
		out = append(out, record.Stored{ID: id, Fields: cp})
	}
	return out, nil
}

// DeleteByID removes the record with id, if present.
func (r *Repository) DeleteByID(ctx context.Context, id string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return 0, nil
	}
	delete(r.docs, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return 1, nil
}

// Ping always succeeds.
func (r *Repository) Ping(ctx context.Context) error { return ctx.Err() }

// Close is a no-op; the data is dropped with the process.
func (r *Repository) Close() {}

// Len returns the number of stored records.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}

var _ storage.Repository = (*Repository)(nil)

func init() {
	storage.Register("memory", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		if cfg.DSN != "" {
			log.Printf("memory: ignoring dsn")
		}
		return NewRepository(), nil
	})
}
