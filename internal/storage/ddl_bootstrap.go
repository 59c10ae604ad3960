package storage

import (
	"context"
	"fmt"
	"sync"
)

// Execer is implemented by SQL repositories so schema bootstrappers can run
// DDL through the generic Repository value.
type Execer interface {
	Exec(ctx context.Context, stmt string) error
}

// DDLBootstrapper creates the table or collection described by cfg if it
// does not exist yet.
type DDLBootstrapper func(ctx context.Context, repo Repository, cfg Config) error

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]DDLBootstrapper{}
)

// RegisterDDL registers (or replaces) the bootstrapper for kind.
func RegisterDDL(kind string, fn DDLBootstrapper) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[kind] = fn
}

// HasDDL reports whether kind has a bootstrapper.
func HasDDL(kind string) bool {
	ddlMu.RLock()
	defer ddlMu.RUnlock()
	_, ok := ddlFns[kind]
	return ok
}

// EnsureSchema runs the bootstrapper registered for cfg.Kind.
func EnsureSchema(ctx context.Context, cfg Config, repo Repository) error {
	ddlMu.RLock()
	fn, ok := ddlFns[cfg.Kind]
	ddlMu.RUnlock()
	if !ok {
		return fmt.Errorf("no DDL bootstrapper registered for storage.kind=%q", cfg.Kind)
	}
	return fn(ctx, repo, cfg)
}

// ExecAll runs each statement through repo, which must implement Execer.
func ExecAll(ctx context.Context, repo Repository, stmts ...string) error {
	ex, ok := repo.(Execer)
	if !ok {
		return fmt.Errorf("storage: %T cannot execute DDL", repo)
	}
	for _, s := range stmts {
		if err := ex.Exec(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
