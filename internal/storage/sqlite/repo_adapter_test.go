package sqlite

import (
	"context"
	"testing"

	"github.com/amirmursal/medinet-process-data/internal/config"
	"github.com/amirmursal/medinet-process-data/internal/storage"
)

// TestSQLiteStorageRegistrationUsesNewRepositoryHook verifies that the
// "sqlite" storage backend registered in init() uses the newRepository hook
// and that wrappedRepo correctly delegates Close.
func TestSQLiteStorageRegistrationUsesNewRepositoryHook(t *testing.T) {
	ctx := context.Background()

	origNewRepository := newRepository
	defer func() { newRepository = origNewRepository }()

	var (
		called bool
		gotCfg Config
		closed bool

		fakeRepo = &Repository{}
	)

	newRepository = func(ctx context.Context, cfg Config) (*Repository, func(), error) {
		called = true
		gotCfg = cfg
		return fakeRepo, func() { closed = true }, nil
	}

	cfg := storage.Config{
		Kind:       "sqlite",
		DSN:        "file:test.db?mode=memory",
		Collection: "medinetprocesses",
		Options:    config.Options{"busy_timeout_ms": 2500.0},
	}

	repo, err := storage.New(ctx, cfg)
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	if !called {
		t.Fatalf("newRepository hook was not called")
	}
	if gotCfg.DSN != cfg.DSN {
		t.Errorf("hook cfg.DSN = %q, want %q", gotCfg.DSN, cfg.DSN)
	}
	if gotCfg.BusyTimeoutMS != 2500 {
		t.Errorf("hook cfg.BusyTimeoutMS = %d, want 2500", gotCfg.BusyTimeoutMS)
	}
	if gotCfg.Table != cfg.Collection {
		t.Errorf("hook cfg.Table = %q, want %q", gotCfg.Table, cfg.Collection)
	}

	w, ok := repo.(*wrappedRepo)
	if !ok {
		t.Fatalf("storage.New() type = %T, want *wrappedRepo", repo)
	}
	if w.Repository != fakeRepo {
		t.Fatalf("wrappedRepo.Repository = %p, want %p", w.Repository, fakeRepo)
	}

	repo.Close()
	if !closed {
		t.Fatalf("wrappedRepo.Close() did not invoke closeFn")
	}
	if !storage.HasDDL("sqlite") {
		t.Fatalf("sqlite DDL bootstrapper not registered")
	}
}
