package mongo

import (
	"context"
	"fmt"
	"log"

	"github.com/amirmursal/medinet-process-data/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
// Tests may replace this variable to avoid real DB connections.
var newRepository = NewRepository

// wrappedRepo adapts *mongo.Repository to storage.Repository and provides Close.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

var _ storage.Repository = (*wrappedRepo)(nil)

// Close disconnects the client.
func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

type collectionCreator interface {
	CreateCollection(ctx context.Context) error
}

func init() {
	storage.Register("mongo", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{
			URI:        cfg.DSN,
			Database:   cfg.Options.String("database", DefaultDatabase),
			Collection: cfg.Collection,
		})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})

	storage.RegisterDDL("mongo", func(ctx context.Context, repo storage.Repository, cfg storage.Config) error {
		cc, ok := repo.(collectionCreator)
		if !ok {
			return fmt.Errorf("mongo: %T cannot create collections", repo)
		}
		log.Printf("mongo: ensure collection=%s", cfg.Collection)
		return cc.CreateCollection(ctx)
	})
}
