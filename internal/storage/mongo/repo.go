// Package mongo implements a MongoDB-backed storage.Repository. Each record
// is one document; identifiers are the hex form of the generated ObjectID.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/amirmursal/medinet-process-data/internal/query"
	"github.com/amirmursal/medinet-process-data/internal/record"
)

// DefaultDatabase is used when the "database" storage option is unset.
const DefaultDatabase = "medinet"

// Config holds MongoDB repository configuration.
type Config struct {
	URI        string
	Database   string
	Collection string
}

// Repository is a MongoDB-backed implementation of storage.Repository.
type Repository struct {
	client *mongo.Client
	coll   *mongo.Collection
	cfg    Config
}

// NewRepository connects, pings the primary and returns a Close function
// that disconnects the client.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if cfg.Collection == "" {
		return nil, nil, fmt.Errorf("mongo: collection must not be empty")
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}
	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(ctx)
	}
	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	return &Repository{client: client, coll: coll, cfg: cfg}, closeFn, nil
}

// InsertMany inserts recs with one InsertMany call. The driver rejects an
// empty batch, so that case returns early.
func (r *Repository) InsertMany(ctx context.Context, recs []record.Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	docs := make([]any, 0, len(recs))
	for _, rec := range recs {
		doc := make(bson.M, len(rec))
		for k, v := range rec {
			doc[k] = v
		}
		docs = append(docs, doc)
	}
	res, err := r.coll.InsertMany(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("mongo insert: %w", err)
	}
	return int64(len(res.InsertedIDs)), nil
}

// Find returns records matching p ordered by _id, which follows insertion
// order for ObjectIDs generated by one client.
func (r *Repository) Find(ctx context.Context, p query.Predicate) ([]record.Stored, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, Filter(p), opts)
	if err != nil {
		return nil, fmt.Errorf("mongo find: %w", err)
	}
	defer cur.Close(ctx)

	out := []record.Stored{}
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo decode: %w", err)
		}
		out = append(out, fromDocument(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongo cursor: %w", err)
	}
	return out, nil
}

// DeleteByID removes the document whose ObjectID has the given hex form. An
// id that is not a valid ObjectID cannot exist and deletes nothing.
func (r *Repository) DeleteByID(ctx context.Context, id string) (int64, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return 0, nil
	}
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return 0, fmt.Errorf("mongo delete: %w", err)
	}
	return res.DeletedCount, nil
}

// Ping checks the primary.
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

// CreateCollection creates the configured collection, tolerating one that
// already exists.
func (r *Repository) CreateCollection(ctx context.Context) error {
	err := r.client.Database(r.cfg.Database).CreateCollection(ctx, r.cfg.Collection)
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 48 || ce.Name == "NamespaceExists") {
		return nil
	}
	return err
}

func fromDocument(doc bson.M) record.Stored {
	s := record.Stored{Fields: make(record.Record, len(doc))}
	for k, v := range doc {
		if k == "_id" {
			if oid, ok := v.(primitive.ObjectID); ok {
				s.ID = oid.Hex()
			} else {
				s.ID = fmt.Sprint(v)
			}
			continue
		}
		s.Fields[k] = fromBSON(v)
	}
	return s
}

// fromBSON maps decoded BSON scalars onto record value types.
func fromBSON(v any) any {
	switch x := v.(type) {
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case primitive.DateTime:
		return x.Time().UTC()
	default:
		return v
	}
}

// Filter translates p into a find filter. Field names go through $getField
// with $literal so dots and dollar signs are never interpreted as paths or
// operators.
func Filter(p query.Predicate) bson.M {
	switch n := p.(type) {
	case query.And:
		if len(n.Terms) == 0 {
			return bson.M{}
		}
		terms := make(bson.A, 0, len(n.Terms))
		for _, t := range n.Terms {
			terms = append(terms, Filter(t))
		}
		return bson.M{"$and": terms}
	case query.All:
		return bson.M{}
	case query.Equals:
		if n.Numeric {
			return numeric("$eq", n.Field, n.Number)
		}
		return bson.M{"$expr": bson.M{"$eq": bson.A{field(n.Field), bson.M{"$literal": n.Text}}}}
	case query.Contains:
		return bson.M{"$expr": bson.M{"$regexMatch": bson.M{
			"input":   bson.M{"$toString": field(n.Field)},
			"regex":   regexp.QuoteMeta(n.Literal),
			"options": "i",
		}}}
	case query.GreaterThan:
		return numeric("$gt", n.Field, n.Number)
	case query.LessThan:
		return numeric("$lt", n.Field, n.Number)
	default:
		return bson.M{"_id": bson.M{"$exists": false}}
	}
}

func field(name string) bson.M {
	return bson.M{"$getField": bson.M{"field": bson.M{"$literal": name}, "input": "$$ROOT"}}
}

func numeric(op, name string, n float64) bson.M {
	f := field(name)
	return bson.M{"$expr": bson.M{"$and": bson.A{
		bson.M{"$isNumber": f},
		bson.M{op: bson.A{f, n}},
	}}}
}
