// Package postgres implements a Postgres repository using pgx v5. Records
// are stored in a JSONB column and bulk-loaded with COPY.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amirmursal/medinet-process-data/internal/query"
	"github.com/amirmursal/medinet-process-data/internal/record"
	"github.com/amirmursal/medinet-process-data/internal/storage"
	"github.com/amirmursal/medinet-process-data/internal/storage/sqlfilter"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN   string // connection string for pgxpool
	Table string // target table, optionally schema-qualified ("public.records")
}

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if cfg.Table == "" {
		return nil, nil, fmt.Errorf("postgres: table must not be empty")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	close := func() { pool.Close() }
	return &Repository{pool: pool, cfg: cfg}, close, nil
}

// ident splits a possibly schema-qualified table name.
func ident(table string) pgx.Identifier { return pgx.Identifier(strings.Split(table, ".")) }

// InsertMany loads recs with a single COPY.
func (r *Repository) InsertMany(ctx context.Context, recs []record.Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	rows := make([][]any, 0, len(recs))
	for _, rec := range recs {
		doc, err := storage.EncodeDoc(rec)
		if err != nil {
			return 0, fmt.Errorf("postgres: %w", err)
		}
		rows = append(rows, []any{storage.NewID(), string(doc)})
	}
	n, err := r.pool.CopyFrom(ctx, ident(r.cfg.Table), []string{"id", "doc"}, pgx.CopyFromRows(rows))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			return 0, fmt.Errorf("postgres: copy: %s (%s)", pgErr.Detail, pgErr.SQLState())
		}
		return 0, fmt.Errorf("postgres: copy: %w", err)
	}
	return n, nil
}

// FindSQL renders the search statement for p and its arguments.
func FindSQL(table string, p query.Predicate) (string, []any) {
	b := sqlfilter.NewBuilder(sqlfilter.Dollar)
	where := sqlfilter.Where(dialect{}, b, p)
	return "SELECT r.id, r.doc::text FROM " + ident(table).Sanitize() + " AS r WHERE " + where + " ORDER BY r.seq", b.Args()
}

// Find returns records matching p in insertion order.
func (r *Repository) Find(ctx context.Context, p query.Predicate) ([]record.Stored, error) {
	q, args := FindSQL(r.cfg.Table, p)
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: find: %w", err)
	}
	defer rows.Close()

	out := []record.Stored{}
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}
		s, err := storage.DecodeDoc(id, []byte(doc))
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows: %w", err)
	}
	return out, nil
}

// DeleteByID removes the record with id.
func (r *Repository) DeleteByID(ctx context.Context, id string) (int64, error) {
	tag, err := r.pool.Exec(ctx, "DELETE FROM "+ident(r.cfg.Table).Sanitize()+" WHERE id = $1", id)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks the pool.
func (r *Repository) Ping(ctx context.Context) error { return r.pool.Ping(ctx) }

// Exec runs a single statement (typically DDL).
func (r *Repository) Exec(ctx context.Context, sql string) error {
	if strings.TrimSpace(sql) == "" {
		return nil
	}
	if _, err := r.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("postgres: exec: %w", err)
	}
	return nil
}

// CreateTableSQL returns the DDL for the records table.
func CreateTableSQL(table string) string {
	return "CREATE TABLE IF NOT EXISTS " + ident(table).Sanitize() +
		" (seq BIGSERIAL PRIMARY KEY, id TEXT NOT NULL UNIQUE, doc JSONB NOT NULL)"
}

// dialect addresses fields with doc -> key. Numeric casts sit behind a CASE
// so non-number values never reach them.
type dialect struct{}

func (dialect) NumberEquals(b *sqlfilter.Builder, field string, n float64) string {
	return numeric(b, field, "=", n)
}

func (dialect) TextEquals(b *sqlfilter.Builder, field, s string) string {
	f := b.Arg(field)
	return fmt.Sprintf("(jsonb_typeof(r.doc -> %[1]s::text) = 'string' AND r.doc ->> %[1]s::text = %[2]s::text)", f, b.Arg(s))
}

func (dialect) Contains(b *sqlfilter.Builder, field, literal string) string {
	f := b.Arg(field)
	return fmt.Sprintf("strpos(lower(r.doc ->> %s::text), lower(%s::text)) > 0", f, b.Arg(literal))
}

func (dialect) Compare(b *sqlfilter.Builder, field, op string, n float64) string {
	return numeric(b, field, op, n)
}

func numeric(b *sqlfilter.Builder, field, op string, n float64) string {
	f := b.Arg(field)
	return fmt.Sprintf(
		"(CASE WHEN jsonb_typeof(r.doc -> %[1]s::text) = 'number' THEN (r.doc ->> %[1]s::text)::float8 %[2]s %[3]s::float8 ELSE false END)",
		f, op, b.Arg(n))
}
