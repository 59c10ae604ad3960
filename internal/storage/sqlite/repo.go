// Package sqlite implements a SQLite-backed storage.Repository using
// database/sql. Records are stored as JSON text in a single table and
// filtered with json_each, so the schema never depends on the uploaded
// spreadsheet's columns.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/amirmursal/medinet-process-data/internal/query"
	"github.com/amirmursal/medinet-process-data/internal/record"
	"github.com/amirmursal/medinet-process-data/internal/storage"
	"github.com/amirmursal/medinet-process-data/internal/storage/sqlfilter"
)

// Config holds SQLite repository configuration derived from storage.Config.
type Config struct {
	// DSN is a SQLite connection string or file path, e.g.:
	//   "file:medinet.db?_pragma=busy_timeout(5000)"
	//   ":memory:"
	DSN string

	// Table holds one row per record.
	Table string

	// BusyTimeoutMS, when positive, sets PRAGMA busy_timeout.
	BusyTimeoutMS int
}

// Repository is a SQLite-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository opens a SQLite connection using the provided DSN and returns
// a Repository plus a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	if cfg.Table == "" {
		return nil, nil, fmt.Errorf("sqlite: table must not be empty")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer at a time; also keeps ":memory:" databases on one connection.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if cfg.BusyTimeoutMS > 0 {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeoutMS)); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("sqlite: busy_timeout: %w", err)
		}
	}

	closeFn := func() { db.Close() }
	return &Repository{db: db, cfg: cfg}, closeFn, nil
}

func (r *Repository) table() string { return sqlfilter.QuoteIdent(r.cfg.Table, '"', '"') }

// InsertMany inserts recs in a single transaction with a prepared statement.
func (r *Repository) InsertMany(ctx context.Context, recs []record.Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+r.table()+" (id, doc) VALUES (?, ?)")
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, rec := range recs {
		doc, err := storage.EncodeDoc(rec)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, storage.NewID(), string(doc)); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: insert: %w", err)
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return inserted, nil
}

// Find returns records matching p in insertion order.
func (r *Repository) Find(ctx context.Context, p query.Predicate) ([]record.Stored, error) {
	b := sqlfilter.NewBuilder(sqlfilter.Question)
	where := sqlfilter.Where(dialect{}, b, p)
	q := "SELECT r.id, r.doc FROM " + r.table() + " AS r WHERE " + where + " ORDER BY r.seq"

	rows, err := r.db.QueryContext(ctx, q, b.Args()...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: find: %w", err)
	}
	defer rows.Close()

	out := []record.Stored{}
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		s, err := storage.DecodeDoc(id, []byte(doc))
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: rows: %w", err)
	}
	return out, nil
}

// DeleteByID removes the record with id.
func (r *Repository) DeleteByID(ctx context.Context, id string) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM "+r.table()+" WHERE id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return n, nil
}

// Ping checks the connection.
func (r *Repository) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

// Exec executes an arbitrary SQL statement (typically DDL).
func (r *Repository) Exec(ctx context.Context, sql string) error {
	if strings.TrimSpace(sql) == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("sqlite: exec: %w", err)
	}
	return nil
}

// CreateTableSQL returns the DDL for the records table.
func CreateTableSQL(table string) string {
	return "CREATE TABLE IF NOT EXISTS " + sqlfilter.QuoteIdent(table, '"', '"') +
		" (seq INTEGER PRIMARY KEY AUTOINCREMENT, id TEXT NOT NULL UNIQUE, doc TEXT NOT NULL)"
}

// dialect filters on json_each rows of the document. JSON true/false have
// their own types, so only 'integer'/'real' and 'text' need bracketing.
type dialect struct{}

const jsonEach = "EXISTS (SELECT 1 FROM json_each(r.doc) AS j WHERE j.key = %s AND %s)"

func (dialect) NumberEquals(b *sqlfilter.Builder, field string, n float64) string {
	return fmt.Sprintf(jsonEach, b.Arg(field), "j.type IN ('integer','real') AND j.value = "+b.Arg(n))
}

func (dialect) TextEquals(b *sqlfilter.Builder, field, s string) string {
	return fmt.Sprintf(jsonEach, b.Arg(field), "j.type = 'text' AND j.value = "+b.Arg(s))
}

func (dialect) Contains(b *sqlfilter.Builder, field, literal string) string {
	text := "CASE j.type WHEN 'true' THEN 'true' WHEN 'false' THEN 'false' ELSE CAST(j.value AS TEXT) END"
	return fmt.Sprintf(jsonEach, b.Arg(field), "instr(lower("+text+"), lower("+b.Arg(literal)+")) > 0")
}

func (dialect) Compare(b *sqlfilter.Builder, field, op string, n float64) string {
	return fmt.Sprintf(jsonEach, b.Arg(field), "j.type IN ('integer','real') AND j.value "+op+" "+b.Arg(n))
}
