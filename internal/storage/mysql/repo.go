// Package mysql implements a MySQL-backed storage.Repository. Documents live
// in a JSON column and are filtered with JSON_EXTRACT over a bound path.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/amirmursal/medinet-process-data/internal/query"
	"github.com/amirmursal/medinet-process-data/internal/record"
	"github.com/amirmursal/medinet-process-data/internal/storage"
	"github.com/amirmursal/medinet-process-data/internal/storage/sqlfilter"
)

// insertChunk bounds rows per INSERT statement, well under the 65535
// placeholder limit.
const insertChunk = 1000

// Config holds MySQL repository configuration.
type Config struct {
	DSN   string // go-sql-driver DSN, e.g. "user:pass@tcp(localhost:3306)/medinet"
	Table string
}

// Repository is a MySQL-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository parses the DSN, opens a pool and pings it.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if cfg.Table == "" {
		return nil, nil, fmt.Errorf("mysql: table must not be empty")
	}
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql dsn: %w", err)
	}
	conn, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(conn)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	close := func() { _ = db.Close() }
	return &Repository{db: db, cfg: cfg}, close, nil
}

// InsertMany writes recs with multi-row INSERTs inside one transaction.
func (r *Repository) InsertMany(ctx context.Context, recs []record.Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	var inserted int64
	for start := 0; start < len(recs); start += insertChunk {
		end := min(start+insertChunk, len(recs))
		q, args, err := insertSQL(r.cfg.Table, recs[start:end])
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("insert: %w", err)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func insertSQL(table string, recs []record.Record) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO " + myFQN(table) + " (id, doc) VALUES ")
	args := make([]any, 0, 2*len(recs))
	for i, rec := range recs {
		doc, err := storage.EncodeDoc(rec)
		if err != nil {
			return "", nil, err
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?)")
		args = append(args, storage.NewID(), string(doc))
	}
	return sb.String(), args, nil
}

// FindSQL renders the search statement for p and its arguments.
func FindSQL(table string, p query.Predicate) (string, []any) {
	b := sqlfilter.NewBuilder(sqlfilter.Question)
	where := sqlfilter.Where(dialect{}, b, p)
	return "SELECT r.id, r.doc FROM " + myFQN(table) + " AS r WHERE " + where + " ORDER BY r.seq", b.Args()
}

// Find returns records matching p in insertion order.
func (r *Repository) Find(ctx context.Context, p query.Predicate) ([]record.Stored, error) {
	q, args := FindSQL(r.cfg.Table, p)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	defer rows.Close()

	out := []record.Stored{}
	for rows.Next() {
		var id string
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		s, err := storage.DecodeDoc(id, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// DeleteByID removes the record with id.
func (r *Repository) DeleteByID(ctx context.Context, id string) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM "+myFQN(r.cfg.Table)+" WHERE id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks the pool.
func (r *Repository) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

// Exec runs a single statement (typically DDL).
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	_, err := r.db.ExecContext(ctx, sqlText)
	return err
}

// CreateTableSQL returns the DDL for the records table.
func CreateTableSQL(table string) string {
	return "CREATE TABLE IF NOT EXISTS " + myFQN(table) +
		" (seq BIGINT AUTO_INCREMENT PRIMARY KEY, id VARCHAR(64) NOT NULL UNIQUE, doc JSON NOT NULL)"
}

// JSONPath returns the path selecting the top-level member field. The member
// name is double-quoted so any character is allowed.
func JSONPath(field string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `$."` + r.Replace(field) + `"`
}

type dialect struct{}

const numericTypes = "('INTEGER','DOUBLE','DECIMAL','UNSIGNED INTEGER')"

func (dialect) NumberEquals(b *sqlfilter.Builder, field string, n float64) string {
	return numeric(b, field, "=", n)
}

func (dialect) TextEquals(b *sqlfilter.Builder, field, s string) string {
	path := JSONPath(field)
	return fmt.Sprintf("(JSON_TYPE(JSON_EXTRACT(r.doc, %s)) = 'STRING' AND JSON_UNQUOTE(JSON_EXTRACT(r.doc, %s)) = %s)",
		b.Arg(path), b.Arg(path), b.Arg(s))
}

func (dialect) Contains(b *sqlfilter.Builder, field, literal string) string {
	return fmt.Sprintf("LOCATE(LOWER(%s), LOWER(JSON_UNQUOTE(JSON_EXTRACT(r.doc, %s)))) > 0",
		b.Arg(literal), b.Arg(JSONPath(field)))
}

func (dialect) Compare(b *sqlfilter.Builder, field, op string, n float64) string {
	return numeric(b, field, op, n)
}

func numeric(b *sqlfilter.Builder, field, op string, n float64) string {
	path := JSONPath(field)
	return fmt.Sprintf("(JSON_TYPE(JSON_EXTRACT(r.doc, %s)) IN %s AND JSON_EXTRACT(r.doc, %s) %s %s)",
		b.Arg(path), numericTypes, b.Arg(path), op, b.Arg(n))
}

// myFQN backtick-quotes a possibly schema-qualified name.
func myFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = sqlfilter.QuoteIdent(p, '`', '`')
	}
	return strings.Join(parts, ".")
}
