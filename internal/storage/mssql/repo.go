// Package mssql implements a Microsoft SQL Server repository using the
// go-mssqldb bulk copy API. Documents are stored as NVARCHAR(MAX) JSON and
// filtered with OPENJSON.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"github.com/amirmursal/medinet-process-data/internal/query"
	"github.com/amirmursal/medinet-process-data/internal/record"
	"github.com/amirmursal/medinet-process-data/internal/storage"
	"github.com/amirmursal/medinet-process-data/internal/storage/sqlfilter"
)

// Config holds MSSQL repository configuration.
type Config struct {
	DSN   string
	Table string // optionally schema-qualified, e.g. "dbo.medinetprocesses"
}

// Repository is an MSSQL-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if cfg.Table == "" {
		return nil, nil, fmt.Errorf("mssql: table must not be empty")
	}
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	close := func() { _ = db.Close() }
	return &Repository{db: db, cfg: cfg}, close, nil
}

// InsertMany bulk-copies recs inside one transaction.
func (r *Repository) InsertMany(ctx context.Context, recs []record.Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	rollback := func() { _ = tx.Rollback() }

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(r.cfg.Table, mssql.BulkOptions{}, "id", "doc"))
	if err != nil {
		rollback()
		return 0, fmt.Errorf("prepare bulk: %w", err)
	}
	for i, rec := range recs {
		doc, err := storage.EncodeDoc(rec)
		if err != nil {
			_ = stmt.Close()
			rollback()
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, storage.NewID(), string(doc)); err != nil {
			_ = stmt.Close()
			rollback()
			return 0, fmt.Errorf("bulk row %d: %w", i, err)
		}
	}
	res, err := stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		rollback()
		return 0, fmt.Errorf("bulk finalize: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		rollback()
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// FindSQL renders the search statement for p and its arguments.
func FindSQL(table string, p query.Predicate) (string, []any) {
	b := sqlfilter.NewBuilder(sqlfilter.AtP)
	where := sqlfilter.Where(dialect{}, b, p)
	return "SELECT r.id, r.doc FROM " + msFQN(table) + " AS r WHERE " + where + " ORDER BY r.seq", b.Args()
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
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		s, err := storage.DecodeDoc(id, []byte(doc))
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
	res, err := r.db.ExecContext(ctx, "DELETE FROM "+msFQN(r.cfg.Table)+" WHERE id = @p1", id)
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks the connection.
func (r *Repository) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

// Exec runs a single batch (typically DDL).
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	_, err := r.db.ExecContext(ctx, sqlText)
	return err
}

// CreateTableSQL returns an idempotent DDL batch for the records table.
func CreateTableSQL(table string) string {
	fq := msFQN(table)
	return "IF OBJECT_ID(N'" + strings.ReplaceAll(fq, "'", "''") + "', N'U') IS NULL CREATE TABLE " + fq +
		" (seq BIGINT IDENTITY(1,1) PRIMARY KEY, id NVARCHAR(64) NOT NULL UNIQUE, doc NVARCHAR(MAX) NOT NULL)"
}

// OPENJSON types: 1 string, 2 number, 3 boolean. Keys and text compare with a
// binary collation so equality stays case-sensitive under CI defaults.
type dialect struct{}

const openJSON = "EXISTS (SELECT 1 FROM OPENJSON(r.doc) AS j WHERE j.[key] COLLATE Latin1_General_BIN2 = %s AND %s)"

func (dialect) NumberEquals(b *sqlfilter.Builder, field string, n float64) string {
	return fmt.Sprintf(openJSON, b.Arg(field), "j.[type] = 2 AND TRY_CAST(j.[value] AS FLOAT) = "+b.Arg(n))
}

func (dialect) TextEquals(b *sqlfilter.Builder, field, s string) string {
	return fmt.Sprintf(openJSON, b.Arg(field), "j.[type] = 1 AND j.[value] COLLATE Latin1_General_BIN2 = "+b.Arg(s))
}

// CHARINDEX never finds an empty needle, so that case is spelled out.
func (dialect) Contains(b *sqlfilter.Builder, field, literal string) string {
	f := b.Arg(field)
	l := b.Arg(literal)
	return fmt.Sprintf(openJSON, f, "j.[type] IN (1, 2, 3) AND (DATALENGTH("+l+") = 0 OR CHARINDEX(LOWER("+l+"), LOWER(j.[value])) > 0)")
}

func (dialect) Compare(b *sqlfilter.Builder, field, op string, n float64) string {
	return fmt.Sprintf(openJSON, b.Arg(field), "j.[type] = 2 AND TRY_CAST(j.[value] AS FLOAT) "+op+" "+b.Arg(n))
}

// msIdent quotes an identifier with brackets.
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// msFQN quotes a possibly schema-qualified name like "dbo.records" to
// "[dbo].[records]". If no dot is present, returns a single quoted ident.
func msFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = msIdent(p)
	}
	return strings.Join(parts, ".")
}
