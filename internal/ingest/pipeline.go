// Package ingest turns an uploaded spreadsheet into records and persists them
// as a single batch.
package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/amirmursal/medinet-process-data/internal/metrics"
	"github.com/amirmursal/medinet-process-data/internal/record"
	"github.com/amirmursal/medinet-process-data/internal/sheet"
	"github.com/amirmursal/medinet-process-data/internal/storage"
)

// Pipeline decodes one file per call and stores its rows.
type Pipeline struct {
	repo storage.Repository
	job  string

	// Decode reads the first worksheet. Defaults to sheet.Decode.
	Decode sheet.DecodeFunc
	// Verbose enables per-upload log lines.
	Verbose bool
}

// Result summarizes one ingestion.
type Result struct {
	Fields   []string
	Decoded  int
	Inserted int64
}

// New returns a Pipeline writing to repo; job labels its metrics.
func New(repo storage.Repository, job string) *Pipeline {
	return &Pipeline{repo: repo, job: job, Decode: sheet.Decode}
}

// Ingest decodes path, projects every data row onto the header fields and
// inserts the records with one InsertMany call, even when there are none.
// The file at path is removed once decoding finishes, whatever its outcome,
// and before anything is written to the repository.
func (p *Pipeline) Ingest(ctx context.Context, path string) (Result, error) {
	grid, err := p.decode(path)
	if err != nil {
		return Result{}, &Error{Kind: ErrDecodeFailed, Path: path, Err: err}
	}

	var res Result
	recs := []record.Record{}
	if len(grid) > 0 {
		res.Fields = NormalizeHeaders(grid[0])
		for _, row := range grid[1:] {
			recs = append(recs, ProjectRow(res.Fields, row))
		}
	}
	res.Decoded = len(recs)
	metrics.RecordRow(p.job, "decoded", int64(res.Decoded))
	if p.Verbose {
		log.Printf("ingest: path=%s fields=%d rows=%d", path, len(res.Fields), res.Decoded)
	}

	start := time.Now()
	n, err := p.repo.InsertMany(ctx, recs)
	metrics.RecordStep(p.job, "persist", err, time.Since(start))
	if err != nil {
		return res, &Error{Kind: ErrStoreFailed, Path: path, Err: err}
	}
	metrics.RecordBatches(p.job, 1)
	metrics.RecordRow(p.job, "inserted", n)
	res.Inserted = n
	return res, nil
}

func (p *Pipeline) decode(path string) (sheet.Grid, error) {
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Printf("ingest: cleanup path=%s err=%v", path, err)
		}
	}()
	decode := p.Decode
	if decode == nil {
		decode = sheet.Decode
	}
	start := time.Now()
	grid, err := decode(path)
	metrics.RecordStep(p.job, "decode", err, time.Since(start))
	return grid, err
}
