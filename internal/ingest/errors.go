package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrDecodeFailed marks an upload that could not be read as a spreadsheet.
	ErrDecodeFailed = errors.New("decode failed")
	// ErrStoreFailed marks a batch the repository rejected.
	ErrStoreFailed = errors.New("store failed")
)

// Error reports the phase an ingestion failed in. It matches its Kind and
// its cause with errors.Is.
type Error struct {
	Kind error
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ingest: %v: path=%s: %v", e.Kind, e.Path, e.Err)
}

func (e *Error) Unwrap() []error { return []error{e.Kind, e.Err} }
