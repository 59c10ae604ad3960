package storage

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/amirmursal/medinet-process-data/internal/record"
)

// NewID returns a fresh record identifier for backends without native ids.
func NewID() string { return uuid.NewString() }

// EncodeDoc serializes a record as the JSON document stored by SQL backends.
// Dates are written as RFC 3339 strings.
func EncodeDoc(rec record.Record) ([]byte, error) {
	if rec == nil {
		rec = record.Record{}
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return b, nil
}

// DecodeDoc parses a stored JSON document. Numbers decode as float64.
func DecodeDoc(id string, doc []byte) (record.Stored, error) {
	var fields record.Record
	dec := json.NewDecoder(bytes.NewReader(doc))
	if err := dec.Decode(&fields); err != nil {
		return record.Stored{}, fmt.Errorf("decode document %s: %w", id, err)
	}
	if fields == nil {
		fields = record.Record{}
	}
	return record.Stored{ID: id, Fields: fields}, nil
}
