// Package record defines the schema-less document produced from one
// spreadsheet row and the persisted form returned by storage backends.
package record

import (
	"encoding/json"
	"sort"
)

// IDKey is the key under which a persisted record's identifier is exposed.
const IDKey = "_id"

// Record maps a field name to a scalar value: string, float64, bool or
// time.Time. Every record of one upload shares the same key set.
type Record map[string]any

// Keys returns the record's field names in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stored is a record as read back from a repository.
type Stored struct {
	ID     string
	Fields Record
}

// MarshalJSON flattens the record and adds the identifier under IDKey.
// A field literally named IDKey is shadowed by the identifier.
func (s Stored) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(s.Fields)+1)
	for k, v := range s.Fields {
		flat[k] = v
	}
	flat[IDKey] = s.ID
	return json.Marshal(flat)
}

// UnmarshalJSON is the inverse of MarshalJSON. Numbers decode as float64.
func (s *Stored) UnmarshalJSON(b []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(b, &flat); err != nil {
		return err
	}
	if id, ok := flat[IDKey].(string); ok {
		s.ID = id
	}
	delete(flat, IDKey)
	s.Fields = Record(flat)
	return nil
}
