package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Wire form
//
// Predicates travel between client and server as a document-filter object:
//
//	{}                                       All
//	{"$nor": [{}]}                           None
//	{"$and": [ ... ]}                        And
//	{"Chart_ID": "C1"}                       Equals (text)
//	{"Age": 42}                              Equals (numeric)
//	{"Name": {"$regex": "a\\.b", "$options": "i"}}   Contains
//	{"Age": {"$gt": 5}}, {"Age": {"$lt": 5}}          GreaterThan, LessThan
//
// Keys beginning with "$" are operators, so a field whose name starts with
// "$" cannot be addressed on the wire.

// Encode returns the wire form of p, ready for json.Marshal.
func Encode(p Predicate) any {
	switch n := p.(type) {
	case And:
		if len(n.Terms) == 0 {
			return map[string]any{}
		}
		terms := make([]any, 0, len(n.Terms))
		for _, t := range n.Terms {
			terms = append(terms, Encode(t))
		}
		return map[string]any{"$and": terms}
	case All:
		return map[string]any{}
	case None:
		return map[string]any{"$nor": []any{map[string]any{}}}
	case Equals:
		if n.Numeric {
			return map[string]any{n.Field: n.Number}
		}
		return map[string]any{n.Field: n.Text}
	case Contains:
		return map[string]any{n.Field: map[string]any{"$regex": n.Pattern(), "$options": "i"}}
	case GreaterThan:
		return map[string]any{n.Field: map[string]any{"$gt": n.Number}}
	case LessThan:
		return map[string]any{n.Field: map[string]any{"$lt": n.Number}}
	default:
		return map[string]any{"$nor": []any{map[string]any{}}}
	}
}

// Decode parses the wire form. An empty body or JSON null decodes to All.
//
// A "$regex" is always read as literal text: backslash escapes are unwrapped
// and every other character is taken as-is, so a pattern like "a.b" matches
// only the substring "a.b". Case-insensitivity is implied.
func Decode(raw []byte) (Predicate, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return All{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("query: decode: %w", err)
	}
	return decodeDoc(v)
}

func decodeDoc(v any) (Predicate, error) {
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("query: filter must be an object, got %T", v)
	}
	if len(doc) == 0 {
		return All{}, nil
	}

	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var terms []Predicate
	for _, k := range keys {
		val := doc[k]
		switch {
		case k == "$and":
			arr, ok := val.([]any)
			if !ok || len(arr) == 0 {
				return nil, fmt.Errorf("query: $and needs a non-empty array")
			}
			and := And{Terms: make([]Predicate, 0, len(arr))}
			for i, item := range arr {
				t, err := decodeDoc(item)
				if err != nil {
					return nil, fmt.Errorf("query: $and[%d]: %w", i, err)
				}
				and.Terms = append(and.Terms, t)
			}
			terms = append(terms, and)
		case k == "$nor":
			if !isMatchNothing(val) {
				return nil, fmt.Errorf("query: only the {\"$nor\":[{}]} form is supported")
			}
			terms = append(terms, None{})
		case strings.HasPrefix(k, "$"):
			return nil, fmt.Errorf("query: unsupported operator %q", k)
		default:
			ts, err := decodeField(k, val)
			if err != nil {
				return nil, err
			}
			terms = append(terms, ts...)
		}
	}

	if len(terms) == 1 {
		return terms[0], nil
	}
	return And{Terms: terms}, nil
}

func decodeField(field string, val any) ([]Predicate, error) {
	switch x := val.(type) {
	case string:
		return []Predicate{Equals{Field: field, Text: x}}, nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("query: field %q: %w", field, err)
		}
		return []Predicate{Equals{Field: field, Numeric: true, Number: f}}, nil
	case map[string]any:
		return decodeOperators(field, x)
	default:
		return nil, fmt.Errorf("query: field %q: unsupported value %T", field, val)
	}
}

func decodeOperators(field string, ops map[string]any) ([]Predicate, error) {
	if len(ops) == 0 {
		return nil, fmt.Errorf("query: field %q: empty operator object", field)
	}
	names := make([]string, 0, len(ops))
	for k := range ops {
		names = append(names, k)
	}
	sort.Strings(names)

	var out []Predicate
	for _, op := range names {
		v := ops[op]
		switch op {
		case "$regex":
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("query: field %q: $regex must be a string", field)
			}
			out = append(out, Contains{Field: field, Literal: unquoteMeta(s)})
		case "$options":
			if _, ok := v.(string); !ok {
				return nil, fmt.Errorf("query: field %q: $options must be a string", field)
			}
		case "$eq":
			ts, err := decodeField(field, v)
			if err != nil {
				return nil, err
			}
			out = append(out, ts...)
		case "$gt", "$lt":
			n, ok := v.(json.Number)
			if !ok {
				// Non-numeric bounds never match, mirroring Compile.
				out = append(out, None{})
				continue
			}
			f, err := n.Float64()
			if err != nil {
				return nil, fmt.Errorf("query: field %q: %w", field, err)
			}
			if op == "$gt" {
				out = append(out, GreaterThan{Field: field, Number: f})
			} else {
				out = append(out, LessThan{Field: field, Number: f})
			}
		default:
			return nil, fmt.Errorf("query: field %q: unsupported operator %q", field, op)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("query: field %q: $options without $regex", field)
	}
	return out, nil
}

func isMatchNothing(v any) bool {
	arr, ok := v.([]any)
	if !ok || len(arr) != 1 {
		return false
	}
	m, ok := arr[0].(map[string]any)
	return ok && len(m) == 0
}

// unquoteMeta undoes regexp.QuoteMeta and treats any other escape as the
// escaped character itself.
func unquoteMeta(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
