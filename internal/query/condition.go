package query

import (
	"errors"
	"fmt"
)

// Operator names a comparison in a Condition.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
)

// Operators lists the selectable operators in display order.
func Operators() []Operator {
	return []Operator{OpEquals, OpContains, OpGreaterThan, OpLessThan}
}

// Condition is one user-specified filter term.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
}

// Attribute selects the part of a Condition changed by Model.Update.
type Attribute int

const (
	AttrField Attribute = iota
	AttrOperator
	AttrValue
)

// ErrInvalidConditions is returned by FromConditions when a condition list
// violates the model invariants.
var ErrInvalidConditions = errors.New("invalid conditions")

// Model holds an editable list of conditions over a fixed field enumeration.
//
// Invariants: there is always at least one condition and never more than
// len(fields). Field uniqueness is the boundary's job (see AvailableFields);
// Update does not check it.
//
// A Model is not safe for concurrent use; it belongs to one caller session.
type Model struct {
	fields   []string
	conds    []Condition
	onChange func(Predicate)
}

// NewModel returns a model with a single condition on the first field.
// With no fields the model holds no conditions, accepts no mutations and its
// predicate matches nothing. onChange, when non-nil, receives the recompiled
// predicate after every accepted mutation.
func NewModel(fields []string, onChange func(Predicate)) *Model {
	m := &Model{
		fields:   append([]string(nil), fields...),
		onChange: onChange,
	}
	if len(m.fields) > 0 {
		m.conds = []Condition{{Field: m.fields[0], Operator: OpEquals}}
	}
	return m
}

// FromConditions builds a model from a caller-supplied list, rejecting lists
// that are empty, longer than the enumeration, reference unknown fields, or
// repeat a field.
func FromConditions(fields []string, conds []Condition) (*Model, error) {
	if len(conds) == 0 {
		return nil, fmt.Errorf("%w: at least one condition is required", ErrInvalidConditions)
	}
	if len(conds) > len(fields) {
		return nil, fmt.Errorf("%w: %d conditions for %d fields", ErrInvalidConditions, len(conds), len(fields))
	}
	known := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		known[f] = struct{}{}
	}
	seen := make(map[string]struct{}, len(conds))
	for i, c := range conds {
		if _, ok := known[c.Field]; !ok {
			return nil, fmt.Errorf("%w: condition %d: unknown field %q", ErrInvalidConditions, i, c.Field)
		}
		if _, dup := seen[c.Field]; dup {
			return nil, fmt.Errorf("%w: condition %d: field %q already used", ErrInvalidConditions, i, c.Field)
		}
		seen[c.Field] = struct{}{}
	}
	return &Model{
		fields: append([]string(nil), fields...),
		conds:  append([]Condition(nil), conds...),
	}, nil
}

// Len returns the number of conditions.
func (m *Model) Len() int { return len(m.conds) }

// Conditions returns a copy of the current conditions.
func (m *Model) Conditions() []Condition {
	return append([]Condition(nil), m.conds...)
}

// Fields returns the field enumeration the model was built with.
func (m *Model) Fields() []string {
	return append([]string(nil), m.fields...)
}

// Predicate compiles the current conditions.
func (m *Model) Predicate() Predicate { return Compile(m.conds) }

// CanAdd reports whether Add would be accepted.
func (m *Model) CanAdd() bool { return len(m.conds) < len(m.fields) }

// CanRemove reports whether Remove would be accepted for a valid index.
func (m *Model) CanRemove() bool { return len(m.conds) > 1 }

// Add appends a condition on the first unused field, or on "" when every
// field is taken. It is refused once the model holds one condition per field.
func (m *Model) Add() bool {
	if !m.CanAdd() {
		return false
	}
	used := m.usedFields(-1)
	next := ""
	for _, f := range m.fields {
		if _, ok := used[f]; !ok {
			next = f
			break
		}
	}
	m.conds = append(m.conds, Condition{Field: next, Operator: OpEquals})
	m.changed()
	return true
}

// Update sets one attribute of the condition at index.
func (m *Model) Update(index int, attr Attribute, value string) bool {
	if index < 0 || index >= len(m.conds) {
		return false
	}
	c := &m.conds[index]
	switch attr {
	case AttrField:
		c.Field = value
	case AttrOperator:
		c.Operator = Operator(value)
	case AttrValue:
		c.Value = value
	default:
		return false
	}
	m.changed()
	return true
}

// Remove deletes the condition at index unless it is the last one.
func (m *Model) Remove(index int) bool {
	if index < 0 || index >= len(m.conds) || !m.CanRemove() {
		return false
	}
	m.conds = append(m.conds[:index], m.conds[index+1:]...)
	m.changed()
	return true
}

// AvailableFields returns the fields a boundary should offer for the
// condition at index: every field not used by another condition, including
// the condition's own current field.
func (m *Model) AvailableFields(index int) []string {
	used := m.usedFields(index)
	out := make([]string, 0, len(m.fields))
	for _, f := range m.fields {
		if _, taken := used[f]; !taken {
			out = append(out, f)
		}
	}
	return out
}

func (m *Model) usedFields(skip int) map[string]struct{} {
	used := make(map[string]struct{}, len(m.conds))
	for i, c := range m.conds {
		if i == skip {
			continue
		}
		used[c.Field] = struct{}{}
	}
	return used
}

func (m *Model) changed() {
	if m.onChange != nil {
		m.onChange(m.Predicate())
	}
}
