package query

import "regexp"

// Predicate is a compiled, store-independent filter. The concrete node types
// are And, All, None, Equals, Contains, GreaterThan and LessThan; use a type
// switch to translate a tree into a backend's native filter language.
//
// Predicates are immutable once built.
type Predicate interface {
	// predicateNode is a marker method to prevent external implementation.
	predicateNode()
}

// And matches when every term matches. An And with no terms matches
// everything; Compile never produces one, it returns None for an empty
// condition list instead.
type And struct {
	Terms []Predicate
}

// All matches every record.
type All struct{}

// None matches no record.
type None struct{}

// Equals compares a field for equality. When Numeric is set the field must
// hold a number equal to Number, otherwise it must hold a string equal to
// Text.
type Equals struct {
	Field   string
	Numeric bool
	Number  float64
	Text    string
}

// Contains is a case-insensitive literal substring match against the string
// form of a field.
type Contains struct {
	Field   string
	Literal string
}

// Pattern returns Literal as a regular expression with every metacharacter
// escaped. Case folding is left to the caller ("(?i)" in Go, the "i" option
// in document stores).
func (c Contains) Pattern() string {
	return regexp.QuoteMeta(c.Literal)
}

// GreaterThan matches numeric fields strictly greater than Number.
type GreaterThan struct {
	Field  string
	Number float64
}

// LessThan matches numeric fields strictly less than Number.
type LessThan struct {
	Field  string
	Number float64
}

func (And) predicateNode()         {}
func (All) predicateNode()         {}
func (None) predicateNode()        {}
func (Equals) predicateNode()      {}
func (Contains) predicateNode()    {}
func (GreaterThan) predicateNode() {}
func (LessThan) predicateNode()    {}
