package query

import (
	"math"
	"strconv"
	"strings"
)

// Compile turns a list of conditions into a conjunction of one leaf per
// condition. An empty list compiles to None.
//
// Operator semantics:
//
//   - equals: numeric equality when the value is a plain base-10 number,
//     exact string equality otherwise.
//   - contains: case-insensitive literal substring match.
//   - greater_than / less_than: numeric comparison; a non-numeric value
//     yields a None leaf.
//   - anything else: an All leaf, so unrecognized operators are ignored.
func Compile(conds []Condition) Predicate {
	if len(conds) == 0 {
		return None{}
	}
	terms := make([]Predicate, 0, len(conds))
	for _, c := range conds {
		terms = append(terms, compileLeaf(c))
	}
	return And{Terms: terms}
}

func compileLeaf(c Condition) Predicate {
	switch c.Operator {
	case OpEquals:
		if n, ok := ParseNumber(c.Value); ok {
			return Equals{Field: c.Field, Numeric: true, Number: n}
		}
		return Equals{Field: c.Field, Text: c.Value}
	case OpContains:
		return Contains{Field: c.Field, Literal: c.Value}
	case OpGreaterThan:
		n, ok := ParseNumber(c.Value)
		if !ok {
			return None{}
		}
		return GreaterThan{Field: c.Field, Number: n}
	case OpLessThan:
		n, ok := ParseNumber(c.Value)
		if !ok {
			return None{}
		}
		return LessThan{Field: c.Field, Number: n}
	default:
		return All{}
	}
}

// ParseNumber reports whether s is a plain base-10 number: optional sign,
// digits with an optional fraction, optional exponent. Surrounding blanks are
// ignored. Grouping separators, hex, NaN and Inf are rejected.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	digits := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			digits++
		case c == '.' || c == '+' || c == '-' || c == 'e' || c == 'E':
		default:
			return 0, false
		}
	}
	if digits == 0 {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, false
	}
	return n, true
}
