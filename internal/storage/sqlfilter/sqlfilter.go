// Package sqlfilter renders a query.Predicate as a SQL boolean expression over
// a JSON document column. Every user-supplied value, field names included, is
// bound as a query parameter; only dialect-owned SQL text is interpolated.
package sqlfilter

import (
	"strconv"
	"strings"

	"github.com/amirmursal/medinet-process-data/internal/query"
)

// Builder accumulates bound arguments and hands out placeholders.
type Builder struct {
	placeholder func(n int) string
	args        []any
}

// NewBuilder returns a Builder using placeholder to render the n-th (1-based)
// argument, e.g. Question or Dollar.
func NewBuilder(placeholder func(n int) string) *Builder {
	return &Builder{placeholder: placeholder}
}

// Arg binds v and returns its placeholder.
func (b *Builder) Arg(v any) string {
	b.args = append(b.args, v)
	return b.placeholder(len(b.args))
}

// Args returns the bound arguments in placeholder order.
func (b *Builder) Args() []any { return b.args }

// Question renders "?" placeholders (SQLite, MySQL).
func Question(int) string { return "?" }

// Dollar renders "$n" placeholders (Postgres).
func Dollar(n int) string { return "$" + strconv.Itoa(n) }

// AtP renders "@pn" placeholders (SQL Server).
func AtP(n int) string { return "@p" + strconv.Itoa(n) }

// Dialect renders predicate leaves for one database. Implementations bind
// values through b and must only match values of the leaf's JSON type.
type Dialect interface {
	NumberEquals(b *Builder, field string, n float64) string
	TextEquals(b *Builder, field, s string) string
	// Contains is a case-insensitive literal substring match on the text
	// form of any scalar.
	Contains(b *Builder, field, literal string) string
	// Compare renders a strict numeric comparison; op is ">" or "<".
	Compare(b *Builder, field, op string, n float64) string
}

const (
	sqlTrue  = "(1=1)"
	sqlFalse = "(1=0)"
)

// Where renders p using d, binding arguments into b.
func Where(d Dialect, b *Builder, p query.Predicate) string {
	switch n := p.(type) {
	case query.And:
		if len(n.Terms) == 0 {
			return sqlTrue
		}
		parts := make([]string, 0, len(n.Terms))
		for _, t := range n.Terms {
			parts = append(parts, Where(d, b, t))
		}
		if len(parts) == 1 {
			return parts[0]
		}
		return "(" + strings.Join(parts, " AND ") + ")"
	case query.All:
		return sqlTrue
	case query.None:
		return sqlFalse
	case query.Equals:
		if n.Numeric {
			return d.NumberEquals(b, n.Field, n.Number)
		}
		return d.TextEquals(b, n.Field, n.Text)
	case query.Contains:
		return d.Contains(b, n.Field, n.Literal)
	case query.GreaterThan:
		return d.Compare(b, n.Field, ">", n.Number)
	case query.LessThan:
		return d.Compare(b, n.Field, "<", n.Number)
	default:
		return sqlFalse
	}
}

// QuoteIdent quotes a single identifier with the given delimiters, doubling
// any embedded closing delimiter.
func QuoteIdent(name string, open, close byte) string {
	var sb strings.Builder
	sb.Grow(len(name) + 2)
	sb.WriteByte(open)
	for i := 0; i < len(name); i++ {
		if name[i] == close {
			sb.WriteByte(close)
		}
		sb.WriteByte(name[i])
	}
	sb.WriteByte(close)
	return sb.String()
}
