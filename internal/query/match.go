package query

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/amirmursal/medinet-process-data/internal/record"
)

// Match evaluates p against rec in process. Comparisons are type-bracketed:
// numeric leaves only match numeric values and text equality only matches
// strings. Contains matches the string form of any scalar.
func Match(p Predicate, rec record.Record) bool {
	switch n := p.(type) {
	case And:
		for _, t := range n.Terms {
			if !Match(t, rec) {
				return false
			}
		}
		return true
	case All:
		return true
	case None:
		return false
	case Equals:
		v, ok := rec[n.Field]
		if !ok {
			return false
		}
		if n.Numeric {
			f, ok := numberOf(v)
			return ok && f == n.Number
		}
		s, ok := v.(string)
		return ok && s == n.Text
	case Contains:
		s, ok := TextOf(rec[n.Field])
		if !ok {
			return false
		}
		return strings.Contains(strings.ToLower(s), strings.ToLower(n.Literal))
	case GreaterThan:
		f, ok := numberOf(rec[n.Field])
		return ok && f > n.Number
	case LessThan:
		f, ok := numberOf(rec[n.Field])
		return ok && f < n.Number
	default:
		return false
	}
}

// TextOf returns the string form of a scalar record value. Numbers are
// rendered as encoding/json renders them (1e+21, not 1000000000000000000000)
// and dates as RFC 3339, so the text matches the stored document. Backends
// that cast their own numeric type to text can differ for extreme magnitudes.
func TextOf(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case time.Time:
		return x.Format(time.RFC3339Nano), true
	case nil:
		return "", false
	}
	if f, ok := numberOf(v); ok {
		if b, err := json.Marshal(f); err == nil {
			return string(b), true
		}
		return strconv.FormatFloat(f, 'g', -1, 64), true
	}
	return "", false
}

func numberOf(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}
