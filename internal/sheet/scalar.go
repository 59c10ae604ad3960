package sheet

import (
	"math"
	"strconv"
	"strings"
)

// inferScalar types a cell read from a text-only source. Plain decimal
// numbers become float64 and TRUE/FALSE become bool; everything else stays a
// string. Values with a leading zero such as "007" are kept as text so
// identifiers survive.
func inferScalar(s string) any {
	if s == "" {
		return nil
	}
	switch strings.ToUpper(s) {
	case "TRUE":
		return true
	case "FALSE":
		return false
	}
	if f, ok := plainNumber(s); ok {
		return f
	}
	return s
}

func plainNumber(s string) (float64, bool) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, false
	}
	digits := 0
	for i := 0; i < len(t); i++ {
		c := t[i]
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
	u := strings.TrimLeft(t, "+-")
	if len(u) > 1 && u[0] == '0' && u[1] != '.' && u[1] != 'e' && u[1] != 'E' {
		return 0, false
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}
