package ingest

import (
	"regexp"
	"strconv"

	"golang.org/x/text/unicode/norm"

	"github.com/amirmursal/medinet-process-data/internal/query"
	"github.com/amirmursal/medinet-process-data/internal/record"
)

// whitespaceRun covers ASCII whitespace, vertical tab, every Unicode space
// separator (NBSP, U+2000..U+200A, U+3000), line/paragraph separators and
// the byte order mark.
var whitespaceRun = regexp.MustCompile(`[\s\v\p{Zs}\x{2028}\x{2029}\x{FEFF}]+`)

// NormalizeHeaders derives field names from a header row. Each present cell
// is NFC-normalized with every whitespace run replaced by "_". Absent or
// empty cells become "Column_<n>", n being the 1-based position.
// Duplicates are kept as is.
func NormalizeHeaders(cells []any) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		s, ok := query.TextOf(c)
		if !ok || s == "" {
			out[i] = "Column_" + strconv.Itoa(i+1)
			continue
		}
		out[i] = whitespaceRun.ReplaceAllString(norm.NFC.String(s), "_")
	}
	return out
}

// ProjectRow pairs fields with row cells by position. Missing or absent
// cells are stored as "". With duplicate field names the later cell wins.
func ProjectRow(fields []string, row []any) record.Record {
	rec := make(record.Record, len(fields))
	for i, f := range fields {
		var v any
		if i < len(row) {
			v = row[i]
		}
		if v == nil {
			v = ""
		}
		rec[f] = v
	}
	return rec
}
