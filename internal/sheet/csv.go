package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CSV reads a comma-separated file as a single worksheet. A UTF-8 or UTF-16
// byte order mark selects the encoding; without one the input is UTF-8.
// Rows may have different widths.
func CSV(path string) (Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sheet: open: %w", err)
	}
	defer f.Close()
	return readCSV(f)
}

func readCSV(r io.Reader) (Grid, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	cr := csv.NewReader(transform.NewReader(r, dec))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false

	var rows [][]any
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("sheet: csv: %w", err)
		}
		row := make([]any, len(rec))
		for i, s := range rec {
			row[i] = inferScalar(s)
		}
		rows = append(rows, row)
	}
	return occupied(rows), nil
}
