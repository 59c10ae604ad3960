package sheet

import (
	"fmt"
	"os"

	"github.com/extrame/xls"
)

// XLS reads the first worksheet of a legacy BIFF workbook. The format carries
// no reliable cell typing through the reader, so values are inferred the same
// way as CSV cells.
func XLS(path string) (g Grid, err error) {
	// The BIFF reader panics on some truncated files.
	defer func() {
		if r := recover(); r != nil {
			g, err = nil, fmt.Errorf("sheet: xls: malformed workbook: %v", r)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sheet: open: %w", err)
	}
	defer f.Close()

	wb, err := xls.OpenReader(f, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("sheet: xls: %w", err)
	}
	ws := wb.GetSheet(0)
	if ws == nil {
		return nil, nil
	}

	rows := make([][]any, 0, int(ws.MaxRow)+1)
	for i := 0; i <= int(ws.MaxRow); i++ {
		r := ws.Row(i)
		if r == nil {
			rows = append(rows, nil)
			continue
		}
		last := r.LastCol()
		row := make([]any, last)
		for j := r.FirstCol(); j < last; j++ {
			row[j] = inferScalar(r.Col(j))
		}
		rows = append(rows, row)
	}
	return occupied(rows), nil
}
