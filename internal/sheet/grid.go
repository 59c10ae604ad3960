// Package sheet decodes the first worksheet of a spreadsheet file into a
// rectangular grid of typed cells. Supported inputs are Office Open XML
// workbooks (.xlsx, .xlsm), legacy BIFF workbooks (.xls) and delimited text
// (.csv).
package sheet

// Grid is the occupied range of a worksheet in row-major order. Every row has
// the same width. A nil cell is absent; present cells hold a string, float64,
// bool or time.Time.
type Grid [][]any

// Width returns the number of columns in the grid.
func (g Grid) Width() int {
	if len(g) == 0 {
		return 0
	}
	return len(g[0])
}

// occupied trims rows to the bounding box of their non-empty cells and pads
// every row to the box width. Empty strings count as absent.
func occupied(rows [][]any) Grid {
	top, bottom, left, right := -1, -1, -1, -1
	for r, row := range rows {
		for c, v := range row {
			if isEmpty(v) {
				continue
			}
			if top < 0 {
				top = r
			}
			bottom = r
			if left < 0 || c < left {
				left = c
			}
			if c > right {
				right = c
			}
		}
	}
	if top < 0 {
		return nil
	}

	width := right - left + 1
	g := make(Grid, 0, bottom-top+1)
	for r := top; r <= bottom; r++ {
		out := make([]any, width)
		row := rows[r]
		for c := left; c <= right && c < len(row); c++ {
			if !isEmpty(row[c]) {
				out[c-left] = row[c]
			}
		}
		g = append(g, out)
	}
	return g
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
