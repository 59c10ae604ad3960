package sheet

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// XLSX reads the first worksheet of an Office Open XML workbook. Numeric
// cells become float64, boolean cells bool, and numeric cells carrying a date
// or time number format become time.Time.
func XLSX(path string) (Grid, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("sheet: xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	name := sheets[0]

	raw, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("sheet: xlsx: rows: %w", err)
	}

	c := &xlsxCells{f: f, sheet: name, dateStyle: map[int]bool{}}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		c.date1904 = *props.Date1904
	}

	rows := make([][]any, len(raw))
	for r, line := range raw {
		row := make([]any, len(line))
		for col, v := range line {
			if v == "" {
				continue
			}
			row[col], err = c.typed(col+1, r+1, v)
			if err != nil {
				return nil, err
			}
		}
		rows[r] = row
	}
	return occupied(rows), nil
}

type xlsxCells struct {
	f         *excelize.File
	sheet     string
	date1904  bool
	dateStyle map[int]bool
}

func (c *xlsxCells) typed(col, row int, v string) (any, error) {
	axis, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return nil, fmt.Errorf("sheet: xlsx: %w", err)
	}
	ct, err := c.f.GetCellType(c.sheet, axis)
	if err != nil {
		return nil, fmt.Errorf("sheet: xlsx: %s: %w", axis, err)
	}

	switch ct {
	case excelize.CellTypeBool:
		return v == "1" || strings.EqualFold(v, "true"), nil
	case excelize.CellTypeDate:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, nil
		}
		return v, nil
	case excelize.CellTypeUnset, excelize.CellTypeNumber:
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return v, nil
		}
		if c.isDate(axis) {
			if t, err := excelize.ExcelDateToTime(n, c.date1904); err == nil {
				return t.UTC(), nil
			}
		}
		return n, nil
	default:
		return v, nil
	}
}

func (c *xlsxCells) isDate(axis string) bool {
	idx, err := c.f.GetCellStyle(c.sheet, axis)
	if err != nil || idx == 0 {
		return false
	}
	if d, ok := c.dateStyle[idx]; ok {
		return d
	}
	d := false
	if st, err := c.f.GetStyle(idx); err == nil && st != nil {
		d = isDateFormat(st.NumFmt, st.CustomNumFmt)
	}
	c.dateStyle[idx] = d
	return d
}

// isDateFormat reports whether a number format renders a date or time. The
// built-in ids are those ECMA-376 assigns to date and time formats; a custom
// format is a date when a date or time token appears outside literals.
func isDateFormat(id int, custom *string) bool {
	if custom != nil && *custom != "" {
		return customHasDateToken(*custom)
	}
	switch {
	case id >= 14 && id <= 22, id >= 45 && id <= 47:
		return true
	case id >= 27 && id <= 36, id >= 50 && id <= 58:
		// East Asian locale date formats.
		return true
	}
	return false
}

func customHasDateToken(format string) bool {
	inQuote, inBracket := false, false
	for i := 0; i < len(format); i++ {
		ch := format[i]
		switch {
		case inQuote:
			inQuote = ch != '"'
		case inBracket:
			inBracket = ch != ']'
		case ch == '"':
			inQuote = true
		case ch == '[':
			inBracket = true
		case ch == '\\' || ch == '_' || ch == '*':
			i++
		default:
			switch ch | 0x20 {
			case 'y', 'm', 'd', 'h', 's':
				return true
			}
		}
	}
	return false
}
