package coords

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Range is a parsed A1 range. Columns and rows are 1-based; zero marks an
// open end (e.g. the missing row in "C12:C").
type Range struct {
	Sheet    string
	StartCol int
	StartRow int
	EndCol   int
	EndRow   int
}

// QuoteSheet wraps a sheet title in single quotes, doubling any embedded quote.
func QuoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// ColumnName converts a zero-based column index into its letter form (0 -> A).
func ColumnName(index int) (string, error) {
	return excelize.ColumnNumberToName(index + 1)
}

// ColumnIndex converts a column letter into its zero-based index (A -> 0).
func ColumnIndex(name string) (int, error) {
	n, err := excelize.ColumnNameToNumber(name)
	if err != nil {
		return 0, err
	}
	return n - 1, nil
}

// ParseRange parses expressions like 'Sheet'!A12:R, Sheet!G15 or 'It''s'!A3:B.
func ParseRange(expr string) (Range, error) {
	var r Range

	sheet, cells, err := splitSheet(expr)
	if err != nil {
		return r, err
	}
	r.Sheet = sheet

	start, end, hasEnd := strings.Cut(cells, ":")
	if r.StartCol, r.StartRow, err = parseCell(start); err != nil {
		return r, fmt.Errorf("invalid range %q: %w", expr, err)
	}
	if !hasEnd {
		r.EndCol, r.EndRow = r.StartCol, r.StartRow
		return r, nil
	}
	if r.EndCol, r.EndRow, err = parseCell(end); err != nil {
		return r, fmt.Errorf("invalid range %q: %w", expr, err)
	}
	return r, nil
}

// String renders the range back into A1 notation with a quoted sheet.
func (r Range) String() string {
	var sb strings.Builder
	sb.WriteString(QuoteSheet(r.Sheet))
	sb.WriteString("!")
	sb.WriteString(cellName(r.StartCol, r.StartRow))
	if r.EndCol != r.StartCol || r.EndRow != r.StartRow {
		sb.WriteString(":")
		sb.WriteString(cellName(r.EndCol, r.EndRow))
	}
	return sb.String()
}

func splitSheet(expr string) (string, string, error) {
	if !strings.HasPrefix(expr, "'") {
		sheet, cells, ok := strings.Cut(expr, "!")
		if !ok {
			return "", "", fmt.Errorf("range %q has no sheet", expr)
		}
		return sheet, cells, nil
	}

	var sb strings.Builder
	for i := 1; i < len(expr); i++ {
		if expr[i] != '\'' {
			sb.WriteByte(expr[i])
			continue
		}
		if i+1 < len(expr) && expr[i+1] == '\'' {
			sb.WriteByte('\'')
			i++
			continue
		}
		rest := expr[i+1:]
		if !strings.HasPrefix(rest, "!") {
			return "", "", fmt.Errorf("range %q: expected ! after sheet name", expr)
		}
		return sb.String(), rest[1:], nil
	}
	return "", "", fmt.Errorf("range %q: unterminated sheet name", expr)
}

func parseCell(cell string) (col, row int, err error) {
	split := strings.IndexFunc(cell, func(r rune) bool { return r >= '0' && r <= '9' })
	letters, digits := cell, ""
	if split >= 0 {
		letters, digits = cell[:split], cell[split:]
	}
	if letters == "" && digits == "" {
		return 0, 0, fmt.Errorf("empty cell reference")
	}
	if letters != "" {
		if col, err = excelize.ColumnNameToNumber(letters); err != nil {
			return 0, 0, err
		}
	}
	if digits != "" {
		if row, err = strconv.Atoi(digits); err != nil || row < 1 {
			return 0, 0, fmt.Errorf("invalid row %q", digits)
		}
	}
	return col, row, nil
}

func cellName(col, row int) string {
	var sb strings.Builder
	if col > 0 {
		name, _ := excelize.ColumnNumberToName(col)
		sb.WriteString(name)
	}
	if row > 0 {
		sb.WriteString(strconv.Itoa(row))
	}
	return sb.String()
}
