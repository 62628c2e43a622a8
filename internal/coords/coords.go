// Package coords turns logical spreadsheet addresses (hall, prayer group,
// date code, row) into A1 range expressions. Everything here is pure: no
// I/O, and every lookup is validated against the layout before a range is
// produced.
package coords

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"hall_roster/internal/config"
)

var (
	// ErrInvalidDateCode is returned for a date code outside the configured
	// attendance date columns.
	ErrInvalidDateCode = errors.New("invalid date code")
	// ErrRowOutOfRange is returned for a row above a sheet's first data row.
	ErrRowOutOfRange = errors.New("row out of range")
)

// DateColumn is a resolved date code.
type DateColumn struct {
	Code   string
	Offset int // position within the date columns, 0 for the first one
	Index  int // zero-based sheet column index
}

// PrayerSpan is the readable range covering a prayer group's column pair,
// with the positions of the name and item columns inside each returned row.
type PrayerSpan struct {
	Range      string
	NameOffset int
	ItemOffset int
}

type Mapper struct {
	layout    *config.Layout
	firstDate int
}

func NewMapper(layout *config.Layout) *Mapper {
	// The layout has already validated the column name.
	firstDate, _ := ColumnIndex(layout.Attendance.FirstDateColumn)
	return &Mapper{layout: layout, firstDate: firstDate}
}

// Layout returns the layout the mapper was built from.
func (m *Mapper) Layout() *config.Layout {
	return m.layout
}

// DateColumn resolves a date code such as "G" into its column.
func (m *Mapper) DateColumn(code string) (DateColumn, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	index, err := ColumnIndex(code)
	if err != nil {
		return DateColumn{}, fmt.Errorf("%w: %q", ErrInvalidDateCode, code)
	}
	offset := index - m.firstDate
	if offset < 0 || offset >= m.layout.Attendance.DateColumnCount {
		return DateColumn{}, fmt.Errorf("%w: %q", ErrInvalidDateCode, code)
	}
	return DateColumn{Code: code, Offset: offset, Index: index}, nil
}

// DateCodes lists every valid date code in column order.
func (m *Mapper) DateCodes() []string {
	codes := make([]string, 0, m.layout.Attendance.DateColumnCount)
	for i := 0; i < m.layout.Attendance.DateColumnCount; i++ {
		codes = append(codes, column(m.firstDate+i))
	}
	return codes
}

// DateCodeAt returns the code of the n-th date column.
func (m *Mapper) DateCodeAt(offset int) (string, error) {
	if offset < 0 || offset >= m.layout.Attendance.DateColumnCount {
		return "", fmt.Errorf("%w: offset %d", ErrInvalidDateCode, offset)
	}
	return column(m.firstDate + offset), nil
}

// AttendanceGrid covers every column of a hall's attendance rows, from the
// first data row down.
func (m *Mapper) AttendanceGrid(hallID string) (string, error) {
	hall, err := m.layout.Hall(hallID)
	if err != nil {
		return "", err
	}
	last := m.firstDate + m.layout.Attendance.DateColumnCount - 1
	return span(hall.Sheet, 0, last, m.layout.Attendance.StartRow, 0), nil
}

// AttendanceKeys covers the member columns only, enough to locate a row by
// name and caregiver.
func (m *Mapper) AttendanceKeys(hallID string) (string, error) {
	hall, err := m.layout.Hall(hallID)
	if err != nil {
		return "", err
	}
	a := m.layout.Attendance
	last := slices.Max([]int{a.SerialColumn, a.RegionColumn, a.NameColumn, a.CaregiverColumn, a.IdentityColumn, a.DepartmentColumn})
	return span(hall.Sheet, 0, last, a.StartRow, 0), nil
}

// AttendanceNames covers the name column of a hall.
func (m *Mapper) AttendanceNames(hallID string) (string, error) {
	hall, err := m.layout.Hall(hallID)
	if err != nil {
		return "", err
	}
	name := m.layout.Attendance.NameColumn
	return span(hall.Sheet, name, name, m.layout.Attendance.StartRow, 0), nil
}

// AttendanceCell addresses one person's mark cell for a date code.
func (m *Mapper) AttendanceCell(hallID, code string, row int) (string, error) {
	hall, err := m.layout.Hall(hallID)
	if err != nil {
		return "", err
	}
	date, err := m.DateColumn(code)
	if err != nil {
		return "", err
	}
	if err := m.checkRow(row, m.layout.Attendance.StartRow); err != nil {
		return "", err
	}
	return cell(hall.Sheet, date.Index, row), nil
}

// MemberCell addresses one member column (serial, region, name, ...) of an
// attendance row. col is zero-based and must sit before the date columns.
func (m *Mapper) MemberCell(hallID string, col, row int) (string, error) {
	hall, err := m.layout.Hall(hallID)
	if err != nil {
		return "", err
	}
	if col < 0 || col >= m.firstDate {
		return "", fmt.Errorf("member column %d out of range", col)
	}
	if err := m.checkRow(row, m.layout.Attendance.StartRow); err != nil {
		return "", err
	}
	return cell(hall.Sheet, col, row), nil
}

// AttendanceRow anchors a member record write at column A of row.
func (m *Mapper) AttendanceRow(hallID string, row int) (string, error) {
	hall, err := m.layout.Hall(hallID)
	if err != nil {
		return "", err
	}
	if err := m.checkRow(row, m.layout.Attendance.StartRow); err != nil {
		return "", err
	}
	return cell(hall.Sheet, 0, row), nil
}

// HallSheet returns the worksheet title of a hall.
func (m *Mapper) HallSheet(hallID string) (string, error) {
	hall, err := m.layout.Hall(hallID)
	if err != nil {
		return "", err
	}
	return hall.Sheet, nil
}

// PrayerSpan covers a prayer group's column pair from the first data row.
func (m *Mapper) PrayerSpan(groupID string) (PrayerSpan, error) {
	group, err := m.layout.PrayerGroup(groupID)
	if err != nil {
		return PrayerSpan{}, err
	}
	lo := min(group.NameColumn, group.ItemColumn)
	hi := max(group.NameColumn, group.ItemColumn)
	return PrayerSpan{
		Range:      span(m.layout.Prayer.Sheet, lo, hi, m.layout.Prayer.StartRow, 0),
		NameOffset: group.NameColumn - lo,
		ItemOffset: group.ItemColumn - lo,
	}, nil
}

// PrayerNames covers a prayer group's name column.
func (m *Mapper) PrayerNames(groupID string) (string, error) {
	group, err := m.layout.PrayerGroup(groupID)
	if err != nil {
		return "", err
	}
	return span(m.layout.Prayer.Sheet, group.NameColumn, group.NameColumn, m.layout.Prayer.StartRow, 0), nil
}

// PrayerCells addresses the name and item cells of one prayer row.
func (m *Mapper) PrayerCells(groupID string, row int) (nameCell, itemCell string, err error) {
	group, err := m.layout.PrayerGroup(groupID)
	if err != nil {
		return "", "", err
	}
	if err := m.checkRow(row, m.layout.Prayer.StartRow); err != nil {
		return "", "", err
	}
	sheet := m.layout.Prayer.Sheet
	return cell(sheet, group.NameColumn, row), cell(sheet, group.ItemColumn, row), nil
}

// Users covers the id, role and display name columns of the first
// ScanRows user rows.
func (m *Mapper) Users() string {
	u := m.layout.Users
	return span(u.Sheet, 0, 2, u.StartRow, u.StartRow+u.ScanRows-1)
}

// UserCell addresses one cell of a user row; column is zero-based (0 id,
// 1 role, 2 display name).
func (m *Mapper) UserCell(col, row int) (string, error) {
	if col < 0 || col > 2 {
		return "", fmt.Errorf("user column %d out of range", col)
	}
	if err := m.checkRow(row, m.layout.Users.StartRow); err != nil {
		return "", err
	}
	return cell(m.layout.Users.Sheet, col, row), nil
}

// DateRanges covers the date range labels on the settings sheet.
func (m *Mapper) DateRanges() string {
	s := m.layout.Settings
	col := letterIndex(s.DateRangeColumn)
	return span(s.Sheet, col, col, s.StartRow, 0)
}

// Regions covers a hall's region list on the settings sheet.
func (m *Mapper) Regions(hallID string) (string, error) {
	hall, err := m.layout.Hall(hallID)
	if err != nil {
		return "", err
	}
	s := m.layout.Settings
	col := letterIndex(hall.RegionColumn)
	return span(s.Sheet, col, col, s.StartRow, 0), nil
}

func (m *Mapper) checkRow(row, start int) error {
	if row < start {
		return fmt.Errorf("%w: row %d is above first data row %d", ErrRowOutOfRange, row, start)
	}
	return nil
}

// cell addresses a single cell; col is zero-based.
func cell(sheet string, col, row int) string {
	return Range{Sheet: sheet, StartCol: col + 1, StartRow: row, EndCol: col + 1, EndRow: row}.String()
}

// span covers columns from..to (zero-based) from startRow down to endRow,
// or to the bottom of the sheet when endRow is 0.
func span(sheet string, from, to, startRow, endRow int) string {
	return Range{Sheet: sheet, StartCol: from + 1, StartRow: startRow, EndCol: to + 1, EndRow: endRow}.String()
}

// letterIndex converts a column letter that the layout has already validated.
func letterIndex(name string) int {
	index, _ := ColumnIndex(strings.ToUpper(name))
	return index
}

// column renders a zero-based index that the layout has already bounded.
func column(index int) string {
	name, _ := ColumnName(index)
	return name
}
