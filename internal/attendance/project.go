package attendance

import (
	"slices"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"hall_roster/internal/config"
	"hall_roster/internal/store"
)

// Record is one person's attendance for a single date column.
type Record struct {
	Name      string
	Caregiver string
	Marks     []string
	Row       int
}

// Entry is a person as listed under a caregiver.
type Entry struct {
	Name       string   `json:"name"`
	Attendance []string `json:"attendance"`
}

// Projection groups a hall's people by caregiver. NameToRow maps each name
// to the sheet row it was read from and is only valid until the next write.
type Projection struct {
	Groups    map[string][]Entry `json:"groups"`
	NameToRow map[string]int     `json:"nameToRow"`
}

// Records extracts the people of an attendance grid read from the first
// data row. Blank names and header rows are skipped; a blank caregiver is
// filed under the layout's unassigned label. dateIndex is the zero-based
// sheet column holding the marks.
func Records(grid store.Grid, layout config.AttendanceLayout, dateIndex int) []Record {
	var records []Record
	for i := range grid {
		name := cellText(grid.Cell(i, layout.NameColumn))
		caregiver := cellText(grid.Cell(i, layout.CaregiverColumn))
		if name == "" || name == layout.NameHeader || caregiver == layout.CaregiverHeader {
			continue
		}
		if caregiver == "" {
			caregiver = layout.UnassignedLabel
		}
		records = append(records, Record{
			Name:      name,
			Caregiver: caregiver,
			Marks:     SplitMarks(grid.Cell(i, dateIndex)),
			Row:       layout.StartRow + i,
		})
	}
	return records
}

// Project builds the caregiver grouping and the name to row table from the
// same pass over the grid. When a name appears twice the later row wins in
// NameToRow.
func Project(grid store.Grid, layout config.AttendanceLayout, dateIndex int) Projection {
	p := Projection{
		Groups:    make(map[string][]Entry),
		NameToRow: make(map[string]int),
	}
	for _, r := range Records(grid, layout, dateIndex) {
		p.Groups[r.Caregiver] = append(p.Groups[r.Caregiver], Entry{Name: r.Name, Attendance: r.Marks})
		p.NameToRow[r.Name] = r.Row
	}
	return p
}

// Caregivers returns the group keys in a stable order.
func (p Projection) Caregivers() []string {
	keys := make([]string, 0, len(p.Groups))
	for k := range p.Groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SplitMarks parses a date cell. Marks are comma separated; surrounding
// space and empty items are dropped, and so are repeats. Marks are not
// normalized, so they read back exactly as written.
func SplitMarks(cell string) []string {
	marks := []string{}
	for _, part := range strings.Split(cell, ",") {
		mark := strings.TrimSpace(part)
		if mark == "" || slices.Contains(marks, mark) {
			continue
		}
		marks = append(marks, mark)
	}
	return marks
}

// JoinMarks renders marks back into a date cell.
func JoinMarks(marks []string) string {
	return strings.Join(SplitMarks(strings.Join(marks, ",")), ",")
}

// cellText trims a cell and puts it in NFC so that names typed on different
// keyboards compare equal.
func cellText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
