// Package export writes attendance snapshots to .xlsx workbooks for people
// who want a copy outside the shared spreadsheet.
package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"hall_roster/internal/attendance"
)

const (
	attendanceSheet = "Attendance"
	statsSheet      = "Stats"
)

// Snapshot is what gets exported for one hall and date code.
type Snapshot struct {
	Hall       string
	DateCode   string
	DateLabel  string
	Projection attendance.Projection
	Stats      attendance.Stats
}

// Attendance writes the snapshot to path. The first sheet lists one person
// per row ordered by caregiver then row; the second holds the counts.
func Attendance(snap Snapshot, path string) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close workbook")
		}
	}()

	if err := f.SetSheetName("Sheet1", attendanceSheet); err != nil {
		return fmt.Errorf("failed to name attendance sheet: %w", err)
	}
	title := fmt.Sprintf("%s %s %s", snap.Hall, snap.DateCode, snap.DateLabel)
	if err := setRow(f, attendanceSheet, 1, strings.TrimSpace(title)); err != nil {
		return err
	}
	if err := setRow(f, attendanceSheet, 2, "Caregiver", "Name", "Row", "Attendance"); err != nil {
		return err
	}

	row := 3
	for _, person := range people(snap.Projection) {
		values := []interface{}{person.caregiver, person.name, person.row}
		if len(person.marks) > 0 {
			values = append(values, strings.Join(person.marks, ", "))
		}
		if err := setRow(f, attendanceSheet, row, values...); err != nil {
			return err
		}
		row++
	}

	if _, err := f.NewSheet(statsSheet); err != nil {
		return fmt.Errorf("failed to add stats sheet: %w", err)
	}
	if err := setRow(f, statsSheet, 1, "Total", snap.Stats.Total); err != nil {
		return err
	}
	row = 2
	for _, option := range statsOrder(snap.Stats) {
		if err := setRow(f, statsSheet, row, option, snap.Stats.Counts[option]); err != nil {
			return err
		}
		row++
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}

	log.Info().
		Str("path", path).
		Str("hall", snap.Hall).
		Int("people", len(snap.Projection.NameToRow)).
		Msg("Exported attendance")
	return nil
}

type person struct {
	caregiver string
	name      string
	row       int
	marks     []string
}

func people(p attendance.Projection) []person {
	var out []person
	for _, caregiver := range p.Caregivers() {
		for _, e := range p.Groups[caregiver] {
			out = append(out, person{caregiver: caregiver, name: e.Name, row: p.NameToRow[e.Name], marks: e.Attendance})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].caregiver != out[j].caregiver {
			return out[i].caregiver < out[j].caregiver
		}
		return out[i].row < out[j].row
	})
	return out
}

// statsOrder lists configured options first, then any other marks found.
func statsOrder(s attendance.Stats) []string {
	order := append([]string(nil), s.Options...)
	var extra []string
	for mark := range s.Counts {
		known := false
		for _, option := range s.Options {
			if option == mark {
				known = true
				break
			}
		}
		if !known {
			extra = append(extra, mark)
		}
	}
	sort.Strings(extra)
	return append(order, extra...)
}

func setRow(f *excelize.File, sheet string, row int, values ...interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s!%s: %w", sheet, cell, err)
	}
	return nil
}
