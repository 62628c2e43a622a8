// Package attendance reads and writes the per-hall attendance worksheets.
package attendance

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"hall_roster/internal/coords"
	"hall_roster/internal/store"
)

var validate = validator.New()

// Member is the identifying part of an attendance row.
type Member struct {
	Region     string `json:"region" validate:"required"`
	Name       string `json:"name" validate:"required"`
	Caregiver  string `json:"caregiver" validate:"required"`
	Identity   string `json:"identity" validate:"required"`
	Department string `json:"department"`
}

func (m Member) normalized() Member {
	return Member{
		Region:     cellText(m.Region),
		Name:       cellText(m.Name),
		Caregiver:  cellText(m.Caregiver),
		Identity:   cellText(m.Identity),
		Department: cellText(m.Department),
	}
}

// Stats summarizes one date column of a hall. Counts holds every configured
// option, zero when unused, plus any other mark found in the sheet.
type Stats struct {
	Total   int            `json:"total"`
	Counts  map[string]int `json:"counts"`
	Options []string       `json:"options"`
}

type Service struct {
	store  *store.Store
	mapper *coords.Mapper
}

func NewService(s *store.Store, m *coords.Mapper) *Service {
	return &Service{store: s, mapper: m}
}

// Fetch reads a hall and projects it for the given date code.
func (s *Service) Fetch(ctx context.Context, hallID, code string) (Projection, error) {
	grid, date, err := s.readGrid(ctx, hallID, code)
	if err != nil {
		return Projection{}, err
	}
	p := Project(grid, s.mapper.Layout().Attendance, date.Index)

	log.Debug().
		Str("hall", hallID).
		Str("date", date.Code).
		Int("caregivers", len(p.Groups)).
		Int("people", len(p.NameToRow)).
		Msg("Fetched attendance")
	return p, nil
}

// SaveMarks writes the marks of every listed person in one batch. Rows come
// from nameToRow as captured by an earlier Fetch; names missing from it are
// skipped.
func (s *Service) SaveMarks(ctx context.Context, hallID, code string, groups map[string][]Entry, nameToRow map[string]int) error {
	if _, err := s.mapper.HallSheet(hallID); err != nil {
		return err
	}
	if _, err := s.mapper.DateColumn(code); err != nil {
		return err
	}

	caregivers := make([]string, 0, len(groups))
	for caregiver := range groups {
		caregivers = append(caregivers, caregiver)
	}
	slices.Sort(caregivers)

	var entries []store.Entry
	for _, caregiver := range caregivers {
		for _, person := range groups[caregiver] {
			row, ok := nameToRow[person.Name]
			if !ok {
				log.Warn().
					Str("hall", hallID).
					Str("name", person.Name).
					Msg("No row known for person, skipping marks")
				continue
			}
			cell, err := s.mapper.AttendanceCell(hallID, code, row)
			if err != nil {
				return err
			}
			entries = append(entries, store.Entry{
				Range:  cell,
				Values: store.Grid{{JoinMarks(person.Attendance)}},
			})
		}
	}

	if err := s.store.BatchWrite(ctx, entries); err != nil {
		return err
	}
	log.Info().
		Str("hall", hallID).
		Str("date", code).
		Int("cells", len(entries)).
		Msg("Saved attendance marks")
	return nil
}

// SetMarks replaces one person's marks for a date code, locating the row
// from a fresh read.
func (s *Service) SetMarks(ctx context.Context, hallID, code, name string, marks []string) error {
	p, err := s.Fetch(ctx, hallID, code)
	if err != nil {
		return err
	}
	name = cellText(name)
	if _, ok := p.NameToRow[name]; !ok {
		return fmt.Errorf("%w: %q in hall %s", store.ErrRecordNotFound, name, hallID)
	}
	groups := map[string][]Entry{"": {{Name: name, Attendance: marks}}}
	return s.SaveMarks(ctx, hallID, code, groups, p.NameToRow)
}

// Append adds a member one row below the last populated name.
func (s *Service) Append(ctx context.Context, hallID string, m Member) (int, error) {
	m = m.normalized()
	if err := validate.Struct(m); err != nil {
		return 0, err
	}
	namesRange, err := s.mapper.AttendanceNames(hallID)
	if err != nil {
		return 0, err
	}

	names, err := s.store.ReadRange(ctx, namesRange)
	if err != nil {
		return 0, err
	}
	layout := s.mapper.Layout().Attendance
	row := layout.StartRow + len(names)

	anchor, err := s.mapper.AttendanceRow(hallID, row)
	if err != nil {
		return 0, err
	}
	if err := s.store.WriteRange(ctx, anchor, store.Grid{s.memberRow(m)}); err != nil {
		return 0, err
	}

	log.Info().Str("hall", hallID).Str("name", m.Name).Int("row", row).Msg("Added member")
	return row, nil
}

// Update rewrites the member columns of the row matching name and
// caregiver. The serial column keeps its formula.
func (s *Service) Update(ctx context.Context, hallID, name, caregiver string, m Member) error {
	m = m.normalized()
	if err := validate.Struct(m); err != nil {
		return err
	}
	row, err := s.findRow(ctx, hallID, name, caregiver)
	if err != nil {
		return err
	}

	layout := s.mapper.Layout().Attendance
	fields := []struct {
		col   int
		value string
	}{
		{layout.RegionColumn, m.Region},
		{layout.NameColumn, m.Name},
		{layout.CaregiverColumn, m.Caregiver},
		{layout.IdentityColumn, m.Identity},
		{layout.DepartmentColumn, m.Department},
	}
	entries := make([]store.Entry, 0, len(fields))
	for _, f := range fields {
		cell, err := s.mapper.MemberCell(hallID, f.col, row)
		if err != nil {
			return err
		}
		entries = append(entries, store.Entry{Range: cell, Values: store.Grid{{f.value}}})
	}
	if err := s.store.BatchWrite(ctx, entries); err != nil {
		return err
	}

	log.Info().Str("hall", hallID).Str("name", m.Name).Int("row", row).Msg("Updated member")
	return nil
}

// Delete physically removes the row matching name and caregiver. Every row
// below it moves up by one.
func (s *Service) Delete(ctx context.Context, hallID, name, caregiver string) error {
	sheet, err := s.mapper.HallSheet(hallID)
	if err != nil {
		return err
	}
	row, err := s.findRow(ctx, hallID, name, caregiver)
	if err != nil {
		return err
	}
	if err := s.store.DeleteRows(ctx, sheet, int64(row-1), int64(row)); err != nil {
		return err
	}

	log.Info().Str("hall", hallID).Str("name", name).Int("row", row).Msg("Deleted member")
	return nil
}

// Stats counts marks in one date column. Only rows with a real name count
// toward the total.
func (s *Service) Stats(ctx context.Context, hallID, code string) (Stats, error) {
	grid, date, err := s.readGrid(ctx, hallID, code)
	if err != nil {
		return Stats{}, err
	}

	options := s.mapper.Layout().Options()
	stats := Stats{Counts: make(map[string]int, len(options)), Options: options}
	for _, option := range options {
		stats.Counts[option] = 0
	}
	for _, r := range Records(grid, s.mapper.Layout().Attendance, date.Index) {
		stats.Total++
		for _, mark := range r.Marks {
			stats.Counts[mark]++
		}
	}
	return stats, nil
}

func (s *Service) readGrid(ctx context.Context, hallID, code string) (store.Grid, coords.DateColumn, error) {
	rng, err := s.mapper.AttendanceGrid(hallID)
	if err != nil {
		return nil, coords.DateColumn{}, err
	}
	date, err := s.mapper.DateColumn(code)
	if err != nil {
		return nil, coords.DateColumn{}, err
	}
	grid, err := s.store.ReadRange(ctx, rng)
	if err != nil {
		return nil, coords.DateColumn{}, err
	}
	return grid, date, nil
}

// findRow locates a member by name and caregiver from a fresh read of the
// member columns. An empty caregiver matches the unassigned group.
func (s *Service) findRow(ctx context.Context, hallID, name, caregiver string) (int, error) {
	rng, err := s.mapper.AttendanceKeys(hallID)
	if err != nil {
		return 0, err
	}
	grid, err := s.store.ReadRange(ctx, rng)
	if err != nil {
		return 0, err
	}

	layout := s.mapper.Layout().Attendance
	name = cellText(name)
	caregiver = cellText(caregiver)
	if caregiver == "" {
		caregiver = layout.UnassignedLabel
	}
	// marks are not needed here
	for _, r := range Records(grid, layout, -1) {
		if r.Name == name && r.Caregiver == caregiver {
			return r.Row, nil
		}
	}
	return 0, fmt.Errorf("%w: %q under %q in hall %s", store.ErrRecordNotFound, name, caregiver, hallID)
}

func (s *Service) memberRow(m Member) []string {
	layout := s.mapper.Layout().Attendance
	width := slices.Max([]int{
		layout.SerialColumn, layout.RegionColumn, layout.NameColumn,
		layout.CaregiverColumn, layout.IdentityColumn, layout.DepartmentColumn,
	}) + 1

	row := make([]string, width)
	row[layout.SerialColumn] = fmt.Sprintf("=ROW()-%d", layout.StartRow)
	row[layout.RegionColumn] = m.Region
	row[layout.NameColumn] = m.Name
	row[layout.CaregiverColumn] = m.Caregiver
	row[layout.IdentityColumn] = m.Identity
	row[layout.DepartmentColumn] = strings.TrimSpace(m.Department)
	return row
}
