package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

//go:embed layout.yaml
var defaultLayout []byte

// ErrUnknownNamespace is returned when a hall or prayer group id is not part
// of the configured layout.
var ErrUnknownNamespace = errors.New("unknown namespace")

// AttendanceLayout describes the per-hall attendance worksheets.
type AttendanceLayout struct {
	StartRow         int    `yaml:"start_row"`
	SerialColumn     int    `yaml:"serial_column"`
	RegionColumn     int    `yaml:"region_column"`
	NameColumn       int    `yaml:"name_column"`
	CaregiverColumn  int    `yaml:"caregiver_column"`
	IdentityColumn   int    `yaml:"identity_column"`
	DepartmentColumn int    `yaml:"department_column"`
	FirstDateColumn  string `yaml:"first_date_column"`
	DateColumnCount  int    `yaml:"date_column_count"`
	NameHeader       string `yaml:"name_header"`
	CaregiverHeader  string `yaml:"caregiver_header"`
	UnassignedLabel  string `yaml:"unassigned_label"`
}

// SettingsLayout describes the settings worksheet holding date ranges and
// per-hall region lists.
type SettingsLayout struct {
	Sheet           string `yaml:"sheet"`
	StartRow        int    `yaml:"start_row"`
	DateRangeColumn string `yaml:"date_range_column"`
}

// PrayerLayout describes the shared prayer worksheet.
type PrayerLayout struct {
	Sheet    string `yaml:"sheet"`
	StartRow int    `yaml:"start_row"`
}

// UserLayout describes the user/role worksheet.
type UserLayout struct {
	Sheet    string `yaml:"sheet"`
	StartRow int    `yaml:"start_row"`
	ScanRows int    `yaml:"scan_rows"`
}

type Hall struct {
	ID           string `yaml:"-"`
	Sheet        string `yaml:"sheet"`
	RegionColumn string `yaml:"region_column"`
}

type PrayerGroup struct {
	ID         string `yaml:"-"`
	Name       string `yaml:"name"`
	NameColumn int    `yaml:"name_column"`
	ItemColumn int    `yaml:"item_column"`
}

// Layout is the static namespace configuration. It is built once by
// LoadLayout or ParseLayout and only read afterwards; the maps and option
// list are reachable through accessors that hand out copies.
type Layout struct {
	Attendance AttendanceLayout
	Settings   SettingsLayout
	Prayer     PrayerLayout
	Users      UserLayout

	options      []string
	halls        map[string]Hall
	prayerGroups map[string]PrayerGroup
}

type layoutFile struct {
	Attendance struct {
		AttendanceLayout `yaml:",inline"`
		Options          []string `yaml:"options"`
	} `yaml:"attendance"`
	Halls    map[string]Hall `yaml:"halls"`
	Settings SettingsLayout  `yaml:"settings"`
	Prayer   struct {
		PrayerLayout `yaml:",inline"`
		Groups       map[string]PrayerGroup `yaml:"groups"`
	} `yaml:"prayer"`
	Users UserLayout `yaml:"users"`
}

// LoadLayout reads the layout from path, or the embedded default when path
// is empty.
func LoadLayout(path string) (*Layout, error) {
	if path == "" {
		log.Debug().Msg("Using embedded spreadsheet layout")
		return ParseLayout(defaultLayout)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read layout file: %w", err)
	}
	log.Debug().Str("path", path).Msg("Loaded spreadsheet layout file")
	return ParseLayout(data)
}

// DefaultLayout returns the embedded layout. It panics if the embedded file
// is broken, which only a bad build can cause.
func DefaultLayout() *Layout {
	layout, err := ParseLayout(defaultLayout)
	if err != nil {
		panic(fmt.Sprintf("embedded layout is invalid: %v", err))
	}
	return layout
}

// ParseLayout decodes and validates a YAML layout. Unknown keys are rejected.
func ParseLayout(data []byte) (*Layout, error) {
	var file layoutFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse layout YAML: %w", err)
	}

	layout := &Layout{
		Attendance:   file.Attendance.AttendanceLayout,
		Settings:     file.Settings,
		Prayer:       file.Prayer.PrayerLayout,
		Users:        file.Users,
		options:      slices.Clone(file.Attendance.Options),
		halls:        make(map[string]Hall, len(file.Halls)),
		prayerGroups: make(map[string]PrayerGroup, len(file.Prayer.Groups)),
	}
	for id, hall := range file.Halls {
		hall.ID = id
		layout.halls[id] = hall
	}
	for id, group := range file.Prayer.Groups {
		group.ID = id
		layout.prayerGroups[id] = group
	}

	if err := layout.validate(); err != nil {
		return nil, fmt.Errorf("invalid layout: %w", err)
	}
	return layout, nil
}

func (l *Layout) validate() error {
	a := l.Attendance
	if a.StartRow < 1 {
		return fmt.Errorf("attendance.start_row must be at least 1, got %d", a.StartRow)
	}
	memberColumns := []int{a.SerialColumn, a.RegionColumn, a.NameColumn, a.CaregiverColumn, a.IdentityColumn, a.DepartmentColumn}
	if !distinctColumns(memberColumns...) {
		return fmt.Errorf("attendance member columns must be distinct and within A..%s", lastColumnName)
	}
	firstDate, err := excelize.ColumnNameToNumber(a.FirstDateColumn)
	if err != nil {
		return fmt.Errorf("attendance.first_date_column: %w", err)
	}
	if a.DateColumnCount < 1 || firstDate+a.DateColumnCount-1 > excelize.MaxColumns {
		return fmt.Errorf("attendance.date_column_count out of range, got %d", a.DateColumnCount)
	}
	if slices.Max(memberColumns) >= firstDate-1 {
		return fmt.Errorf("attendance member columns must sit before first_date_column %s", a.FirstDateColumn)
	}
	if a.NameHeader == "" || a.CaregiverHeader == "" {
		return fmt.Errorf("attendance header literals must be set")
	}
	if a.UnassignedLabel == "" {
		return fmt.Errorf("attendance.unassigned_label must be set")
	}

	if len(l.halls) == 0 {
		return fmt.Errorf("at least one hall must be configured")
	}
	for id, hall := range l.halls {
		if hall.Sheet == "" {
			return fmt.Errorf("hall %q has no sheet", id)
		}
		if _, err := excelize.ColumnNameToNumber(hall.RegionColumn); err != nil {
			return fmt.Errorf("hall %q region_column: %w", id, err)
		}
	}

	if l.Settings.Sheet == "" || l.Settings.StartRow < 1 {
		return fmt.Errorf("settings sheet and start_row must be set")
	}
	if _, err := excelize.ColumnNameToNumber(l.Settings.DateRangeColumn); err != nil {
		return fmt.Errorf("settings.date_range_column: %w", err)
	}

	if l.Prayer.Sheet == "" || l.Prayer.StartRow < 1 {
		return fmt.Errorf("prayer sheet and start_row must be set")
	}
	for id, group := range l.prayerGroups {
		if !distinctColumns(group.NameColumn, group.ItemColumn) {
			return fmt.Errorf("prayer group %q needs two distinct non-negative columns", id)
		}
	}

	if l.Users.Sheet == "" || l.Users.StartRow < 1 || l.Users.ScanRows < 1 {
		return fmt.Errorf("users sheet, start_row and scan_rows must be set")
	}
	return nil
}

const lastColumnName = "XFD"

// distinctColumns reports whether the zero-based column indexes are unique
// and addressable.
func distinctColumns(columns ...int) bool {
	seen := make(map[int]bool, len(columns))
	for _, c := range columns {
		if c < 0 || c >= excelize.MaxColumns || seen[c] {
			return false
		}
		seen[c] = true
	}
	return true
}

// Options returns the attendance options in configured order.
func (l *Layout) Options() []string {
	return slices.Clone(l.options)
}

// Hall looks up a hall by id.
func (l *Layout) Hall(id string) (Hall, error) {
	hall, ok := l.halls[id]
	if !ok {
		return Hall{}, fmt.Errorf("%w: hall %q", ErrUnknownNamespace, id)
	}
	return hall, nil
}

// HallIDs returns the configured hall ids, sorted.
func (l *Layout) HallIDs() []string {
	ids := make([]string, 0, len(l.halls))
	for id := range l.halls {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PrayerGroup looks up a prayer group by id.
func (l *Layout) PrayerGroup(id string) (PrayerGroup, error) {
	group, ok := l.prayerGroups[id]
	if !ok {
		return PrayerGroup{}, fmt.Errorf("%w: prayer group %q", ErrUnknownNamespace, id)
	}
	return group, nil
}

// PrayerGroupIDs returns the configured prayer group ids ordered by name column.
func (l *Layout) PrayerGroupIDs() []string {
	ids := make([]string, 0, len(l.prayerGroups))
	for id := range l.prayerGroups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return l.prayerGroups[ids[i]].NameColumn < l.prayerGroups[ids[j]].NameColumn
	})
	return ids
}
