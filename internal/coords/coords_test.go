package coords_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hall_roster/internal/config"
	"hall_roster/internal/coords"
	"hall_roster/internal/sheets/sheetstest"
)

func TestDateColumn(t *testing.T) {
	m := coords.NewMapper(sheetstest.Layout(t))

	tests := []struct {
		code       string
		wantOffset int
		wantIndex  int
		wantErr    bool
	}{
		{code: "G", wantOffset: 0, wantIndex: 6},
		{code: "g", wantOffset: 0, wantIndex: 6},
		{code: "J", wantOffset: 3, wantIndex: 9},
		{code: "F", wantErr: true},
		{code: "K", wantErr: true},
		{code: "", wantErr: true},
		{code: "7", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			got, err := m.DateColumn(tc.code)
			if tc.wantErr {
				assert.True(t, errors.Is(err, coords.ErrInvalidDateCode), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantOffset, got.Offset)
			assert.Equal(t, tc.wantIndex, got.Index)
		})
	}
}

func TestDateCodes(t *testing.T) {
	m := coords.NewMapper(sheetstest.Layout(t))
	assert.Equal(t, []string{"G", "H", "I", "J"}, m.DateCodes())

	code, err := m.DateCodeAt(2)
	require.NoError(t, err)
	assert.Equal(t, "I", code)

	_, err = m.DateCodeAt(4)
	assert.ErrorIs(t, err, coords.ErrInvalidDateCode)
}

func TestDefaultLayoutDateSpan(t *testing.T) {
	m := coords.NewMapper(config.DefaultLayout())
	codes := m.DateCodes()
	require.Len(t, codes, 18)
	assert.Equal(t, "G", codes[0])
	assert.Equal(t, "X", codes[17])

	grid, err := m.AttendanceGrid("hall3e")
	require.NoError(t, err)
	assert.Equal(t, "'3E'!A12:X", grid)
}

func TestRanges(t *testing.T) {
	m := coords.NewMapper(sheetstest.Layout(t))

	tests := []struct {
		name string
		fn   func() (string, error)
		want string
	}{
		{"attendance grid", func() (string, error) { return m.AttendanceGrid("A") }, "'Hall A'!A12:J"},
		{"attendance keys", func() (string, error) { return m.AttendanceKeys("A") }, "'Hall A'!A12:F"},
		{"attendance names", func() (string, error) { return m.AttendanceNames("A") }, "'Hall A'!C12:C"},
		{"attendance cell", func() (string, error) { return m.AttendanceCell("A", "H", 15) }, "'Hall A'!H15"},
		{"attendance row", func() (string, error) { return m.AttendanceRow("A", 15) }, "'Hall A'!A15"},
		{"member cell", func() (string, error) { return m.MemberCell("A", 3, 15) }, "'Hall A'!D15"},
		{"prayer names", func() (string, error) { return m.PrayerNames("g2") }, "'Prayer'!C3:C"},
		{"users", func() (string, error) { return m.Users(), nil }, "'Users'!A2:C51"},
		{"user role cell", func() (string, error) { return m.UserCell(1, 7) }, "'Users'!B7"},
		{"date ranges", func() (string, error) { return m.DateRanges(), nil }, "'Settings'!A2:A"},
		{"regions", func() (string, error) { return m.Regions("A") }, "'Settings'!B2:B"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.fn()
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPrayerSpan(t *testing.T) {
	m := coords.NewMapper(sheetstest.Layout(t))

	span, err := m.PrayerSpan("g1")
	require.NoError(t, err)
	assert.Equal(t, "'Prayer'!A3:B", span.Range)
	assert.Equal(t, 0, span.NameOffset)
	assert.Equal(t, 1, span.ItemOffset)

	name, item, err := m.PrayerCells("g2", 4)
	require.NoError(t, err)
	assert.Equal(t, "'Prayer'!C4", name)
	assert.Equal(t, "'Prayer'!D4", item)
}

func TestUnknownNamespaceBeforeAnyRange(t *testing.T) {
	m := coords.NewMapper(sheetstest.Layout(t))

	_, err := m.AttendanceGrid("Z")
	assert.ErrorIs(t, err, config.ErrUnknownNamespace)

	_, err = m.AttendanceCell("Z", "G", 12)
	assert.ErrorIs(t, err, config.ErrUnknownNamespace)

	_, err = m.Regions("Z")
	assert.ErrorIs(t, err, config.ErrUnknownNamespace)

	_, _, err = m.PrayerCells("nope", 3)
	assert.ErrorIs(t, err, config.ErrUnknownNamespace)
}

func TestRowsAboveDataAreRejected(t *testing.T) {
	m := coords.NewMapper(sheetstest.Layout(t))

	_, err := m.AttendanceCell("A", "G", 11)
	assert.ErrorIs(t, err, coords.ErrRowOutOfRange)

	_, _, err = m.PrayerCells("g1", 2)
	assert.ErrorIs(t, err, coords.ErrRowOutOfRange)

	_, err = m.UserCell(0, 1)
	assert.ErrorIs(t, err, coords.ErrRowOutOfRange)

	_, err = m.UserCell(3, 5)
	assert.Error(t, err)
}

func TestQuoteSheet(t *testing.T) {
	assert.Equal(t, "'代禱牆'", coords.QuoteSheet("代禱牆"))
	assert.Equal(t, "'It''s'", coords.QuoteSheet("It's"))
}

func TestColumnConversions(t *testing.T) {
	tests := []struct {
		index int
		name  string
	}{
		{0, "A"},
		{6, "G"},
		{25, "Z"},
		{26, "AA"},
		{701, "ZZ"},
	}
	for _, tc := range tests {
		name, err := coords.ColumnName(tc.index)
		require.NoError(t, err)
		assert.Equal(t, tc.name, name)

		index, err := coords.ColumnIndex(tc.name)
		require.NoError(t, err)
		assert.Equal(t, tc.index, index)
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		expr string
		want coords.Range
	}{
		{"'Hall A'!A12:J", coords.Range{Sheet: "Hall A", StartCol: 1, StartRow: 12, EndCol: 10}},
		{"Users!A2:C51", coords.Range{Sheet: "Users", StartCol: 1, StartRow: 2, EndCol: 3, EndRow: 51}},
		{"'3'!G15", coords.Range{Sheet: "3", StartCol: 7, StartRow: 15, EndCol: 7, EndRow: 15}},
		{"'It''s'!B3:B", coords.Range{Sheet: "It's", StartCol: 2, StartRow: 3, EndCol: 2}},
		{"'代禱牆'!A3:X", coords.Range{Sheet: "代禱牆", StartCol: 1, StartRow: 3, EndCol: 24}},
		{"'Hall A'!12:14", coords.Range{Sheet: "Hall A", StartRow: 12, EndRow: 14}},
	}

	for _, tc := range tests {
		t.Run(tc.expr, func(t *testing.T) {
			got, err := coords.ParseRange(tc.expr)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)

			again, err := coords.ParseRange(got.String())
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestParseRangeRejects(t *testing.T) {
	for _, expr := range []string{
		"A1:B2",
		"'Open!A1",
		"'Sheet'A1",
		"Sheet!",
		"Sheet!A0",
	} {
		_, err := coords.ParseRange(expr)
		assert.Error(t, err, expr)
	}
}
