package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hall_roster/internal/cache"
	"hall_roster/internal/config"
	"hall_roster/internal/coords"
	"hall_roster/internal/retry"
	"hall_roster/internal/sheets/sheetstest"
	"hall_roster/internal/store"
)

const dateG = 6

func newTestService(t *testing.T) (*Service, *sheetstest.Backend) {
	t.Helper()
	fast := retry.Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	backend := sheetstest.NewBackend("Hall A")
	st := store.New(backend, cache.New[store.Grid](time.Minute), config.ResilienceConfig{
		SheetRead:  fast,
		SheetWrite: fast,
	})
	return NewService(st, coords.NewMapper(sheetstest.Layout(t))), backend
}

func seedHall(backend *sheetstest.Backend) {
	backend.Seed("Hall A", 12, [][]string{
		{"", "Region", "Name", "Caregiver", "Identity", "Department", "Date"},
		{"1", "R1", "Alice", "Bob", "id1", "d1", "opt1,opt2"},
		{"2", "R1", "Carol", "Bob", "id2", "d1", "opt1"},
		{"3", "R2", "Dan", "", "id3", "d2"},
	})
}

func TestProjectExample(t *testing.T) {
	layout := sheetstest.Layout(t).Attendance
	grid := store.Grid{{"", "R1", "Alice", "Bob", "id", "dept", "x,y"}}

	p := Project(grid, layout, dateG)

	assert.Equal(t, map[string][]Entry{
		"Bob": {{Name: "Alice", Attendance: []string{"x", "y"}}},
	}, p.Groups)
	assert.Equal(t, map[string]int{"Alice": 12}, p.NameToRow)
}

func TestProjectSkipsHeaderAndBlankRows(t *testing.T) {
	layout := sheetstest.Layout(t).Attendance
	grid := store.Grid{
		{"", "", "Name", "Caregiver"},
		{"", "R1", "", "Bob", "", "", "opt1"},
		{},
		{"", "R1", " Carol ", "", "", "", "opt1"},
		{"", "R1", "Dan", "Bob", "", "", " opt1 , ,opt1,opt2"},
		{"", "R1", "Eve", "Caregiver"},
	}

	p := Project(grid, layout, dateG)

	assert.Equal(t, map[string][]Entry{
		"unassigned": {{Name: "Carol", Attendance: []string{"opt1"}}},
		"Bob":        {{Name: "Dan", Attendance: []string{"opt1", "opt2"}}},
	}, p.Groups)
	assert.Equal(t, map[string]int{"Carol": 15, "Dan": 16}, p.NameToRow)
	for _, entries := range p.Groups {
		for _, e := range entries {
			assert.NotEqual(t, "Name", e.Name)
			assert.NotEmpty(t, e.Name)
		}
	}
}

func TestProjectRowIndexStability(t *testing.T) {
	layout := sheetstest.Layout(t).Attendance
	grid := store.Grid{
		{"", "", "Name", "Caregiver"},
		{"1", "R1", "Alice", "Bob", "", "", "opt1"},
		{},
		{"2", "R1", "Carol", "Dana", "", "", "opt2"},
		{"3", "R2", "Erin", "", "", "", ""},
	}

	p := Project(grid, layout, dateG)
	records := Records(grid, layout, dateG)

	require.Len(t, p.NameToRow, len(records))
	for _, r := range records {
		assert.Equal(t, r.Row, p.NameToRow[r.Name], r.Name)
		assert.Contains(t, p.Groups[r.Caregiver], Entry{Name: r.Name, Attendance: r.Marks})
	}
}

func TestProjectNormalizesNames(t *testing.T) {
	layout := sheetstest.Layout(t).Attendance
	grid := store.Grid{{"", "R1", "Rene\u0301", "Bob"}}

	p := Project(grid, layout, dateG)

	assert.Contains(t, p.NameToRow, "Ren\u00e9")
}

func TestSplitAndJoinMarks(t *testing.T) {
	tests := []struct {
		cell string
		want []string
	}{
		{"", []string{}},
		{"x", []string{"x"}},
		{"x,y", []string{"x", "y"}},
		{" x , y ,", []string{"x", "y"}},
		{"x,,x,y", []string{"x", "y"}},
		{"有主日(早上),有小排", []string{"有主日(早上)", "有小排"}},
	}

	for _, tc := range tests {
		t.Run(tc.cell, func(t *testing.T) {
			got := SplitMarks(tc.cell)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, got, SplitMarks(JoinMarks(got)))
		})
	}
	assert.Equal(t, "a,b", JoinMarks([]string{" a", "b", "a", ""}))
}

func TestMarksKeepTheirEncoding(t *testing.T) {
	decomposed := "cafe\u0301"
	composed := "caf\u00e9"

	assert.Equal(t, []string{decomposed, composed}, SplitMarks(decomposed+","+composed))
	assert.Equal(t, decomposed+","+composed, JoinMarks([]string{decomposed, composed}))
}

func TestFetch(t *testing.T) {
	svc, backend := newTestService(t)
	seedHall(backend)

	p, err := svc.Fetch(context.Background(), "A", "G")
	require.NoError(t, err)

	assert.Equal(t, []string{"Bob", "unassigned"}, p.Caregivers())
	assert.Equal(t, map[string]int{"Alice": 13, "Carol": 14, "Dan": 15}, p.NameToRow)
	assert.Equal(t, []string{"opt1", "opt2"}, p.Groups["Bob"][0].Attendance)
}

func TestFetchRejectsBeforeIO(t *testing.T) {
	svc, backend := newTestService(t)
	ctx := context.Background()

	_, err := svc.Fetch(ctx, "A", "Z")
	assert.ErrorIs(t, err, coords.ErrInvalidDateCode)

	_, err = svc.Fetch(ctx, "nope", "G")
	assert.ErrorIs(t, err, config.ErrUnknownNamespace)

	_, err = svc.Stats(ctx, "A", "F")
	assert.ErrorIs(t, err, coords.ErrInvalidDateCode)

	assert.Equal(t, 0, backend.Calls(sheetstest.GetValues))
}

func TestSaveMarksRejectsUnknownHall(t *testing.T) {
	svc, backend := newTestService(t)
	ctx := context.Background()

	err := svc.SaveMarks(ctx, "no-such-hall", "G", map[string][]Entry{}, map[string]int{})
	assert.ErrorIs(t, err, config.ErrUnknownNamespace)

	groups := map[string][]Entry{"Bob": {{Name: "Nobody", Attendance: []string{"opt1"}}}}
	err = svc.SaveMarks(ctx, "no-such-hall", "G", groups, map[string]int{})
	assert.ErrorIs(t, err, config.ErrUnknownNamespace)

	err = svc.SaveMarks(ctx, "A", "Z", groups, map[string]int{"Nobody": 13})
	assert.ErrorIs(t, err, coords.ErrInvalidDateCode)

	assert.Equal(t, 0, backend.Calls(sheetstest.GetValues))
	assert.Equal(t, 0, backend.Calls(sheetstest.BatchUpdateValues))
}

func TestMarksRoundTripPreservesNFD(t *testing.T) {
	svc, backend := newTestService(t)
	seedHall(backend)
	ctx := context.Background()
	marks := []string{"cafe\u0301", "opt1"}

	require.NoError(t, svc.SetMarks(ctx, "A", "I", "Carol", marks))

	p, err := svc.Fetch(ctx, "A", "I")
	require.NoError(t, err)
	assert.Equal(t, marks, p.Groups["Bob"][1].Attendance)
}

func TestMarksRoundTrip(t *testing.T) {
	svc, backend := newTestService(t)
	seedHall(backend)
	ctx := context.Background()

	before, err := svc.Fetch(ctx, "A", "H")
	require.NoError(t, err)

	groups := map[string][]Entry{
		"Bob":        {{Name: "Alice", Attendance: []string{"有小排", "opt1"}}, {Name: "Carol", Attendance: nil}},
		"unassigned": {{Name: "Dan", Attendance: []string{"opt2"}}},
		"ghosts":     {{Name: "Nobody", Attendance: []string{"opt1"}}},
	}
	require.NoError(t, svc.SaveMarks(ctx, "A", "H", groups, before.NameToRow))
	assert.Equal(t, 1, backend.Calls(sheetstest.BatchUpdateValues))

	after, err := svc.Fetch(ctx, "A", "H")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"有小排", "opt1"}, after.Groups["Bob"][0].Attendance)
	assert.Empty(t, after.Groups["Bob"][1].Attendance)
	assert.Equal(t, []string{"opt2"}, after.Groups["unassigned"][0].Attendance)
	assert.Equal(t, "有小排,opt1", backend.Cell("Hall A", "H13"))

	// column G is untouched
	g, err := svc.Fetch(ctx, "A", "G")
	require.NoError(t, err)
	assert.Equal(t, []string{"opt1", "opt2"}, g.Groups["Bob"][0].Attendance)
}

func TestSetMarks(t *testing.T) {
	svc, backend := newTestService(t)
	seedHall(backend)
	ctx := context.Background()

	require.NoError(t, svc.SetMarks(ctx, "A", "J", "Dan", []string{"opt2", "opt1"}))
	assert.Equal(t, "opt2,opt1", backend.Cell("Hall A", "J15"))

	err := svc.SetMarks(ctx, "A", "J", "Nobody", []string{"opt1"})
	assert.ErrorIs(t, err, store.ErrRecordNotFound)
}

func TestAppend(t *testing.T) {
	svc, backend := newTestService(t)
	seedHall(backend)

	row, err := svc.Append(context.Background(), "A", Member{
		Region:    "R2",
		Name:      " Eve ",
		Caregiver: "Bob",
		Identity:  "id4",
	})
	require.NoError(t, err)

	assert.Equal(t, 16, row)
	assert.Equal(t, []string{"=ROW()-12", "R2", "Eve", "Bob", "id4"}, backend.Row("Hall A", 16))

	p, err := svc.Fetch(context.Background(), "A", "G")
	require.NoError(t, err)
	assert.Equal(t, 16, p.NameToRow["Eve"])
}

func TestAppendValidates(t *testing.T) {
	svc, backend := newTestService(t)

	_, err := svc.Append(context.Background(), "A", Member{Region: "R1", Name: "Eve", Caregiver: "  "})

	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 2)
	assert.Equal(t, 0, backend.Calls(sheetstest.GetValues))
	assert.Equal(t, 0, backend.Calls(sheetstest.UpdateValues))
}

func TestUpdate(t *testing.T) {
	svc, backend := newTestService(t)
	seedHall(backend)
	ctx := context.Background()

	err := svc.Update(ctx, "A", "Carol", "Bob", Member{
		Region:     "R9",
		Name:       "Carol",
		Caregiver:  "Alice",
		Identity:   "id2",
		Department: "d7",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "R9", "Carol", "Alice", "id2", "d7", "opt1"}, backend.Row("Hall A", 14))

	err = svc.Update(ctx, "A", "Carol", "Bob", Member{Region: "R1", Name: "Carol", Caregiver: "Bob", Identity: "x"})
	assert.ErrorIs(t, err, store.ErrRecordNotFound)
}

func TestDelete(t *testing.T) {
	svc, backend := newTestService(t)
	seedHall(backend)
	ctx := context.Background()

	require.NoError(t, svc.Delete(ctx, "A", "Alice", "Bob"))
	assert.Equal(t, 1, backend.Calls(sheetstest.DeleteRows))

	p, err := svc.Fetch(ctx, "A", "G")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Carol": 13, "Dan": 14}, p.NameToRow)

	// a blank caregiver is addressed through the unassigned group
	require.NoError(t, svc.Delete(ctx, "A", "Dan", ""))

	err = svc.Delete(ctx, "A", "Alice", "Bob")
	assert.ErrorIs(t, err, store.ErrRecordNotFound)
}

func TestStats(t *testing.T) {
	svc, backend := newTestService(t)
	seedHall(backend)

	stats, err := svc.Stats(context.Background(), "A", "G")
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, map[string]int{"opt1": 2, "opt2": 1}, stats.Counts)
	assert.Equal(t, []string{"opt1", "opt2"}, stats.Options)
}

func TestStatsExample(t *testing.T) {
	svc, backend := newTestService(t)
	backend.Seed("Hall A", 12, [][]string{
		{"1", "R1", "Alice", "Bob", "", "", "opt1,opt2"},
		{"2", "R1", "Carol", "Bob", "", "", "opt1"},
	})

	stats, err := svc.Stats(context.Background(), "A", "G")
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Counts["opt1"])
	assert.Equal(t, 1, stats.Counts["opt2"])
}

func TestStatsCountsUnlistedMarks(t *testing.T) {
	svc, backend := newTestService(t)
	backend.Seed("Hall A", 12, [][]string{
		{"1", "R1", "Alice", "Bob", "", "", "late"},
	})

	stats, err := svc.Stats(context.Background(), "A", "G")
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"opt1": 0, "opt2": 0, "late": 1}, stats.Counts)
}
