// Package sheetstest provides an in-memory spreadsheet that answers the same
// calls as sheets.Client, for tests that must not touch the network.
package sheetstest

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"hall_roster/internal/config"
	"hall_roster/internal/coords"
	"hall_roster/internal/sheets"
)

// LayoutYAML is a compact layout used across package tests: one hall "A"
// on sheet "Hall A" with four date columns starting at G, two prayer groups
// and a small user scan window.
const LayoutYAML = `
attendance:
  start_row: 12
  serial_column: 0
  region_column: 1
  name_column: 2
  caregiver_column: 3
  identity_column: 4
  department_column: 5
  first_date_column: G
  date_column_count: 4
  name_header: Name
  caregiver_header: Caregiver
  unassigned_label: unassigned
  options: [opt1, opt2]
halls:
  A:
    sheet: Hall A
    region_column: B
settings:
  sheet: Settings
  start_row: 2
  date_range_column: A
prayer:
  sheet: Prayer
  start_row: 3
  groups:
    g1: { name: Group One, name_column: 0, item_column: 1 }
    g2: { name: Group Two, name_column: 2, item_column: 3 }
users:
  sheet: Users
  start_row: 2
  scan_rows: 50
`

// Layout parses LayoutYAML.
func Layout(t testing.TB) *config.Layout {
	t.Helper()
	layout, err := config.ParseLayout([]byte(LayoutYAML))
	require.NoError(t, err)
	return layout
}

// RateLimitError builds the error the Sheets API returns when the per-minute
// quota is exceeded.
func RateLimitError() error {
	return &googleapi.Error{
		Code:    http.StatusTooManyRequests,
		Message: "Quota exceeded for quota metric 'Read requests'",
	}
}

// Method names accepted by FailNext and Calls.
const (
	GetValues         = "GetValues"
	UpdateValues      = "UpdateValues"
	BatchUpdateValues = "BatchUpdateValues"
	ClearValues       = "ClearValues"
	DeleteRows        = "DeleteRows"
	SheetID           = "SheetID"
)

type grid map[int]map[int]string // row -> column -> value, both 1-based

// Backend is an in-memory spreadsheet. The zero value is not usable; call
// NewBackend.
type Backend struct {
	mu       sync.Mutex
	sheets   map[string]grid
	ids      map[string]int64
	calls    map[string]int
	failures map[string][]error
}

func NewBackend(titles ...string) *Backend {
	b := &Backend{
		sheets:   make(map[string]grid),
		ids:      make(map[string]int64),
		calls:    make(map[string]int),
		failures: make(map[string][]error),
	}
	for _, title := range titles {
		b.AddSheet(title)
	}
	return b
}

// AddSheet creates an empty worksheet if it does not exist yet.
func (b *Backend) AddSheet(title string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addSheet(title)
}

func (b *Backend) addSheet(title string) grid {
	g, ok := b.sheets[title]
	if !ok {
		g = make(grid)
		b.sheets[title] = g
		b.ids[title] = int64(len(b.ids)) * 1000
	}
	return g
}

// Seed writes rows into a sheet starting at column A of startRow.
func (b *Backend) Seed(sheet string, startRow int, rows [][]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g := b.addSheet(sheet)
	for i, row := range rows {
		for j, v := range row {
			g.set(startRow+i, j+1, v)
		}
	}
}

// Cell returns the value at a cell such as "G12".
func (b *Backend) Cell(sheet, cell string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, err := coords.ParseRange(coords.QuoteSheet(sheet) + "!" + cell)
	if err != nil {
		panic(err)
	}
	return b.sheets[sheet].get(r.StartRow, r.StartCol)
}

// Row returns row as a slice from column A, trimmed of trailing blanks.
func (b *Backend) Row(sheet string, row int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	g := b.sheets[sheet]
	out := make([]string, g.lastCol())
	for col := range out {
		out[col] = g.get(row, col+1)
	}
	return trimRow(out)
}

// FailNext makes the next times calls of method fail with err before any
// state is touched.
func (b *Backend) FailNext(method string, err error, times int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < times; i++ {
		b.failures[method] = append(b.failures[method], err)
	}
}

// Calls reports how many times method has been invoked, failures included.
func (b *Backend) Calls(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[method]
}

// ResetCalls zeroes every call counter.
func (b *Backend) ResetCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.calls)
}

func (b *Backend) begin(ctx context.Context, method string) error {
	b.calls[method]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if queue := b.failures[method]; len(queue) > 0 {
		b.failures[method] = queue[1:]
		return queue[0]
	}
	return nil
}

// GetValues mirrors the API's trimming: trailing blank cells of a row and
// trailing blank rows are omitted, interior blank rows come back empty.
func (b *Backend) GetValues(ctx context.Context, rng string) ([][]interface{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(ctx, GetValues); err != nil {
		return nil, err
	}

	r, g, err := b.resolve(rng)
	if err != nil {
		return nil, err
	}
	startRow, endRow, startCol, endCol := g.bounds(r)

	var rows [][]string
	for row := startRow; row <= endRow; row++ {
		var cells []string
		for col := startCol; col <= endCol; col++ {
			cells = append(cells, g.get(row, col))
		}
		rows = append(rows, trimRow(cells))
	}
	for len(rows) > 0 && len(rows[len(rows)-1]) == 0 {
		rows = rows[:len(rows)-1]
	}

	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		values[i] = make([]interface{}, len(row))
		for j, v := range row {
			values[i][j] = v
		}
	}
	return values, nil
}

func (b *Backend) UpdateValues(ctx context.Context, rng string, values [][]interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(ctx, UpdateValues); err != nil {
		return err
	}
	return b.write(rng, values)
}

func (b *Backend) BatchUpdateValues(ctx context.Context, updates []sheets.Update) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(ctx, BatchUpdateValues); err != nil {
		return err
	}
	// validate everything first so a bad range leaves the sheet untouched
	for _, u := range updates {
		if _, _, err := b.resolve(u.Range); err != nil {
			return err
		}
	}
	for _, u := range updates {
		if err := b.write(u.Range, u.Values); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) ClearValues(ctx context.Context, ranges []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(ctx, ClearValues); err != nil {
		return err
	}
	for _, rng := range ranges {
		r, g, err := b.resolve(rng)
		if err != nil {
			return err
		}
		startRow, endRow, startCol, endCol := g.bounds(r)
		for row := startRow; row <= endRow; row++ {
			for col := startCol; col <= endCol; col++ {
				g.set(row, col, "")
			}
		}
	}
	return nil
}

// DeleteRows removes the zero-based rows [start, end) and shifts the rest up.
func (b *Backend) DeleteRows(ctx context.Context, sheetID, start, end int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(ctx, DeleteRows); err != nil {
		return err
	}
	if start < 0 || end <= start {
		return &googleapi.Error{Code: http.StatusBadRequest, Message: "invalid dimension range"}
	}

	var g grid
	for title, id := range b.ids {
		if id == sheetID {
			g = b.sheets[title]
		}
	}
	if g == nil {
		return &googleapi.Error{Code: http.StatusBadRequest, Message: fmt.Sprintf("no sheet with id %d", sheetID)}
	}

	first, count := int(start)+1, int(end-start)
	rows := make([]int, 0, len(g))
	for row := range g {
		rows = append(rows, row)
	}
	sort.Ints(rows)
	for _, row := range rows {
		switch {
		case row < first:
		case row < first+count:
			delete(g, row)
		default:
			g[row-count] = g[row]
			delete(g, row)
		}
	}
	return nil
}

func (b *Backend) SheetID(ctx context.Context, title string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(ctx, SheetID); err != nil {
		return 0, err
	}
	id, ok := b.ids[title]
	if !ok {
		return 0, fmt.Errorf("%w: %q", sheets.ErrSheetNotFound, title)
	}
	return id, nil
}

func (b *Backend) resolve(rng string) (coords.Range, grid, error) {
	r, err := coords.ParseRange(rng)
	if err != nil {
		return r, nil, &googleapi.Error{Code: http.StatusBadRequest, Message: "Unable to parse range: " + rng}
	}
	g, ok := b.sheets[r.Sheet]
	if !ok {
		return r, nil, &googleapi.Error{Code: http.StatusBadRequest, Message: "Unable to parse range: " + rng}
	}
	return r, g, nil
}

func (b *Backend) write(rng string, values [][]interface{}) error {
	r, g, err := b.resolve(rng)
	if err != nil {
		return err
	}
	startRow, startCol := max(r.StartRow, 1), max(r.StartCol, 1)
	for i, row := range values {
		for j, v := range row {
			g.set(startRow+i, startCol+j, fmt.Sprint(v))
		}
	}
	return nil
}

func (g grid) get(row, col int) string {
	return g[row][col]
}

func (g grid) set(row, col int, v string) {
	if v == "" {
		if cells, ok := g[row]; ok {
			delete(cells, col)
			if len(cells) == 0 {
				delete(g, row)
			}
		}
		return
	}
	if g[row] == nil {
		g[row] = make(map[int]string)
	}
	g[row][col] = v
}

func (g grid) lastRow() int {
	last := 0
	for row := range g {
		last = max(last, row)
	}
	return last
}

func (g grid) lastCol() int {
	last := 0
	for _, cells := range g {
		for col := range cells {
			last = max(last, col)
		}
	}
	return last
}

// bounds closes the open ends of r against the sheet's used area.
func (g grid) bounds(r coords.Range) (startRow, endRow, startCol, endCol int) {
	startRow, endRow = max(r.StartRow, 1), r.EndRow
	startCol, endCol = max(r.StartCol, 1), r.EndCol
	if endRow == 0 {
		endRow = g.lastRow()
	}
	if endCol == 0 {
		endCol = g.lastCol()
	}
	return startRow, endRow, startCol, endCol
}

func trimRow(cells []string) []string {
	for len(cells) > 0 && cells[len(cells)-1] == "" {
		cells = cells[:len(cells)-1]
	}
	return cells
}
