// Package store is the only code path that performs spreadsheet I/O. Reads
// go through a TTL cache, every write flushes it, and rate-limited calls are
// retried with backoff before giving up.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"hall_roster/internal/cache"
	"hall_roster/internal/config"
	"hall_roster/internal/retry"
	"hall_roster/internal/sheets"
)

// Backend is the raw spreadsheet API. *sheets.Client implements it.
type Backend interface {
	GetValues(ctx context.Context, rng string) ([][]interface{}, error)
	UpdateValues(ctx context.Context, rng string, values [][]interface{}) error
	BatchUpdateValues(ctx context.Context, updates []sheets.Update) error
	ClearValues(ctx context.Context, ranges []string) error
	DeleteRows(ctx context.Context, sheetID, start, end int64) error
	SheetID(ctx context.Context, title string) (int64, error)
}

// Grid is a block of cell text as returned by a range read. Rows may be
// shorter than the range is wide.
type Grid [][]string

// Cell returns the value at (r, c), or "" when the cell was not returned.
func (g Grid) Cell(r, c int) string {
	if r < 0 || r >= len(g) || c < 0 || c >= len(g[r]) {
		return ""
	}
	return g[r][c]
}

// Entry is one range of a batch write.
type Entry struct {
	Range  string
	Values Grid
}

type Store struct {
	backend  Backend
	cache    *cache.Cache[Grid]
	flights  singleflight.Group
	read     retry.Config
	write    retry.Config
	sheetIDs sync.Map // title -> int64
}

func New(backend Backend, c *cache.Cache[Grid], resilience config.ResilienceConfig) *Store {
	read, write := resilience.SheetRead, resilience.SheetWrite
	read.Retryable = sheets.IsRateLimited
	write.Retryable = sheets.IsRateLimited
	return &Store{
		backend: backend,
		cache:   c,
		read:    read,
		write:   write,
	}
}

// ReadRange returns the cell text of rng, from cache when fresh. Grids are
// shared with the cache and other callers and must not be modified.
func (s *Store) ReadRange(ctx context.Context, rng string) (Grid, error) {
	if grid, ok := s.cache.Get(rng); ok {
		log.Debug().Str("range", rng).Str("cache", "hit").Msg("Read range")
		return grid, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}

	// Callers that arrive after a write must not join a fetch started before it.
	gen := s.cache.Generation()
	key := strconv.FormatUint(gen, 10) + "|" + rng

	// The fetch is shared, so it runs detached from the caller that started
	// it; the per-attempt read timeout still bounds it. Each caller stops
	// waiting when its own context ends.
	flightCtx := context.WithoutCancel(ctx)
	ch := s.flights.DoChan(key, func() (interface{}, error) {
		values, err := retry.WithRetry(flightCtx, s.read, func(ctx context.Context) ([][]interface{}, error) {
			return s.backend.GetValues(ctx, rng)
		})
		if err != nil {
			return nil, s.fail("read", rng, err, ErrReadFailed)
		}
		grid := toGrid(values)
		s.cache.SetIfGeneration(gen, rng, grid)
		return grid, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("read %s: %w", rng, ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}

	grid := res.Val.(Grid)
	log.Debug().
		Str("range", rng).
		Str("cache", "miss").
		Bool("shared", res.Shared).
		Int("rows", len(grid)).
		Msg("Read range")
	return grid, nil
}

// WriteRange writes values anchored at the top-left cell of rng.
func (s *Store) WriteRange(ctx context.Context, rng string, values Grid) error {
	defer s.invalidate()

	_, err := retry.WithRetry(ctx, s.write, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.backend.UpdateValues(ctx, rng, toValues(values))
	})
	if err != nil {
		return s.fail("write", rng, err, ErrWriteFailed)
	}

	log.Debug().Str("range", rng).Int("rows", len(values)).Msg("Wrote range")
	return nil
}

// BatchWrite writes every entry in a single request.
func (s *Store) BatchWrite(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	defer s.invalidate()

	updates := make([]sheets.Update, 0, len(entries))
	for _, e := range entries {
		updates = append(updates, sheets.Update{Range: e.Range, Values: toValues(e.Values)})
	}

	_, err := retry.WithRetry(ctx, s.write, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.backend.BatchUpdateValues(ctx, updates)
	})
	if err != nil {
		return s.fail("batch write", entries[0].Range, err, ErrWriteFailed)
	}

	log.Debug().
		Int("ranges", len(entries)).
		Str("first_range", entries[0].Range).
		Msg("Wrote ranges")
	return nil
}

// ClearRange blanks the cells of every range without shifting anything.
func (s *Store) ClearRange(ctx context.Context, ranges ...string) error {
	if len(ranges) == 0 {
		return nil
	}
	defer s.invalidate()

	_, err := retry.WithRetry(ctx, s.write, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.backend.ClearValues(ctx, ranges)
	})
	if err != nil {
		return s.fail("clear", ranges[0], err, ErrWriteFailed)
	}

	log.Debug().Strs("ranges", ranges).Msg("Cleared ranges")
	return nil
}

// DeleteRows removes the zero-based rows [start, end) of a worksheet and
// shifts the rows below up. Row-derived ids read before the call are stale
// afterwards.
func (s *Store) DeleteRows(ctx context.Context, sheetTitle string, start, end int64) error {
	defer s.invalidate()

	sheetID, err := s.SheetID(ctx, sheetTitle)
	if err != nil {
		return err
	}

	rng := fmt.Sprintf("%s rows %d-%d", sheetTitle, start, end)
	_, err = retry.WithRetry(ctx, s.write, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.backend.DeleteRows(ctx, sheetID, start, end)
	})
	if err != nil {
		return s.fail("delete rows", rng, err, ErrWriteFailed)
	}

	log.Debug().
		Str("sheet", sheetTitle).
		Int64("start", start).
		Int64("end", end).
		Msg("Deleted rows")
	return nil
}

// SheetID resolves a worksheet title to its numeric id. Ids never change
// for the life of a sheet, so they are remembered for the process.
func (s *Store) SheetID(ctx context.Context, title string) (int64, error) {
	if id, ok := s.sheetIDs.Load(title); ok {
		return id.(int64), nil
	}

	id, err := retry.WithRetry(ctx, s.read, func(ctx context.Context) (int64, error) {
		return s.backend.SheetID(ctx, title)
	})
	if err != nil {
		return 0, s.fail("sheet id", title, err, ErrReadFailed)
	}

	s.sheetIDs.Store(title, id)
	return id, nil
}

// invalidate flushes every cached range after a write, successful or not.
func (s *Store) invalidate() {
	flushed := s.cache.Len()
	s.cache.InvalidateAll()
	log.Debug().Int("entries", flushed).Msg("Invalidated cache")
}

// fail maps a backend error to the store's error classes and logs it.
func (s *Store) fail(op, rng string, err, exhausted error) error {
	var wrapped error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		wrapped = fmt.Errorf("%s %s: %w", op, rng, err)
	case sheets.IsRateLimited(err):
		wrapped = fmt.Errorf("%w: %s %s: %w", exhausted, op, rng, err)
	default:
		wrapped = &ExternalServiceError{Op: op, Range: rng, Err: err}
	}

	log.Error().
		Err(err).
		Str("op", op).
		Str("range", rng).
		Msg("Spreadsheet operation failed")
	return wrapped
}

func toGrid(values [][]interface{}) Grid {
	grid := make(Grid, len(values))
	for i, row := range values {
		grid[i] = make([]string, len(row))
		for j, v := range row {
			switch v := v.(type) {
			case string:
				grid[i][j] = v
			case nil:
			default:
				grid[i][j] = fmt.Sprint(v)
			}
		}
	}
	return grid
}

func toValues(grid Grid) [][]interface{} {
	values := make([][]interface{}, len(grid))
	for i, row := range grid {
		values[i] = make([]interface{}, len(row))
		for j, v := range row {
			values[i][j] = v
		}
	}
	return values
}
