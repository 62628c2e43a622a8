// Package prayer manages the shared prayer worksheet, where every group owns
// a pair of columns: subject name and request text.
package prayer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/unicode/norm"

	"hall_roster/internal/coords"
	"hall_roster/internal/store"
)

var validate = validator.New()

// Item is one prayer request. ID is the sheet row and stays valid until the
// row is cleared.
type Item struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Request string `json:"request"`
	Status  Status `json:"status"`
}

// Input is the caller-provided part of an item. An empty Status means
// not contacted on Append and leaves the current status alone on Update.
type Input struct {
	Name    string `json:"name" validate:"required"`
	Request string `json:"request" validate:"required"`
	Status  Status `json:"status"`
}

type Stats struct {
	Total  int            `json:"total"`
	Counts map[Status]int `json:"counts"`
}

// Project turns a span read from startRow into items. Rows without a name
// are gaps left by cleared items and are skipped.
func Project(grid store.Grid, startRow, nameOffset, itemOffset int) []Item {
	items := []Item{}
	for i := range grid {
		name := cellText(grid.Cell(i, nameOffset))
		if name == "" {
			continue
		}
		status, request := splitRequest(cellText(grid.Cell(i, itemOffset)))
		items = append(items, Item{ID: startRow + i, Name: name, Request: request, Status: status})
	}
	return items
}

type Service struct {
	store  *store.Store
	mapper *coords.Mapper
}

func NewService(s *store.Store, m *coords.Mapper) *Service {
	return &Service{store: s, mapper: m}
}

func (s *Service) List(ctx context.Context, groupID string) ([]Item, error) {
	span, err := s.mapper.PrayerSpan(groupID)
	if err != nil {
		return nil, err
	}
	grid, err := s.store.ReadRange(ctx, span.Range)
	if err != nil {
		return nil, err
	}
	return Project(grid, s.mapper.Layout().Prayer.StartRow, span.NameOffset, span.ItemOffset), nil
}

// Append stores the item in the first row of the group without a name,
// reusing gaps left by Clear, and returns its id.
func (s *Service) Append(ctx context.Context, groupID string, in Input) (int, error) {
	in, err := normalize(in)
	if err != nil {
		return 0, err
	}
	if in.Status == "" {
		in.Status = StatusNotContacted
	}
	namesRange, err := s.mapper.PrayerNames(groupID)
	if err != nil {
		return 0, err
	}
	names, err := s.store.ReadRange(ctx, namesRange)
	if err != nil {
		return 0, err
	}

	offset := len(names)
	for i := range names {
		if cellText(names.Cell(i, 0)) == "" {
			offset = i
			break
		}
	}
	id := s.mapper.Layout().Prayer.StartRow + offset

	if err := s.write(ctx, groupID, id, in); err != nil {
		return 0, err
	}
	log.Info().Str("group", groupID).Int("id", id).Msg("Added prayer item")
	return id, nil
}

// Update overwrites the name and request of an item, and its status when
// one is given.
func (s *Service) Update(ctx context.Context, groupID string, id int, in Input) error {
	in, err := normalize(in)
	if err != nil {
		return err
	}
	if in.Status == "" {
		in.Status = StatusNotContacted
		current, err := s.item(ctx, groupID, id)
		switch {
		case err == nil:
			in.Status = current.Status
		case !errors.Is(err, store.ErrRecordNotFound):
			return err
		}
	}
	if err := s.write(ctx, groupID, id, in); err != nil {
		return err
	}
	log.Info().Str("group", groupID).Int("id", id).Msg("Updated prayer item")
	return nil
}

// SetStatus changes only the status of an existing item.
func (s *Service) SetStatus(ctx context.Context, groupID string, id int, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	item, err := s.item(ctx, groupID, id)
	if err != nil {
		return err
	}
	_, itemCell, err := s.cells(groupID, id)
	if err != nil {
		return err
	}
	if err := s.store.WriteRange(ctx, itemCell, store.Grid{{formatRequest(status, item.Request)}}); err != nil {
		return err
	}
	log.Info().
		Str("group", groupID).
		Int("id", id).
		Str("status", status.Name()).
		Msg("Changed prayer status")
	return nil
}

// Clear blanks both cells of an item. Rows never shift, so the ids of other
// items stay valid. Clearing an already blank row is a no-op write.
func (s *Service) Clear(ctx context.Context, groupID string, id int) error {
	nameCell, itemCell, err := s.cells(groupID, id)
	if err != nil {
		return err
	}
	if err := s.store.ClearRange(ctx, nameCell, itemCell); err != nil {
		return err
	}
	log.Info().Str("group", groupID).Int("id", id).Msg("Cleared prayer item")
	return nil
}

// Stats counts the group's items per status.
func (s *Service) Stats(ctx context.Context, groupID string) (Stats, error) {
	items, err := s.List(ctx, groupID)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Counts: make(map[Status]int, len(Statuses))}
	for _, status := range Statuses {
		stats.Counts[status] = 0
	}
	for _, item := range items {
		stats.Total++
		stats.Counts[item.Status]++
	}
	return stats, nil
}

func (s *Service) item(ctx context.Context, groupID string, id int) (Item, error) {
	if _, _, err := s.cells(groupID, id); err != nil {
		return Item{}, err
	}
	items, err := s.List(ctx, groupID)
	if err != nil {
		return Item{}, err
	}
	for _, item := range items {
		if item.ID == id {
			return item, nil
		}
	}
	return Item{}, fmt.Errorf("%w: prayer item %d in %s", store.ErrRecordNotFound, id, groupID)
}

func (s *Service) write(ctx context.Context, groupID string, id int, in Input) error {
	nameCell, itemCell, err := s.cells(groupID, id)
	if err != nil {
		return err
	}
	return s.store.BatchWrite(ctx, []store.Entry{
		{Range: nameCell, Values: store.Grid{{in.Name}}},
		{Range: itemCell, Values: store.Grid{{formatRequest(in.Status, in.Request)}}},
	})
}

// cells resolves the name and request cells of id. Ids above the first data
// row cannot name an item.
func (s *Service) cells(groupID string, id int) (string, string, error) {
	nameCell, itemCell, err := s.mapper.PrayerCells(groupID, id)
	if errors.Is(err, coords.ErrRowOutOfRange) {
		return "", "", fmt.Errorf("%w: %w", store.ErrRecordNotFound, err)
	}
	return nameCell, itemCell, err
}

func normalize(in Input) (Input, error) {
	in.Name = cellText(in.Name)
	in.Request = cellText(in.Request)
	if err := validate.Struct(in); err != nil {
		return in, err
	}
	if in.Status != "" && !in.Status.Valid() {
		return in, fmt.Errorf("%w: %q", ErrInvalidStatus, in.Status)
	}
	return in, nil
}

func cellText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
