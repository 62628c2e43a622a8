// Package settings reads the date ranges and per-hall region lists kept on
// the settings worksheet.
package settings

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"hall_roster/internal/coords"
	"hall_roster/internal/store"
)

// DateRange labels one attendance date column.
type DateRange struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

type Service struct {
	store  *store.Store
	mapper *coords.Mapper
}

func NewService(s *store.Store, m *coords.Mapper) *Service {
	return &Service{store: s, mapper: m}
}

// DateRanges pairs each label with the date column at the same position.
// Codes are assigned before blank labels are dropped, so a gap in the list
// does not shift the codes below it. Labels past the last date column are
// ignored.
func (s *Service) DateRanges(ctx context.Context) ([]DateRange, error) {
	grid, err := s.store.ReadRange(ctx, s.mapper.DateRanges())
	if err != nil {
		return nil, err
	}

	ranges := []DateRange{}
	for i := range grid {
		label := strings.TrimSpace(grid.Cell(i, 0))
		if label == "" {
			continue
		}
		code, err := s.mapper.DateCodeAt(i)
		if err != nil {
			log.Warn().Int("position", i).Str("label", label).Msg("Date range has no date column, ignoring")
			continue
		}
		ranges = append(ranges, DateRange{Code: code, Label: label})
	}
	return ranges, nil
}

// Regions lists the non-blank regions configured for a hall.
func (s *Service) Regions(ctx context.Context, hallID string) ([]string, error) {
	rng, err := s.mapper.Regions(hallID)
	if err != nil {
		return nil, err
	}
	grid, err := s.store.ReadRange(ctx, rng)
	if err != nil {
		return nil, err
	}

	regions := []string{}
	for i := range grid {
		if region := strings.TrimSpace(grid.Cell(i, 0)); region != "" {
			regions = append(regions, region)
		}
	}
	return regions, nil
}
