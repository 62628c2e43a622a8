// Package users keeps the role table of people who have signed in.
package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/unicode/norm"

	"hall_roster/internal/coords"
	"hall_roster/internal/store"
)

// ErrUserTableFull is returned when a new user would land below the rows
// that are scanned, where later sign-ins could never find them.
var ErrUserTableFull = errors.New("user table is full")

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleGuest  Role = "guest"
)

// ParseRole maps sheet text to a role. Anything unrecognized is a guest.
func ParseRole(s string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleEditor:
		return r
	default:
		return RoleGuest
	}
}

// CanEdit reports whether the role may change attendance and prayer data.
func (r Role) CanEdit() bool {
	return r == RoleAdmin || r == RoleEditor
}

type Account struct {
	ExternalID  string `json:"externalId"`
	Role        Role   `json:"role"`
	DisplayName string `json:"displayName"`
	Row         int    `json:"-"`
}

// MarshalJSON adds the derived canEdit flag.
func (a Account) MarshalJSON() ([]byte, error) {
	type account Account
	return json.Marshal(struct {
		account
		CanEdit bool `json:"canEdit"`
	}{account(a), a.Role.CanEdit()})
}

// Notifier is told about sign-ups and role changes. Failures are logged and
// never fail the operation.
type Notifier interface {
	NotifyNewUser(ctx context.Context, externalID, displayName string) error
	NotifyRoleChanged(ctx context.Context, externalID, displayName, role string) error
}

type roleUpdate struct {
	ExternalID string `validate:"required"`
	Role       string `validate:"required,oneof=admin editor guest"`
}

var validate = validator.New()

const (
	idColumn   = 0
	roleColumn = 1
	nameColumn = 2
)

type Service struct {
	store    *store.Store
	mapper   *coords.Mapper
	notifier Notifier
}

// NewService builds the service. notifier may be nil.
func NewService(s *store.Store, m *coords.Mapper, notifier Notifier) *Service {
	return &Service{store: s, mapper: m, notifier: notifier}
}

// Project reads accounts from the user grid. Rows without an id are skipped.
func Project(grid store.Grid, startRow int) []Account {
	accounts := []Account{}
	for i := range grid {
		id := cellText(grid.Cell(i, idColumn))
		if id == "" {
			continue
		}
		accounts = append(accounts, Account{
			ExternalID:  id,
			Role:        ParseRole(grid.Cell(i, roleColumn)),
			DisplayName: cellText(grid.Cell(i, nameColumn)),
			Row:         startRow + i,
		})
	}
	return accounts
}

func (s *Service) List(ctx context.Context) ([]Account, error) {
	accounts, _, err := s.scan(ctx)
	return accounts, err
}

func (s *Service) Lookup(ctx context.Context, externalID string) (Account, error) {
	accounts, _, err := s.scan(ctx)
	if err != nil {
		return Account{}, err
	}
	return find(accounts, externalID)
}

// Login records a sign-in. A first-time id is appended as a guest below the
// last used row; a known id gets its display name refreshed when it changed.
// Once the scan window is full no more users are added.
func (s *Service) Login(ctx context.Context, externalID, displayName string) (Account, error) {
	externalID = cellText(externalID)
	displayName = cellText(displayName)
	if err := validate.Var(externalID, "required"); err != nil {
		return Account{}, fmt.Errorf("external id: %w", err)
	}

	accounts, next, err := s.scan(ctx)
	if err != nil {
		return Account{}, err
	}

	if account, err := find(accounts, externalID); err == nil {
		if displayName == "" || displayName == account.DisplayName {
			return account, nil
		}
		cell, err := s.mapper.UserCell(nameColumn, account.Row)
		if err != nil {
			return Account{}, err
		}
		if err := s.store.WriteRange(ctx, cell, store.Grid{{displayName}}); err != nil {
			return Account{}, err
		}
		account.DisplayName = displayName
		log.Info().Str("user", externalID).Int("row", account.Row).Msg("Refreshed user display name")
		return account, nil
	}

	if last := s.mapper.Layout().Users.StartRow + s.mapper.Layout().Users.ScanRows - 1; next > last {
		log.Error().Int("row", next).Int("last_scanned_row", last).Msg("User table is past the scan window")
		return Account{}, fmt.Errorf("%w: row %d is past scanned row %d", ErrUserTableFull, next, last)
	}
	account := Account{ExternalID: externalID, Role: RoleGuest, DisplayName: displayName, Row: next}
	cell, err := s.mapper.UserCell(idColumn, next)
	if err != nil {
		return Account{}, err
	}
	if err := s.store.WriteRange(ctx, cell, store.Grid{{externalID, string(RoleGuest), displayName}}); err != nil {
		return Account{}, err
	}
	log.Info().Str("user", externalID).Int("row", next).Msg("Registered new user")

	if s.notifier != nil {
		if err := s.notifier.NotifyNewUser(ctx, externalID, displayName); err != nil {
			log.Warn().Err(err).Str("user", externalID).Msg("Failed to send new user notification")
		}
	}
	return account, nil
}

// SetRole changes the role of a known user with a single cell write.
func (s *Service) SetRole(ctx context.Context, externalID, role string) (Account, error) {
	update := roleUpdate{ExternalID: cellText(externalID), Role: strings.TrimSpace(role)}
	if err := validate.Struct(update); err != nil {
		return Account{}, err
	}

	account, err := s.Lookup(ctx, update.ExternalID)
	if err != nil {
		return Account{}, err
	}
	cell, err := s.mapper.UserCell(roleColumn, account.Row)
	if err != nil {
		return Account{}, err
	}
	if err := s.store.WriteRange(ctx, cell, store.Grid{{update.Role}}); err != nil {
		return Account{}, err
	}
	account.Role = Role(update.Role)
	log.Info().Str("user", account.ExternalID).Str("role", update.Role).Msg("Updated user role")

	if s.notifier != nil {
		if err := s.notifier.NotifyRoleChanged(ctx, account.ExternalID, account.DisplayName, update.Role); err != nil {
			log.Warn().Err(err).Str("user", account.ExternalID).Msg("Failed to send role change notification")
		}
	}
	return account, nil
}

// scan reads the user window and returns its accounts plus the row a new
// account would take.
func (s *Service) scan(ctx context.Context) ([]Account, int, error) {
	grid, err := s.store.ReadRange(ctx, s.mapper.Users())
	if err != nil {
		return nil, 0, err
	}
	start := s.mapper.Layout().Users.StartRow
	return Project(grid, start), start + len(grid), nil
}

func find(accounts []Account, externalID string) (Account, error) {
	externalID = cellText(externalID)
	for _, a := range accounts {
		if a.ExternalID == externalID {
			return a, nil
		}
	}
	return Account{}, fmt.Errorf("%w: user %q", store.ErrRecordNotFound, externalID)
}

func cellText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
