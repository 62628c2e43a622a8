package app

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"hall_roster/internal/attendance"
	"hall_roster/internal/cache"
	"hall_roster/internal/config"
	"hall_roster/internal/coords"
	"hall_roster/internal/notifications"
	"hall_roster/internal/prayer"
	"hall_roster/internal/settings"
	"hall_roster/internal/store"
	"hall_roster/internal/users"
)

// ErrInvalidInput marks caller mistakes caught outside the services, such
// as a malformed command-line argument.
var ErrInvalidInput = errors.New("invalid input")

// Services is everything a caller needs, sharing one store and cache.
type Services struct {
	Layout     *config.Layout
	Mapper     *coords.Mapper
	Store      *store.Store
	Attendance *attendance.Service
	Prayer     *prayer.Service
	Users      *users.Service
	Settings   *settings.Service
	Notifier   *notifications.Client
}

// NewServices wires the services over backend. notifier may be nil.
func NewServices(backend store.Backend, layout *config.Layout, cacheTTL time.Duration, notifier *notifications.Client) *Services {
	mapper := coords.NewMapper(layout)
	st := store.New(backend, cache.New[store.Grid](cacheTTL), config.DefaultResilienceConfig)

	var userNotifier users.Notifier
	if notifier != nil {
		userNotifier = notifier
	}

	return &Services{
		Layout:     layout,
		Mapper:     mapper,
		Store:      st,
		Attendance: attendance.NewService(st, mapper),
		Prayer:     prayer.NewService(st, mapper),
		Users:      users.NewService(st, mapper, userNotifier),
		Settings:   settings.NewService(st, mapper),
		Notifier:   notifier,
	}
}

// Namespaces lists the ids a caller may name: halls, prayer groups, date
// codes and the configured attendance options.
type Namespaces struct {
	Halls        []string `json:"halls"`
	PrayerGroups []string `json:"prayerGroups"`
	DateCodes    []string `json:"dateCodes"`
	Options      []string `json:"options"`
}

func (s *Services) Namespaces() Namespaces {
	return Namespaces{
		Halls:        s.Layout.HallIDs(),
		PrayerGroups: s.Layout.PrayerGroupIDs(),
		DateCodes:    s.Mapper.DateCodes(),
		Options:      s.Layout.Options(),
	}
}

// Class tells a caller whether a failure is its own fault or the system's.
type Class int

const (
	ClassNone Class = iota
	ClassClient
	ClassServer
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassClient:
		return "client"
	default:
		return "server"
	}
}

var clientErrors = []error{
	ErrInvalidInput,
	config.ErrUnknownNamespace,
	coords.ErrInvalidDateCode,
	coords.ErrRowOutOfRange,
	store.ErrRecordNotFound,
	prayer.ErrInvalidStatus,
}

// Classify maps an error to the party responsible for it. Unknown names,
// bad date codes, failed validation and missing records are client errors;
// everything else, I/O failures included, is a server error.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return ClassClient
		}
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return ClassClient
	}
	if errors.Is(err, context.Canceled) {
		return ClassClient
	}
	return ClassServer
}
