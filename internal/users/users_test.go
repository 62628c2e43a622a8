package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

type recordingNotifier struct {
	newUsers []string
	changes  []string
	err      error
}

func (n *recordingNotifier) NotifyNewUser(_ context.Context, externalID, _ string) error {
	n.newUsers = append(n.newUsers, externalID)
	return n.err
}

func (n *recordingNotifier) NotifyRoleChanged(_ context.Context, externalID, _, role string) error {
	n.changes = append(n.changes, externalID+"="+role)
	return n.err
}

func newTestService(t *testing.T) (*Service, *sheetstest.Backend, *recordingNotifier) {
	t.Helper()
	fast := retry.Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	backend := sheetstest.NewBackend("Users")
	backend.Seed("Users", 1, [][]string{{"Id", "Role", "Name"}})
	st := store.New(backend, cache.New[store.Grid](time.Minute), config.ResilienceConfig{
		SheetRead:  fast,
		SheetWrite: fast,
	})
	notifier := &recordingNotifier{}
	return NewService(st, coords.NewMapper(sheetstest.Layout(t)), notifier), backend, notifier
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleAdmin, ParseRole("admin"))
	assert.Equal(t, RoleEditor, ParseRole(" Editor "))
	assert.Equal(t, RoleGuest, ParseRole("guest"))
	assert.Equal(t, RoleGuest, ParseRole(""))
	assert.Equal(t, RoleGuest, ParseRole("owner"))

	assert.True(t, RoleEditor.CanEdit())
	assert.False(t, RoleGuest.CanEdit())
}

func TestProjectSkipsBlankIDs(t *testing.T) {
	grid := store.Grid{
		{"U1", "admin", "Amy"},
		{},
		{"", "editor", "Ghost"},
		{"U2", "superuser"},
	}

	assert.Equal(t, []Account{
		{ExternalID: "U1", Role: RoleAdmin, DisplayName: "Amy", Row: 2},
		{ExternalID: "U2", Role: RoleGuest, Row: 5},
	}, Project(grid, 2))
}

func TestLoginRegistersGuest(t *testing.T) {
	svc, backend, notifier := newTestService(t)
	backend.Seed("Users", 2, [][]string{{"U1", "admin", "Amy"}})

	account, err := svc.Login(context.Background(), "U2", "Ben")
	require.NoError(t, err)

	assert.Equal(t, Account{ExternalID: "U2", Role: RoleGuest, DisplayName: "Ben", Row: 3}, account)
	assert.Equal(t, []string{"U2", "guest", "Ben"}, backend.Row("Users", 3))
	assert.Equal(t, []string{"U2"}, notifier.newUsers)
}

func TestLoginKnownUser(t *testing.T) {
	svc, backend, notifier := newTestService(t)
	backend.Seed("Users", 2, [][]string{{"U1", "editor", "Amy"}})
	ctx := context.Background()

	account, err := svc.Login(ctx, "U1", "Amy")
	require.NoError(t, err)
	assert.Equal(t, RoleEditor, account.Role)
	assert.Equal(t, 0, backend.Calls(sheetstest.UpdateValues))

	account, err = svc.Login(ctx, "U1", "Amy Chen")
	require.NoError(t, err)
	assert.Equal(t, "Amy Chen", account.DisplayName)
	assert.Equal(t, 1, backend.Calls(sheetstest.UpdateValues))
	assert.Equal(t, "Amy Chen", backend.Cell("Users", "C2"))
	assert.Equal(t, "editor", backend.Cell("Users", "B2"))
	assert.Empty(t, notifier.newUsers)
}

func TestLoginNotificationFailureIsIgnored(t *testing.T) {
	svc, _, notifier := newTestService(t)
	notifier.err = errors.New("ntfy down")

	_, err := svc.Login(context.Background(), "U9", "Zed")
	assert.NoError(t, err)
}

func TestLoginRequiresID(t *testing.T) {
	svc, backend, _ := newTestService(t)

	_, err := svc.Login(context.Background(), "  ", "Zed")

	var verrs validator.ValidationErrors
	assert.True(t, errors.As(err, &verrs))
	assert.Equal(t, 0, backend.Calls(sheetstest.GetValues))
}

func TestSetRole(t *testing.T) {
	svc, backend, notifier := newTestService(t)
	backend.Seed("Users", 2, [][]string{
		{"U1", "admin", "Amy"},
		{"U2", "guest", "Ben"},
	})
	ctx := context.Background()

	account, err := svc.SetRole(ctx, "U2", "editor")
	require.NoError(t, err)

	assert.Equal(t, RoleEditor, account.Role)
	assert.Equal(t, "editor", backend.Cell("Users", "B3"))
	assert.Equal(t, []string{"U2=editor"}, notifier.changes)

	got, err := svc.Lookup(ctx, "U2")
	require.NoError(t, err)
	assert.Equal(t, RoleEditor, got.Role)
}

func TestSetRoleRejects(t *testing.T) {
	svc, backend, _ := newTestService(t)
	backend.Seed("Users", 2, [][]string{{"U1", "admin", "Amy"}})
	ctx := context.Background()

	_, err := svc.SetRole(ctx, "U1", "owner")
	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "oneof", verrs[0].Tag())

	_, err = svc.SetRole(ctx, "U404", "editor")
	assert.ErrorIs(t, err, store.ErrRecordNotFound)
	assert.Equal(t, 0, backend.Calls(sheetstest.UpdateValues))
}

func TestList(t *testing.T) {
	svc, backend, _ := newTestService(t)
	backend.Seed("Users", 2, [][]string{
		{"U1", "admin", "Amy"},
		{"", "", ""},
		{"U3", "", "Cat"},
	})

	accounts, err := svc.List(context.Background())
	require.NoError(t, err)

	require.Len(t, accounts, 2)
	assert.Equal(t, "U3", accounts[1].ExternalID)
	assert.Equal(t, RoleGuest, accounts[1].Role)
	assert.Equal(t, 4, accounts[1].Row)
}

func TestLoginStopsAtScanWindow(t *testing.T) {
	svc, backend, notifier := newTestService(t)
	rows := make([][]string, 0, 50)
	for i := 0; i < 50; i++ {
		rows = append(rows, []string{fmt.Sprintf("U%d", i), "guest", fmt.Sprintf("User %d", i)})
	}
	backend.Seed("Users", 2, rows)
	ctx := context.Background()

	_, err := svc.Login(ctx, "U-new", "Newcomer")
	assert.ErrorIs(t, err, ErrUserTableFull)
	assert.Equal(t, 0, backend.Calls(sheetstest.UpdateValues))
	assert.Empty(t, backend.Row("Users", 52))
	assert.Empty(t, notifier.newUsers)

	// people already in the window can still sign in
	account, err := svc.Login(ctx, "U49", "User 49")
	require.NoError(t, err)
	assert.Equal(t, 51, account.Row)
}

func TestAccountJSONIncludesCanEdit(t *testing.T) {
	data, err := json.Marshal(Account{ExternalID: "U1", Role: RoleEditor, DisplayName: "Amy", Row: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"externalId":"U1","role":"editor","displayName":"Amy","canEdit":true}`, string(data))

	data, err = json.Marshal(Account{ExternalID: "U2", Role: RoleGuest})
	require.NoError(t, err)
	assert.JSONEq(t, `{"externalId":"U2","role":"guest","displayName":"","canEdit":false}`, string(data))
}
