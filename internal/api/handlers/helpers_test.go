package handlers_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/flosch/pongo2/v6"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/isdelr/vs-recorder/internal/api/handlers"
	"github.com/isdelr/vs-recorder/internal/api/render"
	"github.com/isdelr/vs-recorder/internal/models"
	"github.com/isdelr/vs-recorder/internal/session"
	"github.com/isdelr/vs-recorder/internal/toast"
)

var paths = handlers.Paths{SignIn: "/login", Landing: "/dashboard"}

type mockSession struct {
	mock.Mock
	mu   sync.Mutex
	snap session.Snapshot
}

func signedIn() *mockSession {
	return &mockSession{snap: session.Snapshot{
		User:         &models.UserProfile{ID: 7, Username: "alice", Email: "alice@example.com"},
		HasToken:     true,
		Bootstrapped: true,
	}}
}

func (m *mockSession) Snapshot() session.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

func (m *mockSession) Login(ctx context.Context, username, password string) (models.AuthResponse, error) {
	args := m.Called(ctx, username, password)
	return args.Get(0).(models.AuthResponse), args.Error(1)
}

func (m *mockSession) Register(ctx context.Context, reg models.Registration) (models.AuthResponse, error) {
	args := m.Called(ctx, reg)
	return args.Get(0).(models.AuthResponse), args.Error(1)
}

func (m *mockSession) Logout() {
	m.Called()
}

func (m *mockSession) UpdateUser(ctx context.Context, upd models.ProfileUpdate) (models.UserProfile, error) {
	args := m.Called(ctx, upd)
	return args.Get(0).(models.UserProfile), args.Error(1)
}

type mockTeams struct {
	mock.Mock
}

func (m *mockTeams) ListTeams(ctx context.Context, userID int64) ([]models.Team, error) {
	args := m.Called(ctx, userID)
	teams, _ := args.Get(0).([]models.Team)
	return teams, args.Error(1)
}

func (m *mockTeams) Dashboard(ctx context.Context, userID int64) ([]models.TeamSummary, error) {
	args := m.Called(ctx, userID)
	summaries, _ := args.Get(0).([]models.TeamSummary)
	return summaries, args.Error(1)
}

func (m *mockTeams) Detail(ctx context.Context, id int64) (models.TeamDetail, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.TeamDetail), args.Error(1)
}

func (m *mockTeams) Export(ctx context.Context, id int64) (models.TeamBundle, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.TeamBundle), args.Error(1)
}

func (m *mockTeams) Import(ctx context.Context, userID int64, bundle models.TeamBundle) (models.Team, error) {
	args := m.Called(ctx, userID, bundle)
	return args.Get(0).(models.Team), args.Error(1)
}

func (m *mockTeams) Delete(ctx context.Context, userID, id int64) error {
	return m.Called(ctx, userID, id).Error(0)
}

func (m *mockTeams) Invalidate(userID int64) { m.Called(userID) }

func (m *mockTeams) Flush() { m.Called() }

type fakeEvents struct {
	events []models.Event
	err    error
}

func (f *fakeEvents) CreateEvent(string, string, string) error { return nil }

func (f *fakeEvents) GetRecentEvents(limit int) ([]models.Event, error) {
	if len(f.events) > limit {
		return f.events[:limit], f.err
	}
	return f.events, f.err
}

func (f *fakeEvents) PruneEvents(time.Time) (int64, error) { return 0, nil }

type fakePasswords struct {
	err   error
	email string
}

func (f *fakePasswords) ForgotPassword(_ context.Context, email string) error {
	f.email = email
	return f.err
}

func newRenderer(t *testing.T, sess handlers.SessionProvider, toasts handlers.Notifier) *render.Renderer {
	t.Helper()
	rd, err := render.New(func(r *http.Request) pongo2.Context {
		snap := sess.Snapshot()
		return pongo2.Context{
			"authenticated": snap.IsAuthenticated(),
			"user":          snap.User,
			"toasts":        toasts.List(),
			"path":          r.URL.Path,
			"signInPath":    paths.SignIn,
			"landingPath":   paths.Landing,
		}
	})
	require.NoError(t, err)
	return rd
}

func newToasts(t *testing.T) *toast.Notifier {
	t.Helper()
	n := toast.New(toast.WithDefaultDuration(0))
	t.Cleanup(n.Close)
	return n
}
