package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/isdelr/vs-recorder/internal/client"
	"github.com/isdelr/vs-recorder/internal/credential"
	"github.com/isdelr/vs-recorder/internal/models"
	"github.com/isdelr/vs-recorder/internal/session"
)

type mockAuth struct {
	mock.Mock
}

func (m *mockAuth) Login(ctx context.Context, username, password string) (models.AuthResponse, error) {
	args := m.Called(ctx, username, password)
	return args.Get(0).(models.AuthResponse), args.Error(1)
}

func (m *mockAuth) Register(ctx context.Context, reg models.Registration) (models.AuthResponse, error) {
	args := m.Called(ctx, reg)
	return args.Get(0).(models.AuthResponse), args.Error(1)
}

func (m *mockAuth) Me(ctx context.Context) (models.UserProfile, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.UserProfile), args.Error(1)
}

type failingStore struct {
	credential.Store
}

func (failingStore) Save(context.Context, credential.Credential) error {
	return errors.New("disk full")
}

var (
	alice     = models.UserProfile{ID: 1, Username: "alice", Email: "a@x.com"}
	aliceResp = models.AuthResponse{Token: "t1", UserID: 1, Username: "alice", Email: "a@x.com"}
)

func bootstrapped(t *testing.T, auth *mockAuth, creds credential.Store) *session.Store {
	t.Helper()
	s := session.New(auth, creds)
	t.Cleanup(s.Teardown)
	s.Bootstrap(context.Background())
	return s
}

func persisted(t *testing.T, creds credential.Store) credential.Credential {
	t.Helper()
	c, err := creds.Load(context.Background())
	require.NoError(t, err)
	return c
}

func TestNewStartsLoading(t *testing.T) {
	s := session.New(&mockAuth{}, credential.NewMemoryStore())
	snap := s.Snapshot()
	assert.True(t, snap.Loading)
	assert.False(t, snap.Bootstrapped)
	assert.False(t, snap.IsAuthenticated())
	assert.Empty(t, s.Token())
}

func TestBootstrapWithoutTokenSkipsNetwork(t *testing.T) {
	auth := &mockAuth{}
	s := bootstrapped(t, auth, credential.NewMemoryStore())

	snap := s.Snapshot()
	assert.False(t, snap.Loading)
	assert.True(t, snap.Bootstrapped)
	assert.False(t, snap.IsAuthenticated())
	auth.AssertNotCalled(t, "Me", mock.Anything)

	select {
	case <-s.Ready():
	default:
		t.Fatal("ready channel not closed after bootstrap")
	}
}

func TestBootstrapRestoresSession(t *testing.T) {
	ctx := context.Background()
	creds := credential.NewMemoryStore()
	require.NoError(t, creds.Save(ctx, credential.Credential{Token: "t1"}))

	auth := &mockAuth{}
	auth.On("Me", mock.Anything).Return(alice, nil).Once()

	s := bootstrapped(t, auth, creds)

	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, "t1", s.Token())
	assert.Equal(t, "alice", s.Snapshot().User.Username)
	assert.Empty(t, s.Snapshot().Error)
	assert.Equal(t, &alice, persisted(t, creds).User)
	auth.AssertExpectations(t)
}

func TestBootstrapRejectedTokenClearsSlot(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"expired", &client.Error{Status: 401, Message: client.ExpiredMessage}},
		{"network", &client.Error{Message: client.NetworkErrorMessage, Err: errors.New("dial tcp")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			creds := credential.NewMemoryStore()
			require.NoError(t, creds.Save(ctx, credential.Credential{Token: "stale", User: &alice}))

			auth := &mockAuth{}
			auth.On("Me", mock.Anything).Return(models.UserProfile{}, tt.err).Once()

			s := bootstrapped(t, auth, creds)

			snap := s.Snapshot()
			assert.False(t, snap.IsAuthenticated())
			assert.False(t, snap.Loading)
			assert.Nil(t, snap.User)
			assert.Empty(t, snap.Error, "bootstrap failures are silent")
			assert.Empty(t, s.Token())
			assert.True(t, persisted(t, creds).Empty())
		})
	}
}

func TestBootstrapRunsOnce(t *testing.T) {
	ctx := context.Background()
	creds := credential.NewMemoryStore()
	require.NoError(t, creds.Save(ctx, credential.Credential{Token: "t1"}))

	auth := &mockAuth{}
	auth.On("Me", mock.Anything).Return(alice, nil).Once()

	s := session.New(auth, creds)
	defer s.Teardown()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Bootstrap(ctx)
		}()
	}
	wg.Wait()

	auth.AssertNumberOfCalls(t, "Me", 1)
}

func TestLoadingResolvesExactlyOnce(t *testing.T) {
	s := session.New(&mockAuth{}, credential.NewMemoryStore())
	defer s.Teardown()

	var resolved int
	s.Subscribe(func(snap session.Snapshot) {
		if snap.Reason == session.ReasonBootstrap {
			resolved++
			assert.False(t, snap.Loading)
		}
	})

	s.Init(context.Background())
	<-s.Ready()
	s.Bootstrap(context.Background())

	assert.Equal(t, 1, resolved)
}

func TestLoginSuccess(t *testing.T) {
	creds := credential.NewMemoryStore()
	auth := &mockAuth{}
	auth.On("Login", mock.Anything, "alice", "correctpw").Return(aliceResp, nil).Once()

	s := bootstrapped(t, auth, creds)

	resp, err := s.Login(context.Background(), "alice", "correctpw")
	require.NoError(t, err)
	assert.Equal(t, aliceResp, resp)

	snap := s.Snapshot()
	assert.True(t, snap.IsAuthenticated())
	assert.Equal(t, "alice", snap.User.Username)
	assert.Equal(t, session.ReasonLogin, snap.Reason)
	assert.False(t, snap.Loading)
	assert.Equal(t, "t1", persisted(t, creds).Token)
	assert.Equal(t, &alice, persisted(t, creds).User)
}

func TestLoginFailureDualDelivery(t *testing.T) {
	creds := credential.NewMemoryStore()
	auth := &mockAuth{}
	rejected := &client.Error{Status: 401, Message: "invalid credentials"}
	auth.On("Login", mock.Anything, "alice", "wrong").Return(models.AuthResponse{}, rejected).Once()

	s := bootstrapped(t, auth, creds)

	_, err := s.Login(context.Background(), "alice", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, rejected)

	snap := s.Snapshot()
	assert.False(t, snap.IsAuthenticated())
	assert.Equal(t, "invalid credentials", snap.Error)
	assert.False(t, snap.Loading)
	assert.True(t, persisted(t, creds).Empty())
}

func TestLoginClearsPreviousError(t *testing.T) {
	auth := &mockAuth{}
	auth.On("Login", mock.Anything, "alice", "wrong").
		Return(models.AuthResponse{}, &client.Error{Status: 401, Message: "invalid credentials"}).Once()
	auth.On("Login", mock.Anything, "alice", "correctpw").Return(aliceResp, nil).Once()

	s := bootstrapped(t, auth, credential.NewMemoryStore())

	_, _ = s.Login(context.Background(), "alice", "wrong")
	_, err := s.Login(context.Background(), "alice", "correctpw")
	require.NoError(t, err)
	assert.Empty(t, s.Snapshot().Error)
}

func TestRegisterSignsIn(t *testing.T) {
	creds := credential.NewMemoryStore()
	reg := models.Registration{Username: "alice", Email: "a@x.com", Password: "correctpw1"}

	auth := &mockAuth{}
	auth.On("Register", mock.Anything, reg).Return(aliceResp, nil).Once()

	s := bootstrapped(t, auth, creds)

	_, err := s.Register(context.Background(), reg)
	require.NoError(t, err)
	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, session.ReasonRegister, s.Snapshot().Reason)
	assert.Equal(t, "t1", persisted(t, creds).Token)
}

func TestLogoutClearsEverything(t *testing.T) {
	creds := credential.NewMemoryStore()
	auth := &mockAuth{}
	auth.On("Login", mock.Anything, "alice", "correctpw").Return(aliceResp, nil).Once()

	s := bootstrapped(t, auth, creds)
	_, err := s.Login(context.Background(), "alice", "correctpw")
	require.NoError(t, err)

	s.Logout()

	snap := s.Snapshot()
	assert.False(t, snap.IsAuthenticated())
	assert.Nil(t, snap.User)
	assert.Empty(t, s.Token())
	assert.Empty(t, snap.Error)
	assert.True(t, persisted(t, creds).Empty())

	// Idempotent, and never on the network.
	s.Logout()
	assert.False(t, s.IsAuthenticated())
	auth.AssertNumberOfCalls(t, "Login", 1)
	auth.AssertNotCalled(t, "Me", mock.Anything)
}

func TestStaleLoginAfterLogoutIsDiscarded(t *testing.T) {
	creds := credential.NewMemoryStore()
	release := make(chan struct{})
	started := make(chan struct{})

	auth := &mockAuth{}
	auth.On("Login", mock.Anything, "alice", "correctpw").
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(aliceResp, nil).Once()

	s := bootstrapped(t, auth, creds)

	errc := make(chan error, 1)
	go func() {
		_, err := s.Login(context.Background(), "alice", "correctpw")
		errc <- err
	}()

	<-started
	assert.True(t, s.Snapshot().Loading)
	s.Logout()
	close(release)

	assert.ErrorIs(t, <-errc, session.ErrSuperseded)
	assert.False(t, s.IsAuthenticated())
	assert.Empty(t, s.Token())
	assert.False(t, s.Snapshot().Loading)
	assert.True(t, persisted(t, creds).Empty())
}

func TestConcurrentLoginRejected(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	auth := &mockAuth{}
	auth.On("Login", mock.Anything, "alice", "correctpw").
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(aliceResp, nil).Once()

	s := bootstrapped(t, auth, credential.NewMemoryStore())

	errc := make(chan error, 1)
	go func() {
		_, err := s.Login(context.Background(), "alice", "correctpw")
		errc <- err
	}()
	<-started

	_, err := s.Login(context.Background(), "alice", "correctpw")
	assert.ErrorIs(t, err, session.ErrAuthInProgress)

	_, err = s.Register(context.Background(), models.Registration{Username: "bob"})
	assert.ErrorIs(t, err, session.ErrAuthInProgress)

	close(release)
	require.NoError(t, <-errc)
	assert.True(t, s.IsAuthenticated())
	auth.AssertNumberOfCalls(t, "Login", 1)
	auth.AssertNotCalled(t, "Register", mock.Anything, mock.Anything)
}

func TestPersistenceFailureIsNotFatal(t *testing.T) {
	auth := &mockAuth{}
	auth.On("Login", mock.Anything, "alice", "correctpw").Return(aliceResp, nil).Once()

	s := bootstrapped(t, auth, failingStore{credential.NewMemoryStore()})

	_, err := s.Login(context.Background(), "alice", "correctpw")
	require.NoError(t, err)
	assert.True(t, s.IsAuthenticated())
}

func TestUpdateUser(t *testing.T) {
	ctx := context.Background()
	creds := credential.NewMemoryStore()
	auth := &mockAuth{}
	auth.On("Login", mock.Anything, "alice", "correctpw").Return(aliceResp, nil).Once()

	s := bootstrapped(t, auth, creds)

	_, err := s.UpdateUser(ctx, models.ProfileUpdate{})
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)

	_, err = s.Login(ctx, "alice", "correctpw")
	require.NoError(t, err)

	email := "alice@new.com"
	updated, err := s.UpdateUser(ctx, models.ProfileUpdate{Email: &email})
	require.NoError(t, err)
	assert.Equal(t, models.UserProfile{ID: 1, Username: "alice", Email: email}, updated)

	assert.Equal(t, "t1", s.Token(), "token untouched")
	assert.Equal(t, email, s.Snapshot().User.Email)
	assert.Equal(t, "t1", persisted(t, creds).Token)
	assert.Equal(t, email, persisted(t, creds).User.Email)
}

func TestExpire(t *testing.T) {
	ctx := context.Background()
	creds := credential.NewMemoryStore()
	auth := &mockAuth{}
	auth.On("Login", mock.Anything, "alice", "correctpw").Return(aliceResp, nil).Once()

	s := bootstrapped(t, auth, creds)
	assert.False(t, s.Expire(ctx, "test"), "nothing to expire when signed out")

	_, err := s.Login(ctx, "alice", "correctpw")
	require.NoError(t, err)

	assert.True(t, s.Expire(ctx, "test"))
	assert.False(t, s.IsAuthenticated())
	assert.Equal(t, session.ReasonExpired, s.Snapshot().Reason)
	assert.True(t, persisted(t, creds).Empty())
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	renamed := alice
	renamed.Username = "alice_v2"

	auth := &mockAuth{}
	auth.On("Login", mock.Anything, "alice", "correctpw").Return(aliceResp, nil).Once()
	auth.On("Me", mock.Anything).Return(renamed, nil).Once()
	auth.On("Me", mock.Anything).Return(models.UserProfile{}, &client.Error{Status: 500, Message: "boom"}).Once()

	s := bootstrapped(t, auth, credential.NewMemoryStore())
	assert.ErrorIs(t, s.Refresh(ctx), session.ErrNotAuthenticated)

	_, err := s.Login(ctx, "alice", "correctpw")
	require.NoError(t, err)

	require.NoError(t, s.Refresh(ctx))
	assert.Equal(t, "alice_v2", s.Snapshot().User.Username)

	require.Error(t, s.Refresh(ctx))
	assert.True(t, s.IsAuthenticated(), "non-401 failures leave the session alone")
	assert.Equal(t, "alice_v2", s.Snapshot().User.Username)
}

func TestRefreshKeepsLocalEdits(t *testing.T) {
	ctx := context.Background()
	creds := credential.NewMemoryStore()
	auth := &mockAuth{}
	auth.On("Login", mock.Anything, "alice", "correctpw").Return(aliceResp, nil).Once()
	auth.On("Me", mock.Anything).Return(alice, nil).Twice()

	s := bootstrapped(t, auth, creds)
	_, err := s.Login(ctx, "alice", "correctpw")
	require.NoError(t, err)

	email := "new@x.com"
	_, err = s.UpdateUser(ctx, models.ProfileUpdate{Email: &email})
	require.NoError(t, err)

	require.NoError(t, s.Refresh(ctx))
	assert.Equal(t, email, s.Snapshot().User.Email)
	assert.Equal(t, "alice", s.Snapshot().User.Username)
	raw, ok := creds.Raw(credential.UserKey)
	require.True(t, ok)
	assert.Contains(t, raw, email)
	assert.NotContains(t, raw, alice.Email)

	// A new sign-in starts from the server's profile again.
	s.Logout()
	auth.On("Login", mock.Anything, "alice", "correctpw").Return(aliceResp, nil).Once()
	_, err = s.Login(ctx, "alice", "correctpw")
	require.NoError(t, err)
	require.NoError(t, s.Refresh(ctx))
	assert.Equal(t, alice.Email, s.Snapshot().User.Email)
	auth.AssertExpectations(t)
}

func TestBootstrapUnauthorizedIsSilent(t *testing.T) {
	ctx := context.Background()
	creds := credential.NewMemoryStore()
	require.NoError(t, creds.Save(ctx, credential.Credential{Token: "stale", User: &alice}))

	// The API client's 401 handler runs inside the Me call.
	var s *session.Store
	var expired bool
	auth := &mockAuth{}
	auth.On("Me", mock.Anything).Run(func(mock.Arguments) {
		expired = s.Expire(ctx, "api 401 /auth/me")
	}).Return(models.UserProfile{}, &client.Error{Status: 401, Message: client.ExpiredMessage}).Once()
	s = session.New(auth, creds)
	t.Cleanup(s.Teardown)

	var reasons []session.ChangeReason
	s.Subscribe(func(snap session.Snapshot) {
		reasons = append(reasons, snap.Reason)
	})

	s.Bootstrap(ctx)

	assert.False(t, expired, "bootstrap owns its own failure")
	assert.NotContains(t, reasons, session.ReasonExpired)
	assert.Equal(t, []session.ChangeReason{session.ReasonBootstrap}, reasons)
	snap := s.Snapshot()
	assert.True(t, snap.Bootstrapped)
	assert.False(t, snap.IsAuthenticated())
	assert.Empty(t, snap.Error)
	assert.True(t, persisted(t, creds).Empty())
	auth.AssertExpectations(t)
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	auth := &mockAuth{}
	auth.On("Login", mock.Anything, "alice", "correctpw").Return(aliceResp, nil).Once()

	s := bootstrapped(t, auth, credential.NewMemoryStore())

	var reasons []session.ChangeReason
	unsubscribe := s.Subscribe(func(snap session.Snapshot) {
		reasons = append(reasons, snap.Reason)
	})

	_, err := s.Login(context.Background(), "alice", "correctpw")
	require.NoError(t, err)
	unsubscribe()
	s.Logout()

	assert.Equal(t, []session.ChangeReason{session.ReasonPending, session.ReasonLogin}, reasons)
}

func TestTeardownKeepsPersistedSlot(t *testing.T) {
	ctx := context.Background()
	creds := credential.NewMemoryStore()
	auth := &mockAuth{}
	auth.On("Login", mock.Anything, "alice", "correctpw").Return(aliceResp, nil).Once()

	s := session.New(auth, creds)
	s.Bootstrap(ctx)
	_, err := s.Login(ctx, "alice", "correctpw")
	require.NoError(t, err)

	var calls int
	s.Subscribe(func(session.Snapshot) { calls++ })
	s.Teardown()
	s.Teardown()

	_, err = s.Login(ctx, "alice", "correctpw")
	assert.ErrorIs(t, err, session.ErrClosed)
	assert.Zero(t, calls)
	assert.Equal(t, "t1", persisted(t, creds).Token)
}

func TestTeardownReleasesReadyWithoutBootstrap(t *testing.T) {
	s := session.New(&mockAuth{}, credential.NewMemoryStore())
	s.Teardown()

	select {
	case <-s.Ready():
	case <-time.After(time.Second):
		t.Fatal("ready channel not closed by teardown")
	}
}

func TestAuthenticatedRequiresUserAndToken(t *testing.T) {
	tests := []struct {
		name string
		snap session.Snapshot
		want bool
	}{
		{"neither", session.Snapshot{}, false},
		{"token only", session.Snapshot{HasToken: true}, false},
		{"user only", session.Snapshot{User: &alice}, false},
		{"both", session.Snapshot{User: &alice, HasToken: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.snap.IsAuthenticated())
		})
	}
}
