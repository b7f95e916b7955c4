package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/isdelr/vs-recorder/internal/api/handlers"
	"github.com/isdelr/vs-recorder/internal/client"
	"github.com/isdelr/vs-recorder/internal/models"
	"github.com/isdelr/vs-recorder/internal/session"
)

type authFixture struct {
	sess      *mockSession
	teams     *mockTeams
	passwords *fakePasswords
	handler   *handlers.AuthHandler
	toasts    interface{ List() []models.Toast }
}

func newAuthFixture(t *testing.T) *authFixture {
	sess := &mockSession{snap: session.Snapshot{Bootstrapped: true}}
	teams := &mockTeams{}
	passwords := &fakePasswords{}
	toasts := newToasts(t)
	h := handlers.NewAuthHandler(sess, passwords, toasts, teams, newRenderer(t, sess, toasts), paths)
	return &authFixture{sess: sess, teams: teams, passwords: passwords, handler: h, toasts: toasts}
}

func postForm(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestLoginPageKeepsOnlyLocalNext(t *testing.T) {
	f := newAuthFixture(t)

	rec := httptest.NewRecorder()
	f.handler.LoginPage(rec, httptest.NewRequest(http.MethodGet, "/login?next=%2Fteams%2F3", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="next" value="/teams/3"`)

	rec = httptest.NewRecorder()
	f.handler.LoginPage(rec, httptest.NewRequest(http.MethodGet, "/login?next=https%3A%2F%2Fevil.example", nil))
	assert.NotContains(t, rec.Body.String(), "evil.example")
}

func TestLoginValidation(t *testing.T) {
	f := newAuthFixture(t)

	rec := httptest.NewRecorder()
	f.handler.Login(rec, postForm("/login", url.Values{"username": {""}, "password": {""}}))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Username is required")
	assert.Contains(t, rec.Body.String(), "Password is required")
	f.sess.AssertNotCalled(t, "Login", mock.Anything, mock.Anything, mock.Anything)
}

func TestLoginSuccessRedirectsToNext(t *testing.T) {
	tests := []struct {
		name string
		next string
		want string
	}{
		{name: "local next", next: "/teams/3", want: "/teams/3"},
		{name: "no next", next: "", want: "/dashboard"},
		{name: "external next", next: "//evil.example/x", want: "/dashboard"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t)
			f.sess.On("Login", mock.Anything, "alice", "hunter22").
				Return(models.AuthResponse{Token: "tok", UserID: 7, Username: "alice"}, nil)

			rec := httptest.NewRecorder()
			f.handler.Login(rec, postForm("/login", url.Values{
				"username": {"  alice "}, "password": {"hunter22"}, "next": {tt.next},
			}))

			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, tt.want, rec.Header().Get("Location"))
			require.Len(t, f.toasts.List(), 1)
			assert.Equal(t, models.ToastSuccess, f.toasts.List()[0].Kind)
			f.sess.AssertExpectations(t)
		})
	}
}

func TestLoginFailureRendersBanner(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		banner string
	}{
		{
			name:   "rejected credentials",
			err:    &client.Error{Status: http.StatusUnauthorized, Message: "Invalid username or password"},
			status: http.StatusUnprocessableEntity,
			banner: "Invalid username or password",
		},
		{
			name:   "network failure",
			err:    &client.Error{Message: client.NetworkErrorMessage},
			status: http.StatusBadGateway,
			banner: client.NetworkErrorMessage,
		},
		{
			name:   "already signing in",
			err:    session.ErrAuthInProgress,
			status: http.StatusConflict,
			banner: "already in progress",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t)
			f.sess.On("Login", mock.Anything, "alice", "wrong").Return(models.AuthResponse{}, tt.err)

			rec := httptest.NewRecorder()
			f.handler.Login(rec, postForm("/login", url.Values{"username": {"alice"}, "password": {"wrong"}}))

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.banner)
			assert.Contains(t, rec.Body.String(), `value="alice"`, "the username is kept")
			assert.Empty(t, f.toasts.List())
		})
	}
}

func TestRegister(t *testing.T) {
	t.Run("mismatched confirmation", func(t *testing.T) {
		f := newAuthFixture(t)
		rec := httptest.NewRecorder()
		f.handler.Register(rec, postForm("/register", url.Values{
			"username": {"alice"}, "email": {"alice@example.com"},
			"password": {"hunter22"}, "confirm_password": {"hunter23"},
		}))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "Passwords do not match")
	})

	t.Run("taken username maps onto the field", func(t *testing.T) {
		f := newAuthFixture(t)
		f.sess.On("Register", mock.Anything, models.Registration{Username: "alice", Email: "alice@example.com", Password: "hunter22"}).
			Return(models.AuthResponse{}, &client.Error{Status: http.StatusConflict, Code: "USERNAME_TAKEN", Message: "Username already exists"})

		rec := httptest.NewRecorder()
		f.handler.Register(rec, postForm("/register", url.Values{
			"username": {"alice"}, "email": {"alice@example.com"},
			"password": {"hunter22"}, "confirm_password": {"hunter22"},
		}))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "Username already exists")
	})

	t.Run("success", func(t *testing.T) {
		f := newAuthFixture(t)
		f.sess.On("Register", mock.Anything, mock.AnythingOfType("models.Registration")).
			Return(models.AuthResponse{Token: "tok", UserID: 8, Username: "bob"}, nil)

		rec := httptest.NewRecorder()
		f.handler.Register(rec, postForm("/register", url.Values{
			"username": {"bob"}, "email": {"bob@example.com"},
			"password": {"hunter22"}, "confirm_password": {"hunter22"},
		}))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	})
}

func TestForgotPassword(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		want   string
	}{
		{name: "accepted", status: http.StatusOK, want: "a reset link is on its way"},
		{name: "unknown address reads the same", err: &client.Error{Status: http.StatusNotFound, Message: "No such user"}, status: http.StatusOK, want: "a reset link is on its way"},
		{name: "server failure", err: &client.Error{Status: http.StatusInternalServerError, Message: "Mail is down"}, status: http.StatusBadGateway, want: "Mail is down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t)
			f.passwords.err = tt.err

			rec := httptest.NewRecorder()
			f.handler.ForgotPassword(rec, postForm("/forgot-password", url.Values{"email": {" alice@example.com "}}))

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
			assert.Equal(t, "alice@example.com", f.passwords.email)
		})
	}
}

func TestLogout(t *testing.T) {
	f := newAuthFixture(t)
	f.sess.On("Logout").Once()
	f.teams.On("Flush").Once()

	rec := httptest.NewRecorder()
	f.handler.Logout(rec, httptest.NewRequest(http.MethodPost, "/logout", nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	f.sess.AssertExpectations(t)
	f.teams.AssertExpectations(t)
}
