package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/isdelr/vs-recorder/internal/api/handlers"
	"github.com/isdelr/vs-recorder/internal/models"
	"github.com/isdelr/vs-recorder/internal/session"
)

func TestProfilePagePrefills(t *testing.T) {
	sess := signedIn()
	toasts := newToasts(t)
	h := handlers.NewProfileHandler(sess, toasts, newRenderer(t, sess, toasts), paths)

	rec := httptest.NewRecorder()
	h.Page(rec, httptest.NewRequest(http.MethodGet, "/profile", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `value="alice@example.com"`)
}

func TestProfileUpdateSendsOnlyChangedFields(t *testing.T) {
	sess := signedIn()
	toasts := newToasts(t)
	h := handlers.NewProfileHandler(sess, toasts, newRenderer(t, sess, toasts), paths)

	sess.On("UpdateUser", mock.Anything, mock.MatchedBy(func(u models.ProfileUpdate) bool {
		return u.Username == nil && u.Email != nil && *u.Email == "new@example.com"
	})).Return(models.UserProfile{ID: 7, Username: "alice", Email: "new@example.com"}, nil).Once()

	rec := httptest.NewRecorder()
	h.Update(rec, postForm("/profile", url.Values{"username": {"alice"}, "email": {"new@example.com"}}))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/profile", rec.Header().Get("Location"))
	assert.Len(t, toasts.List(), 1)
	sess.AssertExpectations(t)
}

func TestProfileUpdateValidation(t *testing.T) {
	sess := signedIn()
	toasts := newToasts(t)
	h := handlers.NewProfileHandler(sess, toasts, newRenderer(t, sess, toasts), paths)

	rec := httptest.NewRecorder()
	h.Update(rec, postForm("/profile", url.Values{"username": {"a b"}, "email": {"nope"}}))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please enter a valid email address")
	sess.AssertNotCalled(t, "UpdateUser", mock.Anything, mock.Anything)
}

func TestProfileUpdateAfterSignOut(t *testing.T) {
	sess := signedIn()
	toasts := newToasts(t)
	h := handlers.NewProfileHandler(sess, toasts, newRenderer(t, sess, toasts), paths)
	sess.On("UpdateUser", mock.Anything, mock.Anything).Return(models.UserProfile{}, session.ErrNotAuthenticated)

	rec := httptest.NewRecorder()
	h.Update(rec, postForm("/profile", url.Values{"username": {"alice2"}, "email": {"alice@example.com"}}))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, toasts.List())
}
