package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/flosch/pongo2/v6"
	"github.com/rs/zerolog/hlog"

	"github.com/isdelr/vs-recorder/internal/api/render"
	"github.com/isdelr/vs-recorder/internal/client"
	"github.com/isdelr/vs-recorder/internal/models"
	"github.com/isdelr/vs-recorder/internal/session"
	"github.com/isdelr/vs-recorder/internal/toast"
	"github.com/isdelr/vs-recorder/internal/validate"
)

// SessionProvider is the part of *session.Store the page handlers use.
type SessionProvider interface {
	Snapshot() session.Snapshot
	Login(ctx context.Context, username, password string) (models.AuthResponse, error)
	Register(ctx context.Context, reg models.Registration) (models.AuthResponse, error)
	Logout()
	UpdateUser(ctx context.Context, upd models.ProfileUpdate) (models.UserProfile, error)
}

// PasswordResetter starts the password recovery flow.
type PasswordResetter interface {
	ForgotPassword(ctx context.Context, email string) error
}

// Notifier is the part of *toast.Notifier the handlers use.
type Notifier interface {
	Success(message string, opts ...toast.ShowOption) models.Toast
	Info(message string, opts ...toast.ShowOption) models.Toast
	Warning(message string, opts ...toast.ShowOption) models.Toast
	Error(message string, opts ...toast.ShowOption) models.Toast
	Dismiss(id string) bool
	List() []models.Toast
}

// Paths are the two fixed destinations the guards and handlers redirect to.
type Paths struct {
	SignIn  string
	Landing string
}

// formStatus picks the status for a form re-rendered after a failed call.
func formStatus(err error) int {
	if errors.Is(err, session.ErrAuthInProgress) || errors.Is(err, session.ErrSuperseded) {
		return http.StatusConflict
	}
	status := client.StatusOf(err)
	if status == 0 || status >= 500 {
		return http.StatusBadGateway
	}
	return http.StatusUnprocessableEntity
}

// formErrors maps a failed call onto the form. Session races get their own
// message; everything else goes through the API's structured field map.
func formErrors(err error) map[string]string {
	switch {
	case errors.Is(err, session.ErrAuthInProgress):
		return map[string]string{validate.FormField: "A sign-in request is already in progress."}
	case errors.Is(err, session.ErrSuperseded):
		return map[string]string{validate.FormField: "Your session changed while this request was running. Please try again."}
	}
	return validate.FromAPIError(err)
}

// apiFailure answers a page whose API call failed. A 401 has already expired
// the session through the client's global handler, so the user is sent to
// sign-in; a 404 renders not-found; anything else re-renders page with a
// banner.
func apiFailure(w http.ResponseWriter, r *http.Request, rd *render.Renderer, paths Paths, err error, page string, data pongo2.Context) {
	switch client.StatusOf(err) {
	case http.StatusUnauthorized:
		http.Redirect(w, r, paths.SignIn+"?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
		return
	case http.StatusNotFound:
		NotFound(rd)(w, r)
		return
	}

	hlog.FromRequest(r).Warn().Err(err).Str("path", r.URL.Path).Msg("API call failed")
	if data == nil {
		data = pongo2.Context{}
	}
	data["errors"] = map[string]string{validate.FormField: err.Error()}
	_ = rd.Render(w, r, http.StatusBadGateway, page, data)
}

// NotFound renders the not-found page.
func NotFound(rd *render.Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = rd.Render(w, r, http.StatusNotFound, "not_found.html", nil)
	}
}

func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return accept == "application/json" || r.Header.Get("X-Requested-With") == "XMLHttpRequest"
}
