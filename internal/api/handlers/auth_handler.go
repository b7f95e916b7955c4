package handlers

import (
	"net/http"
	"strings"

	"github.com/flosch/pongo2/v6"
	"github.com/rs/zerolog/hlog"

	"github.com/isdelr/vs-recorder/internal/api/render"
	"github.com/isdelr/vs-recorder/internal/client"
	"github.com/isdelr/vs-recorder/internal/guard"
	"github.com/isdelr/vs-recorder/internal/services"
	"github.com/isdelr/vs-recorder/internal/validate"
)

// AuthHandler serves the sign-in, registration, password recovery and
// sign-out flows.
type AuthHandler struct {
	session  SessionProvider
	resetter PasswordResetter
	toasts   Notifier
	teams    services.TeamServiceProvider
	render   *render.Renderer
	paths    Paths
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(sess SessionProvider, resetter PasswordResetter, toasts Notifier, teams services.TeamServiceProvider, rd *render.Renderer, paths Paths) *AuthHandler {
	return &AuthHandler{session: sess, resetter: resetter, toasts: toasts, teams: teams, render: rd, paths: paths}
}

// LoginPage renders the sign-in form.
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	_ = h.render.Render(w, r, http.StatusOK, "login.html", pongo2.Context{
		"next": guard.SafeNext(r.URL.Query().Get("next"), ""),
	})
}

// Login handles the sign-in form.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	form := validate.LoginForm{Username: r.PostFormValue("username"), Password: r.PostFormValue("password")}
	next := guard.SafeNext(r.PostFormValue("next"), "")
	data := pongo2.Context{"form": form, "next": next}

	if err := form.Validate(); err != nil {
		data["errors"] = validate.FieldErrors(err)
		_ = h.render.Render(w, r, http.StatusUnprocessableEntity, "login.html", data)
		return
	}

	creds := form.Credentials()
	resp, err := h.session.Login(r.Context(), creds.Username, creds.Password)
	if err != nil {
		hlog.FromRequest(r).Info().Err(err).Str("username", creds.Username).Msg("Sign-in failed")
		data["errors"] = formErrors(err)
		_ = h.render.Render(w, r, formStatus(err), "login.html", data)
		return
	}

	h.toasts.Success("Welcome back, " + resp.Username + "!")
	http.Redirect(w, r, guard.SafeNext(next, h.paths.Landing), http.StatusSeeOther)
}

// RegisterPage renders the sign-up form.
func (h *AuthHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	_ = h.render.Render(w, r, http.StatusOK, "register.html", nil)
}

// Register handles the sign-up form.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	form := validate.RegisterForm{
		Username:        r.PostFormValue("username"),
		Email:           r.PostFormValue("email"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	}
	data := pongo2.Context{"form": form}

	if err := form.Validate(); err != nil {
		data["errors"] = validate.FieldErrors(err)
		_ = h.render.Render(w, r, http.StatusUnprocessableEntity, "register.html", data)
		return
	}

	resp, err := h.session.Register(r.Context(), form.Registration())
	if err != nil {
		hlog.FromRequest(r).Info().Err(err).Msg("Registration failed")
		data["errors"] = formErrors(err)
		_ = h.render.Render(w, r, formStatus(err), "register.html", data)
		return
	}

	h.toasts.Success("Welcome to VS Recorder, " + resp.Username + "!")
	http.Redirect(w, r, h.paths.Landing, http.StatusSeeOther)
}

// ForgotPasswordPage renders the recovery form.
func (h *AuthHandler) ForgotPasswordPage(w http.ResponseWriter, r *http.Request) {
	_ = h.render.Render(w, r, http.StatusOK, "forgot_password.html", nil)
}

// ForgotPassword handles the recovery form. The confirmation reads the same
// whether or not the address has an account.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	form := validate.ForgotPasswordForm{Email: strings.TrimSpace(r.PostFormValue("email"))}
	data := pongo2.Context{"form": form}

	if err := form.Validate(); err != nil {
		data["errors"] = validate.FieldErrors(err)
		_ = h.render.Render(w, r, http.StatusUnprocessableEntity, "forgot_password.html", data)
		return
	}

	if err := h.resetter.ForgotPassword(r.Context(), form.Email); err != nil {
		status := client.StatusOf(err)
		if status == 0 || status >= 500 {
			hlog.FromRequest(r).Warn().Err(err).Msg("Password reset request failed")
			data["errors"] = validate.FromAPIError(err)
			_ = h.render.Render(w, r, http.StatusBadGateway, "forgot_password.html", data)
			return
		}
		// A 4xx must not reveal whether the account exists.
		hlog.FromRequest(r).Debug().Err(err).Msg("Password reset rejected by API")
	}

	data["sent"] = true
	_ = h.render.Render(w, r, http.StatusOK, "forgot_password.html", data)
}

// Logout signs out locally and returns to the sign-in page.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.session.Logout()
	h.teams.Flush()
	h.toasts.Info("You have been signed out.")
	http.Redirect(w, r, h.paths.SignIn, http.StatusSeeOther)
}
