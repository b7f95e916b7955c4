package handlers

import (
	"net/http"

	"github.com/flosch/pongo2/v6"

	"github.com/isdelr/vs-recorder/internal/api/render"
	"github.com/isdelr/vs-recorder/internal/validate"
)

// ProfileHandler edits the signed-in user's profile locally.
type ProfileHandler struct {
	session SessionProvider
	toasts  Notifier
	render  *render.Renderer
	paths   Paths
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(sess SessionProvider, toasts Notifier, rd *render.Renderer, paths Paths) *ProfileHandler {
	return &ProfileHandler{session: sess, toasts: toasts, render: rd, paths: paths}
}

// Page renders the profile form filled with the current profile.
func (h *ProfileHandler) Page(w http.ResponseWriter, r *http.Request) {
	form := validate.ProfileForm{}
	if u := h.session.Snapshot().User; u != nil {
		form.Username, form.Email = u.Username, u.Email
	}
	_ = h.render.Render(w, r, http.StatusOK, "profile.html", pongo2.Context{"form": form})
}

// Update merges the edited fields into the session's profile.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	form := validate.ProfileForm{Username: r.PostFormValue("username"), Email: r.PostFormValue("email")}
	data := pongo2.Context{"form": form}

	if err := form.Validate(); err != nil {
		data["errors"] = validate.FieldErrors(err)
		_ = h.render.Render(w, r, http.StatusUnprocessableEntity, "profile.html", data)
		return
	}

	current := h.session.Snapshot().User
	if current == nil {
		http.Redirect(w, r, h.paths.SignIn, http.StatusFound)
		return
	}
	if _, err := h.session.UpdateUser(r.Context(), form.Update(*current)); err != nil {
		data["errors"] = map[string]string{validate.FormField: err.Error()}
		_ = h.render.Render(w, r, http.StatusConflict, "profile.html", data)
		return
	}

	h.toasts.Success("Profile updated.")
	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}
