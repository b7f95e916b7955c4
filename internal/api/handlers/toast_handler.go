package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/isdelr/vs-recorder/internal/guard"
)

// ToastHandler exposes the toast queue to pages without websocket support.
type ToastHandler struct {
	toasts Notifier
	paths  Paths
}

// NewToastHandler creates a new ToastHandler.
func NewToastHandler(toasts Notifier, paths Paths) *ToastHandler {
	return &ToastHandler{toasts: toasts, paths: paths}
}

// List returns the queued toasts as JSON, oldest first.
func (h *ToastHandler) List(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.toasts.List())
}

// Dismiss closes one toast.
func (h *ToastHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	found := h.toasts.Dismiss(chi.URLParam(r, "id"))

	if wantsJSON(r) {
		if !found {
			http.Error(w, "toast not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	back := h.paths.Landing
	if ref := r.Referer(); ref != "" {
		if u, err := r.URL.Parse(ref); err == nil && u.Host == r.Host {
			back = guard.SafeNext(u.RequestURI(), h.paths.Landing)
		}
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
}
