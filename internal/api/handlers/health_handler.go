package handlers

import (
	"encoding/json"
	"net/http"
)

// HealthHandler reports liveness and whether the session has resolved.
type HealthHandler struct {
	session SessionProvider
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(sess SessionProvider) *HealthHandler {
	return &HealthHandler{session: sess}
}

// Get writes the health document.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap := h.session.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":        "ok",
		"bootstrapped":  snap.Bootstrapped,
		"authenticated": snap.IsAuthenticated(),
	})
}
