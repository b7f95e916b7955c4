package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/flosch/pongo2/v6"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/sync/errgroup"

	"github.com/isdelr/vs-recorder/internal/api/render"
	"github.com/isdelr/vs-recorder/internal/models"
	"github.com/isdelr/vs-recorder/internal/services"
	"github.com/isdelr/vs-recorder/internal/validate"
)

const recentActivity = 10

// MaxImportBytes caps the size of an import request.
const MaxImportBytes = 2 << 20

// TeamHandler serves the dashboard, team pages and import/export.
type TeamHandler struct {
	session SessionProvider
	teams   services.TeamServiceProvider
	events  services.EventServiceProvider
	toasts  Notifier
	render  *render.Renderer
	paths   Paths
}

// NewTeamHandler creates a new TeamHandler.
func NewTeamHandler(sess SessionProvider, teams services.TeamServiceProvider, events services.EventServiceProvider, toasts Notifier, rd *render.Renderer, paths Paths) *TeamHandler {
	return &TeamHandler{session: sess, teams: teams, events: events, toasts: toasts, render: rd, paths: paths}
}

func (h *TeamHandler) userID() int64 {
	if u := h.session.Snapshot().User; u != nil {
		return u.ID
	}
	return 0
}

// Dashboard lists the user's teams with their records next to recent activity.
func (h *TeamHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	var (
		summaries []models.TeamSummary
		events    []models.Event
	)

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		summaries, err = h.teams.Dashboard(ctx, h.userID())
		return err
	})
	g.Go(func() error {
		var err error
		if events, err = h.events.GetRecentEvents(recentActivity); err != nil {
			// Logged only; the page renders without activity.
			hlog.FromRequest(r).Error().Err(err).Msg("Failed to retrieve events")
		}
		return nil
	})

	err := g.Wait()
	data := pongo2.Context{"events": events}
	if err != nil {
		apiFailure(w, r, h.render, h.paths, err, "dashboard.html", data)
		return
	}
	data["summaries"] = summaries
	_ = h.render.Render(w, r, http.StatusOK, "dashboard.html", data)
}

// Detail shows one team, its replays and its record.
func (h *TeamHandler) Detail(w http.ResponseWriter, r *http.Request) {
	id, ok := teamID(r)
	if !ok {
		NotFound(h.render)(w, r)
		return
	}
	detail, err := h.teams.Detail(r.Context(), id)
	if err != nil {
		apiFailure(w, r, h.render, h.paths, err, "dashboard.html", nil)
		return
	}
	_ = h.render.Render(w, r, http.StatusOK, "team.html", pongo2.Context{"detail": detail})
}

// Export downloads a team as a JSON bundle.
func (h *TeamHandler) Export(w http.ResponseWriter, r *http.Request) {
	id, ok := teamID(r)
	if !ok {
		NotFound(h.render)(w, r)
		return
	}
	bundle, err := h.teams.Export(r.Context(), id)
	if err != nil {
		apiFailure(w, r, h.render, h.paths, err, "dashboard.html", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, exportFilename(bundle.Team)))
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(bundle); err != nil {
		hlog.FromRequest(r).Error().Err(err).Int64("team_id", id).Msg("Failed to write export")
	}
}

// Delete removes a team.
func (h *TeamHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := teamID(r)
	if !ok {
		NotFound(h.render)(w, r)
		return
	}
	if err := h.teams.Delete(r.Context(), h.userID(), id); err != nil {
		apiFailure(w, r, h.render, h.paths, err, "dashboard.html", nil)
		return
	}
	h.toasts.Success("Team deleted.")
	http.Redirect(w, r, h.paths.Landing, http.StatusSeeOther)
}

// ImportPage renders the upload form.
func (h *TeamHandler) ImportPage(w http.ResponseWriter, r *http.Request) {
	_ = h.render.Render(w, r, http.StatusOK, "import.html", nil)
}

// Import reads a bundle from an uploaded file or the pasted text and sends it
// to the API.
func (h *TeamHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxImportBytes)
	raw, err := readBundle(r)
	if err != nil {
		h.importError(w, r, http.StatusBadRequest, map[string]string{validate.FormField: err.Error()})
		return
	}

	var bundle models.TeamBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		h.importError(w, r, http.StatusUnprocessableEntity, map[string]string{validate.FormField: "That file is not a VS Recorder export."})
		return
	}
	if err := validate.Bundle(bundle); err != nil {
		h.importError(w, r, http.StatusUnprocessableEntity, validate.FieldErrors(err))
		return
	}

	team, err := h.teams.Import(r.Context(), h.userID(), bundle)
	if err != nil {
		apiFailure(w, r, h.render, h.paths, err, "import.html", nil)
		return
	}
	h.toasts.Success(fmt.Sprintf("Imported %s with %d replays.", team.Name, len(bundle.Replays)))
	http.Redirect(w, r, fmt.Sprintf("/teams/%d", team.ID), http.StatusSeeOther)
}

func (h *TeamHandler) importError(w http.ResponseWriter, r *http.Request, status int, errs map[string]string) {
	_ = h.render.Render(w, r, status, "import.html", pongo2.Context{"errors": errs})
}

var errNoBundle = errors.New("Choose an exported file or paste its contents.")

func readBundle(r *http.Request) ([]byte, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(MaxImportBytes); err != nil {
			return nil, errors.New("The upload could not be read.")
		}
		if file, _, err := r.FormFile("bundle"); err == nil {
			defer file.Close()
			raw, err := io.ReadAll(file)
			if err != nil {
				return nil, errors.New("The upload could not be read.")
			}
			if len(strings.TrimSpace(string(raw))) > 0 {
				return raw, nil
			}
		}
	} else if err := r.ParseForm(); err != nil {
		return nil, errors.New("The upload could not be read.")
	}

	if payload := strings.TrimSpace(r.PostFormValue("payload")); payload != "" {
		return []byte(payload), nil
	}
	return nil, errNoBundle
}

func teamID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

var unsafeFilename = regexp.MustCompile(`[^a-z0-9]+`)

func exportFilename(t models.Team) string {
	slug := strings.Trim(unsafeFilename.ReplaceAllString(strings.ToLower(t.Name), "-"), "-")
	if slug == "" {
		slug = strconv.FormatInt(t.ID, 10)
	}
	return "vs-recorder-" + slug + ".json"
}
