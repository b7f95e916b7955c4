// Package render turns pongo2 templates embedded in the binary into pages.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/flosch/pongo2/v6"
	"github.com/rs/zerolog/hlog"

	"github.com/isdelr/vs-recorder/internal/timefmt"
)

//go:embed templates/*.html
var templateFS embed.FS

var registerFilters sync.Once

// ContextFunc supplies the values every page needs (session, toasts, paths).
type ContextFunc func(r *http.Request) pongo2.Context

// Renderer renders named templates with a per-request base context.
type Renderer struct {
	set  *pongo2.TemplateSet
	base ContextFunc
	now  func() time.Time
}

// New creates a renderer over the embedded templates.
func New(base ContextFunc) (*Renderer, error) {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}
	registerFilters.Do(installFilters)

	r := &Renderer{
		set:  pongo2.NewSet("pages", pongo2.NewFSLoader(sub)),
		base: base,
		now:  time.Now,
	}
	return r, nil
}

// Render writes template name with status. On a template failure it answers
// 500 with a plain-text body; the error is returned for logging.
func (rd *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, name string, data pongo2.Context) error {
	body, err := rd.Execute(r, name, data)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("template", name).Msg("Failed to render template")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err = w.Write(body)
	return err
}

// Execute renders name to bytes.
func (rd *Renderer) Execute(r *http.Request, name string, data pongo2.Context) ([]byte, error) {
	tpl, err := rd.set.FromCache(name)
	if err != nil {
		return nil, fmt.Errorf("load template %s: %w", name, err)
	}

	ctx := pongo2.Context{"now": rd.now()}
	if rd.base != nil && r != nil {
		ctx = ctx.Update(rd.base(r))
	}
	ctx = ctx.Update(data)

	var buf bytes.Buffer
	if err := tpl.ExecuteWriter(ctx, &buf); err != nil {
		return nil, fmt.Errorf("execute template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// Placeholder renders the loading page the route guards show while the
// session is still resolving.
func (rd *Renderer) Placeholder(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Retry-After", "1")
	_ = rd.Render(w, r, http.StatusOK, "loading.html", nil)
}

func installFilters() {
	filters := map[string]pongo2.FilterFunction{
		"timeago":  filterTimeAgo,
		"date":     filterDate,
		"datetime": filterDateTime,
	}
	for name, fn := range filters {
		if pongo2.FilterExists(name) {
			_ = pongo2.ReplaceFilter(name, fn)
		} else {
			_ = pongo2.RegisterFilter(name, fn)
		}
	}
}

func filterTimeAgo(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	return pongo2.AsValue(timefmt.TimeAgo(in.Interface(), time.Now())), nil
}

func filterDate(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	return pongo2.AsValue(timefmt.FormatDate(in.Interface(), time.Local)), nil
}

func filterDateTime(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	return pongo2.AsValue(timefmt.FormatDateTime(in.Interface(), time.Local)), nil
}
