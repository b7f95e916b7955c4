// Package guard gates pages on the auth session. RequireAuth lets only
// signed-in users through; PublicOnly lets only anonymous users through.
// While the session is still loading both render a placeholder and never
// redirect.
package guard

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/hlog"

	"github.com/isdelr/vs-recorder/internal/session"
)

// Decision is what a guard does with a request.
type Decision int

const (
	Render Decision = iota
	Placeholder
	Redirect
)

func (d Decision) String() string {
	switch d {
	case Render:
		return "render"
	case Placeholder:
		return "placeholder"
	case Redirect:
		return "redirect"
	}
	return "unknown"
}

// SnapshotSource is satisfied by *session.Store.
type SnapshotSource interface {
	Snapshot() session.Snapshot
}

// DecideAuthenticated is the authenticated-only guard's decision.
func DecideAuthenticated(s session.Snapshot) Decision {
	switch {
	case s.Loading:
		return Placeholder
	case s.IsAuthenticated():
		return Render
	default:
		return Redirect
	}
}

// DecidePublic is the public-only guard's decision.
func DecidePublic(s session.Snapshot) Decision {
	switch {
	case s.Loading:
		return Placeholder
	case s.IsAuthenticated():
		return Redirect
	default:
		return Render
	}
}

// PlaceholderFunc writes the page shown while the session is loading.
type PlaceholderFunc func(w http.ResponseWriter, r *http.Request)

type options struct {
	signIn      string
	landing     string
	placeholder PlaceholderFunc
}

// Option customizes a guard.
type Option func(*options)

// WithSignInPath sets where RequireAuth sends anonymous users.
func WithSignInPath(p string) Option {
	return func(o *options) {
		if p != "" {
			o.signIn = p
		}
	}
}

// WithLandingPath sets where PublicOnly sends signed-in users.
func WithLandingPath(p string) Option {
	return func(o *options) {
		if p != "" {
			o.landing = p
		}
	}
}

// WithPlaceholder replaces the built-in loading page.
func WithPlaceholder(f PlaceholderFunc) Option {
	return func(o *options) {
		if f != nil {
			o.placeholder = f
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{signIn: "/login", landing: "/dashboard", placeholder: DefaultPlaceholder}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// RequireAuth renders the wrapped handler only for a resolved, authenticated
// session. Anonymous requests are redirected to sign-in with the requested
// path in ?next=.
func RequireAuth(src SnapshotSource, opts ...Option) func(http.Handler) http.Handler {
	o := buildOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch DecideAuthenticated(src.Snapshot()) {
			case Render:
				next.ServeHTTP(w, r)
			case Placeholder:
				o.placeholder(w, r)
			case Redirect:
				target := o.signIn
				if r.URL.Path != o.signIn {
					target += "?next=" + url.QueryEscape(r.URL.RequestURI())
				}
				hlog.FromRequest(r).Debug().Str("path", r.URL.Path).Msg("Redirecting anonymous request to sign-in")
				http.Redirect(w, r, target, http.StatusFound)
			}
		})
	}
}

// PublicOnly renders the wrapped handler only for a resolved, anonymous
// session. Signed-in users are sent to the landing page.
func PublicOnly(src SnapshotSource, opts ...Option) func(http.Handler) http.Handler {
	o := buildOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch DecidePublic(src.Snapshot()) {
			case Render:
				next.ServeHTTP(w, r)
			case Placeholder:
				o.placeholder(w, r)
			case Redirect:
				http.Redirect(w, r, o.landing, http.StatusFound)
			}
		})
	}
}

// SafeNext returns next when it is a local path, otherwise fallback. It keeps
// the sign-in page from becoming an open redirect.
func SafeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	return next
}

const placeholderPage = `<!doctype html>
<html><head><meta charset="utf-8"><meta http-equiv="refresh" content="1"><title>Loading…</title></head>
<body><div class="spinner" role="status" aria-label="Loading"></div></body></html>`

// DefaultPlaceholder is a bare spinner page that reloads itself every second.
func DefaultPlaceholder(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(placeholderPage))
}
