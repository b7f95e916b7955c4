package api

import (
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"

	"github.com/flosch/pongo2/v6"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/csrf"
	"github.com/gorilla/securecookie"
	"github.com/rs/zerolog/hlog"

	"github.com/isdelr/vs-recorder/internal/api/handlers"
	"github.com/isdelr/vs-recorder/internal/api/render"
	"github.com/isdelr/vs-recorder/internal/guard"
	"github.com/isdelr/vs-recorder/internal/logger"
	"github.com/isdelr/vs-recorder/internal/services"
	"github.com/isdelr/vs-recorder/internal/websocket"
)

// Deps is everything the router wires into handlers.
type Deps struct {
	Session        handlers.SessionProvider
	Resetter       handlers.PasswordResetter
	Toasts         handlers.Notifier
	Teams          services.TeamServiceProvider
	Events         services.EventServiceProvider
	Hub            *websocket.Hub
	Renderer       *render.Renderer
	Metrics        http.Handler
	Paths          handlers.Paths
	AllowedOrigins []string
	// CSRFKey signs the CSRF cookie. A random key is used when empty, so
	// forms rendered before a restart are rejected after it.
	CSRFKey []byte
}

// CSRFField is the form field carrying the CSRF token.
const CSRFField = "_token"

// BaseContext returns the values every page is rendered with.
func BaseContext(sess handlers.SessionProvider, toasts handlers.Notifier, paths handlers.Paths) render.ContextFunc {
	return func(r *http.Request) pongo2.Context {
		snap := sess.Snapshot()
		return pongo2.Context{
			"session":       snap,
			"authenticated": snap.IsAuthenticated(),
			"user":          snap.User,
			"toasts":        toasts.List(),
			"path":          r.URL.Path,
			"signInPath":    paths.SignIn,
			"landingPath":   paths.Landing,
			"csrfToken":     csrf.Token(r),
		}
	}
}

// NewRouter creates and configures a new Chi router.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RealIP)
	r.Use(logger.Middleware()...)
	r.Use(errorBoundary(d.Renderer, d.Paths.Landing))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Every state-changing request must carry the token from a page this
	// server rendered, and must not come from a foreign origin.
	r.Use(middleware.RequestSize(handlers.MaxImportBytes))
	r.Use(plaintextHTTP)
	r.Use(csrf.Protect(csrfKey(d.CSRFKey),
		csrf.FieldName(CSRFField),
		csrf.Path("/"),
		csrf.Secure(false),
		csrf.SameSite(csrf.SameSiteStrictMode),
		csrf.TrustedOrigins(originHosts(d.AllowedOrigins)),
		csrf.ErrorHandler(http.HandlerFunc(csrfRejected)),
	))

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(d.Session, d.Resetter, d.Toasts, d.Teams, d.Renderer, d.Paths)
	teamHandler := handlers.NewTeamHandler(d.Session, d.Teams, d.Events, d.Toasts, d.Renderer, d.Paths)
	profileHandler := handlers.NewProfileHandler(d.Session, d.Toasts, d.Renderer, d.Paths)
	toastHandler := handlers.NewToastHandler(d.Toasts, d.Paths)
	eventHandler := handlers.NewEventHandler(d.Events)
	wsHandler := handlers.NewWebSocketHandler(d.Hub, d.Toasts, d.AllowedOrigins)
	healthHandler := handlers.NewHealthHandler(d.Session)

	guardOpts := []guard.Option{
		guard.WithSignInPath(d.Paths.SignIn),
		guard.WithLandingPath(d.Paths.Landing),
		guard.WithPlaceholder(d.Renderer.Placeholder),
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, d.Paths.Landing, http.StatusFound)
	})

	// Pages for signed-out visitors only.
	r.Group(func(r chi.Router) {
		r.Use(guard.PublicOnly(d.Session, guardOpts...))
		r.Get("/login", authHandler.LoginPage)
		r.Post("/login", authHandler.Login)
		r.Get("/register", authHandler.RegisterPage)
		r.Post("/register", authHandler.Register)
		r.Get("/forgot-password", authHandler.ForgotPasswordPage)
		r.Post("/forgot-password", authHandler.ForgotPassword)
	})

	// Pages that need a signed-in user.
	r.Group(func(r chi.Router) {
		r.Use(guard.RequireAuth(d.Session, guardOpts...))
		r.Get("/dashboard", teamHandler.Dashboard)
		r.Get("/import", teamHandler.ImportPage)
		r.Post("/import", teamHandler.Import)
		r.Route("/teams/{id}", func(r chi.Router) {
			r.Get("/", teamHandler.Detail)
			r.Get("/export", teamHandler.Export)
			r.Post("/delete", teamHandler.Delete)
		})
		r.Get("/profile", profileHandler.Page)
		r.Post("/profile", profileHandler.Update)
		r.Get("/activity", eventHandler.GetRecent)
		r.Post("/logout", authHandler.Logout)
	})

	r.Get("/toasts", toastHandler.List)
	r.Post("/toasts/{id}/dismiss", toastHandler.Dismiss)
	r.Get("/ws", wsHandler.Serve)
	r.Get("/healthz", healthHandler.Get)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	r.NotFound(handlers.NotFound(d.Renderer))

	return r
}

func csrfKey(key []byte) []byte {
	if len(key) > 0 {
		return key
	}
	return securecookie.GenerateRandomKey(32)
}

// plaintextHTTP tells the CSRF check that a request arrived without TLS, so
// the strict Referer rule for HTTPS does not apply.
func plaintextHTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil {
			r = csrf.PlaintextHTTPRequest(r)
		}
		next.ServeHTTP(w, r)
	})
}

// originHosts turns the configured CORS origins into the host list the CSRF
// check trusts. Wildcard entries are skipped.
func originHosts(origins []string) []string {
	var hosts []string
	for _, o := range origins {
		if strings.Contains(o, "*") {
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		hosts = append(hosts, u.Host)
	}
	return hosts
}

func csrfRejected(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > handlers.MaxImportBytes {
		http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
		return
	}
	reason := "request could not be verified"
	if err := csrf.FailureReason(r); err != nil {
		reason = err.Error()
	}
	hlog.FromRequest(r).Warn().
		Str("reason", reason).
		Str("origin", r.Header.Get("Origin")).
		Str("path", r.URL.Path).
		Msg("Rejected cross-site request")
	http.Error(w, http.StatusText(http.StatusForbidden)+" - "+reason, http.StatusForbidden)
}

// errorBoundary turns a panic in any handler into the error page, offering a
// retry of the same request and a reload from the landing page.
func errorBoundary(rd *render.Renderer, landing string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				hlog.FromRequest(r).Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("path", r.URL.Path).
					Msg("Recovered from handler panic")

				data := pongo2.Context{
					"retryURL":  r.URL.RequestURI(),
					"reloadURL": landing,
				}
				if id, ok := hlog.IDFromRequest(r); ok {
					data["requestId"] = id.String()
				}
				_ = rd.Render(w, r, http.StatusInternalServerError, "error.html", data)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
