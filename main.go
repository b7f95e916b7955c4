package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/isdelr/vs-recorder/internal/api"
	"github.com/isdelr/vs-recorder/internal/api/handlers"
	"github.com/isdelr/vs-recorder/internal/api/render"
	"github.com/isdelr/vs-recorder/internal/client"
	"github.com/isdelr/vs-recorder/internal/config"
	"github.com/isdelr/vs-recorder/internal/credential"
	"github.com/isdelr/vs-recorder/internal/database"
	"github.com/isdelr/vs-recorder/internal/logger"
	"github.com/isdelr/vs-recorder/internal/metrics"
	"github.com/isdelr/vs-recorder/internal/monitoring"
	"github.com/isdelr/vs-recorder/internal/services"
	"github.com/isdelr/vs-recorder/internal/session"
	"github.com/isdelr/vs-recorder/internal/toast"
	"github.com/isdelr/vs-recorder/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	// Set up database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	creds, closeCreds, err := credentialStore(cfg, db)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.CredentialBackend).Msg("Failed to open credential store")
	}
	defer closeCreds()

	// Set up WebSocket Hub
	hub := websocket.NewHub()
	go hub.Run()

	m := metrics.New(hub.ClientCount)

	// The store reads its token through the client and the client asks the
	// store for the token, so the token source is set after both exist.
	apiClient := client.New(cfg.APIBaseURL, nil, client.WithTimeout(cfg.APITimeout), client.WithObserver(m))
	store := session.New(apiClient, creds, session.WithRecorder(m))
	apiClient.SetTokenSource(store)

	toasts := toast.New(toast.WithDefaultDuration(cfg.ToastDuration))
	toasts.Subscribe(func(e toast.Event) {
		if e.Type == toast.EventShow {
			m.ObserveToast(string(e.Toast.Kind))
		}
	})

	// Set up services
	eventService := services.NewEventService(db)
	teamService := services.NewTeamService(apiClient, cfg.TeamCacheTTL)

	apiClient.SetUnauthorizedHandler(func(ctx context.Context, path string) {
		if store.Expire(ctx, "api 401 "+path) {
			teamService.Flush()
			toasts.Warning(client.ExpiredMessage)
		}
	})

	store.Subscribe(eventService.RecordSession)
	detach := websocket.Bridge(hub, toasts, store, cfg.SignInPath)

	// Set up and run the background scheduler
	scheduler, err := monitoring.NewScheduler(store, toasts, eventService, cfg.RevalidateSchedule)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	go scheduler.Run()

	paths := handlers.Paths{SignIn: cfg.SignInPath, Landing: cfg.LandingPath}
	renderer, err := render.New(api.BaseContext(store, toasts, paths))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load templates")
	}

	// Set up router
	router := api.NewRouter(api.Deps{
		Session:        store,
		Resetter:       apiClient,
		Toasts:         toasts,
		Teams:          teamService,
		Events:         eventService,
		Hub:            hub,
		Renderer:       renderer,
		Metrics:        m.Handler(),
		Paths:          paths,
		AllowedOrigins: cfg.AllowedOrigins,
		CSRFKey:        []byte(cfg.CSRFKey),
	})

	// Set up server
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store.Init(ctx)

	// Graceful shutdown
	go func() {
		log.Info().Str("addr", srv.Addr).Str("api", cfg.APIBaseURL).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	scheduler.Stop() // Stop the scheduler

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	detach()
	hub.Stop()
	toasts.Close()
	store.Teardown()

	log.Info().Msg("Server exiting")
}

// credentialStore opens the configured backend for the persisted session.
func credentialStore(cfg *config.Config, db *sql.DB) (credential.Store, func(), error) {
	noop := func() {}
	switch cfg.CredentialBackend {
	case "memory":
		return credential.NewMemoryStore(), noop, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, noop, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return credential.NewRedisStore(rdb, cfg.RedisPrefix), func() { rdb.Close() }, nil
	default:
		return credential.NewSQLiteStore(db), noop, nil
	}
}
