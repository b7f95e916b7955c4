package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/isdelr/vs-recorder/internal/client"
	"github.com/isdelr/vs-recorder/internal/credential"
	"github.com/isdelr/vs-recorder/internal/models"
	"github.com/isdelr/vs-recorder/internal/services"
	"github.com/isdelr/vs-recorder/internal/session"
	"github.com/isdelr/vs-recorder/internal/toast"
)

const (
	pruneSpec       = "@daily"
	activityMaxAge  = 30 * 24 * time.Hour
	revalidateLimit = 30 * time.Second
)

// SessionTarget is the part of *session.Store the scheduler drives.
type SessionTarget interface {
	IsAuthenticated() bool
	Token() string
	Expire(ctx context.Context, reason string) bool
	Refresh(ctx context.Context) error
}

// Warner shows a warning toast.
type Warner interface {
	Warning(message string, opts ...toast.ShowOption) models.Toast
}

// Scheduler revalidates the session on a cron schedule and prunes the
// activity log once a day.
type Scheduler struct {
	session SessionTarget
	toasts  Warner
	events  services.EventServiceProvider
	cron    *cron.Cron
	now     func() time.Time

	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a new scheduler. schedule is a standard five-field cron
// expression or a descriptor such as "@every 5m".
func NewScheduler(sess SessionTarget, toasts Warner, events services.EventServiceProvider, schedule string) (*Scheduler, error) {
	s := &Scheduler{
		session: sess,
		toasts:  toasts,
		events:  events,
		cron:    cron.New(cron.WithLogger(cronLogger{})),
		now:     time.Now,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	if _, err := s.cron.AddFunc(schedule, s.revalidateJob); err != nil {
		return nil, fmt.Errorf("invalid revalidate schedule %q: %w", schedule, err)
	}
	if events != nil {
		if _, err := s.cron.AddFunc(pruneSpec, s.PruneActivity); err != nil {
			return nil, fmt.Errorf("schedule activity pruning: %w", err)
		}
	}
	return s, nil
}

// Run starts the cron loop and blocks until Stop.
func (s *Scheduler) Run() {
	defer close(s.stopped)
	log.Info().Int("jobs", len(s.cron.Entries())).Msg("Starting background scheduler")
	s.cron.Start()

	<-s.done
	log.Info().Msg("Stopping background scheduler")
	<-s.cron.Stop().Done()
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
	<-s.stopped
}

func (s *Scheduler) revalidateJob() {
	ctx, cancel := context.WithTimeout(context.Background(), revalidateLimit)
	defer cancel()
	s.Revalidate(ctx)
}

// Revalidate drops a session whose token has expired locally, and otherwise
// refetches the profile so the API can reject a revoked token.
func (s *Scheduler) Revalidate(ctx context.Context) {
	if !s.session.IsAuthenticated() {
		return
	}

	if credential.TokenExpired(s.session.Token(), s.now()) {
		if s.session.Expire(ctx, "token expired") && s.toasts != nil {
			s.toasts.Warning(client.ExpiredMessage)
		}
		return
	}

	err := s.session.Refresh(ctx)
	switch {
	case err == nil, errors.Is(err, session.ErrSuperseded), errors.Is(err, session.ErrNotAuthenticated):
	case client.IsUnauthorized(err):
		// The client's 401 handler already expired the session.
	default:
		log.Warn().Err(err).Msg("Session revalidation failed")
	}
}

// PruneActivity drops activity entries older than thirty days.
func (s *Scheduler) PruneActivity() {
	n, err := s.events.PruneEvents(s.now().Add(-activityMaxAge))
	if err != nil {
		log.Error().Err(err).Msg("Failed to prune activity log")
		return
	}
	if n > 0 {
		log.Info().Int64("removed", n).Msg("Pruned activity log")
	}
}

// cronLogger routes cron's own logging through zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
