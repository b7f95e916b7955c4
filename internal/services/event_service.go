package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/isdelr/vs-recorder/internal/models"
	"github.com/isdelr/vs-recorder/internal/session"
)

// Event levels.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// EventServiceProvider defines the interface for event services.
type EventServiceProvider interface {
	CreateEvent(eventType, level, message string) error
	GetRecentEvents(limit int) ([]models.Event, error)
	PruneEvents(before time.Time) (int64, error)
}

// EventService keeps the local activity log shown on the dashboard.
type EventService struct {
	db  *sql.DB
	now func() time.Time
}

// NewEventService creates a new EventService.
func NewEventService(db *sql.DB) *EventService {
	return &EventService{db: db, now: time.Now}
}

// CreateEvent logs a new event to the database.
func (s *EventService) CreateEvent(eventType, level, message string) error {
	event := models.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Level:     level,
		Message:   message,
		CreatedAt: s.now().UTC(),
	}

	stmt, err := s.db.Prepare("INSERT INTO events (id, type, level, message, created_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.Exec(event.ID, event.Type, event.Level, event.Message, event.CreatedAt)
	return err
}

// GetRecentEvents retrieves the most recent events from the database.
func (s *EventService) GetRecentEvents(limit int) ([]models.Event, error) {
	rows, err := s.db.Query("SELECT id, type, level, message, created_at FROM events ORDER BY created_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var event models.Event
		if err := rows.Scan(&event.ID, &event.Type, &event.Level, &event.Message, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// PruneEvents deletes events created before the cutoff.
func (s *EventService) PruneEvents(before time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM events WHERE created_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return res.RowsAffected()
}

// RecordSession turns a session change into an activity entry. It is meant
// to be passed to session.Store.Subscribe.
func (s *EventService) RecordSession(snap session.Snapshot) {
	eventType, level, message := describe(snap)
	if eventType == "" {
		return
	}
	if err := s.CreateEvent(eventType, level, message); err != nil {
		log.Error().Err(err).Str("type", eventType).Msg("Failed to record activity event")
	}
}

func describe(snap session.Snapshot) (eventType, level, message string) {
	name := ""
	if snap.User != nil {
		name = snap.User.Username
	}
	switch snap.Reason {
	case session.ReasonBootstrap:
		if snap.IsAuthenticated() {
			return "session.restored", LevelInfo, "Restored session for " + name
		}
	case session.ReasonLogin:
		return "session.login", LevelInfo, "Signed in as " + name
	case session.ReasonRegister:
		return "session.register", LevelInfo, "Created account " + name
	case session.ReasonLogout:
		return "session.logout", LevelInfo, "Signed out"
	case session.ReasonExpired:
		return "session.expired", LevelWarn, "Session expired"
	case session.ReasonUpdate:
		return "profile.updated", LevelInfo, "Profile updated"
	case session.ReasonError:
		return "session.failed", LevelWarn, "Sign-in failed: " + snap.Error
	}
	return "", "", ""
}
