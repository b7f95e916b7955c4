// Package toast keeps the process-wide queue of short-lived notifications.
package toast

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/isdelr/vs-recorder/internal/models"
)

// DefaultDuration is how long a toast stays up unless told otherwise.
const DefaultDuration = 5 * time.Second

// Timer is the part of *time.Timer the notifier uses.
type Timer interface {
	Stop() bool
}

// Clock schedules expiry callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// EventType tells listeners what happened to a toast.
type EventType string

const (
	EventShow    EventType = "show"
	EventDismiss EventType = "dismiss"
)

// Event is delivered to subscribers.
type Event struct {
	Type  EventType
	Toast models.Toast
}

// Option customizes a Notifier.
type Option func(*Notifier)

// WithClock replaces the wall clock, for tests.
func WithClock(c Clock) Option {
	return func(n *Notifier) {
		if c != nil {
			n.clock = c
		}
	}
}

// WithDefaultDuration changes the lifetime used when Show gets no duration.
func WithDefaultDuration(d time.Duration) Option {
	return func(n *Notifier) {
		if d >= 0 {
			n.defaultDuration = d
		}
	}
}

// ShowOption customizes a single toast.
type ShowOption func(*models.Toast)

// WithDuration sets how long the toast stays up. Zero keeps it until dismissed.
func WithDuration(d time.Duration) ShowOption {
	return func(t *models.Toast) {
		if d >= 0 {
			t.DurationMs = d.Milliseconds()
		}
	}
}

// Notifier is the toast queue. Entries are kept in insertion order and each
// one removes itself when its duration elapses.
type Notifier struct {
	clock           Clock
	defaultDuration time.Duration

	mu           sync.Mutex
	toasts       []models.Toast
	timers       map[string]Timer
	listeners    map[int]func(Event)
	nextListener int
	closed       bool
}

// New creates an empty notifier.
func New(opts ...Option) *Notifier {
	n := &Notifier{
		clock:           realClock{},
		defaultDuration: DefaultDuration,
		timers:          map[string]Timer{},
		listeners:       map[int]func(Event){},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Show appends a toast and returns it.
func (n *Notifier) Show(message string, kind models.ToastKind, opts ...ShowOption) models.Toast {
	t := models.Toast{
		ID:         uuid.NewString(),
		Message:    message,
		Kind:       kind,
		DurationMs: n.defaultDuration.Milliseconds(),
		CreatedAt:  n.clock.Now(),
	}
	for _, opt := range opts {
		opt(&t)
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return t
	}
	n.toasts = append(n.toasts, t)
	if t.DurationMs > 0 {
		id := t.ID
		n.timers[id] = n.clock.AfterFunc(time.Duration(t.DurationMs)*time.Millisecond, func() {
			n.Dismiss(id)
		})
	}
	listeners := n.listenersLocked()
	n.mu.Unlock()

	log.Debug().Str("toast_id", t.ID).Str("kind", string(kind)).Int64("duration_ms", t.DurationMs).Msg("Toast shown")
	for _, fn := range listeners {
		fn(Event{Type: EventShow, Toast: t})
	}
	return t
}

// Success shows a success toast.
func (n *Notifier) Success(message string, opts ...ShowOption) models.Toast {
	return n.Show(message, models.ToastSuccess, opts...)
}

// Error shows an error toast.
func (n *Notifier) Error(message string, opts ...ShowOption) models.Toast {
	return n.Show(message, models.ToastError, opts...)
}

// Info shows an informational toast.
func (n *Notifier) Info(message string, opts ...ShowOption) models.Toast {
	return n.Show(message, models.ToastInfo, opts...)
}

// Warning shows a warning toast.
func (n *Notifier) Warning(message string, opts ...ShowOption) models.Toast {
	return n.Show(message, models.ToastWarning, opts...)
}

// Dismiss removes the toast with id and cancels its timer. It reports whether
// the toast was still queued.
func (n *Notifier) Dismiss(id string) bool {
	n.mu.Lock()
	idx := -1
	for i, t := range n.toasts {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		n.mu.Unlock()
		return false
	}
	removed := n.toasts[idx]
	n.toasts = append(n.toasts[:idx:idx], n.toasts[idx+1:]...)
	if timer, ok := n.timers[id]; ok {
		timer.Stop()
		delete(n.timers, id)
	}
	listeners := n.listenersLocked()
	n.mu.Unlock()

	for _, fn := range listeners {
		fn(Event{Type: EventDismiss, Toast: removed})
	}
	return true
}

// List returns the queued toasts, oldest first.
func (n *Notifier) List() []models.Toast {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.Toast, len(n.toasts))
	copy(out, n.toasts)
	return out
}

// Subscribe registers fn for show and dismiss events. The returned func
// removes it.
func (n *Notifier) Subscribe(fn func(Event)) (unsubscribe func()) {
	n.mu.Lock()
	id := n.nextListener
	n.nextListener++
	n.listeners[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.listeners, id)
		n.mu.Unlock()
	}
}

// Close stops every pending timer and empties the queue. Later Shows are
// ignored.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, timer := range n.timers {
		timer.Stop()
		delete(n.timers, id)
	}
	n.toasts = nil
	n.listeners = map[int]func(Event){}
	n.closed = true
}

func (n *Notifier) listenersLocked() []func(Event) {
	out := make([]func(Event), 0, len(n.listeners))
	for _, fn := range n.listeners {
		out = append(out, fn)
	}
	return out
}
