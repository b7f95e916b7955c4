// Package session holds the process-wide answer to "who is signed in".
//
// A Store is created with loading=true, restores a persisted session once
// (Bootstrap), and then moves between anonymous and authenticated through
// Login, Register, Logout and Expire. Every identity change bumps a
// generation counter; network results started under an older generation are
// dropped, so a response that lands after a logout can never resurrect the
// session.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/isdelr/vs-recorder/internal/credential"
	"github.com/isdelr/vs-recorder/internal/models"
)

var (
	// ErrAuthInProgress rejects a second login/register while one is outstanding.
	ErrAuthInProgress = errors.New("an authentication request is already in progress")
	// ErrSuperseded is returned to a caller whose result was discarded because
	// the session changed while the request was in flight.
	ErrSuperseded = errors.New("session changed while the request was in flight")
	// ErrNotAuthenticated is returned by operations that need a signed-in user.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrClosed is returned after Teardown.
	ErrClosed = errors.New("session store is closed")
)

// persistTimeout bounds writes to the credential slot made outside a caller's context.
const persistTimeout = 5 * time.Second

// Authenticator is the API surface the store needs.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (models.AuthResponse, error)
	Register(ctx context.Context, reg models.Registration) (models.AuthResponse, error)
	Me(ctx context.Context) (models.UserProfile, error)
}

// Recorder receives one call per operation outcome, for metrics.
type Recorder interface {
	ObserveAuth(op, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) ObserveAuth(string, string) {}

// Option customizes a Store.
type Option func(*Store)

// WithRecorder installs an outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Store) {
		if r != nil {
			s.recorder = r
		}
	}
}

// Store is the auth session state container. The zero value is not usable;
// construct with New. Each Store is independent, so tests can build as many
// as they need.
type Store struct {
	auth     Authenticator
	creds    credential.Store
	recorder Recorder

	mu            sync.RWMutex
	user          *models.UserProfile
	token         string
	errMsg        string
	bootstrapping bool
	pending       bool
	bootstrapped  bool
	closed        bool
	generation    uint64
	reason        ChangeReason
	listeners     map[int]func(Snapshot)
	nextListener  int

	// edits are the local profile changes made since sign-in. A refetched
	// profile is overlaid with them so a refresh never reverts an edit.
	edits models.ProfileUpdate

	// changes numbers every state change; notifyMu and delivered keep
	// listeners from seeing an older change after a newer one.
	changes   uint64
	notifyMu  sync.Mutex
	delivered uint64

	// persistMu orders writes to the credential slot so the newest
	// generation always writes last.
	persistMu sync.Mutex

	bootOnce  sync.Once
	readyOnce sync.Once
	ready     chan struct{}
	refresh   singleflight.Group
}

// New creates a store in its initial loading state. Call Init (or Bootstrap)
// to resolve it.
func New(auth Authenticator, creds credential.Store, opts ...Option) *Store {
	s := &Store{
		auth:          auth,
		creds:         creds,
		recorder:      noopRecorder{},
		bootstrapping: true,
		reason:        ReasonInit,
		listeners:     map[int]func(Snapshot){},
		ready:         make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Init starts the bootstrap in the background and returns immediately.
func (s *Store) Init(ctx context.Context) {
	go s.Bootstrap(ctx)
}

// Ready is closed once bootstrap has resolved (or the store was torn down).
func (s *Store) Ready() <-chan struct{} { return s.ready }

// Bootstrap restores a persisted session. It runs at most once; concurrent and
// later callers wait for the first run. It never fails: any problem leaves the
// session anonymous.
func (s *Store) Bootstrap(ctx context.Context) {
	s.bootOnce.Do(func() { s.bootstrap(ctx) })
}

func (s *Store) bootstrap(ctx context.Context) {
	defer s.finishBootstrap()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	gen := s.generation
	s.mu.Unlock()

	cred, err := s.creds.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Could not read persisted credential")
	}
	if cred.Token == "" {
		s.recorder.ObserveAuth("bootstrap", "anonymous")
		return
	}

	s.mu.Lock()
	if s.closed || s.generation != gen {
		s.mu.Unlock()
		s.recorder.ObserveAuth("bootstrap", "superseded")
		return
	}
	s.token = cred.Token
	s.mu.Unlock()

	profile, err := s.auth.Me(ctx)

	s.mu.Lock()
	if s.closed || s.generation != gen {
		s.mu.Unlock()
		s.recorder.ObserveAuth("bootstrap", "superseded")
		return
	}
	if err != nil {
		s.token = ""
		s.user = nil
		s.generation++
		gen = s.generation
		s.mu.Unlock()

		log.Info().Err(err).Msg("Persisted session could not be restored, continuing signed out")
		s.persist(gen, "clear", s.creds.Clear)
		s.recorder.ObserveAuth("bootstrap", "failed")
		return
	}
	s.user = &profile
	s.errMsg = ""
	s.mu.Unlock()

	s.persist(gen, "save_user", func(ctx context.Context) error { return s.creds.SaveUser(ctx, profile) })
	log.Info().Int64("user_id", profile.ID).Str("username", profile.Username).Msg("Session restored")
	s.recorder.ObserveAuth("bootstrap", "restored")
}

func (s *Store) finishBootstrap() {
	s.mu.Lock()
	s.bootstrapping = false
	s.bootstrapped = true
	s.reason = ReasonBootstrap
	seq, snap := s.changedLocked()
	s.mu.Unlock()

	s.notify(seq, snap)
	s.readyOnce.Do(func() { close(s.ready) })
}

// Login authenticates with username and password. On success the token and
// profile are stored and persisted and the API response is returned. On
// failure the message is kept in the session's Error and the error is also
// returned, so both a global banner and the form itself can show it.
func (s *Store) Login(ctx context.Context, username, password string) (models.AuthResponse, error) {
	return s.authenticate(ctx, ReasonLogin, func(ctx context.Context) (models.AuthResponse, error) {
		return s.auth.Login(ctx, username, password)
	})
}

// Register creates an account and signs it in, with the same contract as Login.
func (s *Store) Register(ctx context.Context, reg models.Registration) (models.AuthResponse, error) {
	return s.authenticate(ctx, ReasonRegister, func(ctx context.Context) (models.AuthResponse, error) {
		return s.auth.Register(ctx, reg)
	})
}

func (s *Store) authenticate(ctx context.Context, reason ChangeReason, call func(context.Context) (models.AuthResponse, error)) (models.AuthResponse, error) {
	op := string(reason)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return models.AuthResponse{}, ErrClosed
	}
	if s.pending {
		s.mu.Unlock()
		s.recorder.ObserveAuth(op, "rejected")
		return models.AuthResponse{}, ErrAuthInProgress
	}
	s.pending = true
	s.reason = ReasonPending
	gen := s.generation
	seq, snap := s.changedLocked()
	s.mu.Unlock()
	s.notify(seq, snap)

	resp, err := call(ctx)

	s.mu.Lock()
	s.pending = false
	if s.closed || s.generation != gen {
		seq, snap = s.changedLocked()
		s.mu.Unlock()
		s.notify(seq, snap)
		log.Info().Str("op", op).Msg("Discarding authentication result, session changed meanwhile")
		s.recorder.ObserveAuth(op, "superseded")
		return models.AuthResponse{}, ErrSuperseded
	}
	if err != nil {
		s.errMsg = err.Error()
		s.reason = ReasonError
		seq, snap = s.changedLocked()
		s.mu.Unlock()
		s.notify(seq, snap)
		s.recorder.ObserveAuth(op, "failure")
		return models.AuthResponse{}, err
	}

	profile := resp.Profile()
	s.user = &profile
	s.token = resp.Token
	s.errMsg = ""
	s.edits = models.ProfileUpdate{}
	s.generation++
	s.reason = reason
	gen = s.generation
	seq, snap = s.changedLocked()
	s.mu.Unlock()

	s.persist(gen, "save", func(ctx context.Context) error {
		return s.creds.Save(ctx, credential.Credential{Token: resp.Token, User: &profile})
	})
	s.notify(seq, snap)

	log.Info().Str("op", op).Int64("user_id", profile.ID).Str("username", profile.Username).Msg("Signed in")
	s.recorder.ObserveAuth(op, "success")
	return resp, nil
}

// Logout signs out locally: token, profile, error and the persisted slot are
// cleared. No network call is made. Calling it when signed out is harmless.
func (s *Store) Logout() {
	s.clear(ReasonLogout)
	s.recorder.ObserveAuth("logout", "success")
}

// Expire drops a session the API no longer accepts (401) or whose token is
// past its expiry. It reports whether there was a session to drop. While
// bootstrap is still resolving it does nothing and returns false: a rejected
// persisted token is bootstrap's to clear, silently.
func (s *Store) Expire(_ context.Context, reason string) bool {
	s.mu.RLock()
	had := s.token != "" || s.user != nil
	booting := s.bootstrapping
	s.mu.RUnlock()
	if !had || booting {
		return false
	}
	s.clear(ReasonExpired)
	log.Info().Str("reason", reason).Msg("Session expired")
	s.recorder.ObserveAuth("expire", "success")
	return true
}

func (s *Store) clear(reason ChangeReason) {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.errMsg = ""
	s.edits = models.ProfileUpdate{}
	s.generation++
	s.reason = reason
	gen := s.generation
	seq, snap := s.changedLocked()
	s.mu.Unlock()

	s.persist(gen, "clear", s.creds.Clear)
	s.notify(seq, snap)
}

// UpdateUser merges a partial edit into the signed-in profile and persists
// the result. The token is never touched. The edit is remembered until the
// next sign-in or sign-out and survives later refreshes.
func (s *Store) UpdateUser(_ context.Context, upd models.ProfileUpdate) (models.UserProfile, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return models.UserProfile{}, ErrClosed
	}
	if s.user == nil {
		s.mu.Unlock()
		return models.UserProfile{}, ErrNotAuthenticated
	}
	merged := upd.Apply(*s.user)
	s.user = &merged
	s.edits = s.edits.Merge(upd)
	s.reason = ReasonUpdate
	gen := s.generation
	seq, snap := s.changedLocked()
	s.mu.Unlock()

	s.persist(gen, "save_user", func(ctx context.Context) error { return s.creds.SaveUser(ctx, merged) })
	s.notify(seq, snap)
	s.recorder.ObserveAuth("update", "success")
	return merged, nil
}

// Refresh refetches the profile of the signed-in user. Concurrent calls share
// one request. Local edits made with UpdateUser are kept over the fetched
// values. A 401 is handled by the API client's global handler; other
// failures leave the session as it was.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.RLock()
	closed, authed, gen := s.closed, s.isAuthenticatedLocked(), s.generation
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if !authed {
		return ErrNotAuthenticated
	}

	_, err, _ := s.refresh.Do("me", func() (any, error) {
		profile, err := s.auth.Me(ctx)
		if err != nil {
			s.recorder.ObserveAuth("refresh", "failure")
			return nil, err
		}

		s.mu.Lock()
		if s.closed || s.generation != gen || s.user == nil {
			s.mu.Unlock()
			s.recorder.ObserveAuth("refresh", "superseded")
			return nil, ErrSuperseded
		}
		profile = s.edits.Apply(profile)
		s.user = &profile
		s.reason = ReasonRefresh
		seq, snap := s.changedLocked()
		s.mu.Unlock()

		s.persist(gen, "save_user", func(ctx context.Context) error { return s.creds.SaveUser(ctx, profile) })
		s.notify(seq, snap)
		s.recorder.ObserveAuth("refresh", "success")
		return nil, nil
	})
	return err
}

// Teardown ends the store's lifecycle: results of in-flight calls are
// discarded, listeners are dropped and later operations fail with ErrClosed.
// The persisted slot is left alone so the next process can restore it.
func (s *Store) Teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.generation++
	s.reason = ReasonTeardown
	s.listeners = map[int]func(Snapshot){}
	s.mu.Unlock()

	s.readyOnce.Do(func() { close(s.ready) })
}

// Token returns the current bearer token, or "".
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// IsAuthenticated reports whether both a user and a token are present.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isAuthenticatedLocked()
}

func (s *Store) isAuthenticatedLocked() bool {
	return s.user != nil && s.token != ""
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// changedLocked numbers a state change and snapshots it. s.mu must be held
// for writing.
func (s *Store) changedLocked() (uint64, Snapshot) {
	s.changes++
	return s.changes, s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		HasToken:     s.token != "",
		Loading:      s.bootstrapping || s.pending,
		Error:        s.errMsg,
		Bootstrapped: s.bootstrapped,
		Generation:   s.generation,
		Reason:       s.reason,
	}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

// Subscribe registers fn to be called after every state change. The returned
// func removes it. fn runs on the goroutine that changed the state, one call
// at a time and in the order the changes happened; a change overtaken by a
// newer one before delivery is skipped. fn must not block or change the
// session.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(seq uint64, snap Snapshot) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if seq <= s.delivered {
		return
	}
	s.delivered = seq

	s.mu.RLock()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// persist writes to the credential slot unless a newer transition already
// owns it. Failures are logged; the in-memory session stays authoritative.
func (s *Store) persist(gen uint64, op string, fn func(context.Context) error) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	current := s.generation
	s.mu.RUnlock()
	if current != gen {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Error().Err(err).Str("op", op).Msg("Failed to update persisted credential")
	}
}
