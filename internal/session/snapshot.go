package session

import "github.com/isdelr/vs-recorder/internal/models"

// ChangeReason names the transition that produced a Snapshot.
type ChangeReason string

const (
	ReasonInit      ChangeReason = "init"
	ReasonBootstrap ChangeReason = "bootstrap"
	ReasonPending   ChangeReason = "pending"
	ReasonLogin     ChangeReason = "login"
	ReasonRegister  ChangeReason = "register"
	ReasonError     ChangeReason = "error"
	ReasonLogout    ChangeReason = "logout"
	ReasonUpdate    ChangeReason = "update"
	ReasonExpired   ChangeReason = "expired"
	ReasonRefresh   ChangeReason = "refresh"
	ReasonTeardown  ChangeReason = "teardown"
)

// Snapshot is an immutable copy of the session. The token itself is not
// exposed here; use Store.Token.
type Snapshot struct {
	User         *models.UserProfile
	HasToken     bool
	Loading      bool
	Error        string
	Bootstrapped bool
	Generation   uint64
	Reason       ChangeReason
}

// IsAuthenticated holds exactly when both a user and a token are present.
func (s Snapshot) IsAuthenticated() bool {
	return s.User != nil && s.HasToken
}

// Resolved reports whether the guards may make a redirect decision.
func (s Snapshot) Resolved() bool {
	return !s.Loading
}
