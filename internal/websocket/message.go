package websocket

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// Actions pushed to, or received from, open pages.
const (
	ActionToastShow      = "toast.show"
	ActionToastDismiss   = "toast.dismiss"
	ActionSessionChanged = "session.changed"
	ActionSessionExpired = "session.expired"
	ActionPing           = "ping"
	ActionPong           = "pong"
	ActionError          = "error"
)

// Message defines the structure for websocket messages.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SessionPayload accompanies session.changed and session.expired.
type SessionPayload struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
	Reason        string `json:"reason"`
	SignInPath    string `json:"signInPath"`
}

// NewMessage encodes an outgoing message. A payload that cannot be encoded
// is logged and sent empty.
func NewMessage(action string, payload any) []byte {
	out := struct {
		Action  string `json:"action"`
		Payload any    `json:"payload,omitempty"`
	}{Action: action, Payload: payload}

	b, err := json.Marshal(out)
	if err != nil {
		log.Error().Err(err).Str("action", action).Msg("Failed to encode websocket message")
		b, _ = json.Marshal(Message{Action: action})
	}
	return b
}

// NewErrorMessage encodes an error reply for a single client.
func NewErrorMessage(message string) []byte {
	return NewMessage(ActionError, map[string]string{"message": message})
}
