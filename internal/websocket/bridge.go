package websocket

import (
	"github.com/isdelr/vs-recorder/internal/session"
	"github.com/isdelr/vs-recorder/internal/toast"
)

// ToastSource is satisfied by *toast.Notifier.
type ToastSource interface {
	Subscribe(fn func(toast.Event)) (unsubscribe func())
}

// SessionSource is satisfied by *session.Store.
type SessionSource interface {
	Subscribe(fn func(session.Snapshot)) (unsubscribe func())
}

// Bridge forwards toast and session changes to every open page. The returned
// func detaches it.
func Bridge(h *Hub, toasts ToastSource, sessions SessionSource, signInPath string) (detach func()) {
	stopToasts := toasts.Subscribe(func(e toast.Event) {
		switch e.Type {
		case toast.EventShow:
			h.Publish(ActionToastShow, e.Toast)
		case toast.EventDismiss:
			h.Publish(ActionToastDismiss, map[string]string{"id": e.Toast.ID})
		}
	})

	stopSessions := sessions.Subscribe(func(s session.Snapshot) {
		// Pending transitions are internal to a form submit.
		if s.Reason == session.ReasonPending {
			return
		}
		payload := SessionPayload{
			Authenticated: s.IsAuthenticated(),
			Reason:        string(s.Reason),
			SignInPath:    signInPath,
		}
		if s.User != nil {
			payload.Username = s.User.Username
		}
		action := ActionSessionChanged
		if s.Reason == session.ReasonExpired {
			action = ActionSessionExpired
		}
		h.Publish(action, payload)
	})

	return func() {
		stopToasts()
		stopSessions()
	}
}
