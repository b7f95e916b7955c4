// Package credential persists the signed-in user's token and profile so a
// restarted process can restore the session. Only the session store writes
// here; everything else goes through the session store's API.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/isdelr/vs-recorder/internal/models"
)

// Fixed keys of the persisted slot.
const (
	TokenKey = "vsr.token"
	UserKey  = "vsr.user"
)

// ErrCorrupt is returned when the persisted profile cannot be decoded.
var ErrCorrupt = errors.New("persisted credential is corrupt")

// Credential is the persisted (token, user) pair. User is nil when only a
// token survived, which is the normal case right before bootstrap refetches
// the profile.
type Credential struct {
	Token string
	User  *models.UserProfile
}

// Empty reports whether no token is persisted.
func (c Credential) Empty() bool { return c.Token == "" }

// Store is a durable key-value slot. Implementations treat writes as
// last-write-wins; Clear removes both keys.
type Store interface {
	Load(ctx context.Context) (Credential, error)
	Save(ctx context.Context, c Credential) error
	SaveUser(ctx context.Context, u models.UserProfile) error
	Clear(ctx context.Context) error
}

func encodeUser(u models.UserProfile) (string, error) {
	b, err := json.Marshal(u)
	if err != nil {
		return "", fmt.Errorf("encode user: %w", err)
	}
	return string(b), nil
}

func decodeUser(s string) (*models.UserProfile, error) {
	if s == "" {
		return nil, nil
	}
	var u models.UserProfile
	if err := json.Unmarshal([]byte(s), &u); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &u, nil
}

// values flattens a credential into its key-value form.
func values(c Credential) (map[string]string, error) {
	kv := map[string]string{TokenKey: c.Token}
	if c.User != nil {
		s, err := encodeUser(*c.User)
		if err != nil {
			return nil, err
		}
		kv[UserKey] = s
	}
	return kv, nil
}
