package credential

import (
	"context"
	"sync"

	"github.com/isdelr/vs-recorder/internal/models"
)

// MemoryStore keeps the slot in process memory. Nothing survives a restart;
// used with CREDENTIAL_BACKEND=memory and in tests.
type MemoryStore struct {
	mu sync.Mutex
	kv map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{kv: map[string]string{}}
}

func (s *MemoryStore) Load(_ context.Context) (Credential, error) {
	s.mu.Lock()
	token, raw := s.kv[TokenKey], s.kv[UserKey]
	s.mu.Unlock()

	user, err := decodeUser(raw)
	if err != nil {
		return Credential{Token: token}, err
	}
	return Credential{Token: token, User: user}, nil
}

func (s *MemoryStore) Save(_ context.Context, c Credential) error {
	kv, err := values(c)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kv, UserKey)
	for k, v := range kv {
		s.kv[k] = v
	}
	return nil
}

func (s *MemoryStore) SaveUser(_ context.Context, u models.UserProfile) error {
	value, err := encodeUser(u)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.kv[UserKey] = value
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	delete(s.kv, TokenKey)
	delete(s.kv, UserKey)
	s.mu.Unlock()
	return nil
}

// Raw returns the stored value for key, for tests and diagnostics.
func (s *MemoryStore) Raw(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.kv[key]
	return v, ok
}
