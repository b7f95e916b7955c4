package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/isdelr/vs-recorder/internal/models"
)

// RedisStore keeps the slot in redis, for installs where several front-end
// processes share one signed-in user.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store whose keys are prefix+TokenKey and prefix+UserKey.
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

// Load reads the token and profile in one round trip.
func (s *RedisStore) Load(ctx context.Context) (Credential, error) {
	vals, err := s.rdb.MGet(ctx, s.key(TokenKey), s.key(UserKey)).Result()
	if err != nil {
		return Credential{}, fmt.Errorf("load credential: %w", err)
	}

	token, _ := vals[0].(string)
	raw, _ := vals[1].(string)
	user, err := decodeUser(raw)
	if err != nil {
		return Credential{Token: token}, err
	}
	return Credential{Token: token, User: user}, nil
}

// Save writes token and profile atomically.
func (s *RedisStore) Save(ctx context.Context, c Credential) error {
	kv, err := values(c)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if c.User == nil {
			pipe.Del(ctx, s.key(UserKey))
		}
		for k, v := range kv {
			pipe.Set(ctx, s.key(k), v, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// SaveUser replaces only the stored profile.
func (s *RedisStore) SaveUser(ctx context.Context, u models.UserProfile) error {
	value, err := encodeUser(u)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key(UserKey), value, 0).Err(); err != nil {
		return fmt.Errorf("save %s: %w", UserKey, err)
	}
	return nil
}

// Clear removes both keys.
func (s *RedisStore) Clear(ctx context.Context) error {
	err := s.rdb.Del(ctx, s.key(TokenKey), s.key(UserKey)).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}
