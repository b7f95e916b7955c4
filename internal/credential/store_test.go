package credential_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdelr/vs-recorder/internal/credential"
	"github.com/isdelr/vs-recorder/internal/database"
	"github.com/isdelr/vs-recorder/internal/models"
)

func stores(t *testing.T) map[string]credential.Store {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "cred.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return map[string]credential.Store{
		"memory": credential.NewMemoryStore(),
		"sqlite": credential.NewSQLiteStore(db),
		"redis":  credential.NewRedisStore(rdb, "test:"),
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	alice := models.UserProfile{ID: 1, Username: "alice", Email: "a@x.com"}

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			c, err := store.Load(ctx)
			require.NoError(t, err)
			assert.True(t, c.Empty())
			assert.Nil(t, c.User)

			require.NoError(t, store.Save(ctx, credential.Credential{Token: "t1", User: &alice}))
			c, err = store.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, "t1", c.Token)
			require.NotNil(t, c.User)
			assert.Equal(t, alice, *c.User)

			renamed := alice
			renamed.Username = "alice2"
			require.NoError(t, store.SaveUser(ctx, renamed))
			c, err = store.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, "t1", c.Token, "profile writes never touch the token")
			assert.Equal(t, "alice2", c.User.Username)

			// Last write wins, and a nil user drops the old profile.
			require.NoError(t, store.Save(ctx, credential.Credential{Token: "t2"}))
			c, err = store.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, "t2", c.Token)
			assert.Nil(t, c.User)

			require.NoError(t, store.Clear(ctx))
			require.NoError(t, store.Clear(ctx))
			c, err = store.Load(ctx)
			require.NoError(t, err)
			assert.True(t, c.Empty())
		})
	}
}

func TestMemoryStoreCorruptProfile(t *testing.T) {
	ctx := context.Background()
	store := credential.NewMemoryStore()
	require.NoError(t, store.Save(ctx, credential.Credential{Token: "t1"}))

	raw, ok := store.Raw(credential.TokenKey)
	assert.True(t, ok)
	assert.Equal(t, "t1", raw)

	_, ok = store.Raw(credential.UserKey)
	assert.False(t, ok)
}

func TestRedisStoreCorruptProfile(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	require.NoError(t, mr.Set("vsr:"+credential.TokenKey, "t1"))
	require.NoError(t, mr.Set("vsr:"+credential.UserKey, "{not json"))

	c, err := credential.NewRedisStore(rdb, "vsr:").Load(ctx)
	assert.ErrorIs(t, err, credential.ErrCorrupt)
	assert.Equal(t, "t1", c.Token)
}

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

func TestTokenExpiry(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	live := signed(t, jwt.MapClaims{"sub": "1", "exp": now.Add(time.Hour).Unix()})
	dead := signed(t, jwt.MapClaims{"sub": "1", "exp": now.Add(-time.Minute).Unix()})
	noExp := signed(t, jwt.MapClaims{"sub": "1"})

	exp, ok := credential.TokenExpiry(live)
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Hour).Unix(), exp.Unix())

	assert.False(t, credential.TokenExpired(live, now))
	assert.True(t, credential.TokenExpired(dead, now))
	assert.False(t, credential.TokenExpired(noExp, now))
	assert.False(t, credential.TokenExpired("opaque-token", now))
	assert.False(t, credential.TokenExpired("", now))
}
