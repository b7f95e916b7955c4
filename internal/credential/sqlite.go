package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/isdelr/vs-recorder/internal/models"
)

// SQLiteStore keeps the slot in the credentials table of the local database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store on a migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Load reads the token and profile.
func (s *SQLiteStore) Load(ctx context.Context) (Credential, error) {
	token, err := s.get(ctx, TokenKey)
	if err != nil {
		return Credential{}, err
	}
	raw, err := s.get(ctx, UserKey)
	if err != nil {
		return Credential{}, err
	}
	user, err := decodeUser(raw)
	if err != nil {
		return Credential{Token: token}, err
	}
	return Credential{Token: token, User: user}, nil
}

func (s *SQLiteStore) get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM credentials WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load %s: %w", key, err)
	}
	return value, nil
}

// Save writes token and profile in one transaction. A nil User removes the
// stored profile.
func (s *SQLiteStore) Save(ctx context.Context, c Credential) error {
	kv, err := values(c)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM credentials WHERE key IN (?, ?)", TokenKey, UserKey); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO credentials(key, value) VALUES(?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for key, value := range kv {
		if _, err := stmt.ExecContext(ctx, key, value); err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// SaveUser replaces only the stored profile.
func (s *SQLiteStore) SaveUser(ctx context.Context, u models.UserProfile) error {
	value, err := encodeUser(u)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO credentials(key, value, updated_at) VALUES(?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		UserKey, value)
	if err != nil {
		return fmt.Errorf("save %s: %w", UserKey, err)
	}
	return nil
}

// Clear removes both keys.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM credentials WHERE key IN (?, ?)", TokenKey, UserKey); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}
