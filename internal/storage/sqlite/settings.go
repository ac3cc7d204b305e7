package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opsdeck/opsdeck/internal/storage"
)

// GetSetting returns the raw JSON value stored under key
func (s *Storage) GetSetting(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrSettingNotFound
		}
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}

// SetSetting stores the raw JSON value under key, replacing any previous value
func (s *Storage) SetSetting(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

// SetSettingIfAbsent stores value only if the key has no value yet and
// returns whatever is stored afterwards. INSERT OR IGNORE plus a re-read
// makes concurrent first writers converge on a single value.
func (s *Storage) SetSettingIfAbsent(ctx context.Context, key string, value []byte) ([]byte, error) {
	query := `INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return nil, fmt.Errorf("failed to insert setting: %w", err)
	}
	return s.GetSetting(ctx, key)
}

// DeleteSetting removes the key; absent keys are a no-op
func (s *Storage) DeleteSetting(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete setting: %w", err)
	}
	return nil
}
