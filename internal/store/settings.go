// ABOUTME: Key/value settings storage for singleton documents
// ABOUTME: The system prompt, formatting rules and branding live here as JSON

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// GetSetting returns the raw value stored under key.
// Returns ErrNotFound if the key has never been written.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying setting %s: %w", key, err)
	}
	return []byte(value), nil
}

// PutSetting writes value under key, replacing any previous value.
func (s *SQLiteStore) PutSetting(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, key, string(value), formatTime(time.Now())); err != nil {
		return fmt.Errorf("saving setting %s: %w", key, err)
	}
	s.logger.Debug("saved setting", "key", key)
	return nil
}

// LoadSetting decodes the JSON document stored under key into a copy of def.
// Fields absent from the stored document keep their value from def; a key
// that was never written returns def unchanged.
func LoadSetting[T any](ctx context.Context, s SettingsStore, key string, def T) (T, error) {
	raw, err := s.GetSetting(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}

	out := def
	if err := json.Unmarshal(raw, &out); err != nil {
		return def, fmt.Errorf("decoding setting %s: %w", key, err)
	}
	return out, nil
}

// SaveSetting stores v as JSON under key.
func SaveSetting[T any](ctx context.Context, s SettingsStore, key string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding setting %s: %w", key, err)
	}
	return s.PutSetting(ctx, key, raw)
}
