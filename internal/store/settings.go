package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sitesync/internal/models"
)

const settingsKey = "engine"

// LoadSettings reads the engine settings blob. A missing row yields the
// zero value, not an error.
func (s *Store) LoadSettings(ctx context.Context) (models.EngineSettings, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, settingsKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.EngineSettings{}, nil
	}
	if err != nil {
		return models.EngineSettings{}, fmt.Errorf("load settings: %w", err)
	}

	var out models.EngineSettings
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return models.EngineSettings{}, fmt.Errorf("decode settings: %w", err)
	}
	return out, nil
}

// SaveSettings writes the whole settings blob.
func (s *Store) SaveSettings(ctx context.Context, settings models.EngineSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	query := `INSERT INTO settings (key, value) VALUES (?, ?)
              ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := s.db.ExecContext(ctx, query, settingsKey, string(raw)); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// SettingsExist reports whether a settings blob has ever been written.
// First-run seeding must not clobber operator changes on later starts.
func (s *Store) SettingsExist(ctx context.Context) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM settings WHERE key = ?`, settingsKey).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check settings: %w", err)
	}
	return count > 0, nil
}

// SetLastSyncAt persists the scheduler's lastSyncAt component.
func (s *Store) SetLastSyncAt(ctx context.Context, at time.Time) error {
	settings, err := s.LoadSettings(ctx)
	if err != nil {
		return err
	}
	settings.LastSyncAt = at
	return s.SaveSettings(ctx, settings)
}

// SetBackgroundEnabled persists the background loop flag so the daemon can
// recover it on activation without waiting for a channel message.
func (s *Store) SetBackgroundEnabled(ctx context.Context, enabled bool) error {
	settings, err := s.LoadSettings(ctx)
	if err != nil {
		return err
	}
	settings.BackgroundEnabled = enabled
	return s.SaveSettings(ctx, settings)
}
