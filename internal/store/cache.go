package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sitesync/internal/models"
)

// SaveEntity upserts a full entity snapshot. When markSynced is true the
// snapshot came from the server and last_synced advances with it; otherwise
// only payload and last_updated move and any existing last_synced is kept.
func (s *Store) SaveEntity(ctx context.Context, e *models.CachedEntity, markSynced bool) error {
	now := time.Now()
	e.LastUpdated = now

	var query string
	if markSynced {
		e.LastSynced = now
		query = `INSERT INTO entity_cache (id, payload, last_updated, last_synced)
                 VALUES (?, ?, ?, ?)
                 ON CONFLICT(id) DO UPDATE SET
                     payload = excluded.payload,
                     last_updated = excluded.last_updated,
                     last_synced = excluded.last_synced`
	} else {
		query = `INSERT INTO entity_cache (id, payload, last_updated, last_synced)
                 VALUES (?, ?, ?, ?)
                 ON CONFLICT(id) DO UPDATE SET
                     payload = excluded.payload,
                     last_updated = excluded.last_updated`
	}

	if _, err := s.db.ExecContext(ctx, query, e.ID, e.Payload, e.LastUpdated, e.LastSynced); err != nil {
		return fmt.Errorf("save entity %s: %w", e.ID, err)
	}
	return nil
}

// GetEntity returns the cached snapshot, or nil when the entity is absent.
func (s *Store) GetEntity(ctx context.Context, id string) (*models.CachedEntity, error) {
	query := `SELECT id, payload, last_updated, last_synced FROM entity_cache WHERE id = ?`

	var e models.CachedEntity
	err := s.db.QueryRowContext(ctx, query, id).Scan(&e.ID, &e.Payload, &e.LastUpdated, &e.LastSynced)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entity %s: %w", id, err)
	}
	return &e, nil
}

// MarkEntityUpdated bumps last_updated after an optimistic local edit whose
// payload change is applied elsewhere.
func (s *Store) MarkEntityUpdated(ctx context.Context, id string) error {
	return s.touchEntity(ctx, id, "last_updated")
}

// MarkEntitySynced bumps last_synced, clearing the pending flag.
func (s *Store) MarkEntitySynced(ctx context.Context, id string) error {
	return s.touchEntity(ctx, id, "last_synced")
}

func (s *Store) touchEntity(ctx context.Context, id, column string) error {
	query := fmt.Sprintf(`UPDATE entity_cache SET %s = ? WHERE id = ?`, column)
	res, err := s.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("touch entity %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch entity %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("touch entity %s: not cached", id)
	}
	return nil
}

// EntitySyncStatus is the per-entity view the UI polls. A missing entity
// reports zero timestamps and no pending changes.
func (s *Store) EntitySyncStatus(ctx context.Context, id string) (models.SyncStatus, error) {
	e, err := s.GetEntity(ctx, id)
	if err != nil {
		return models.SyncStatus{}, err
	}
	if e == nil {
		return models.SyncStatus{}, nil
	}
	return models.SyncStatus{
		LastUpdated:       e.LastUpdated,
		LastSynced:        e.LastSynced,
		HasPendingChanges: e.HasPendingChanges(),
	}, nil
}

// ListCleanEntities returns entities with no pending local changes. The
// refresh step is restricted to these; a dirty entity is skipped rather than
// clobbered.
func (s *Store) ListCleanEntities(ctx context.Context) ([]models.CachedEntity, error) {
	query := `SELECT id, payload, last_updated, last_synced FROM entity_cache
              WHERE last_updated <= last_synced ORDER BY id ASC`
	return s.listEntities(ctx, query)
}

// ListDirtyEntities returns entities whose local edits have not synced yet.
func (s *Store) ListDirtyEntities(ctx context.Context) ([]models.CachedEntity, error) {
	query := `SELECT id, payload, last_updated, last_synced FROM entity_cache
              WHERE last_updated > last_synced ORDER BY id ASC`
	return s.listEntities(ctx, query)
}

func (s *Store) listEntities(ctx context.Context, query string) ([]models.CachedEntity, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var out []models.CachedEntity
	for rows.Next() {
		var e models.CachedEntity
		if err := rows.Scan(&e.ID, &e.Payload, &e.LastUpdated, &e.LastSynced); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	return out, nil
}
