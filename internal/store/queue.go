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

// ErrMutationNotFound is returned when an attempts update targets an entry
// that was concurrently removed.
var ErrMutationNotFound = errors.New("queued mutation not found")

// EnqueueMutation persists a new queue entry and fills in its generated
// fields. A persistence failure propagates to the caller; enqueue never
// fails silently.
func (s *Store) EnqueueMutation(ctx context.Context, m *models.QueuedMutation) error {
	if err := m.Validate(); err != nil {
		return err
	}

	now := time.Now()
	if m.ID == "" {
		m.ID = models.NewMutationID(now)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.MaxAttempts <= 0 {
		m.MaxAttempts = s.defaultMaxAttempts
	}
	m.Attempts = 0

	headers, err := json.Marshal(m.Headers)
	if err != nil {
		return fmt.Errorf("encode mutation headers: %w", err)
	}

	query := `INSERT INTO queue (id, target_url, method, headers, body, created_at, attempts, max_attempts)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query,
		m.ID, m.TargetURL, m.Method, string(headers), m.Body, m.CreatedAt, m.Attempts, m.MaxAttempts,
	); err != nil {
		return fmt.Errorf("enqueue mutation: %w", err)
	}
	return nil
}

// ListMutations returns a snapshot of all queued entries in created_at order.
func (s *Store) ListMutations(ctx context.Context) ([]models.QueuedMutation, error) {
	query := `SELECT id, target_url, method, headers, body, created_at, attempts, max_attempts
              FROM queue ORDER BY created_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list mutations: %w", err)
	}
	defer rows.Close()

	var out []models.QueuedMutation
	for rows.Next() {
		m, err := scanMutation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list mutations: %w", err)
	}
	return out, nil
}

func scanMutation(rows *sql.Rows) (models.QueuedMutation, error) {
	var m models.QueuedMutation
	var headers string
	if err := rows.Scan(&m.ID, &m.TargetURL, &m.Method, &headers, &m.Body, &m.CreatedAt, &m.Attempts, &m.MaxAttempts); err != nil {
		return m, fmt.Errorf("scan mutation: %w", err)
	}
	if err := json.Unmarshal([]byte(headers), &m.Headers); err != nil {
		return m, fmt.Errorf("decode mutation headers: %w", err)
	}
	return m, nil
}

// RemoveMutation deletes a queue entry. Removing an id that no longer exists
// is a no-op, not an error.
func (s *Store) RemoveMutation(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove mutation: %w", err)
	}
	return nil
}

// UpdateMutationAttempts persists a new attempts count. It reports
// ErrMutationNotFound when the entry was removed out from under the caller.
func (s *Store) UpdateMutationAttempts(ctx context.Context, id string, attempts int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE queue SET attempts = ? WHERE id = ?`, attempts, id)
	if err != nil {
		return fmt.Errorf("update mutation attempts: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update mutation attempts: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update attempts for %s: %w", id, ErrMutationNotFound)
	}
	return nil
}

// CountMutationsMatching counts queued entries whose target URL matches the
// given SQL LIKE pattern. The UI layer uses it to show a pending badge per
// job without reading the whole queue.
func (s *Store) CountMutationsMatching(ctx context.Context, urlPattern string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue WHERE target_url LIKE ?`, urlPattern).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count mutations: %w", err)
	}
	return count, nil
}
