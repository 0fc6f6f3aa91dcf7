package store

import (
	"context"
	"fmt"

	"sitesync/internal/models"
)

// RecordDeadLetter stores the final disposition of a permanently dropped
// mutation. The primary key makes a duplicate record a no-op, so replaying
// a drain cannot double-report.
func (s *Store) RecordDeadLetter(ctx context.Context, d models.DeadLetter) error {
	query := `INSERT INTO dead_letters (mutation_id, target_url, method, reason, attempts, failed_at)
              VALUES (?, ?, ?, ?, ?, ?)
              ON CONFLICT(mutation_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query,
		d.MutationID, d.TargetURL, d.Method, d.Reason, d.Attempts, d.FailedAt,
	); err != nil {
		return fmt.Errorf("record dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns dropped mutations, newest first.
func (s *Store) ListDeadLetters(ctx context.Context) ([]models.DeadLetter, error) {
	query := `SELECT mutation_id, target_url, method, reason, attempts, failed_at
              FROM dead_letters ORDER BY failed_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var out []models.DeadLetter
	for rows.Next() {
		var d models.DeadLetter
		if err := rows.Scan(&d.MutationID, &d.TargetURL, &d.Method, &d.Reason, &d.Attempts, &d.FailedAt); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	return out, nil
}
