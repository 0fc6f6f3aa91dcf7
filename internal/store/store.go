package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"sitesync/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the durable persistence layer shared by both execution contexts.
// It holds the mutation queue, the entity cache, a single-key settings blob
// and the dead-letter record. SQLite serializes writers per database file,
// which gives the per-partition transaction isolation the engine relies on.
type Store struct {
	db *sql.DB

	defaultMaxAttempts int
}

// Option tweaks store construction.
type Option func(*Store)

// WithDefaultMaxAttempts sets the attempt cap applied to enqueued mutations
// that do not carry their own. Non-positive values are ignored.
func WithDefaultMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.defaultMaxAttempts = n
		}
	}
}

func New(path string, opts ...Option) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect to store: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("create store tables: %w", err)
	}

	st := &Store{db: db, defaultMaxAttempts: models.DefaultMaxAttempts}
	for _, opt := range opts {
		opt(st)
	}
	return st, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS queue (
            id TEXT PRIMARY KEY,
            target_url TEXT NOT NULL,
            method TEXT NOT NULL,
            headers TEXT NOT NULL DEFAULT '{}',
            body BLOB,
            created_at DATETIME NOT NULL,
            attempts INTEGER NOT NULL DEFAULT 0,
            max_attempts INTEGER NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS entity_cache (
            id TEXT PRIMARY KEY,
            payload BLOB NOT NULL,
            last_updated DATETIME NOT NULL,
            last_synced DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS settings (
            key TEXT PRIMARY KEY,
            value TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS dead_letters (
            mutation_id TEXT PRIMARY KEY,
            target_url TEXT NOT NULL,
            method TEXT NOT NULL,
            reason TEXT NOT NULL,
            attempts INTEGER NOT NULL,
            failed_at DATETIME NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_queue_created_at ON queue(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_entity_cache_last_updated ON entity_cache(last_updated)`,
		`CREATE INDEX IF NOT EXISTS idx_entity_cache_last_synced ON entity_cache(last_synced)`,
		`CREATE INDEX IF NOT EXISTS idx_dead_letters_failed_at ON dead_letters(failed_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("exec %q: %w", query, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
