package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const schemaVersion = 1

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS admission_windows (
		key TEXT PRIMARY KEY,
		request_count INTEGER NOT NULL DEFAULT 0,
		window_start INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_admission_windows_updated ON admission_windows(updated_at);`,
	`CREATE TABLE IF NOT EXISTS store_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	if err := s.setMeta(ctx, "schema_version", fmt.Sprintf("%d", schemaVersion)); err != nil {
		return err
	}
	return s.setMeta(ctx, "migrated_at", time.Now().UTC().Format(time.RFC3339))
}

// SchemaVersion reports the schema version recorded by the last migration,
// or zero when the store has never been migrated.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	value, err := s.getMeta(ctx, "schema_version")
	if err != nil {
		return 0, err
	}
	if value == "" {
		return 0, nil
	}

	var version int
	if _, err := fmt.Sscanf(value, "%d", &version); err != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", value, err)
	}
	return version, nil
}

func (s *Store) setMeta(ctx context.Context, key, value string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO store_meta (key, value)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("store meta %s: %w", key, err)
	}
	return nil
}

func (s *Store) getMeta(ctx context.Context, key string) (string, error) {
	var value string
	row := s.DB.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = ?`, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("fetch meta %s: %w", key, err)
	}
	return value, nil
}
