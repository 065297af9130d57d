package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/core"
)

// GetWindow returns stored admission window state for a key, or nil when the
// key has never been charged.
func (s *Store) GetWindow(ctx context.Context, key string) (*core.WindowState, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("admission key is required")
	}

	var (
		requestCount int
		windowStart  int64
		updatedAt    int64
	)

	row := s.DB.QueryRowContext(ctx, `
		SELECT request_count, window_start, updated_at
		FROM admission_windows
		WHERE key = ?
	`, key)

	if err := row.Scan(&requestCount, &windowStart, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch admission window: %w", err)
	}

	return &core.WindowState{
		Key:          key,
		RequestCount: requestCount,
		WindowStart:  time.Unix(windowStart, 0).UTC(),
		UpdatedAt:    time.Unix(updatedAt, 0).UTC(),
	}, nil
}

// PutWindow persists admission window state for a key.
func (s *Store) PutWindow(ctx context.Context, state *core.WindowState) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if state == nil {
		return errors.New("window state is required")
	}
	key := strings.TrimSpace(state.Key)
	if key == "" {
		return errors.New("admission key is required")
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO admission_windows (key, request_count, window_start, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			request_count = excluded.request_count,
			window_start = excluded.window_start,
			updated_at = excluded.updated_at
	`, key, state.RequestCount, state.WindowStart.UTC().Unix(), state.UpdatedAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("store admission window: %w", err)
	}

	return nil
}
