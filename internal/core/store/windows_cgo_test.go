//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/config"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	cfg := config.StoreConfig{
		Driver: "libsql",
		Path:   ":memory:",
	}

	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestWindowRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	missing, err := store.GetWindow(ctx, "user:1:song-gen")
	require.NoError(t, err)
	require.Nil(t, missing)

	start := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	state := &core.WindowState{
		Key:          "user:1:song-gen",
		RequestCount: 4,
		WindowStart:  start,
		UpdatedAt:    start.Add(20 * time.Second),
	}
	require.NoError(t, store.PutWindow(ctx, state))

	got, err := store.GetWindow(ctx, "user:1:song-gen")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, state.Key, got.Key)
	require.Equal(t, 4, got.RequestCount)
	require.True(t, got.WindowStart.Equal(start))
	require.True(t, got.UpdatedAt.Equal(start.Add(20*time.Second)))

	// Upsert replaces the row in place.
	state.RequestCount = 5
	require.NoError(t, store.PutWindow(ctx, state))
	got, err = store.GetWindow(ctx, "user:1:song-gen")
	require.NoError(t, err)
	require.Equal(t, 5, got.RequestCount)
}

func TestWindowAdminQueries(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	for _, key := range []string{"user:1:song-gen", "user:1:vocal-gen", "user:2:song-gen"} {
		require.NoError(t, store.PutWindow(ctx, &core.WindowState{
			Key:          key,
			RequestCount: 1,
			WindowStart:  now,
			UpdatedAt:    now,
		}))
	}

	all, err := store.ListWindows(ctx, WindowQuery{All: true})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "user:1:song-gen", all[0].Key, "listing is ordered by key")

	byPrefix, err := store.ListWindows(ctx, WindowQuery{Prefix: "user:1:"})
	require.NoError(t, err)
	require.Len(t, byPrefix, 2)

	count, err := store.CountWindows(ctx, WindowQuery{Key: "user:2:song-gen"})
	require.NoError(t, err)
	require.Equal(t, 1, count)

	_, err = store.ListWindows(ctx, WindowQuery{})
	require.Error(t, err, "an empty query must not list everything by accident")

	affected, err := store.ResetWindows(ctx, WindowQuery{Prefix: "user:1:"})
	require.NoError(t, err)
	require.EqualValues(t, 2, affected)

	remaining, err := store.CountWindows(ctx, WindowQuery{All: true})
	require.NoError(t, err)
	require.Equal(t, 1, remaining)
}

func TestMigrateRecordsSchemaVersion(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, schemaVersion, version)

	// Migrate is idempotent.
	require.NoError(t, store.Migrate(ctx))
}
