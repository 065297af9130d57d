package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/core"
)

type memoryWindowStore struct {
	mu    sync.Mutex
	state map[string]*core.WindowState
	fail  error
}

func (m *memoryWindowStore) GetWindow(ctx context.Context, key string) (*core.WindowState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	if val, ok := m.state[key]; ok {
		cp := *val
		return &cp, nil
	}
	return nil, nil
}

func (m *memoryWindowStore) PutWindow(ctx context.Context, state *core.WindowState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	if m.state == nil {
		m.state = make(map[string]*core.WindowState)
	}
	cp := *state
	m.state[state.Key] = &cp
	return nil
}

func testGate(limits map[string]ClassLimit, at *time.Time) *Gate {
	gate := NewGate(&memoryWindowStore{}, limits)
	gate.Clock = func() time.Time { return *at }
	return gate
}

func TestGateAdmitsUpToLimit(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	gate := testGate(map[string]ClassLimit{
		"song-gen": {Requests: 3, Window: time.Minute},
	}, &now)

	key := core.AdmissionKey("user:42", "song-gen")
	for i := 0; i < 3; i++ {
		decision, err := gate.TryAdmit(context.Background(), key, 1)
		require.NoError(t, err)
		require.True(t, decision.Allowed, "admit %d", i+1)
	}

	decision, err := gate.TryAdmit(context.Background(), key, 1)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Greater(t, decision.RetryAfter, time.Duration(0))
	require.LessOrEqual(t, decision.RetryAfter, time.Minute)
}

func TestGateRetryAfterShrinksWithinWindow(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	gate := testGate(map[string]ClassLimit{
		"song-gen": {Requests: 1, Window: time.Minute},
	}, &now)

	key := core.AdmissionKey("user:42", "song-gen")
	_, err := gate.TryAdmit(context.Background(), key, 1)
	require.NoError(t, err)

	now = now.Add(19 * time.Second)
	decision, err := gate.TryAdmit(context.Background(), key, 1)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, 41*time.Second, decision.RetryAfter)
}

func TestGateOpensNewWindowAfterExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	gate := testGate(map[string]ClassLimit{
		"song-gen": {Requests: 1, Window: time.Minute},
	}, &now)

	key := core.AdmissionKey("user:42", "song-gen")
	_, err := gate.TryAdmit(context.Background(), key, 1)
	require.NoError(t, err)

	decision, err := gate.TryAdmit(context.Background(), key, 1)
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	// The window covers [start, start+60s); t=start+60s begins a new one.
	now = now.Add(time.Minute)
	decision, err = gate.TryAdmit(context.Background(), key, 1)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
}

func TestGateCostWeighting(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	gate := testGate(map[string]ClassLimit{
		"song-gen": {Requests: 10, Window: time.Minute},
	}, &now)

	key := core.AdmissionKey("user:42", "song-gen")
	for i := 0; i < 3; i++ {
		decision, err := gate.TryAdmit(context.Background(), key, 3)
		require.NoError(t, err)
		require.True(t, decision.Allowed)
		require.Equal(t, 10-3*(i+1), decision.Remaining)
	}

	// One unit remains; a three-unit request must not partially admit.
	decision, err := gate.TryAdmit(context.Background(), key, 3)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, 1, decision.Remaining)

	decision, err = gate.TryAdmit(context.Background(), key, 1)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, 0, decision.Remaining)
}

func TestGateCostAboveLimitIsConfigurationError(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := &memoryWindowStore{}
	gate := NewGate(store, map[string]ClassLimit{
		"song-gen": {Requests: 10, Window: time.Minute},
	})
	gate.Clock = func() time.Time { return now }

	key := core.AdmissionKey("user:42", "song-gen")
	_, err := gate.TryAdmit(context.Background(), key, 11)
	require.Error(t, err)
	jerr, ok := core.AsJobError(err)
	require.True(t, ok)
	require.Equal(t, core.KindConfiguration, jerr.Kind)

	// A rejected cost must not charge the window.
	require.Empty(t, store.state)
}

func TestGateNegativeCostIsConfigurationError(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	gate := testGate(nil, &now)

	_, err := gate.TryAdmit(context.Background(), "user:42:song-gen", -1)
	require.Error(t, err)
	require.Equal(t, core.KindConfiguration, core.KindOf(err))
}

func TestGateZeroCostDefaultsToOne(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	gate := testGate(map[string]ClassLimit{
		"song-gen": {Requests: 2, Window: time.Minute},
	}, &now)

	decision, err := gate.TryAdmit(context.Background(), "user:42:song-gen", 0)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, 1, decision.Remaining)
}

func TestGateDisabledClassIsConfigurationError(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	gate := testGate(map[string]ClassLimit{
		"song-gen": {Requests: 0, Window: time.Minute},
	}, &now)

	_, err := gate.TryAdmit(context.Background(), "user:42:song-gen", 1)
	require.Error(t, err)
	require.Equal(t, core.KindConfiguration, core.KindOf(err))
}

func TestGateClassFallback(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	gate := testGate(map[string]ClassLimit{
		DefaultClass: {Requests: 2, Window: time.Minute},
	}, &now)

	require.Equal(t, 2, gate.LimitFor("unconfigured-class").Requests)
	require.Equal(t, DefaultLimit, testGate(nil, &now).LimitFor("anything"))

	decision, err := gate.TryAdmit(context.Background(), "user:42:unconfigured-class", 1)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, 1, decision.Remaining)
}

func TestGateKeysAreIndependent(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	gate := testGate(map[string]ClassLimit{
		"song-gen": {Requests: 1, Window: time.Minute},
	}, &now)

	first, err := gate.TryAdmit(context.Background(), "user:42:song-gen", 1)
	require.NoError(t, err)
	require.True(t, first.Allowed)

	other, err := gate.TryAdmit(context.Background(), "user:43:song-gen", 1)
	require.NoError(t, err)
	require.True(t, other.Allowed)

	again, err := gate.TryAdmit(context.Background(), "user:42:song-gen", 1)
	require.NoError(t, err)
	require.False(t, again.Allowed)
}

func TestGateStoreErrorsPropagate(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := &memoryWindowStore{fail: errors.New("disk gone")}
	gate := NewGate(store, nil)
	gate.Clock = func() time.Time { return now }

	_, err := gate.TryAdmit(context.Background(), "user:42:song-gen", 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "disk gone")
}

func TestGateSingleWriterPerKey(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	gate := testGate(map[string]ClassLimit{
		"song-gen": {Requests: 25, Window: time.Minute},
	}, &now)

	key := core.AdmissionKey("user:42", "song-gen")
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	var firstErr error

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := gate.TryAdmit(context.Background(), key, 1)
			mu.Lock()
			defer mu.Unlock()
			if err != nil && firstErr == nil {
				firstErr = err
			}
			if decision.Allowed {
				admitted++
			}
		}()
	}
	wg.Wait()

	require.NoError(t, firstErr)
	require.Equal(t, 25, admitted)
}
