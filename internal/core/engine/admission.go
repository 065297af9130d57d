package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/core"
)

// DefaultClass names the limit row applied to operation classes that have
// no row of their own.
const DefaultClass = "default"

// DefaultLimit guards classes nobody configured at all.
var DefaultLimit = ClassLimit{Requests: 10, Window: time.Minute}

// ClassLimit is one operation class's fixed-window budget.
type ClassLimit struct {
	Requests int
	Window   time.Duration
}

// WindowStore persists per-key window state. Unknown keys return (nil, nil).
type WindowStore interface {
	GetWindow(ctx context.Context, key string) (*core.WindowState, error)
	PutWindow(ctx context.Context, state *core.WindowState) error
}

// Decision is the outcome of one TryAdmit call.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	RetryAfter time.Duration `json:"-"`
	Remaining  int           `json:"remaining"`
}

// Gate admits or denies work against per-class fixed windows, before any
// provider-facing cost is incurred. TryAdmit never blocks: a decision is
// arithmetic over stored window state and the injected clock. A per-key
// mutex serializes each key's read-modify-write so concurrent admits cannot
// double-spend a window within this process; accuracy across processes
// sharing a window store is best-effort.
type Gate struct {
	Store  WindowStore
	Limits map[string]ClassLimit
	Clock  func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewGate builds a gate over store. Classes absent from limits fall back to
// limits[DefaultClass], then to DefaultLimit.
func NewGate(store WindowStore, limits map[string]ClassLimit) *Gate {
	return &Gate{
		Store:  store,
		Limits: limits,
		locks:  make(map[string]*sync.Mutex),
	}
}

// TryAdmit charges cost units (default 1) against key's current window.
// Denials carry the time until the window rolls over. A cost that can never
// fit any window of this class is a configuration error, not a denial.
func (g *Gate) TryAdmit(ctx context.Context, key string, cost int) (Decision, error) {
	if cost == 0 {
		cost = 1
	}
	if cost < 0 {
		return Decision{}, core.NewConfigError("cost %d must be positive", cost)
	}

	limit := g.limitFor(core.ClassFromKey(key))
	if limit.Requests <= 0 {
		return Decision{}, core.NewConfigError("class %q admits nothing", core.ClassFromKey(key))
	}
	if cost > limit.Requests {
		return Decision{}, core.NewConfigError("cost %d exceeds window limit %d", cost, limit.Requests)
	}

	unlock := g.lockKey(key)
	defer unlock()

	state, err := g.Store.GetWindow(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("load window %q: %w", key, err)
	}

	now := g.now()
	if state == nil {
		state = &core.WindowState{Key: key, WindowStart: now}
	} else if state.Expired(limit.Window, now) {
		state.RequestCount = 0
		state.WindowStart = now
	}

	if state.RequestCount+cost > limit.Requests {
		return Decision{
			RetryAfter: state.WindowStart.Add(limit.Window).Sub(now),
			Remaining:  limit.Requests - state.RequestCount,
		}, nil
	}

	state.RequestCount += cost
	state.UpdatedAt = now
	if err := g.Store.PutWindow(ctx, state); err != nil {
		return Decision{}, fmt.Errorf("store window %q: %w", key, err)
	}

	return Decision{Allowed: true, Remaining: limit.Requests - state.RequestCount}, nil
}

// LimitFor exposes the effective limit row for a class, for diagnostics and
// admin output.
func (g *Gate) LimitFor(class string) ClassLimit {
	return g.limitFor(class)
}

func (g *Gate) limitFor(class string) ClassLimit {
	limits := g.Limits
	if class != "" {
		if limit, ok := limits[class]; ok {
			return limit
		}
	}
	if limit, ok := limits[DefaultClass]; ok {
		return limit
	}
	return DefaultLimit
}

// lockKey serializes window updates for one key and returns the unlock.
func (g *Gate) lockKey(key string) func() {
	g.mu.Lock()
	if g.locks == nil {
		g.locks = make(map[string]*sync.Mutex)
	}
	l, ok := g.locks[key]
	if !ok {
		l = &sync.Mutex{}
		g.locks[key] = l
	}
	g.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (g *Gate) now() time.Time {
	if g.Clock != nil {
		return g.Clock()
	}
	return time.Now().UTC()
}
