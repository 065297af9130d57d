package engine

import (
	"math/rand"
	"sync"
	"time"
)

// Poll schedule defaults. Base doubles per attempt up to Max; jitter spreads
// simultaneous pollers so a busy provider never sees lockstep probes.
const (
	DefaultPollBase   = 2 * time.Second
	DefaultPollMax    = 30 * time.Second
	DefaultPollJitter = 0.2
)

// PollPolicy computes provider poll spacing. It doubles as the submission
// retry schedule: attempt numbers are zero-based in both uses.
type PollPolicy struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPollPolicy applies defaults to out-of-range inputs and seeds the
// jitter source.
func NewPollPolicy(base, max time.Duration, jitter float64) *PollPolicy {
	if base <= 0 {
		base = DefaultPollBase
	}
	if max <= 0 {
		max = DefaultPollMax
	}
	if max < base {
		max = base
	}
	if jitter < 0 || jitter >= 1 {
		jitter = DefaultPollJitter
	}
	return &PollPolicy{
		Base:   base,
		Max:    max,
		Jitter: jitter,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NextDelay returns the wait before attempt (zero-based):
// min(Base * 2^attempt, Max), spread by ±Jitter. Never negative. With
// Jitter 0 the sequence is deterministic, non-decreasing and capped at Max.
func (p *PollPolicy) NextDelay(attempt int) time.Duration {
	d := p.Base
	if d <= 0 {
		d = DefaultPollBase
	}
	max := p.Max
	if max <= 0 {
		max = DefaultPollMax
	}

	for i := 0; i < attempt; i++ {
		d *= 2
		// d <= 0 means the doubling overflowed.
		if d <= 0 || d >= max {
			d = max
			break
		}
	}
	if d > max {
		d = max
	}
	return p.jittered(d)
}

func (p *PollPolicy) jittered(d time.Duration) time.Duration {
	if p.Jitter <= 0 || p.rng == nil {
		return d
	}
	p.mu.Lock()
	f := (p.rng.Float64()*2 - 1) * p.Jitter
	p.mu.Unlock()

	out := d + time.Duration(float64(d)*f)
	if out < 0 {
		return 0
	}
	return out
}

// RemainingBudget is the non-negative time left before deadline.
func RemainingBudget(deadline, now time.Time) time.Duration {
	if !now.Before(deadline) {
		return 0
	}
	return deadline.Sub(now)
}
