package engine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/core"
)

// trackedJob is one live job record. The run goroutine is its only writer;
// everything else reads snapshots.
type trackedJob struct {
	mu              sync.Mutex
	job             core.Job
	cancel          context.CancelFunc
	done            chan struct{}
	cancelRequested bool
}

// snapshot copies the record so callers can never observe a half-applied
// transition or mutate shared state.
func (t *trackedJob) snapshot() *core.Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	cp := t.job
	if t.job.SubmittedAt != nil {
		v := *t.job.SubmittedAt
		cp.SubmittedAt = &v
	}
	if t.job.FinishedAt != nil {
		v := *t.job.FinishedAt
		cp.FinishedAt = &v
	}
	if t.job.Error != nil {
		e := *t.job.Error
		cp.Error = &e
	}
	if len(t.job.Result) > 0 {
		cp.Result = append(json.RawMessage(nil), t.job.Result...)
	}
	return &cp
}

func (t *trackedJob) state() core.JobState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job.State
}

func (t *trackedJob) deadline() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job.Deadline
}

func (t *trackedJob) providerRef() (provider, ref string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job.Provider, t.job.ProviderRef
}

func (t *trackedJob) provider() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job.Provider
}

func (t *trackedJob) class() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job.Class
}

func (t *trackedJob) incPolls() {
	t.mu.Lock()
	t.job.Polls++
	t.mu.Unlock()
}

func (t *trackedJob) incAttempts() {
	t.mu.Lock()
	t.job.Attempts++
	t.mu.Unlock()
}

// resultTable tracks accepted jobs until their terminal snapshot is fetched
// once, or retention evicts them.
type resultTable struct {
	mu   sync.Mutex
	jobs map[string]*trackedJob
}

func newResultTable() *resultTable {
	return &resultTable{jobs: make(map[string]*trackedJob)}
}

func (rt *resultTable) put(t *trackedJob) {
	rt.mu.Lock()
	rt.jobs[t.job.Handle] = t
	rt.mu.Unlock()
}

func (rt *resultTable) get(handle string) (*trackedJob, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	t, ok := rt.jobs[handle]
	return t, ok
}

func (rt *resultTable) remove(handle string) {
	rt.mu.Lock()
	delete(rt.jobs, handle)
	rt.mu.Unlock()
}

// inflight counts jobs that have not reached a terminal state.
func (rt *resultTable) inflight() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	n := 0
	for _, t := range rt.jobs {
		if !t.state().Terminal() {
			n++
		}
	}
	return n
}

// evictExpired drops terminal jobs whose results were never fetched within
// retention. Non-terminal jobs are never evicted.
func (rt *resultTable) evictExpired(now time.Time, retention time.Duration) []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	var evicted []string
	for handle, t := range rt.jobs {
		t.mu.Lock()
		expired := t.job.State.Terminal() &&
			t.job.FinishedAt != nil &&
			!now.Before(t.job.FinishedAt.Add(retention))
		t.mu.Unlock()
		if expired {
			delete(rt.jobs, handle)
			evicted = append(evicted, handle)
		}
	}
	return evicted
}
