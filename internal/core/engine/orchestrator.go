package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/core"
)

// Orchestrator defaults.
const (
	DefaultJobDeadline   = 10 * time.Minute
	DefaultMaxDeadline   = 30 * time.Minute
	DefaultSubmitRetries = 3
	DefaultSyncWaitCap   = 30 * time.Second
	DefaultRetention     = 15 * time.Minute
	DefaultSweepInterval = time.Minute
)

// upstreamCancelTimeout bounds the detached best-effort provider cancel
// issued after a job is already terminal locally.
const upstreamCancelTimeout = 10 * time.Second

// errBudgetExhausted marks a retry or poll that could only fire after the
// job deadline; the job times out immediately instead of waiting idle.
var errBudgetExhausted = errors.New("deadline budget exhausted")

// Config bounds orchestrator behavior. Zero fields take the defaults above.
type Config struct {
	DefaultDeadline time.Duration
	MaxDeadline     time.Duration
	SubmitRetries   int
	SyncWaitCap     time.Duration
	Retention       time.Duration
	SweepInterval   time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultDeadline <= 0 {
		c.DefaultDeadline = DefaultJobDeadline
	}
	if c.MaxDeadline <= 0 {
		c.MaxDeadline = DefaultMaxDeadline
	}
	if c.MaxDeadline < c.DefaultDeadline {
		c.MaxDeadline = c.DefaultDeadline
	}
	if c.SubmitRetries < 0 {
		c.SubmitRetries = DefaultSubmitRetries
	}
	if c.SyncWaitCap <= 0 {
		c.SyncWaitCap = DefaultSyncWaitCap
	}
	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	return c
}

// outcome is a terminal resolution computed by the run goroutine.
type outcome struct {
	state  core.JobState
	result json.RawMessage
	err    *core.JobError
}

// Orchestrator owns the lifecycle of accepted jobs: admission, submission
// with retry, provider polling, deadline enforcement, cooperative
// cancellation and result retention. One goroutine runs per job and is the
// only writer of that job's record.
type Orchestrator struct {
	// OnTransition, when set, receives a snapshot after every state change
	// (including registration). Callers use it to wire logging and metrics;
	// it must not block.
	OnTransition func(*core.Job)

	// Clock is injectable for tests. Defaults to time.Now().UTC.
	Clock func() time.Time

	gate   *Gate
	client JobClient
	policy *PollPolicy
	cfg    Config

	table *resultTable

	rootCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// New builds an orchestrator and starts its retention sweeper. Callers own
// Shutdown.
func New(gate *Gate, client JobClient, policy *PollPolicy, cfg Config) *Orchestrator {
	if policy == nil {
		policy = NewPollPolicy(0, 0, -1)
	}
	o := &Orchestrator{
		gate:   gate,
		client: client,
		policy: policy,
		cfg:    cfg.withDefaults(),
		table:  newResultTable(),
	}
	o.rootCtx, o.stop = context.WithCancel(context.Background())

	o.wg.Add(1)
	go o.sweepLoop(o.cfg.SweepInterval)
	return o
}

// TryAdmit charges key's window without creating a job. Pre-flight checks
// and the admission endpoint share the gate with RequestJob.
func (o *Orchestrator) TryAdmit(ctx context.Context, key string, cost int) (Decision, error) {
	return o.gate.TryAdmit(ctx, key, cost)
}

// RequestJob admits, registers and launches one job. Admission denials and
// configuration problems surface synchronously as errors; everything later
// rides the job record. With req.Wait > 0 the call blocks up to
// min(req.Wait, SyncWaitCap, remaining deadline budget) and, when the job
// finishes in time, returns the terminal snapshot directly (which counts as
// the one result fetch).
func (o *Orchestrator) RequestJob(ctx context.Context, req *core.JobRequest) (*core.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	cost := req.Cost
	if cost == 0 {
		cost = 1
	}
	key := core.AdmissionKey(req.Caller, req.Class)

	decision, err := o.gate.TryAdmit(ctx, key, cost)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, core.NewAdmissionDenied(key, decision.RetryAfter)
	}

	now := o.now()
	deadline := req.Deadline
	if deadline.IsZero() {
		deadline = now.Add(o.cfg.DefaultDeadline)
	}
	if max := now.Add(o.cfg.MaxDeadline); deadline.After(max) {
		deadline = max
	}
	if !deadline.After(now) {
		return nil, core.NewConfigError("deadline %s already elapsed", deadline.UTC().Format(time.RFC3339))
	}

	t := &trackedJob{
		job: core.Job{
			Handle:    uuid.NewString(),
			Caller:    req.Caller,
			Class:     req.Class,
			Key:       key,
			Cost:      cost,
			State:     core.StateQueued,
			CreatedAt: now,
			Deadline:  deadline,
		},
		done: make(chan struct{}),
	}

	jobCtx, cancel := context.WithDeadline(o.rootCtx, deadline)
	t.cancel = cancel
	o.table.put(t)
	o.notify(t)

	o.wg.Add(1)
	go o.run(jobCtx, t, req.Payload)

	if req.Wait > 0 {
		if snap := o.waitBounded(ctx, t, req.Wait, deadline, now); snap != nil {
			return snap, nil
		}
	}
	return t.snapshot(), nil
}

// waitBounded blocks for the sync portion of RequestJob. It returns the
// delivered terminal snapshot, or nil when the call degrades to async.
func (o *Orchestrator) waitBounded(ctx context.Context, t *trackedJob, wait time.Duration, deadline time.Time, now time.Time) *core.Job {
	if wait > o.cfg.SyncWaitCap {
		wait = o.cfg.SyncWaitCap
	}
	if budget := RemainingBudget(deadline, now); wait > budget {
		wait = budget
	}
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-t.done:
		return o.deliver(t)
	case <-timer.C:
		return nil
	case <-ctx.Done():
		// Caller stopped waiting; the job continues asynchronously.
		return nil
	}
}

// GetStatus returns the job's current snapshot. The first fetch of a
// terminal snapshot evicts the record: the same handle afterwards is
// not found.
func (o *Orchestrator) GetStatus(ctx context.Context, handle string) (*core.Job, error) {
	t, ok := o.table.get(handle)
	if !ok {
		return nil, core.NewNotFound(handle)
	}
	return o.deliver(t), nil
}

// Cancel requests cooperative cancellation. Unknown handles are an error;
// repeat cancels and cancels of terminal jobs are no-ops returning the
// current snapshot. Cancel does not count as the result fetch.
func (o *Orchestrator) Cancel(ctx context.Context, handle string) (*core.Job, error) {
	t, ok := o.table.get(handle)
	if !ok {
		return nil, core.NewNotFound(handle)
	}

	t.mu.Lock()
	fresh := !t.job.State.Terminal() && !t.cancelRequested
	if fresh {
		t.cancelRequested = true
	}
	t.mu.Unlock()

	if fresh {
		t.cancel()
	}
	return t.snapshot(), nil
}

// Inflight counts tracked jobs that have not reached a terminal state.
func (o *Orchestrator) Inflight() int {
	return o.table.inflight()
}

// Shutdown cancels every live job and waits, bounded by ctx, for the run
// goroutines to drain.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.stop()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("orchestrator shutdown: %w", ctx.Err())
	}
}

// deliver snapshots the job and evicts it when terminal.
func (o *Orchestrator) deliver(t *trackedJob) *core.Job {
	snap := t.snapshot()
	if snap.State.Terminal() {
		o.table.remove(snap.Handle)
	}
	return snap
}

// run drives one job to a terminal state. It is the job's single writer.
func (o *Orchestrator) run(ctx context.Context, t *trackedJob, payload json.RawMessage) {
	defer o.wg.Done()
	defer t.cancel()
	o.finalize(t, o.execute(ctx, t, payload))
}

func (o *Orchestrator) execute(ctx context.Context, t *trackedJob, payload json.RawMessage) outcome {
	if err := ctx.Err(); err != nil {
		return o.interruptOutcome(t, err)
	}
	o.transition(t, core.StateSubmitting, nil)

	sub, err := o.submitWithRetry(ctx, t, payload)
	if err != nil {
		if isInterrupt(err) {
			return o.interruptOutcome(t, err)
		}
		return outcome{state: core.StateFailed, err: providerFailure(err, "")}
	}

	now := o.now()
	t.mu.Lock()
	t.job.SubmittedAt = &now
	t.job.Provider = sub.Provider
	t.job.ProviderRef = sub.Ref
	t.mu.Unlock()

	if sub.Immediate() {
		// Deadline expiry while the submit call was in flight still wins.
		if o.pastDeadline(t) {
			return o.timedOutOutcome(t)
		}
		return outcome{state: core.StateSucceeded, result: sub.Result}
	}

	o.transition(t, core.StatePolling, nil)
	return o.pollLoop(ctx, t)
}

// submitWithRetry attempts Submit up to SubmitRetries+1 times, backing off
// between transient failures. Permanent failures return immediately.
func (o *Orchestrator) submitWithRetry(ctx context.Context, t *trackedJob, payload json.RawMessage) (*Submission, error) {
	var lastErr error
	deadline := t.deadline()

	for attempt := 0; attempt <= o.cfg.SubmitRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t.incAttempts()

		sub, err := o.client.Submit(ctx, t.class(), payload)
		if err == nil {
			if sub == nil {
				return nil, core.NewPermanent("", "provider returned no submission")
			}
			return sub, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		lastErr = err
		jerr, ok := core.AsJobError(err)
		if !ok || !jerr.Transient() {
			return nil, err
		}

		delay := o.policy.NextDelay(attempt)
		if jerr.RetryAfter > delay {
			delay = jerr.RetryAfter
		}
		if delay >= RemainingBudget(deadline, o.now()) {
			return nil, errBudgetExhausted
		}
		if err := o.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// pollLoop probes the provider until a terminal outcome, the deadline, or
// cancellation. Transient probe failures keep polling; the deadline, not a
// probe counter, bounds the loop.
func (o *Orchestrator) pollLoop(ctx context.Context, t *trackedJob) outcome {
	_, ref := t.providerRef()
	deadline := t.deadline()
	var retryAfter time.Duration

	for attempt := 0; ; attempt++ {
		delay := o.policy.NextDelay(attempt)
		if retryAfter > delay {
			delay = retryAfter
		}
		retryAfter = 0

		if delay >= RemainingBudget(deadline, o.now()) {
			return o.timedOutOutcome(t)
		}
		if err := o.sleep(ctx, delay); err != nil {
			return o.interruptOutcome(t, err)
		}

		probe, err := o.client.Status(ctx, ref)
		t.incPolls()
		if err != nil {
			if interrupt := ctx.Err(); interrupt != nil {
				return o.interruptOutcome(t, interrupt)
			}
			jerr, ok := core.AsJobError(err)
			if ok && jerr.Transient() {
				retryAfter = jerr.RetryAfter
				continue
			}
			return outcome{state: core.StateFailed, err: providerFailure(err, t.provider())}
		}

		// A success observed after the deadline must not overwrite the
		// timeout outcome.
		if o.pastDeadline(t) {
			return o.timedOutOutcome(t)
		}

		switch probe.State {
		case ProbeRunning:
		case ProbeSucceeded:
			return outcome{state: core.StateSucceeded, result: probe.Result}
		case ProbeFailed:
			return outcome{state: core.StateFailed, err: core.NewPermanent(t.provider(), probe.Message)}
		default:
			return outcome{state: core.StateFailed, err: core.NewPermanent(t.provider(), fmt.Sprintf("unknown probe state %q", probe.State))}
		}
	}
}

// finalize applies the terminal outcome exactly once, closes the done
// channel, and fires the best-effort upstream cancel for abandoned work.
func (o *Orchestrator) finalize(t *trackedJob, out outcome) {
	t.mu.Lock()
	if !t.job.State.CanTransitionTo(out.state) {
		t.mu.Unlock()
		return
	}
	now := o.now()
	t.job.State = out.state
	t.job.FinishedAt = &now
	t.job.Result = out.result
	t.job.Error = out.err
	ref := t.job.ProviderRef
	t.mu.Unlock()

	close(t.done)
	o.notify(t)

	if ref != "" && (out.state == core.StateCancelled || out.state == core.StateTimedOut) {
		o.cancelUpstream(ref)
	}
}

// cancelUpstream tells the provider to stop work the orchestrator no longer
// wants. Failures are ignored: the local outcome is already fixed, and a
// provider may finish the computation anyway.
func (o *Orchestrator) cancelUpstream(ref string) {
	canceler, ok := o.client.(JobCanceler)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), upstreamCancelTimeout)
	defer cancel()
	_ = canceler.CancelJob(ctx, ref)
}

// transition applies a non-terminal state change under the legality guard.
func (o *Orchestrator) transition(t *trackedJob, next core.JobState, mutate func(*core.Job)) bool {
	t.mu.Lock()
	if !t.job.State.CanTransitionTo(next) {
		t.mu.Unlock()
		return false
	}
	t.job.State = next
	if mutate != nil {
		mutate(&t.job)
	}
	t.mu.Unlock()
	o.notify(t)
	return true
}

// interruptOutcome classifies a context interruption. The deadline wins
// every race: a cancel that lands after expiry still times out.
func (o *Orchestrator) interruptOutcome(t *trackedJob, cause error) outcome {
	if errors.Is(cause, errBudgetExhausted) || errors.Is(cause, context.DeadlineExceeded) || o.pastDeadline(t) {
		return o.timedOutOutcome(t)
	}
	return outcome{state: core.StateCancelled, err: core.NewCancelled()}
}

func (o *Orchestrator) timedOutOutcome(t *trackedJob) outcome {
	return outcome{state: core.StateTimedOut, err: core.NewDeadlineExceeded(t.deadline())}
}

func (o *Orchestrator) pastDeadline(t *trackedJob) bool {
	return !o.now().Before(t.deadline())
}

// sleep waits d or until ctx is interrupted.
func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (o *Orchestrator) sweepLoop(interval time.Duration) {
	defer o.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-o.rootCtx.Done():
			return
		case <-ticker.C:
			o.table.evictExpired(o.now(), o.cfg.Retention)
		}
	}
}

func (o *Orchestrator) notify(t *trackedJob) {
	if o.OnTransition == nil {
		return
	}
	o.OnTransition(t.snapshot())
}

func (o *Orchestrator) now() time.Time {
	if o.Clock != nil {
		return o.Clock()
	}
	return time.Now().UTC()
}

func isInterrupt(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, errBudgetExhausted)
}

// providerFailure keeps an already classified error, and wraps anything
// else as permanent.
func providerFailure(err error, provider string) *core.JobError {
	if jerr, ok := core.AsJobError(err); ok {
		return jerr
	}
	return core.NewPermanent(provider, err.Error())
}
