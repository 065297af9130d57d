package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/core"
)

type stubClient struct {
	mu       sync.Mutex
	submits  int
	statuses int
	cancels  int

	submitFn func(attempt int) (*Submission, error)
	statusFn func(poll int) (*Probe, error)
}

func (s *stubClient) Submit(ctx context.Context, class string, payload json.RawMessage) (*Submission, error) {
	s.mu.Lock()
	s.submits++
	n := s.submits
	fn := s.submitFn
	s.mu.Unlock()
	if fn == nil {
		return &Submission{Provider: "stub", Ref: "ref-1"}, nil
	}
	return fn(n)
}

func (s *stubClient) Status(ctx context.Context, ref string) (*Probe, error) {
	s.mu.Lock()
	s.statuses++
	n := s.statuses
	fn := s.statusFn
	s.mu.Unlock()
	if fn == nil {
		return &Probe{State: ProbeSucceeded, Result: json.RawMessage(`{}`)}, nil
	}
	return fn(n)
}

func (s *stubClient) CancelJob(ctx context.Context, ref string) error {
	s.mu.Lock()
	s.cancels++
	s.mu.Unlock()
	return nil
}

func (s *stubClient) counts() (submits, statuses, cancels int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submits, s.statuses, s.cancels
}

type transitionLog struct {
	mu       sync.Mutex
	states   []core.JobState
	terminal chan *core.Job
}

func newTransitionLog() *transitionLog {
	return &transitionLog{terminal: make(chan *core.Job, 4)}
}

func (l *transitionLog) hook(j *core.Job) {
	l.mu.Lock()
	l.states = append(l.states, j.State)
	l.mu.Unlock()
	if j.State.Terminal() {
		select {
		case l.terminal <- j:
		default:
		}
	}
}

func (l *transitionLog) waitTerminal(t *testing.T, within time.Duration) *core.Job {
	t.Helper()
	select {
	case j := <-l.terminal:
		return j
	case <-time.After(within):
		t.Fatalf("no terminal state within %s", within)
		return nil
	}
}

func (l *transitionLog) seen() []core.JobState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]core.JobState(nil), l.states...)
}

func testOrchestrator(t *testing.T, client JobClient, cfg Config, limits map[string]ClassLimit) *Orchestrator {
	t.Helper()
	if limits == nil {
		limits = map[string]ClassLimit{DefaultClass: {Requests: 100, Window: time.Minute}}
	}
	gate := NewGate(&memoryWindowStore{}, limits)
	o := New(gate, client, NewPollPolicy(2*time.Millisecond, 10*time.Millisecond, 0), cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = o.Shutdown(ctx)
	})
	return o
}

func songRequest(wait time.Duration) *core.JobRequest {
	return &core.JobRequest{
		Caller:  "user:42",
		Class:   "song-gen",
		Payload: json.RawMessage(`{"prompt":"slow jazz","duration_s":30}`),
		Wait:    wait,
	}
}

func TestRequestJobValidatesInput(t *testing.T) {
	client := &stubClient{}
	o := testOrchestrator(t, client, Config{}, nil)

	req := songRequest(0)
	req.Payload = nil
	_, err := o.RequestJob(context.Background(), req)
	require.Error(t, err)
	require.Equal(t, core.KindConfiguration, core.KindOf(err))

	submits, _, _ := client.counts()
	require.Zero(t, submits)
}

func TestRequestJobAdmissionDenied(t *testing.T) {
	client := &stubClient{
		submitFn: func(int) (*Submission, error) {
			return &Submission{Provider: "stub", Result: json.RawMessage(`{"url":"a"}`)}, nil
		},
	}
	o := testOrchestrator(t, client, Config{}, map[string]ClassLimit{
		"song-gen": {Requests: 1, Window: time.Minute},
	})

	first, err := o.RequestJob(context.Background(), songRequest(time.Second))
	require.NoError(t, err)
	require.Equal(t, core.StateSucceeded, first.State)

	_, err = o.RequestJob(context.Background(), songRequest(0))
	require.Error(t, err)
	jerr, ok := core.AsJobError(err)
	require.True(t, ok)
	require.Equal(t, core.KindAdmissionDenied, jerr.Kind)
	require.Greater(t, jerr.RetryAfter, time.Duration(0))

	submits, _, _ := client.counts()
	require.Equal(t, 1, submits, "denied request must not reach the provider")
}

func TestImmediateProviderSuccess(t *testing.T) {
	result := json.RawMessage(`{"audio_base64":"UklGRg==","content_type":"audio/mpeg"}`)
	client := &stubClient{
		submitFn: func(int) (*Submission, error) {
			return &Submission{Provider: "elevenlabs", Result: result}, nil
		},
	}
	o := testOrchestrator(t, client, Config{}, nil)

	job, err := o.RequestJob(context.Background(), songRequest(time.Second))
	require.NoError(t, err)
	require.Equal(t, core.StateSucceeded, job.State)
	require.JSONEq(t, string(result), string(job.Result))
	require.Equal(t, 1, job.Attempts)
	require.Zero(t, job.Polls)
	require.NotNil(t, job.FinishedAt)

	// Synchronous delivery was the one result fetch.
	_, err = o.GetStatus(context.Background(), job.Handle)
	require.Error(t, err)
	require.Equal(t, core.KindNotFound, core.KindOf(err))
}

func TestPollUntilSucceeded(t *testing.T) {
	result := json.RawMessage(`{"output":["https://cdn/track.mp3"]}`)
	client := &stubClient{
		statusFn: func(poll int) (*Probe, error) {
			if poll < 3 {
				return &Probe{State: ProbeRunning}, nil
			}
			return &Probe{State: ProbeSucceeded, Result: result}, nil
		},
	}
	o := testOrchestrator(t, client, Config{}, nil)

	job, err := o.RequestJob(context.Background(), songRequest(2*time.Second))
	require.NoError(t, err)
	require.Equal(t, core.StateSucceeded, job.State)
	require.JSONEq(t, string(result), string(job.Result))
	require.Equal(t, "stub", job.Provider)
	require.Equal(t, "ref-1", job.ProviderRef)
	require.Equal(t, 3, job.Polls)
	require.NotNil(t, job.SubmittedAt)
}

func TestProviderReportedFailure(t *testing.T) {
	client := &stubClient{
		statusFn: func(int) (*Probe, error) {
			return &Probe{State: ProbeFailed, Message: "content policy rejected prompt"}, nil
		},
	}
	o := testOrchestrator(t, client, Config{}, nil)

	job, err := o.RequestJob(context.Background(), songRequest(2*time.Second))
	require.NoError(t, err)
	require.Equal(t, core.StateFailed, job.State)
	require.NotNil(t, job.Error)
	require.Equal(t, core.KindPermanentProvider, job.Error.Kind)
	require.Contains(t, job.Error.Message, "content policy")
}

func TestSubmitRetriesTransientErrors(t *testing.T) {
	client := &stubClient{
		submitFn: func(attempt int) (*Submission, error) {
			if attempt < 3 {
				return nil, core.NewTransient("replicate", "upstream 503", 0)
			}
			return &Submission{Provider: "replicate", Ref: "pred-9"}, nil
		},
	}
	o := testOrchestrator(t, client, Config{SubmitRetries: 3}, nil)

	job, err := o.RequestJob(context.Background(), songRequest(2*time.Second))
	require.NoError(t, err)
	require.Equal(t, core.StateSucceeded, job.State)
	require.Equal(t, 3, job.Attempts)
}

func TestSubmitExhaustsRetries(t *testing.T) {
	client := &stubClient{
		submitFn: func(int) (*Submission, error) {
			return nil, core.NewTransient("replicate", "upstream 503", 0)
		},
	}
	o := testOrchestrator(t, client, Config{SubmitRetries: 1}, nil)

	job, err := o.RequestJob(context.Background(), songRequest(2*time.Second))
	require.NoError(t, err)
	require.Equal(t, core.StateFailed, job.State)
	require.NotNil(t, job.Error)
	require.Equal(t, core.KindTransientProvider, job.Error.Kind)

	submits, _, _ := client.counts()
	require.Equal(t, 2, submits)
}

func TestSubmitPermanentErrorFailsFast(t *testing.T) {
	client := &stubClient{
		submitFn: func(int) (*Submission, error) {
			return nil, core.NewPermanent("replicate", "model version not found")
		},
	}
	o := testOrchestrator(t, client, Config{SubmitRetries: 5}, nil)

	job, err := o.RequestJob(context.Background(), songRequest(2*time.Second))
	require.NoError(t, err)
	require.Equal(t, core.StateFailed, job.State)
	require.Equal(t, core.KindPermanentProvider, job.Error.Kind)

	submits, _, _ := client.counts()
	require.Equal(t, 1, submits, "permanent failures must not retry")
}

func TestDeadlineDominatesPolling(t *testing.T) {
	client := &stubClient{
		statusFn: func(int) (*Probe, error) {
			return &Probe{State: ProbeRunning}, nil
		},
	}
	log := newTransitionLog()
	o := testOrchestrator(t, client, Config{}, nil)
	o.OnTransition = log.hook

	req := songRequest(0)
	req.Deadline = time.Now().UTC().Add(80 * time.Millisecond)
	job, err := o.RequestJob(context.Background(), req)
	require.NoError(t, err)
	require.False(t, job.State.Terminal())

	terminal := log.waitTerminal(t, 2*time.Second)
	require.Equal(t, core.StateTimedOut, terminal.State)
	require.Equal(t, core.KindDeadlineExceeded, terminal.Error.Kind)

	_, statusesAtTimeout, _ := client.counts()
	time.Sleep(50 * time.Millisecond)
	_, statusesAfter, _ := client.counts()
	require.Equal(t, statusesAtTimeout, statusesAfter, "no probes may be issued after timeout")
}

func TestLateSuccessCannotOverwriteTimeout(t *testing.T) {
	client := &stubClient{
		statusFn: func(int) (*Probe, error) {
			time.Sleep(120 * time.Millisecond)
			return &Probe{State: ProbeSucceeded, Result: json.RawMessage(`{"output":"late"}`)}, nil
		},
	}
	log := newTransitionLog()
	o := testOrchestrator(t, client, Config{}, nil)
	o.OnTransition = log.hook

	req := songRequest(0)
	req.Deadline = time.Now().UTC().Add(60 * time.Millisecond)
	_, err := o.RequestJob(context.Background(), req)
	require.NoError(t, err)

	terminal := log.waitTerminal(t, 2*time.Second)
	require.Equal(t, core.StateTimedOut, terminal.State)
	require.Empty(t, terminal.Result)
}

func TestBudgetShortCircuitTimesOutImmediately(t *testing.T) {
	client := &stubClient{}
	gate := NewGate(&memoryWindowStore{}, map[string]ClassLimit{DefaultClass: {Requests: 100, Window: time.Minute}})
	// First poll delay far beyond the deadline budget.
	o := New(gate, client, NewPollPolicy(time.Hour, time.Hour, 0), Config{})
	log := newTransitionLog()
	o.OnTransition = log.hook
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = o.Shutdown(ctx)
	})

	req := songRequest(0)
	req.Deadline = time.Now().UTC().Add(100 * time.Millisecond)
	_, err := o.RequestJob(context.Background(), req)
	require.NoError(t, err)

	terminal := log.waitTerminal(t, time.Second)
	require.Equal(t, core.StateTimedOut, terminal.State)

	_, statuses, _ := client.counts()
	require.Zero(t, statuses, "a poll that would fire after the deadline must not wait idle")
}

func TestCancelDuringPolling(t *testing.T) {
	client := &stubClient{
		statusFn: func(int) (*Probe, error) {
			return &Probe{State: ProbeRunning}, nil
		},
	}
	log := newTransitionLog()
	o := testOrchestrator(t, client, Config{}, nil)
	o.OnTransition = log.hook

	job, err := o.RequestJob(context.Background(), songRequest(0))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, err := o.GetStatus(context.Background(), job.Handle)
		return err == nil && snap.State == core.StatePolling
	}, time.Second, time.Millisecond)

	_, err = o.Cancel(context.Background(), job.Handle)
	require.NoError(t, err)

	terminal := log.waitTerminal(t, 2*time.Second)
	require.Equal(t, core.StateCancelled, terminal.State)
	require.Equal(t, core.KindCancelled, terminal.Error.Kind)

	// Best-effort upstream cancel fires once the job is locally terminal.
	require.Eventually(t, func() bool {
		_, _, cancels := client.counts()
		return cancels == 1
	}, time.Second, time.Millisecond)

	// Repeat cancel is a no-op on an already cancelled job.
	snap, err := o.Cancel(context.Background(), job.Handle)
	require.NoError(t, err)
	require.Equal(t, core.StateCancelled, snap.State)
	_, _, cancels := client.counts()
	require.Equal(t, 1, cancels)
}

func TestCancelUnknownHandle(t *testing.T) {
	o := testOrchestrator(t, &stubClient{}, Config{}, nil)

	_, err := o.Cancel(context.Background(), "nope")
	require.Error(t, err)
	require.Equal(t, core.KindNotFound, core.KindOf(err))
}

func TestCancelAfterTerminalIsNoop(t *testing.T) {
	client := &stubClient{
		submitFn: func(int) (*Submission, error) {
			return &Submission{Provider: "stub", Result: json.RawMessage(`{"ok":true}`)}, nil
		},
	}
	log := newTransitionLog()
	o := testOrchestrator(t, client, Config{}, nil)
	o.OnTransition = log.hook

	job, err := o.RequestJob(context.Background(), songRequest(0))
	require.NoError(t, err)
	log.waitTerminal(t, time.Second)

	snap, err := o.Cancel(context.Background(), job.Handle)
	require.NoError(t, err)
	require.Equal(t, core.StateSucceeded, snap.State)

	_, _, cancels := client.counts()
	require.Zero(t, cancels)
}

func TestSyncWaitDegradesToAsync(t *testing.T) {
	client := &stubClient{
		statusFn: func(poll int) (*Probe, error) {
			if poll < 5 {
				return &Probe{State: ProbeRunning}, nil
			}
			return &Probe{State: ProbeSucceeded, Result: json.RawMessage(`{"done":1}`)}, nil
		},
	}
	gate := NewGate(&memoryWindowStore{}, map[string]ClassLimit{DefaultClass: {Requests: 100, Window: time.Minute}})
	o := New(gate, client, NewPollPolicy(20*time.Millisecond, 40*time.Millisecond, 0), Config{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = o.Shutdown(ctx)
	})

	job, err := o.RequestJob(context.Background(), songRequest(10*time.Millisecond))
	require.NoError(t, err)
	require.False(t, job.State.Terminal(), "short wait must degrade to a handle, not block")
	require.NotEmpty(t, job.Handle)

	var terminal *core.Job
	require.Eventually(t, func() bool {
		snap, err := o.GetStatus(context.Background(), job.Handle)
		if err != nil {
			return false
		}
		if snap.State.Terminal() {
			terminal = snap
			return true
		}
		return false
	}, 3*time.Second, 5*time.Millisecond)

	require.Equal(t, core.StateSucceeded, terminal.State)

	// The terminal snapshot was fetched exactly once.
	_, err = o.GetStatus(context.Background(), job.Handle)
	require.Error(t, err)
	require.Equal(t, core.KindNotFound, core.KindOf(err))
}

func TestRetentionSweepEvictsUnfetched(t *testing.T) {
	client := &stubClient{
		submitFn: func(int) (*Submission, error) {
			return &Submission{Provider: "stub", Result: json.RawMessage(`{"ok":true}`)}, nil
		},
	}
	gate := NewGate(&memoryWindowStore{}, map[string]ClassLimit{DefaultClass: {Requests: 100, Window: time.Minute}})
	log := newTransitionLog()
	o := New(gate, client, NewPollPolicy(time.Millisecond, time.Millisecond, 0), Config{
		Retention:     15 * time.Millisecond,
		SweepInterval: 10 * time.Millisecond,
	})
	o.OnTransition = log.hook
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = o.Shutdown(ctx)
	})

	job, err := o.RequestJob(context.Background(), songRequest(0))
	require.NoError(t, err)
	log.waitTerminal(t, time.Second)

	require.Eventually(t, func() bool {
		_, err := o.GetStatus(context.Background(), job.Handle)
		return err != nil && core.KindOf(err) == core.KindNotFound
	}, time.Second, 5*time.Millisecond)
}

func TestShutdownCancelsActiveJobs(t *testing.T) {
	client := &stubClient{
		statusFn: func(int) (*Probe, error) {
			return &Probe{State: ProbeRunning}, nil
		},
	}
	gate := NewGate(&memoryWindowStore{}, map[string]ClassLimit{DefaultClass: {Requests: 100, Window: time.Minute}})
	log := newTransitionLog()
	o := New(gate, client, NewPollPolicy(2*time.Millisecond, 10*time.Millisecond, 0), Config{})
	o.OnTransition = log.hook

	_, err := o.RequestJob(context.Background(), songRequest(0))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, o.Shutdown(ctx))

	terminal := log.waitTerminal(t, time.Second)
	require.Equal(t, core.StateCancelled, terminal.State)
}

func TestTransitionSequence(t *testing.T) {
	client := &stubClient{
		statusFn: func(poll int) (*Probe, error) {
			if poll < 2 {
				return &Probe{State: ProbeRunning}, nil
			}
			return &Probe{State: ProbeSucceeded, Result: json.RawMessage(`{}`)}, nil
		},
	}
	log := newTransitionLog()
	o := testOrchestrator(t, client, Config{}, nil)
	o.OnTransition = log.hook

	_, err := o.RequestJob(context.Background(), songRequest(2*time.Second))
	require.NoError(t, err)

	require.Equal(t, []core.JobState{
		core.StateQueued,
		core.StateSubmitting,
		core.StatePolling,
		core.StateSucceeded,
	}, log.seen())
}

func TestTryAdmitSharesGateWithJobs(t *testing.T) {
	o := testOrchestrator(t, &stubClient{}, Config{}, map[string]ClassLimit{
		"song-gen": {Requests: 1, Window: time.Minute},
	})

	decision, err := o.TryAdmit(context.Background(), "user:42:song-gen", 1)
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	// The pre-flight check consumed the window, so the job request is denied.
	_, err = o.RequestJob(context.Background(), songRequest(0))
	require.Error(t, err)
	require.Equal(t, core.KindAdmissionDenied, core.KindOf(err))
}
