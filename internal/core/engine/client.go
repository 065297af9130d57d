package engine

import (
	"context"
	"encoding/json"
)

// ProbeState is the provider-reported condition of a submitted job.
type ProbeState string

const (
	ProbeRunning   ProbeState = "running"
	ProbeSucceeded ProbeState = "succeeded"
	ProbeFailed    ProbeState = "failed"
)

// Submission is a provider's answer to Submit: either a reference to poll,
// or an inline result when the provider completed synchronously.
type Submission struct {
	Provider string
	Ref      string
	Result   json.RawMessage
}

// Immediate reports whether the provider completed without polling.
func (s *Submission) Immediate() bool {
	return s != nil && len(s.Result) > 0
}

// Probe is one Status observation.
type Probe struct {
	State   ProbeState
	Result  json.RawMessage
	Message string
}

// JobClient is the orchestrator's only view of a provider backend. Errors
// returned from either call should unwrap to *core.JobError so the
// orchestrator can tell transient failures from permanent ones without
// knowing providers.
type JobClient interface {
	Submit(ctx context.Context, class string, payload json.RawMessage) (*Submission, error)
	Status(ctx context.Context, ref string) (*Probe, error)
}

// JobCanceler is the optional provider-side cancel. It is best-effort: a
// provider may keep computing after a successful local cancellation, and
// failures here never change a job's outcome.
type JobCanceler interface {
	CancelJob(ctx context.Context, ref string) error
}
