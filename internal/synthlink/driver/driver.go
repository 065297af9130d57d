package driver

import (
	"context"
	"encoding/json"
)

// Driver defines the interface for generative audio providers.
type Driver interface {
	// Submit starts a synthesis job and returns its initial state. Drivers for
	// synchronous providers return a terminal Job with Output set and no Ref.
	Submit(ctx context.Context, req *Request) (*Job, error)
	// Status fetches the current state of a previously submitted job.
	Status(ctx context.Context, ref string) (*Job, error)
	// Name returns the driver identifier (e.g., "replicate").
	Name() string
	// Capabilities returns what this driver supports.
	Capabilities() Capabilities
}

// Canceler is implemented by drivers whose provider accepts cancellation.
// Cancellation is best-effort: a job may still finish on the provider side.
type Canceler interface {
	Cancel(ctx context.Context, ref string) error
}

// Capabilities describes driver features.
type Capabilities struct {
	Async  bool
	Cancel bool
}

// State is the provider-agnostic lifecycle state of a submitted job.
type State string

const (
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

// Terminal reports whether the provider will make no further progress.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCanceled
}

// Request is a provider-agnostic synthesis request.
type Request struct {
	// Model identifies the provider model, version, or voice to use.
	Model string
	// Class is the operation class the request was routed from.
	Class string
	// Input is the caller payload, forwarded to the provider untouched.
	Input json.RawMessage

	Metadata map[string]string
}

// Job is a provider-agnostic view of a synthesis job.
type Job struct {
	// Ref is the provider-issued job id. Empty for synchronous drivers.
	Ref   string
	State State
	// Output holds the provider result once State is succeeded.
	Output json.RawMessage
	// Message carries the provider failure detail once State is failed.
	Message string
	// Raw is the unparsed provider response body, for debug capture.
	Raw []byte
}
