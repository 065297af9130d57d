package core

import (
	"encoding/json"
	"strings"
	"time"
)

// JobState identifies a job's position in its lifecycle.
type JobState string

const (
	StateQueued     JobState = "queued"
	StateSubmitting JobState = "submitting"
	StatePolling    JobState = "polling"
	StateSucceeded  JobState = "succeeded"
	StateFailed     JobState = "failed"
	StateTimedOut   JobState = "timed_out"
	StateCancelled  JobState = "cancelled"
)

// Terminal reports whether the state is absorbing.
func (s JobState) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateTimedOut, StateCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a legal lifecycle
// step. Terminal states accept nothing, which is what keeps a late provider
// success from overwriting a timeout.
func (s JobState) CanTransitionTo(next JobState) bool {
	switch s {
	case StateQueued:
		switch next {
		case StateSubmitting, StateTimedOut, StateCancelled:
			return true
		}
	case StateSubmitting:
		switch next {
		case StatePolling, StateSucceeded, StateFailed, StateTimedOut, StateCancelled:
			return true
		}
	case StatePolling:
		switch next {
		case StateSucceeded, StateFailed, StateTimedOut, StateCancelled:
			return true
		}
	}
	return false
}

// Job is a point-in-time snapshot of one tracked generation job.
type Job struct {
	Handle      string          `json:"handle"`
	Caller      string          `json:"caller"`
	Class       string          `json:"class"`
	Key         string          `json:"key"`
	Cost        int             `json:"cost"`
	State       JobState        `json:"state"`
	Provider    string          `json:"provider,omitempty"`
	ProviderRef string          `json:"provider_ref,omitempty"`
	Attempts    int             `json:"attempts"`
	Polls       int             `json:"polls"`
	CreatedAt   time.Time       `json:"created_at"`
	SubmittedAt *time.Time      `json:"submitted_at,omitempty"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
	Deadline    time.Time       `json:"deadline"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *JobError       `json:"error,omitempty"`
}

// JobRequest describes one admission plus submission attempt. Payload is
// opaque to everything except the provider driver that receives it.
type JobRequest struct {
	Caller  string          `json:"caller"`
	Class   string          `json:"class"`
	Payload json.RawMessage `json:"payload"`
	Cost    int             `json:"cost,omitempty"`

	// Deadline is the absolute completion bound. Zero means "apply the
	// configured default".
	Deadline time.Time `json:"-"`

	// Wait bounds the synchronous portion of RequestJob. Zero means fully
	// async: register the job and return the handle immediately.
	Wait time.Duration `json:"-"`
}

// Validate checks the caller-supplied fields. It does not inspect the
// payload beyond requiring one.
func (r *JobRequest) Validate() error {
	switch {
	case r == nil:
		return NewConfigError("empty request")
	case strings.TrimSpace(r.Caller) == "":
		return NewConfigError("caller is required")
	case strings.ContainsRune(r.Caller, '\n'):
		return NewConfigError("caller must be a single line")
	case strings.TrimSpace(r.Class) == "":
		return NewConfigError("class is required")
	case strings.Contains(r.Class, ":"):
		return NewConfigError("class must not contain ':'")
	case len(r.Payload) == 0:
		return NewConfigError("payload is required")
	case r.Cost < 0:
		return NewConfigError("cost must be positive")
	}
	return nil
}

// AdmissionKey builds the gate key for a caller/class pair.
func AdmissionKey(caller, class string) string {
	return caller + ":" + class
}

// ClassFromKey extracts the operation class: the segment after the last
// colon. Keys without a separator resolve to the empty class, which the gate
// maps onto its default limit.
func ClassFromKey(key string) string {
	if i := strings.LastIndex(key, ":"); i >= 0 {
		return key[i+1:]
	}
	return ""
}
