package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies job failures for callers and transports.
type ErrorKind string

const (
	KindAdmissionDenied   ErrorKind = "admission_denied"
	KindTransientProvider ErrorKind = "transient_provider"
	KindPermanentProvider ErrorKind = "permanent_provider"
	KindDeadlineExceeded  ErrorKind = "deadline_exceeded"
	KindCancelled         ErrorKind = "cancellation_requested"
	KindConfiguration     ErrorKind = "configuration"
	KindNotFound          ErrorKind = "not_found"
)

// JobError is the classified failure attached to a terminal job or returned
// synchronously by RequestJob and TryAdmit.
type JobError struct {
	Kind       ErrorKind
	Message    string
	Provider   string
	RetryAfter time.Duration
}

func (e *JobError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Provider != "" {
		msg += " (provider " + e.Provider + ")"
	}
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(", retry after %s", e.RetryAfter)
	}
	return msg
}

// Transient reports whether retrying the same provider call can succeed.
func (e *JobError) Transient() bool {
	return e != nil && e.Kind == KindTransientProvider
}

type jobErrorJSON struct {
	Kind         ErrorKind `json:"kind"`
	Message      string    `json:"message"`
	Provider     string    `json:"provider,omitempty"`
	RetryAfterMS int64     `json:"retry_after_ms,omitempty"`
}

// MarshalJSON renders RetryAfter in milliseconds so API clients never see
// nanosecond counts.
func (e *JobError) MarshalJSON() ([]byte, error) {
	return json.Marshal(jobErrorJSON{
		Kind:         e.Kind,
		Message:      e.Message,
		Provider:     e.Provider,
		RetryAfterMS: e.RetryAfter.Milliseconds(),
	})
}

func (e *JobError) UnmarshalJSON(data []byte) error {
	var raw jobErrorJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Kind = raw.Kind
	e.Message = raw.Message
	e.Provider = raw.Provider
	e.RetryAfter = time.Duration(raw.RetryAfterMS) * time.Millisecond
	return nil
}

// NewAdmissionDenied reports quota exhaustion for key. RetryAfter is the
// time until the current window rolls over.
func NewAdmissionDenied(key string, retryAfter time.Duration) *JobError {
	return &JobError{
		Kind:       KindAdmissionDenied,
		Message:    fmt.Sprintf("admission window exhausted for %q", key),
		RetryAfter: retryAfter,
	}
}

// NewConfigError reports an invalid request or an impossible configuration,
// such as a cost larger than the window limit.
func NewConfigError(format string, args ...any) *JobError {
	return &JobError{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// NewNotFound reports an unknown or already evicted handle.
func NewNotFound(handle string) *JobError {
	return &JobError{Kind: KindNotFound, Message: fmt.Sprintf("no job with handle %q", handle)}
}

// NewTransient reports a provider failure worth retrying.
func NewTransient(provider, message string, retryAfter time.Duration) *JobError {
	return &JobError{
		Kind:       KindTransientProvider,
		Message:    message,
		Provider:   provider,
		RetryAfter: retryAfter,
	}
}

// NewPermanent reports a provider failure that retrying cannot fix.
func NewPermanent(provider, message string) *JobError {
	return &JobError{Kind: KindPermanentProvider, Message: message, Provider: provider}
}

// NewDeadlineExceeded reports that the job deadline elapsed before a
// provider outcome was observed.
func NewDeadlineExceeded(deadline time.Time) *JobError {
	return &JobError{
		Kind:    KindDeadlineExceeded,
		Message: fmt.Sprintf("deadline %s elapsed", deadline.UTC().Format(time.RFC3339)),
	}
}

// NewCancelled reports a caller-requested cancellation that was honored.
func NewCancelled() *JobError {
	return &JobError{Kind: KindCancelled, Message: "cancellation requested by caller"}
}

// AsJobError unwraps err to a *JobError when one is in the chain.
func AsJobError(err error) (*JobError, bool) {
	var jerr *JobError
	if errors.As(err, &jerr) {
		return jerr, true
	}
	return nil, false
}

// KindOf returns the classified kind for err, or KindPermanentProvider when
// err carries no classification.
func KindOf(err error) ErrorKind {
	if jerr, ok := AsJobError(err); ok {
		return jerr.Kind
	}
	return KindPermanentProvider
}
