package errors

import (
	"context"

	"github.com/fulmenhq/gofulmen/errors"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/core"
)

// FromJobError maps a job pipeline error onto the API error vocabulary.
// Errors that are not job errors fall back to INTERNAL_ERROR.
func FromJobError(ctx context.Context, err error) *errors.ErrorEnvelope {
	jerr, ok := core.AsJobError(err)
	if !ok {
		return WrapInternal(ctx, err, "job processing failed")
	}

	envelope := errors.NewErrorEnvelope(CodeForJobError(jerr), jerr.Message)
	envelope = envelope.WithCorrelationID(extractCorrelationID(ctx))
	envelope = envelope.WithTraceID(extractTraceID(ctx))

	extra := map[string]interface{}{}
	if jerr.Provider != "" {
		extra["provider"] = jerr.Provider
	}
	if jerr.Kind == core.KindAdmissionDenied && jerr.RetryAfter > 0 {
		// Surfaced as both a response detail and the Retry-After header.
		extra["retry_after_ms"] = jerr.RetryAfter.Milliseconds()
	}
	if len(extra) > 0 {
		if updated, err := envelope.WithContext(extra); err == nil {
			envelope = updated
		}
	}

	return envelope
}

// CodeForJobError resolves the API error code for a job error.
func CodeForJobError(jerr *core.JobError) string {
	if jerr == nil {
		return "INTERNAL_ERROR"
	}

	switch jerr.Kind {
	case core.KindAdmissionDenied:
		return "RATE_LIMITED"
	case core.KindConfiguration:
		return "INVALID_INPUT"
	case core.KindTransientProvider, core.KindPermanentProvider:
		return "EXTERNAL_SERVICE_ERROR"
	case core.KindDeadlineExceeded:
		return "TIMEOUT"
	case core.KindCancelled:
		return "OPERATION_CANCELLED"
	case core.KindNotFound:
		return "NOT_FOUND"
	default:
		return "INTERNAL_ERROR"
	}
}
