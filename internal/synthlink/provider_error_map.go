package synthlink

import (
	"context"
	"errors"
	"net/http"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/core"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/synthlink/driver"
)

// maxErrorDetail caps provider error text carried into job errors; full
// bodies stay in the driver trace.
const maxErrorDetail = 512

// mapProviderError classifies a driver failure into the job error taxonomy.
// Context interrupts pass through untouched so the orchestrator can tell
// deadline expiry and cancellation apart from provider trouble.
func mapProviderError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var perr *driver.ProviderError
	if errors.As(err, &perr) && perr != nil {
		status := perr.StatusCode
		detail := clipDetail(perr.Message)
		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return core.NewPermanent(provider, "provider authentication failed: "+detail)
		case status == http.StatusNotFound:
			return core.NewPermanent(provider, "provider model or job not found: "+detail)
		case status == http.StatusRequestTimeout:
			return core.NewTransient(provider, "provider request timed out: "+detail, perr.RetryAfter)
		case status == http.StatusTooManyRequests:
			return core.NewTransient(provider, "provider rate limited: "+detail, perr.RetryAfter)
		case status >= 500 && status <= 599:
			return core.NewTransient(provider, "provider unavailable: "+detail, perr.RetryAfter)
		case status >= 400 && status <= 499:
			return core.NewPermanent(provider, "provider rejected request: "+detail)
		default:
			return core.NewTransient(provider, "provider request failed: "+detail, 0)
		}
	}

	// No HTTP status at all: connection refused, DNS failure, reset. Worth
	// retrying.
	return core.NewTransient(provider, "provider unreachable: "+clipDetail(err.Error()), 0)
}

func clipDetail(detail string) string {
	detail = safeOneLine(detail)
	if len(detail) > maxErrorDetail {
		detail = string(truncateBytes([]byte(detail), maxErrorDetail)) + "..."
	}
	return detail
}
