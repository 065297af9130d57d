package driver

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ProviderError is returned when a provider responds with a non-2xx status.
//
// Drivers should populate RawResponse with the provider response body bytes.
// RawResponse must never include API keys.
type ProviderError struct {
	Provider    string
	StatusCode  int
	Message     string
	RetryAfter  time.Duration
	RawResponse []byte
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s request failed: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s request failed: %s", e.Provider, e.Message)
}

// retryAfterFrom extracts a Retry-After hint from a provider response.
// Both delta-seconds and HTTP-date forms are accepted; absent or malformed
// headers yield zero.
func retryAfterFrom(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		d := time.Until(at)
		if d < 0 {
			return 0
		}
		return d
	}
	return 0
}

// NewProviderError builds a ProviderError from a non-2xx provider response.
func NewProviderError(provider string, resp *http.Response, body []byte) *ProviderError {
	perr := &ProviderError{
		Provider:    provider,
		Message:     strings.TrimSpace(string(body)),
		RawResponse: body,
	}
	if resp != nil {
		perr.StatusCode = resp.StatusCode
		perr.RetryAfter = retryAfterFrom(resp)
	}
	return perr
}
