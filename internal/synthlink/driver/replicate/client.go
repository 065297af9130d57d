package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/synthlink/driver"
)

const defaultBaseURL = "https://api.replicate.com/v1"

// Client drives Replicate's asynchronous predictions API via direct HTTP.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewClient returns a client with defaults applied.
func NewClient(baseURL, apiKey string) *Client {
	url := strings.TrimSpace(baseURL)
	if url == "" {
		url = defaultBaseURL
	}

	return &Client{
		BaseURL: url,
		APIKey:  strings.TrimSpace(apiKey),
	}
}

// Name returns the driver identifier.
func (c *Client) Name() string {
	return "replicate"
}

// Capabilities describes supported features.
func (c *Client) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		Async:  true,
		Cancel: true,
	}
}

// Submit creates a prediction and returns its initial state, normally
// "starting" with a prediction id to poll.
func (c *Client) Submit(ctx context.Context, req *driver.Request) (*driver.Job, error) {
	if c == nil {
		return nil, fmt.Errorf("replicate client not configured")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}

	path, payload, err := buildSubmit(req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	respBody, err := c.do(ctx, http.MethodPost, path, body, callContext{Model: req.Model, Class: req.Class})
	if err != nil {
		return nil, err
	}

	parsed, err := parsePrediction(respBody)
	if err != nil {
		return nil, err
	}
	return parsed.toJob(respBody)
}

// Status fetches the prediction identified by ref.
func (c *Client) Status(ctx context.Context, ref string) (*driver.Job, error) {
	if c == nil {
		return nil, fmt.Errorf("replicate client not configured")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("prediction ref is required")
	}

	respBody, err := c.do(ctx, http.MethodGet, "/predictions/"+url.PathEscape(ref), nil, callContext{})
	if err != nil {
		return nil, err
	}

	parsed, err := parsePrediction(respBody)
	if err != nil {
		return nil, err
	}
	return parsed.toJob(respBody)
}

// Cancel asks Replicate to stop the prediction. The provider may already
// have finished it; callers treat errors as advisory.
func (c *Client) Cancel(ctx context.Context, ref string) error {
	if c == nil {
		return fmt.Errorf("replicate client not configured")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("api key is required")
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return fmt.Errorf("prediction ref is required")
	}

	_, err := c.do(ctx, http.MethodPost, "/predictions/"+url.PathEscape(ref)+"/cancel", nil, callContext{})
	return err
}

// callContext carries trace annotations for a single API call.
type callContext struct {
	Model string
	Class string
}

// do performs one authenticated API call with tracing and error mapping.
func (c *Client) do(ctx context.Context, method, path string, body []byte, call callContext) ([]byte, error) {
	ctx, cancel := withTimeout(ctx, c.Timeout)
	if cancel != nil {
		defer cancel()
	}

	endpoint := strings.TrimRight(c.BaseURL, "/") + path
	start := time.Now()

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	if len(body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		driver.Trace(driver.TraceEntry{
			Driver:      "replicate",
			Endpoint:    endpoint,
			Method:      method,
			Model:       call.Model,
			Class:       call.Class,
			RequestBody: body,
			Error:       err.Error(),
			DurationMs:  duration.Milliseconds(),
		})
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	driver.Trace(driver.TraceEntry{
		Driver:      "replicate",
		Endpoint:    endpoint,
		Method:      method,
		Model:       call.Model,
		Class:       call.Class,
		RequestBody: body,
		StatusCode:  resp.StatusCode,
		Response:    respBody,
		DurationMs:  duration.Milliseconds(),
	})

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, driver.NewProviderError("replicate", resp, respBody)
	}

	return respBody, nil
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, timeout)
}
