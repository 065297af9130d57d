package elevenlabs

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
	"github.com/Krosebrook/RoseyRecords-sub000/internal/synthlink/encode"
)

const (
	defaultBaseURL     = "https://api.elevenlabs.io"
	defaultContentType = "audio/mpeg"
)

// Client drives the ElevenLabs text-to-speech API. Synthesis is synchronous:
// a successful call returns finished audio, so submitted jobs are terminal
// immediately and carry no ref to poll.
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
	return "elevenlabs"
}

// Capabilities describes supported features.
func (c *Client) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		Async:  false,
		Cancel: false,
	}
}

// Submit synthesizes speech for the request payload. The driver request
// model selects the voice; everything else (text, model_id, voice settings)
// rides in the payload untouched.
func (c *Client) Submit(ctx context.Context, req *driver.Request) (*driver.Job, error) {
	if c == nil {
		return nil, fmt.Errorf("elevenlabs client not configured")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	voice := strings.TrimSpace(req.Model)
	if voice == "" {
		return nil, fmt.Errorf("voice id is required")
	}
	if err := validateInput(req.Input); err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, c.Timeout)
	if cancel != nil {
		defer cancel()
	}

	endpoint := strings.TrimRight(c.BaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(voice)
	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(req.Input))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	httpReq.Header.Set("xi-api-key", c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", defaultContentType)

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		driver.Trace(driver.TraceEntry{
			Driver:      "elevenlabs",
			Endpoint:    endpoint,
			Method:      "POST",
			Model:       voice,
			Class:       req.Class,
			RequestBody: req.Input,
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

	traceEntry := driver.TraceEntry{
		Driver:      "elevenlabs",
		Endpoint:    endpoint,
		Method:      "POST",
		Model:       voice,
		Class:       req.Class,
		RequestBody: req.Input,
		StatusCode:  resp.StatusCode,
		DurationMs:  duration.Milliseconds(),
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		// Error bodies are JSON and safe to trace; success bodies are audio.
		traceEntry.Response = respBody
		driver.Trace(traceEntry)
		return nil, driver.NewProviderError("elevenlabs", resp, respBody)
	}
	driver.Trace(traceEntry)

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}

	output, err := encode.EncodeAudioPayload(respBody, contentType)
	if err != nil {
		return nil, err
	}

	return &driver.Job{
		State:  driver.StateSucceeded,
		Output: output,
	}, nil
}

// Status is unsupported: synthesis completes within Submit.
func (c *Client) Status(ctx context.Context, ref string) (*driver.Job, error) {
	return nil, fmt.Errorf("elevenlabs synthesizes synchronously; there is no job %q to poll", ref)
}

func validateInput(input json.RawMessage) error {
	if len(input) == 0 {
		return fmt.Errorf("input payload is required")
	}

	var fields struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(input, &fields); err != nil {
		return fmt.Errorf("input payload is not valid JSON: %w", err)
	}
	if strings.TrimSpace(fields.Text) == "" {
		return fmt.Errorf("input payload is missing text")
	}
	return nil
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, timeout)
}
