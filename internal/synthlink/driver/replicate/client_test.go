package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/synthlink/driver"
)

func TestClientRequiresAPIKey(t *testing.T) {
	client := NewClient("", "")
	_, err := client.Submit(context.Background(), &driver.Request{Model: "meta/musicgen", Input: json.RawMessage(`{"prompt":"hi"}`)})
	require.Error(t, err)
	require.Contains(t, err.Error(), "api key")
}

func TestSubmitUsesModelScopedPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models/meta/musicgen/predictions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))
		require.NotContains(t, payload, "version")
		require.Contains(t, payload, "input")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"pred-1","status":"starting"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	client.HTTPClient = server.Client()

	job, err := client.Submit(context.Background(), &driver.Request{
		Model: "meta/musicgen",
		Class: "song-gen",
		Input: json.RawMessage(`{"prompt":"slow jazz","duration":30}`),
	})
	require.NoError(t, err)
	require.Equal(t, "pred-1", job.Ref)
	require.Equal(t, driver.StateRunning, job.State)
}

func TestSubmitUsesVersionForBareIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/predictions", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))
		require.Equal(t, "671ac645ce5e552cc63a54a2bbff63fcf798043055d2dac5fc9e36a837eedcfb", payload["version"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"pred-2","status":"starting"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	client.HTTPClient = server.Client()

	job, err := client.Submit(context.Background(), &driver.Request{
		Model: "671ac645ce5e552cc63a54a2bbff63fcf798043055d2dac5fc9e36a837eedcfb",
		Input: json.RawMessage(`{"prompt":"hi"}`),
	})
	require.NoError(t, err)
	require.Equal(t, "pred-2", job.Ref)
}

func TestStatusMapsTerminalStates(t *testing.T) {
	responses := map[string]string{
		"running":   `{"id":"pred-3","status":"processing"}`,
		"succeeded": `{"id":"pred-3","status":"succeeded","output":["https://cdn/track.mp3"]}`,
		"failed":    `{"id":"pred-3","status":"failed","error":"NSFW content detected"}`,
		"canceled":  `{"id":"pred-3","status":"canceled"}`,
	}

	var current string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/predictions/pred-3", r.URL.Path)
		require.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(responses[current]))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	client.HTTPClient = server.Client()

	current = "running"
	job, err := client.Status(context.Background(), "pred-3")
	require.NoError(t, err)
	require.Equal(t, driver.StateRunning, job.State)
	require.False(t, job.State.Terminal())

	current = "succeeded"
	job, err = client.Status(context.Background(), "pred-3")
	require.NoError(t, err)
	require.Equal(t, driver.StateSucceeded, job.State)
	require.JSONEq(t, `["https://cdn/track.mp3"]`, string(job.Output))

	current = "failed"
	job, err = client.Status(context.Background(), "pred-3")
	require.NoError(t, err)
	require.Equal(t, driver.StateFailed, job.State)
	require.Contains(t, job.Message, "NSFW")

	current = "canceled"
	job, err = client.Status(context.Background(), "pred-3")
	require.NoError(t, err)
	require.Equal(t, driver.StateCanceled, job.State)
}

func TestErrorsCarryStatusAndRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "13")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"detail":"rate limit exceeded"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	client.HTTPClient = server.Client()

	_, err := client.Status(context.Background(), "pred-4")
	require.Error(t, err)

	var perr *driver.ProviderError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, http.StatusTooManyRequests, perr.StatusCode)
	require.Equal(t, 13*time.Second, perr.RetryAfter)
	require.Contains(t, perr.Message, "rate limit")
}

func TestCancelPostsToCancelEndpoint(t *testing.T) {
	var cancelled bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/predictions/pred-5/cancel", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		cancelled = true
		_, _ = w.Write([]byte(`{"id":"pred-5","status":"canceled"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	client.HTTPClient = server.Client()

	require.NoError(t, client.Cancel(context.Background(), "pred-5"))
	require.True(t, cancelled)
}

func TestSubmitValidatesInput(t *testing.T) {
	client := NewClient("", "test-key")

	_, err := client.Submit(context.Background(), &driver.Request{Model: "", Input: json.RawMessage(`{}`)})
	require.Error(t, err)
	require.Contains(t, err.Error(), "model")

	_, err = client.Submit(context.Background(), &driver.Request{Model: "meta/musicgen"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "input")

	_, err = client.Submit(context.Background(), &driver.Request{Model: "meta/musicgen", Input: json.RawMessage(`{broken`)})
	require.Error(t, err)
	require.Contains(t, err.Error(), "valid JSON")
}
