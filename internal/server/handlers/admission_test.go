package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/core"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/core/engine"
)

func TestAdmissionCheckHandlerAllows(t *testing.T) {
	SetJobService(&stubJobService{
		admitFn: func(ctx context.Context, key string, cost int) (engine.Decision, error) {
			return engine.Decision{Allowed: true, Remaining: 9}, nil
		},
	})
	defer ResetJobService()

	body := `{"key":"alice:song-gen"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/admission/check", strings.NewReader(body))
	rec := httptest.NewRecorder()

	AdmissionCheckHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp AdmissionCheckResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Allowed {
		t.Fatalf("expected allowed decision")
	}
	if resp.Remaining != 9 {
		t.Fatalf("expected 9 remaining, got %d", resp.Remaining)
	}
	if resp.RetryAfterMS != 0 {
		t.Fatalf("expected no retry hint on an allowed decision, got %d", resp.RetryAfterMS)
	}
}

func TestAdmissionCheckHandlerDenialIsStillOK(t *testing.T) {
	SetJobService(&stubJobService{
		admitFn: func(ctx context.Context, key string, cost int) (engine.Decision, error) {
			return engine.Decision{Allowed: false, Remaining: 0, RetryAfter: 2 * time.Second}, nil
		},
	})
	defer ResetJobService()

	body := `{"key":"alice:song-gen"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/admission/check", strings.NewReader(body))
	rec := httptest.NewRecorder()

	AdmissionCheckHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for a denial, got %d", rec.Code)
	}

	var resp AdmissionCheckResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Allowed {
		t.Fatalf("expected denied decision")
	}
	if resp.RetryAfterMS != 2000 {
		t.Fatalf("expected retry_after_ms 2000, got %d", resp.RetryAfterMS)
	}
}

func TestAdmissionCheckHandlerBuildsKeyFromCallerClass(t *testing.T) {
	var gotKey string
	var gotCost int
	SetJobService(&stubJobService{
		admitFn: func(ctx context.Context, key string, cost int) (engine.Decision, error) {
			gotKey = key
			gotCost = cost
			return engine.Decision{Allowed: true, Remaining: 1}, nil
		},
	})
	defer ResetJobService()

	body := `{"caller":"alice","class":"song-gen","cost":2}`
	req := httptest.NewRequest(http.MethodPost, "/v1/admission/check", strings.NewReader(body))
	rec := httptest.NewRecorder()

	AdmissionCheckHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if gotKey != core.AdmissionKey("alice", "song-gen") {
		t.Fatalf("expected composed admission key, got %q", gotKey)
	}
	if gotCost != 2 {
		t.Fatalf("expected cost 2, got %d", gotCost)
	}
}

func TestAdmissionCheckHandlerRequiresKeyOrCallerClass(t *testing.T) {
	SetJobService(&stubJobService{})
	defer ResetJobService()

	req := httptest.NewRequest(http.MethodPost, "/v1/admission/check", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	AdmissionCheckHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}

	var resp errorBody
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error.Code != "INVALID_INPUT" {
		t.Fatalf("expected INVALID_INPUT error code, got %s", resp.Error.Code)
	}
}

func TestAdmissionCheckHandlerMapsGateConfigErrors(t *testing.T) {
	SetJobService(&stubJobService{
		admitFn: func(ctx context.Context, key string, cost int) (engine.Decision, error) {
			return engine.Decision{}, core.NewConfigError("cost %d exceeds window limit %d", 50, 10)
		},
	})
	defer ResetJobService()

	body := `{"key":"alice:song-gen","cost":50}`
	req := httptest.NewRequest(http.MethodPost, "/v1/admission/check", strings.NewReader(body))
	rec := httptest.NewRecorder()

	AdmissionCheckHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}
