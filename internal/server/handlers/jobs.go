package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/go-chi/chi/v5"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/core"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/core/engine"
	apperrors "github.com/Krosebrook/RoseyRecords-sub000/internal/errors"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/metrics"
)

// JobSubmission is the request body for POST /v1/jobs. Deadline and wait
// budgets arrive as relative milliseconds; zero leaves the server defaults
// in charge.
type JobSubmission struct {
	Caller     string          `json:"caller"`
	Class      string          `json:"class"`
	Payload    json.RawMessage `json:"payload"`
	Cost       int             `json:"cost,omitempty"`
	DeadlineMS int64           `json:"deadline_ms,omitempty"`
	WaitMS     int64           `json:"wait_ms,omitempty"`
}

// JobService is the orchestration surface behind the job endpoints.
type JobService interface {
	RequestJob(ctx context.Context, req *core.JobRequest) (*core.Job, error)
	GetStatus(ctx context.Context, handle string) (*core.Job, error)
	Cancel(ctx context.Context, handle string) (*core.Job, error)
	TryAdmit(ctx context.Context, key string, cost int) (engine.Decision, error)
}

// Global job service instance
var globalJobService JobService

// SetJobService wires the orchestrator into the job endpoints
func SetJobService(service JobService) {
	globalJobService = service
}

// ResetJobService clears the wired service (used by tests)
func ResetJobService() {
	globalJobService = nil
}

func requireJobService(w http.ResponseWriter, r *http.Request) (JobService, bool) {
	if globalJobService != nil {
		return globalJobService, true
	}

	envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "job service not initialized")
	respondWithError(w, r, envelope)
	return nil, false
}

// CreateJobHandler handles POST /v1/jobs. Jobs that finish inside the
// synchronous wait budget return 200 with the terminal record, or the
// mapped failure envelope; everything still running returns 202 with a
// pollable handle. Admission denials and validation problems never create
// a job.
func CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	service, ok := requireJobService(w, r)
	if !ok {
		return
	}

	var body JobSubmission
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "request body must be valid JSON"))
		return
	}
	if body.DeadlineMS < 0 || body.WaitMS < 0 {
		respondWithError(w, r, apperrors.NewInvalidInputError("deadline_ms and wait_ms must not be negative"))
		return
	}

	req := &core.JobRequest{
		Caller:  body.Caller,
		Class:   body.Class,
		Payload: body.Payload,
		Cost:    body.Cost,
	}
	if body.DeadlineMS > 0 {
		req.Deadline = time.Now().UTC().Add(time.Duration(body.DeadlineMS) * time.Millisecond)
	}
	if body.WaitMS > 0 {
		req.Wait = time.Duration(body.WaitMS) * time.Millisecond
	}

	job, err := service.RequestJob(r.Context(), req)
	if err != nil {
		if jerr, ok := core.AsJobError(err); ok && jerr.Kind == core.KindAdmissionDenied {
			metrics.RecordAdmissionDecision(body.Class, false)
		}
		respondWithError(w, r, apperrors.FromJobError(r.Context(), err))
		return
	}
	metrics.RecordAdmissionDecision(body.Class, true)

	switch {
	case job.State == core.StateSucceeded:
		writeJobResponse(w, http.StatusOK, job)
	case job.State.Terminal():
		respondWithError(w, r, terminalFailureEnvelope(r.Context(), job))
	default:
		writeJobResponse(w, http.StatusAccepted, job)
	}
}

// GetJobHandler handles GET /v1/jobs/{handle}. Fetching a terminal record
// counts as the one result delivery; later fetches see the record without
// its result payload.
func GetJobHandler(w http.ResponseWriter, r *http.Request) {
	service, ok := requireJobService(w, r)
	if !ok {
		return
	}

	handle := chi.URLParam(r, "handle")
	job, err := service.GetStatus(r.Context(), handle)
	if err != nil {
		respondWithError(w, r, apperrors.FromJobError(r.Context(), err))
		return
	}

	writeJobResponse(w, http.StatusOK, job)
}

// CancelJobHandler handles DELETE /v1/jobs/{handle}. Cancellation is a
// request, not a guarantee: the response is the record as of the request,
// and cancelling a finished job returns its terminal record unchanged.
func CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	service, ok := requireJobService(w, r)
	if !ok {
		return
	}

	handle := chi.URLParam(r, "handle")
	job, err := service.Cancel(r.Context(), handle)
	if err != nil {
		respondWithError(w, r, apperrors.FromJobError(r.Context(), err))
		return
	}

	writeJobResponse(w, http.StatusAccepted, job)
}

// terminalFailureEnvelope maps a job that failed inside the synchronous
// wait onto the error vocabulary, keeping the handle so the caller can
// still look the record up.
func terminalFailureEnvelope(ctx context.Context, job *core.Job) *errors.ErrorEnvelope {
	var envelope *errors.ErrorEnvelope
	if job.Error != nil {
		envelope = apperrors.FromJobError(ctx, job.Error)
	} else {
		envelope = apperrors.NewInternalError("job finished without a recorded outcome")
	}

	if updated, err := envelope.WithContext(map[string]interface{}{
		"handle": job.Handle,
		"state":  string(job.State),
	}); err == nil {
		envelope = updated
	}
	return envelope
}

func writeJobResponse(w http.ResponseWriter, status int, job *core.Job) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(job)
}
