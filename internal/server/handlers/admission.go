package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/core"
	apperrors "github.com/Krosebrook/RoseyRecords-sub000/internal/errors"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/metrics"
)

// AdmissionCheckRequest is the body for POST /v1/admission/check. Callers
// pass either a raw window key or a caller/class pair.
type AdmissionCheckRequest struct {
	Key    string `json:"key,omitempty"`
	Caller string `json:"caller,omitempty"`
	Class  string `json:"class,omitempty"`
	Cost   int    `json:"cost,omitempty"`
}

// AdmissionCheckResponse reports one admission decision. A denial is still
// a 200 response; retry_after_ms says when the window rolls over.
type AdmissionCheckResponse struct {
	Allowed      bool  `json:"allowed"`
	Remaining    int   `json:"remaining"`
	RetryAfterMS int64 `json:"retry_after_ms,omitempty"`
}

// AdmissionCheckHandler handles POST /v1/admission/check. The check spends
// quota exactly like a job submission would, so callers probing capacity
// pay for the probe.
func AdmissionCheckHandler(w http.ResponseWriter, r *http.Request) {
	service, ok := requireJobService(w, r)
	if !ok {
		return
	}

	var body AdmissionCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "request body must be valid JSON"))
		return
	}

	key := body.Key
	if key == "" {
		if body.Caller == "" || body.Class == "" {
			respondWithError(w, r, apperrors.NewInvalidInputError("either key or caller and class are required"))
			return
		}
		key = core.AdmissionKey(body.Caller, body.Class)
	}

	decision, err := service.TryAdmit(r.Context(), key, body.Cost)
	if err != nil {
		respondWithError(w, r, apperrors.FromJobError(r.Context(), err))
		return
	}
	metrics.RecordAdmissionDecision(core.ClassFromKey(key), decision.Allowed)

	response := AdmissionCheckResponse{
		Allowed:   decision.Allowed,
		Remaining: decision.Remaining,
	}
	if !decision.Allowed {
		response.RetryAfterMS = decision.RetryAfter.Milliseconds()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}
