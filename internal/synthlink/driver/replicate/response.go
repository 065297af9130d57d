package replicate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/synthlink/driver"
)

// predictionResponse is the subset of a Replicate prediction we act on.
type predictionResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// toJob converts a prediction into the provider-agnostic job view.
func (p *predictionResponse) toJob(raw []byte) (*driver.Job, error) {
	if p == nil {
		return nil, fmt.Errorf("prediction is empty")
	}
	if strings.TrimSpace(p.ID) == "" {
		return nil, fmt.Errorf("prediction is missing an id")
	}

	job := &driver.Job{Ref: p.ID, Raw: raw}

	switch strings.ToLower(strings.TrimSpace(p.Status)) {
	case "starting", "processing":
		job.State = driver.StateRunning
	case "succeeded":
		job.State = driver.StateSucceeded
		job.Output = p.Output
	case "failed":
		job.State = driver.StateFailed
		job.Message = failureMessage(p.Error)
	case "canceled":
		job.State = driver.StateCanceled
		job.Message = failureMessage(p.Error)
	default:
		job.State = driver.StateFailed
		job.Message = fmt.Sprintf("unexpected prediction status %q", p.Status)
	}

	return job, nil
}

func failureMessage(detail string) string {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		return "prediction did not complete"
	}
	return detail
}

func parsePrediction(body []byte) (*predictionResponse, error) {
	var parsed predictionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode prediction: %w", err)
	}
	return &parsed, nil
}
