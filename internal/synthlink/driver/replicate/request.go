package replicate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/synthlink/driver"
)

// predictionRequest is the body for POST /predictions.
//
// Version is omitted for model-scoped submissions, where the model pins the
// latest version via the URL path instead.
type predictionRequest struct {
	Version string          `json:"version,omitempty"`
	Input   json.RawMessage `json:"input"`
}

// buildSubmit maps a driver request onto a Replicate prediction create call.
//
// Two model forms are accepted:
//   - "owner/name" routes to /models/{owner}/{name}/predictions (latest version)
//   - anything else is treated as a version id for /predictions
func buildSubmit(req *driver.Request) (string, *predictionRequest, error) {
	if req == nil {
		return "", nil, fmt.Errorf("request is required")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return "", nil, fmt.Errorf("model is required")
	}
	if len(req.Input) == 0 {
		return "", nil, fmt.Errorf("input payload is required")
	}
	if !json.Valid(req.Input) {
		return "", nil, fmt.Errorf("input payload is not valid JSON")
	}

	if owner, name, ok := splitModelRef(model); ok {
		path := fmt.Sprintf("/models/%s/%s/predictions", owner, name)
		return path, &predictionRequest{Input: req.Input}, nil
	}

	return "/predictions", &predictionRequest{Version: model, Input: req.Input}, nil
}

func splitModelRef(model string) (owner, name string, ok bool) {
	if strings.Contains(model, ":") {
		return "", "", false
	}
	parts := strings.Split(model, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
