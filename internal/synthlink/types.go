package synthlink

// InstanceInfo is a diagnostic view of a configured provider instance,
// surfaced by the doctor command and admin tooling.
type InstanceInfo struct {
	ID            string   `json:"id"`
	Provider      string   `json:"provider"`
	Enabled       bool     `json:"enabled"`
	BaseURL       string   `json:"base_url,omitempty"`
	Classes       []string `json:"classes,omitempty"`
	HasCredential bool     `json:"has_credential"`
	Async         bool     `json:"async"`
	CanCancel     bool     `json:"can_cancel"`
	MaxRPS        float64  `json:"max_rps,omitempty"`
}
