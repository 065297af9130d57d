package preset

// Config describes a synthesis preset loaded from YAML.
//
// A preset names an operation class and a ready-to-submit payload, so the
// CLI can start a job without the caller hand-writing provider JSON.
type Config struct {
	Slug        string         `yaml:"slug" json:"slug"`
	Name        string         `yaml:"name,omitempty" json:"name,omitempty"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Version     string         `yaml:"version,omitempty" json:"version,omitempty"`
	Class       string         `yaml:"class" json:"class"`
	Payload     map[string]any `yaml:"payload" json:"payload"`

	// Cost is the admission charge for jobs started from this preset;
	// zero means the default single unit.
	Cost int `yaml:"cost,omitempty" json:"cost,omitempty"`
}

// Preset wraps a validated preset configuration with its source.
type Preset struct {
	Config Config
	Source string
}
