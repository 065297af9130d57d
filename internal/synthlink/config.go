package synthlink

import "time"

// Config defines provider configuration for SynthLink.
//
// This is intentionally self-contained so it can later be extracted as a
// standalone library configuration subtree.
type Config struct {
	DefaultProvider string        `mapstructure:"default_provider"`
	DefaultTimeout  time.Duration `mapstructure:"default_timeout"`

	// PresetsDir allows applications to override the built-in preset set.
	PresetsDir string `mapstructure:"presets_dir"`

	// Debug controls optional diagnostics like raw payload capture.
	Debug DebugConfig `mapstructure:"debug"`

	// Providers is a set of provider instances keyed by a user-defined id (slug).
	// Each instance declares its underlying provider type via Provider.
	Providers map[string]ProviderInstanceConfig `mapstructure:"providers"`

	// Routing maps an operation class (e.g. "song-gen") to a provider instance id.
	Routing map[string]string `mapstructure:"routing"`
}

type DebugConfig struct {
	CaptureRawEnabled  bool `mapstructure:"capture_raw_enabled"`
	CaptureRawMaxBytes int  `mapstructure:"capture_raw_max_bytes"`
}

// ProviderInstanceConfig defines a configured provider instance (e.g. "replicate-prod").
type ProviderInstanceConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Provider is the provider type/driver identifier (e.g. "replicate", "elevenlabs").
	Provider string `mapstructure:"provider"`

	// SelectionPolicy controls which credential is chosen.
	// Supported values: "priority" (default), "round_robin".
	SelectionPolicy string `mapstructure:"selection_policy"`

	// DefaultCredential, if set, forces selecting the matching credential label.
	// If missing/invalid, selection falls back to SelectionPolicy.
	DefaultCredential string `mapstructure:"default_credential"`

	BaseURL string `mapstructure:"base_url"`

	// Models maps an operation class to the provider model (or voice) used for
	// it. The "default" entry applies to classes without their own row.
	Models map[string]string `mapstructure:"models"`

	Capabilities Capabilities `mapstructure:"capabilities"`

	// Classes lists operation classes this instance serves when no explicit
	// routing entry names it.
	Classes []string `mapstructure:"classes"`

	// MaxRPS caps outbound calls to this instance; zero means unlimited.
	MaxRPS float64 `mapstructure:"max_rps"`
	Burst  int     `mapstructure:"burst"`

	Credentials []CredentialConfig `mapstructure:"credentials"`
}

// CredentialConfig is a single credential for a provider instance.
//
// Multiple credentials enable key rotation, future load balancing, and per-key rate limit handling.
type CredentialConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Label    string `mapstructure:"label"`
	APIKey   string `mapstructure:"api_key"`
	Priority int    `mapstructure:"priority"`
}

// Capabilities describes provider-level hints.
//
// Drivers also expose capabilities at runtime; these flags are primarily for
// config-time intent and routing diagnostics.
type Capabilities struct {
	Async  bool `mapstructure:"async"`
	Cancel bool `mapstructure:"cancel"`
}
