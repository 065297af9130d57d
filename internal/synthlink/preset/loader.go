package preset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/gofulmen/pathfinder"
	"github.com/fulmenhq/gofulmen/schema"
	"gopkg.in/yaml.v3"
)

const presetSchemaID = "synthlink/v0/preset"

// Load parses and validates a preset definition from YAML bytes.
func Load(source string, data []byte) (*Preset, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse preset %s: %w", source, err)
	}

	if strings.TrimSpace(cfg.Slug) == "" {
		return nil, fmt.Errorf("preset %s missing slug", source)
	}
	if strings.TrimSpace(cfg.Class) == "" {
		return nil, fmt.Errorf("preset %s missing class", source)
	}
	if len(cfg.Payload) == 0 {
		return nil, fmt.Errorf("preset %s missing payload", source)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate preset %s: %w", source, err)
	}

	return &Preset{Config: cfg, Source: source}, nil
}

// LoadFromDir reads all preset files (*.yaml) from a directory.
func LoadFromDir(dir string) ([]*Preset, error) {
	entries, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("scan presets: %w", err)
	}
	results := make([]*Preset, 0, len(entries))
	for _, path := range entries {
		data, err := os.ReadFile(path) // #nosec G304 -- Preset path is user-provided
		if err != nil {
			return nil, fmt.Errorf("read preset %s: %w", path, err)
		}
		preset, err := Load(path, data)
		if err != nil {
			return nil, err
		}
		results = append(results, preset)
	}
	return results, nil
}

// BuildPayload renders the preset payload with caller overrides applied.
// Override values are parsed as JSON when they look like it, so
// "duration=30" lands as a number and "prompt=warm piano" as a string.
func (p *Preset) BuildPayload(overrides map[string]string) (json.RawMessage, error) {
	if p == nil {
		return nil, fmt.Errorf("preset is required")
	}

	merged := make(map[string]any, len(p.Config.Payload)+len(overrides))
	for k, v := range p.Config.Payload {
		merged[k] = v
	}
	for k, v := range overrides {
		key := strings.TrimSpace(k)
		if key == "" {
			return nil, fmt.Errorf("override key is empty")
		}
		merged[key] = parseOverride(v)
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode payload for preset %s: %w", p.Config.Slug, err)
	}
	return data, nil
}

func parseOverride(value string) any {
	trimmed := strings.TrimSpace(value)
	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
		return parsed
	}
	return value
}

func validateConfig(cfg Config) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	catalog, err := catalogForSchemas()
	if err != nil {
		return err
	}

	diagnostics, err := catalog.ValidateDataByID(presetSchemaID, payload)
	if err != nil {
		return err
	}
	if len(diagnostics) > 0 {
		return fmt.Errorf("schema validation failed: %s", diagnostics[0].Message)
	}
	return nil
}

func catalogForSchemas() (*schema.Catalog, error) {
	root, err := findRepoRoot()
	if err != nil {
		return nil, err
	}
	return schema.NewCatalog(filepath.Join(root, "schemas")), nil
}

func findRepoRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	markers := []string{"go.mod", ".git"}

	if hint, ok := pathfinder.DetectCIBoundaryHint(cwd); ok {
		root, err := pathfinder.FindRepositoryRoot(
			cwd,
			markers,
			pathfinder.WithBoundary(hint.Boundary),
			pathfinder.WithMaxDepth(20),
		)
		if err == nil {
			return root, nil
		}
	}

	root, err := pathfinder.FindRepositoryRoot(cwd, markers, pathfinder.WithMaxDepth(10))
	if err != nil {
		return "", err
	}
	return root, nil
}
