package cmd

import (
	"strings"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/config"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/core/engine"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/core/store"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/synthlink"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/synthlink/preset"
)

// buildPresetRegistry merges the embedded presets with any user preset
// directory; user presets with the same slug win.
func buildPresetRegistry(cfg *config.Config) (preset.Registry, error) {
	defaults, err := preset.LoadDefaults()
	if err != nil {
		return nil, err
	}

	merged := make(map[string]*preset.Preset, len(defaults))
	for _, p := range defaults {
		if p == nil {
			continue
		}
		merged[p.Config.Slug] = p
	}

	if cfg != nil {
		dir := strings.TrimSpace(cfg.SynthLink.PresetsDir)
		if dir != "" {
			overrides, err := preset.LoadFromDir(dir)
			if err != nil {
				return nil, err
			}
			for _, p := range overrides {
				if p == nil {
					continue
				}
				merged[p.Config.Slug] = p
			}
		}
	}

	presets := make([]*preset.Preset, 0, len(merged))
	for _, p := range merged {
		presets = append(presets, p)
	}
	return preset.NewRegistry(presets)
}

// buildGateLimits converts configured admission classes into engine limits.
// Classes with a non-positive quota or window are skipped so the gate falls
// back to its default.
func buildGateLimits(cfg *config.Config) map[string]engine.ClassLimit {
	if cfg == nil || len(cfg.Admission.Classes) == 0 {
		return nil
	}
	limits := make(map[string]engine.ClassLimit, len(cfg.Admission.Classes))
	for class, limit := range cfg.Admission.Classes {
		if limit.Requests <= 0 || limit.Window <= 0 {
			continue
		}
		limits[class] = engine.ClassLimit{
			Requests: limit.Requests,
			Window:   limit.Window,
		}
	}
	return limits
}

// buildGate wires the admission gate onto the shared window store.
func buildGate(cfg *config.Config, db *store.Store) *engine.Gate {
	return engine.NewGate(db, buildGateLimits(cfg))
}

// buildOrchestrator assembles the full job pipeline: admission gate on the
// window store, SynthLink provider client, poll policy and orchestrator.
// The SynthLink service is returned alongside so callers can inspect its
// registry. The caller owns Shutdown.
func buildOrchestrator(cfg *config.Config, db *store.Store) (*engine.Orchestrator, *synthlink.Service) {
	gate := buildGate(cfg, db)
	client := synthlink.New(cfg.SynthLink)
	policy := engine.NewPollPolicy(cfg.Poll.Base, cfg.Poll.MaxDelay, cfg.Poll.Jitter)

	orch := engine.New(gate, client, policy, engine.Config{
		DefaultDeadline: cfg.Orchestrator.DefaultDeadline,
		MaxDeadline:     cfg.Orchestrator.MaxDeadline,
		SubmitRetries:   cfg.Orchestrator.SubmitRetries,
		SyncWaitCap:     cfg.Orchestrator.SyncWaitCap,
		Retention:       cfg.Orchestrator.Retention,
		SweepInterval:   cfg.Orchestrator.SweepInterval,
	})
	return orch, client
}
