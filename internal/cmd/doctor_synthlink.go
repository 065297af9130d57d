package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/config"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/observability"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/synthlink"
)

var doctorSynthLinkModel string

var doctorSynthLinkCmd = &cobra.Command{
	Use:   "synthlink [class]",
	Short: "Inspect SynthLink provider resolution",
	Long:  "Resolve an operation class to a provider instance and show credential selection.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		class := ""
		if len(args) > 0 {
			class = strings.TrimSpace(args[0])
		}

		registry := synthlink.NewRegistry(cfg.SynthLink)

		resolved, err := registry.Resolve(class, doctorSynthLinkModel)
		if err != nil {
			// Still list the instances so the operator sees what exists.
			listSynthLinkInstances(registry)
			return fmt.Errorf("resolve provider: %w", err)
		}

		providerCfg := resolved.Provider
		resolutionSource, routingTarget := describeSynthLinkResolution(cfg, class)

		observability.CLILogger.Info("SynthLink Resolution")
		observability.CLILogger.Info(fmt.Sprintf("  Class:        %s", displayClass(class)))
		observability.CLILogger.Info(fmt.Sprintf("  Source:       %s", resolutionSource))
		if routingTarget != "" {
			observability.CLILogger.Info(fmt.Sprintf("  Routing:      %s -> %s", class, routingTarget))
		}
		observability.CLILogger.Info(fmt.Sprintf("  Provider ID:  %s", resolved.ProviderID))
		observability.CLILogger.Info(fmt.Sprintf("  provider:     %s", providerCfg.Provider))
		observability.CLILogger.Info(fmt.Sprintf("  base_url:     %s", displayBaseURL(providerCfg.BaseURL)))

		modelSource := "provider.models"
		if strings.TrimSpace(doctorSynthLinkModel) != "" {
			modelSource = "cli_override"
		}
		observability.CLILogger.Info(fmt.Sprintf("  model:        %s", resolved.Model))
		observability.CLILogger.Info(fmt.Sprintf("  model_source: %s", modelSource))
		if resolved.Pacer != nil {
			observability.CLILogger.Info(fmt.Sprintf("  max_rps:      %.1f", providerCfg.MaxRPS))
		}
		observability.CLILogger.Info("")

		policy := strings.TrimSpace(providerCfg.SelectionPolicy)
		if policy == "" {
			policy = "priority"
		}
		observability.CLILogger.Info("Credential Selection")
		observability.CLILogger.Info(fmt.Sprintf("  selection_policy:   %s", policy))
		if strings.TrimSpace(providerCfg.DefaultCredential) != "" {
			observability.CLILogger.Info(fmt.Sprintf("  default_credential: %s", providerCfg.DefaultCredential))
		}
		observability.CLILogger.Info(fmt.Sprintf("  selected.label:     %s", resolved.Credential.Label))
		observability.CLILogger.Info(fmt.Sprintf("  selected.priority:  %d", resolved.Credential.Priority))
		if strings.TrimSpace(resolved.Credential.APIKey) != "" {
			observability.CLILogger.Info("  selected.api_key:   (set)")
		} else {
			observability.CLILogger.Info("  selected.api_key:   (not set)")
			observability.CLILogger.Warn("Selected credential has no API key", zap.String("provider", resolved.ProviderID))
		}
		observability.CLILogger.Info("")

		listSynthLinkInstances(registry)
		return nil
	},
}

func listSynthLinkInstances(registry *synthlink.Registry) {
	infos := registry.Instances()
	if len(infos) == 0 {
		observability.CLILogger.Warn("No provider instances configured")
		return
	}

	observability.CLILogger.Info("Configured Instances")
	for _, info := range infos {
		status := "disabled"
		if info.Enabled {
			status = "enabled"
		}
		credential := "(no credential)"
		if info.HasCredential {
			credential = "(credential set)"
		}
		flags := make([]string, 0, 2)
		if info.Async {
			flags = append(flags, "async")
		}
		if info.CanCancel {
			flags = append(flags, "cancel")
		}

		line := fmt.Sprintf("  %s: %s %s %s", info.ID, info.Provider, status, credential)
		if len(info.Classes) > 0 {
			line += " classes=" + strings.Join(info.Classes, ",")
		}
		if len(flags) > 0 {
			line += " caps=" + strings.Join(flags, ",")
		}
		if info.MaxRPS > 0 {
			line += fmt.Sprintf(" max_rps=%.1f", info.MaxRPS)
		}
		observability.CLILogger.Info(line)
	}
}

func describeSynthLinkResolution(cfg *config.Config, class string) (source string, routingTarget string) {
	if cfg == nil {
		return "config missing", ""
	}

	class = strings.TrimSpace(class)
	if class != "" {
		if cfg.SynthLink.Routing != nil {
			routingTarget = strings.TrimSpace(cfg.SynthLink.Routing[class])
			if routingTarget != "" {
				return "routing", routingTarget
			}
		}

		for _, providerCfg := range cfg.SynthLink.Providers {
			if !providerCfg.Enabled {
				continue
			}
			for _, c := range providerCfg.Classes {
				if strings.EqualFold(strings.TrimSpace(c), class) {
					return "classes", ""
				}
			}
		}
	}

	if strings.TrimSpace(cfg.SynthLink.DefaultProvider) != "" {
		return "default_provider", ""
	}

	enabledCount := 0
	for _, providerCfg := range cfg.SynthLink.Providers {
		if providerCfg.Enabled {
			enabledCount++
		}
	}
	if enabledCount == 1 {
		return "only_enabled_provider", ""
	}

	return "unknown", ""
}

func displayClass(class string) string {
	if class == "" {
		return "(default)"
	}
	return class
}

func displayBaseURL(url string) string {
	if strings.TrimSpace(url) == "" {
		return "(driver default)"
	}
	return url
}

func init() {
	doctorCmd.AddCommand(doctorSynthLinkCmd)

	doctorSynthLinkCmd.Flags().StringVar(&doctorSynthLinkModel, "model", "", "Model override (defaults to provider config)")
}
