package cmd

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/config"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/observability"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/synthlink"
	"github.com/fulmenhq/gofulmen/crucible"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display comprehensive environment, configuration, and version information.",
	Run: func(cmd *cobra.Command, args []string) {
		version := crucible.GetVersion()

		observability.CLILogger.Info("=== RoseySynth Environment Information ===")
		observability.CLILogger.Info("")

		// Application Info
		identity := GetAppIdentity()
		observability.CLILogger.Info("Application:")
		observability.CLILogger.Info("  Name:       " + identity.BinaryName)
		observability.CLILogger.Info("  Version:    " + versionInfo.Version)
		observability.CLILogger.Info("  Commit:     " + versionInfo.Commit)
		observability.CLILogger.Info("  Built:      " + versionInfo.BuildDate)
		observability.CLILogger.Info("")

		// SSOT Info
		observability.CLILogger.Info("SSOT:")
		observability.CLILogger.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		observability.CLILogger.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		observability.CLILogger.Info("")

		// Runtime Info
		observability.CLILogger.Info("Runtime:")
		observability.CLILogger.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		observability.CLILogger.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		observability.CLILogger.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		observability.CLILogger.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		observability.CLILogger.Info("")

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			observability.CLILogger.Warn("Config load failed", zap.Error(err))
			return
		}

		// Configuration
		observability.CLILogger.Info("Configuration:")
		observability.CLILogger.Info("  Server Host:    "+cfg.Server.Host, zap.String("host", cfg.Server.Host))
		observability.CLILogger.Info(fmt.Sprintf("  Server Port:    %d", cfg.Server.Port), zap.Int("port", cfg.Server.Port))
		observability.CLILogger.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		observability.CLILogger.Info("  Log Profile:    "+cfg.Logging.Profile, zap.String("log_profile", cfg.Logging.Profile))
		observability.CLILogger.Info("  Store Driver:   "+cfg.Store.Driver, zap.String("store_driver", cfg.Store.Driver))
		if strings.TrimSpace(cfg.Store.URL) != "" {
			observability.CLILogger.Info("  Store URL:      "+cfg.Store.URL, zap.String("store_url", cfg.Store.URL))
		} else {
			observability.CLILogger.Info("  Store Path:     "+cfg.Store.Path, zap.String("store_path", cfg.Store.Path))
		}
		observability.CLILogger.Info(fmt.Sprintf("  Metrics Port:   %d", cfg.Metrics.Port), zap.Int("metrics_port", cfg.Metrics.Port))
		observability.CLILogger.Info("  Config File:    "+config.DefaultConfigPath(), zap.String("config_file", config.DefaultConfigPath()))
		observability.CLILogger.Info("")

		// Admission Classes
		observability.CLILogger.Info("Admission:")
		classes := make([]string, 0, len(cfg.Admission.Classes))
		for class := range cfg.Admission.Classes {
			classes = append(classes, class)
		}
		sort.Strings(classes)
		for _, class := range classes {
			limit := cfg.Admission.Classes[class]
			observability.CLILogger.Info(fmt.Sprintf("  %s: %d per %s", class, limit.Requests, limit.Window))
		}
		if len(classes) == 0 {
			observability.CLILogger.Info("  (engine defaults)")
		}
		observability.CLILogger.Info("")

		// Orchestrator
		observability.CLILogger.Info("Orchestrator:")
		observability.CLILogger.Info("  Default Deadline: " + cfg.Orchestrator.DefaultDeadline.String())
		observability.CLILogger.Info("  Max Deadline:     " + cfg.Orchestrator.MaxDeadline.String())
		observability.CLILogger.Info(fmt.Sprintf("  Submit Retries:   %d", cfg.Orchestrator.SubmitRetries))
		observability.CLILogger.Info("  Sync Wait Cap:    " + cfg.Orchestrator.SyncWaitCap.String())
		observability.CLILogger.Info("  Retention:        " + cfg.Orchestrator.Retention.String())
		observability.CLILogger.Info("  Sweep Interval:   " + cfg.Orchestrator.SweepInterval.String())
		observability.CLILogger.Info(fmt.Sprintf("  Poll:             base=%s max_delay=%s jitter=%.2f", cfg.Poll.Base, cfg.Poll.MaxDelay, cfg.Poll.Jitter))
		observability.CLILogger.Info("")

		// SynthLink Provider Configuration
		observability.CLILogger.Info("SynthLink:")
		observability.CLILogger.Info("  Default Provider: " + cfg.SynthLink.DefaultProvider)
		observability.CLILogger.Info("  Default Timeout:  " + cfg.SynthLink.DefaultTimeout.String())
		instanceIDs := make([]string, 0, len(cfg.SynthLink.Providers))
		for id := range cfg.SynthLink.Providers {
			instanceIDs = append(instanceIDs, id)
		}
		sort.Strings(instanceIDs)
		for _, id := range instanceIDs {
			instance := cfg.SynthLink.Providers[id]
			observability.CLILogger.Info(fmt.Sprintf("  %s.enabled: %t", id, instance.Enabled))
			observability.CLILogger.Info(fmt.Sprintf("  %s.provider: %s", id, instance.Provider))
			if strings.TrimSpace(instance.BaseURL) != "" {
				observability.CLILogger.Info(fmt.Sprintf("  %s.base_url: %s", id, instance.BaseURL))
			}
			if len(instance.Classes) > 0 {
				observability.CLILogger.Info(fmt.Sprintf("  %s.classes: %s", id, strings.Join(instance.Classes, ",")))
			}
			if model := instance.Models["default"]; model != "" {
				observability.CLILogger.Info(fmt.Sprintf("  %s.model: %s", id, model))
			}
			if hasEnabledCredential(instance) {
				observability.CLILogger.Info(fmt.Sprintf("  %s.credentials: (set)", id))
			} else {
				observability.CLILogger.Info(fmt.Sprintf("  %s.credentials: (not set)", id))
			}
		}
		if len(instanceIDs) == 0 {
			observability.CLILogger.Info("  (no provider instances configured)")
		}
		observability.CLILogger.Info("")

		observability.CLILogger.Info("=== End Environment Information ===")
	},
}

func hasEnabledCredential(instance synthlink.ProviderInstanceConfig) bool {
	for _, cred := range instance.Credentials {
		if strings.TrimSpace(cred.APIKey) != "" {
			return true
		}
	}
	return false
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
