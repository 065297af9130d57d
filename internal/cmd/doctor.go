package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/config"
	errwrap "github.com/Krosebrook/RoseyRecords-sub000/internal/errors"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/observability"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/synthlink"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Run diagnostic checks on the system and suggest fixes for common issues.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		identity := GetAppIdentity()
		bannerName := "doctor"
		if identity != nil && identity.BinaryName != "" {
			bannerName = identity.BinaryName + " doctor"
		}
		observability.CLILogger.Info("=== " + bannerName + " ===")
		observability.CLILogger.Info("")
		observability.CLILogger.Info("Running diagnostic checks...")
		observability.CLILogger.Info("")

		allChecks := true
		totalChecks := 8

		// Check 1: Go version
		goVersion := runtime.Version()
		if goVersion >= "go1.23" {
			observability.CLILogger.Info(fmt.Sprintf("[1/%d] Checking Go version... ✅ %s", totalChecks, goVersion), zap.String("go_version", goVersion))
		} else {
			observability.CLILogger.Warn(fmt.Sprintf("[1/%d] Checking Go version... ⚠️  %s (recommended: go1.23+)", totalChecks, goVersion), zap.String("go_version", goVersion))
			allChecks = false
		}

		// Check 2: Crucible access
		version := crucible.GetVersion()
		if version.Crucible != "" {
			observability.CLILogger.Info(fmt.Sprintf("[2/%d] Checking Crucible access... ✅ v%s", totalChecks, version.Crucible), zap.String("crucible_version", version.Crucible))
		} else {
			observability.CLILogger.Error(fmt.Sprintf("[2/%d] Checking Crucible access... ❌ Cannot access Crucible", totalChecks))
			ExitWithCode(observability.CLILogger, foundry.ExitExternalServiceUnavailable, "Cannot access Crucible", errwrap.NewExternalServiceError("Crucible service unavailable"))
			allChecks = false
		}

		// Check 3: Gofulmen access
		if version.Gofulmen != "" {
			observability.CLILogger.Info(fmt.Sprintf("[3/%d] Checking Gofulmen access... ✅ v%s", totalChecks, version.Gofulmen), zap.String("gofulmen_version", version.Gofulmen))
		} else {
			observability.CLILogger.Error(fmt.Sprintf("[3/%d] Checking Gofulmen access... ❌ Cannot access Gofulmen", totalChecks))
			allChecks = false
		}

		// Check 4: Config directory
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			observability.CLILogger.Error(fmt.Sprintf("[4/%d] Checking config directory... ❌ Cannot resolve config directory", totalChecks))
			ExitWithCode(observability.CLILogger, foundry.ExitFileNotFound, "Cannot resolve config directory", errwrap.NewInternalError("config directory not resolved"))
			allChecks = false
		} else {
			configDir := filepath.Dir(configPath)
			observability.CLILogger.Info(fmt.Sprintf("[4/%d] Checking config directory... ✅ %s", totalChecks, configDir), zap.String("config_dir", configDir))
		}

		// Check 5: Environment
		observability.CLILogger.Info(fmt.Sprintf("[5/%d] Checking environment... ✅ %s/%s", totalChecks, runtime.GOOS, runtime.GOARCH),
			zap.String("os", runtime.GOOS),
			zap.String("arch", runtime.GOARCH))

		// Check 6: Window store database
		cfg, cfgErr := config.Load(ctx)
		if cfgErr != nil {
			observability.CLILogger.Warn(fmt.Sprintf("[6/%d] Checking window store... ⚠️  config not loaded", totalChecks), zap.Error(cfgErr))
			allChecks = false
		} else {
			if cfg.Store.URL != "" {
				observability.CLILogger.Info(fmt.Sprintf("[6/%d] Checking window store... ✅ %s (remote)", totalChecks, cfg.Store.URL),
					zap.String("db_url", cfg.Store.URL))
				goto schemaCheck
			}

			dbPath := cfg.Store.Path
			if dbPath == "" {
				dbPath = config.DefaultStorePath()
			}
			// Resolve to absolute path for clarity
			absPath, _ := filepath.Abs(dbPath)
			if info, statErr := os.Stat(absPath); statErr == nil {
				sizeStr := formatFileSize(info.Size())
				observability.CLILogger.Info(fmt.Sprintf("[6/%d] Checking window store... ✅ %s (%s)", totalChecks, absPath, sizeStr),
					zap.String("db_path", absPath),
					zap.Int64("db_size", info.Size()))
			} else if os.IsNotExist(statErr) {
				observability.CLILogger.Warn(fmt.Sprintf("[6/%d] Checking window store... ⚠️  %s (not created yet)", totalChecks, absPath),
					zap.String("db_path", absPath))
			} else {
				observability.CLILogger.Warn(fmt.Sprintf("[6/%d] Checking window store... ⚠️  %s (error: %v)", totalChecks, absPath, statErr),
					zap.String("db_path", absPath),
					zap.Error(statErr))
				allChecks = false
			}
		}

		// Check 7: Store schema
	schemaCheck:
		if cfgErr == nil {
			db, storeErr := openStore(ctx)
			if storeErr != nil {
				observability.CLILogger.Warn(fmt.Sprintf("[7/%d] Checking store schema... ⚠️  cannot open store", totalChecks), zap.Error(storeErr))
				allChecks = false
			} else {
				defer db.Close() //nolint:errcheck
				schemaVersion, schemaErr := db.SchemaVersion(ctx)
				if schemaErr != nil {
					observability.CLILogger.Warn(fmt.Sprintf("[7/%d] Checking store schema... ⚠️  cannot read schema version", totalChecks), zap.Error(schemaErr))
					allChecks = false
				} else {
					observability.CLILogger.Info(fmt.Sprintf("[7/%d] Checking store schema... ✅ v%d (%s)", totalChecks, schemaVersion, db.Driver()),
						zap.Int("schema_version", schemaVersion),
						zap.String("driver", db.Driver()))
				}
			}
		} else {
			observability.CLILogger.Warn(fmt.Sprintf("[7/%d] Checking store schema... ⚠️  skipped (config not loaded)", totalChecks))
		}

		// Check 8: SynthLink providers
		if cfgErr == nil {
			if ready, total := synthLinkReadiness(cfg.SynthLink); ready > 0 {
				observability.CLILogger.Info(fmt.Sprintf("[8/%d] Checking SynthLink providers... ✅ %d/%d instance(s) ready", totalChecks, ready, total),
					zap.Int("ready", ready),
					zap.Int("configured", total))
			} else {
				observability.CLILogger.Warn(fmt.Sprintf("[8/%d] Checking SynthLink providers... ⚠️  none ready (run 'roseysynth doctor init' or see docs)", totalChecks))
				observability.CLILogger.Info("       Synthesis jobs require at least one enabled provider instance with a credential.")
			}
		} else {
			observability.CLILogger.Warn(fmt.Sprintf("[8/%d] Checking SynthLink providers... ⚠️  skipped (config not loaded)", totalChecks))
		}

		observability.CLILogger.Info("")
		if allChecks {
			appName := "roseysynth"
			if identity != nil && identity.BinaryName != "" {
				appName = identity.BinaryName
			}
			observability.CLILogger.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", appName))
		} else {
			observability.CLILogger.Warn("⚠️  Some checks failed. Review the output above for details.")
		}
		observability.CLILogger.Info("")
		observability.CLILogger.Info("=== End Diagnostics ===")
	},
}

var (
	doctorInitForce        bool
	doctorInitReplicateKey string
	doctorResetConfig      bool
	doctorResetData        bool
	doctorResetAll         bool
)

var doctorInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}

		if _, err := os.Stat(configPath); err == nil && !doctorInitForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
		}

		replicateKey := strings.TrimSpace(doctorInitReplicateKey)
		if strings.EqualFold(replicateKey, "prompt") {
			key, err := promptForValue("Enter Replicate API key (leave blank to skip): ")
			if err != nil {
				return err
			}
			replicateKey = key
		}

		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}

		mode := os.FileMode(0644)
		if replicateKey != "" {
			mode = 0600
		}

		if err := os.WriteFile(configPath, []byte(buildInitConfig(replicateKey)), mode); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}

		observability.CLILogger.Info("Config initialized", zap.String("path", configPath))
		return nil
	},
}

var doctorConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration status and paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		configExists := fileExists(configPath)

		dataDir := config.DefaultDataDir()
		cacheDir := config.DefaultCacheDir()

		observability.CLILogger.Info("Configuration:")
		observability.CLILogger.Info(fmt.Sprintf("  Config file:   %s (%s)", configPath, existenceStatus(configExists)))
		if dataDir != "" {
			observability.CLILogger.Info(fmt.Sprintf("  Data directory: %s (%s)", dataDir, existenceStatus(fileExists(dataDir))))
		} else {
			observability.CLILogger.Info("  Data directory: (not resolved)")
		}
		if cacheDir != "" {
			observability.CLILogger.Info(fmt.Sprintf("  Cache directory: %s (%s)", cacheDir, existenceStatus(fileExists(cacheDir))))
		} else {
			observability.CLILogger.Info("  Cache directory: (not resolved)")
		}

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			observability.CLILogger.Warn("Config load failed", zap.Error(err))
		} else {
			if cfg.Store.URL != "" {
				observability.CLILogger.Info(fmt.Sprintf("  Window store:  %s (remote)", cfg.Store.URL))
			} else {
				dbPath := cfg.Store.Path
				if dbPath == "" {
					dbPath = config.DefaultStorePath()
				}
				absPath, _ := filepath.Abs(dbPath)
				if info, statErr := os.Stat(absPath); statErr == nil {
					observability.CLILogger.Info(fmt.Sprintf("  Window store:  %s (%s, written %s)", absPath, formatFileSize(info.Size()), formatTimeAgo(info.ModTime())))
				} else if os.IsNotExist(statErr) {
					observability.CLILogger.Info(fmt.Sprintf("  Window store:  %s (not created yet)", absPath))
				} else {
					observability.CLILogger.Warn("Window store status error", zap.String("db_path", absPath), zap.Error(statErr))
				}
			}

			observability.CLILogger.Info("")
			observability.CLILogger.Info("Environment:")
			observability.CLILogger.Info("  ROSEYSYNTH_SYNTHLINK_PROVIDERS_REPLICATE_MAIN_CREDENTIALS_0_API_KEY: " + envStatus("ROSEYSYNTH_SYNTHLINK_PROVIDERS_REPLICATE_MAIN_CREDENTIALS_0_API_KEY"))
			observability.CLILogger.Info("  ROSEYSYNTH_SYNTHLINK_PROVIDERS_ELEVENLABS_MAIN_CREDENTIALS_0_API_KEY: " + envStatus("ROSEYSYNTH_SYNTHLINK_PROVIDERS_ELEVENLABS_MAIN_CREDENTIALS_0_API_KEY"))

			observability.CLILogger.Info("")
			observability.CLILogger.Info("Effective Settings:")
			for class, limit := range cfg.Admission.Classes {
				observability.CLILogger.Info(fmt.Sprintf("  admission.classes.%s: %d per %s", class, limit.Requests, limit.Window))
			}
			observability.CLILogger.Info(fmt.Sprintf("  orchestrator.default_deadline: %s", cfg.Orchestrator.DefaultDeadline))
			observability.CLILogger.Info(fmt.Sprintf("  orchestrator.max_deadline: %s", cfg.Orchestrator.MaxDeadline))
			observability.CLILogger.Info(fmt.Sprintf("  orchestrator.submit_retries: %d", cfg.Orchestrator.SubmitRetries))
			observability.CLILogger.Info(fmt.Sprintf("  orchestrator.sync_wait_cap: %s", cfg.Orchestrator.SyncWaitCap))
			observability.CLILogger.Info(fmt.Sprintf("  orchestrator.retention: %s", cfg.Orchestrator.Retention))
			observability.CLILogger.Info(fmt.Sprintf("  poll: base=%s max_delay=%s jitter=%.2f", cfg.Poll.Base, cfg.Poll.MaxDelay, cfg.Poll.Jitter))
		}

		return nil
	},
}

var doctorResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset user configuration and/or data",
	RunE: func(cmd *cobra.Command, args []string) error {
		if doctorResetAll {
			doctorResetConfig = true
			doctorResetData = true
		}

		if !doctorResetConfig && !doctorResetData {
			return fmt.Errorf("specify --config, --data, or --all")
		}

		if doctorResetConfig {
			configPath := config.DefaultConfigPath()
			if configPath == "" {
				observability.CLILogger.Warn("Config path not resolved; skipping config reset")
			} else if err := os.Remove(configPath); err == nil {
				observability.CLILogger.Info("Config removed", zap.String("path", configPath))
			} else if os.IsNotExist(err) {
				observability.CLILogger.Info("Config already removed", zap.String("path", configPath))
			} else {
				return fmt.Errorf("remove config file: %w", err)
			}
		}

		if doctorResetData {
			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Store.URL != "" {
				return fmt.Errorf("remote store configured; database reset is not supported")
			}

			dbPath := cfg.Store.Path
			if dbPath == "" {
				dbPath = config.DefaultStorePath()
			}
			absPath, _ := filepath.Abs(dbPath)
			if err := os.Remove(absPath); err == nil {
				observability.CLILogger.Info("Window store removed", zap.String("path", absPath))
			} else if os.IsNotExist(err) {
				observability.CLILogger.Info("Window store already removed", zap.String("path", absPath))
			} else {
				return fmt.Errorf("remove window store: %w", err)
			}
		}

		return nil
	},
}

var doctorValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the current config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", configPath)
		}

		if _, err := config.Load(cmd.Context()); err != nil {
			return err
		}

		observability.CLILogger.Info("Config is valid", zap.String("path", configPath))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.AddCommand(doctorInitCmd)
	doctorCmd.AddCommand(doctorConfigCmd)
	doctorCmd.AddCommand(doctorResetCmd)
	doctorCmd.AddCommand(doctorValidateCmd)

	doctorInitCmd.Flags().BoolVar(&doctorInitForce, "force", false, "overwrite existing config file")
	doctorInitCmd.Flags().StringVar(&doctorInitReplicateKey, "replicate-key", "", "set replicate api key or use 'prompt' to enter")

	doctorResetCmd.Flags().BoolVar(&doctorResetConfig, "config", false, "remove user config file")
	doctorResetCmd.Flags().BoolVar(&doctorResetData, "data", false, "remove local window store")
	doctorResetCmd.Flags().BoolVar(&doctorResetAll, "all", false, "remove config and data")
}

// synthLinkReadiness counts provider instances that could serve a job right
// now: enabled with at least one credential carrying a key.
func synthLinkReadiness(cfg synthlink.Config) (ready int, total int) {
	for _, instance := range cfg.Providers {
		total++
		if !instance.Enabled {
			continue
		}
		for _, cred := range instance.Credentials {
			if strings.TrimSpace(cred.APIKey) != "" {
				ready++
				break
			}
		}
	}
	return ready, total
}

// formatFileSize returns a human-readable file size
func formatFileSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

// formatTimeAgo returns a human-readable relative time
func formatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 min ago"
		}
		return fmt.Sprintf("%d mins ago", mins)
	case d < 24*time.Hour:
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}

func buildInitConfig(replicateKey string) string {
	lines := []string{
		"# roseysynth config - created by 'roseysynth doctor init'",
		"admission:",
		"  classes:",
		"    default:",
		"      requests: 60",
		"      window: 1m",
		"    song-gen:",
		"      requests: 10",
		"      window: 5m",
		"synthlink:",
		"  default_provider: replicate-main",
		"  providers:",
		"    replicate-main:",
		"      enabled: true",
		"      provider: replicate",
		"      classes: [song-gen]",
		"      models:",
		"        song-gen: meta/musicgen",
		"      max_rps: 5",
		"      credentials:",
		"        - label: default",
		"          enabled: true",
		"          priority: 0",
	}

	if strings.TrimSpace(replicateKey) != "" {
		lines = append(lines, fmt.Sprintf("          api_key: %q", replicateKey))
	} else {
		lines = append(lines, "          # api_key: \"\"  # Set via ROSEYSYNTH_SYNTHLINK_PROVIDERS_REPLICATE_MAIN_CREDENTIALS_0_API_KEY or uncomment")
	}

	lines = append(lines,
		"  routing:",
		"    song-gen: replicate-main",
	)

	return strings.Join(lines, "\n") + "\n"
}

func promptForValue(prompt string) (string, error) {
	if _, err := fmt.Fprint(os.Stdout, prompt); err != nil {
		return "", err
	}
	reader := bufio.NewReader(os.Stdin)
	value, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func existenceStatus(exists bool) string {
	if exists {
		return "exists"
	}
	return "missing"
}

func envStatus(name string) string {
	if strings.TrimSpace(os.Getenv(name)) != "" {
		return "(set)"
	}
	return "(not set)"
}
