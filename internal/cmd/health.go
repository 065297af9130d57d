package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/Krosebrook/RoseyRecords-sub000/internal/errors"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/observability"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/server/handlers"
)

const healthProbeTimeout = 5 * time.Second

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check or probe a running server",
	Long:  "Run a self-health check to verify the application can start successfully, or probe a running server's /health endpoint with --url.",
	RunE: func(cmd *cobra.Command, args []string) error {
		serverURL, err := cmd.Flags().GetString("url")
		if err != nil {
			return fmt.Errorf("failed to get url flag: %w", err)
		}

		if serverURL != "" {
			return probeServerHealth(serverURL)
		}

		observability.CLILogger.Info("Running health check...")

		// Check 1: Version info available
		if versionInfo.Version == "" {
			observability.CLILogger.Error("❌ FAIL: Version information missing")
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return nil
		}
		observability.CLILogger.Debug("Version check passed", zap.String("version", versionInfo.Version))
		observability.CLILogger.Info("✅ Version information available")

		// Check 2: Logger initialized
		if observability.CLILogger == nil {
			// Can't log if logger is nil, so use stderr
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized", errwrap.NewConfigInvalidError("Logger not initialized"))
			return nil
		}
		observability.CLILogger.Info("✅ Logger initialized")

		// Check 3: Configuration loaded
		observability.CLILogger.Info("✅ Configuration system ready")

		// Overall status
		observability.CLILogger.Info("")
		observability.CLILogger.Info("✅ All health checks passed")
		return nil
	},
}

// probeServerHealth queries a running server's aggregate health endpoint and
// reports each component check. A non-200 response or unreachable server is a
// failure.
func probeServerHealth(serverURL string) error {
	base, err := url.Parse(serverURL)
	if err != nil || base.Host == "" {
		return errwrap.NewInvalidInputError(fmt.Sprintf("invalid server URL %q", serverURL))
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return errwrap.NewInvalidInputError(fmt.Sprintf("unsupported URL scheme %q", base.Scheme))
	}

	endpoint := strings.TrimRight(base.String(), "/") + "/health"
	observability.CLILogger.Info("Probing server health...", zap.String("endpoint", endpoint))

	client := &http.Client{Timeout: healthProbeTimeout}
	resp, err := client.Get(endpoint)
	if err != nil {
		observability.CLILogger.Error("❌ FAIL: Server unreachable", zap.Error(err))
		return errwrap.NewExternalServiceError(fmt.Sprintf("health probe failed: %v", err))
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	if resp.StatusCode != http.StatusOK {
		observability.CLILogger.Error("❌ FAIL: Server reports unhealthy", zap.Int("status_code", resp.StatusCode))
		return errwrap.NewExternalServiceError(fmt.Sprintf("server health endpoint returned HTTP %d", resp.StatusCode))
	}

	var health handlers.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		observability.CLILogger.Error("❌ FAIL: Invalid health response", zap.Error(err))
		return errwrap.NewExternalServiceError("health endpoint returned an unreadable response")
	}

	names := make([]string, 0, len(health.Checks))
	for name := range health.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		switch health.Checks[name] {
		case "healthy":
			observability.CLILogger.Info(fmt.Sprintf("✅ %s: healthy", name))
		case "degraded", "timeout":
			observability.CLILogger.Warn(fmt.Sprintf("⚠️ %s: %s", name, health.Checks[name]))
		default:
			observability.CLILogger.Error(fmt.Sprintf("❌ %s: %s", name, health.Checks[name]))
		}
	}

	switch health.Status {
	case "healthy":
		observability.CLILogger.Info("")
		observability.CLILogger.Info("✅ Server healthy",
			zap.String("version", health.Version),
			zap.String("timestamp", health.Timestamp))
		return nil
	case "degraded":
		observability.CLILogger.Warn("⚠️ Server degraded", zap.String("version", health.Version))
		return nil
	default:
		observability.CLILogger.Error("❌ FAIL: Server unhealthy", zap.String("status", health.Status))
		return errwrap.NewExternalServiceError(fmt.Sprintf("server reports status %q", health.Status))
	}
}

func init() {
	healthCmd.Flags().String("url", "", "Probe a running server at this base URL instead of self-checking")
	rootCmd.AddCommand(healthCmd)
}
