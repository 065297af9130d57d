package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findRepoRootForTest(t *testing.T) string {
	cwd, err := os.Getwd()
	require.NoError(t, err)

	dir := cwd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	t.Fatalf("could not locate repo root containing go.mod from %s", cwd)
	return ""
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	// Regression test: in CI containers the repo checkout may be outside $HOME.
	// When $HOME is not an ancestor of the repo, pathfinder's default home boundary
	// can prevent repo root discovery unless a CI boundary hint is applied.
	t.Run("CIBoundaryHint", func(t *testing.T) {
		repoRoot := findRepoRootForTest(t)
		t.Setenv("HOME", t.TempDir())
		t.Setenv("CI", "true")
		t.Setenv("FULMEN_WORKSPACE_ROOT", repoRoot)

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)
	})

	// Test basic config loading with defaults
	t.Run("LoadDefaults", func(t *testing.T) {
		t.Setenv("XDG_DATA_HOME", t.TempDir())

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Verify server defaults
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		// Verify store defaults
		assert.Equal(t, "libsql", cfg.Store.Driver)
		expectedStorePath := filepath.Join(gfconfig.GetAppDataDir("roseysynth"), "roseysynth.db")
		assert.Equal(t, expectedStorePath, cfg.Store.Path)
		assert.Equal(t, "", cfg.Store.URL)
		assert.Equal(t, "", cfg.Store.AuthToken)

		// Verify admission defaults
		require.Contains(t, cfg.Admission.Classes, "default")
		assert.Equal(t, 60, cfg.Admission.Classes["default"].Requests)
		assert.Equal(t, time.Minute, cfg.Admission.Classes["default"].Window)
		require.Contains(t, cfg.Admission.Classes, "song-gen")
		assert.Equal(t, 10, cfg.Admission.Classes["song-gen"].Requests)
		assert.Equal(t, 5*time.Minute, cfg.Admission.Classes["song-gen"].Window)

		// Verify orchestrator defaults
		assert.Equal(t, 10*time.Minute, cfg.Orchestrator.DefaultDeadline)
		assert.Equal(t, 30*time.Minute, cfg.Orchestrator.MaxDeadline)
		assert.Equal(t, 3, cfg.Orchestrator.SubmitRetries)
		assert.Equal(t, 30*time.Second, cfg.Orchestrator.SyncWaitCap)
		assert.Equal(t, 15*time.Minute, cfg.Orchestrator.Retention)
		assert.Equal(t, time.Minute, cfg.Orchestrator.SweepInterval)

		// Verify poll defaults
		assert.Equal(t, 2*time.Second, cfg.Poll.Base)
		assert.Equal(t, 30*time.Second, cfg.Poll.MaxDelay)
		assert.Equal(t, 0.2, cfg.Poll.Jitter)

		// Verify synthlink defaults
		assert.Equal(t, 60*time.Second, cfg.SynthLink.DefaultTimeout)
		assert.Equal(t, "replicate-main", cfg.SynthLink.Routing["song-gen"])
		assert.Equal(t, "elevenlabs-main", cfg.SynthLink.Routing["vocal-gen"])
		require.Contains(t, cfg.SynthLink.Providers, "replicate-main")
		assert.False(t, cfg.SynthLink.Providers["replicate-main"].Enabled)
		assert.Equal(t, "replicate", cfg.SynthLink.Providers["replicate-main"].Provider)

		// Verify logging defaults
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "SIMPLE", cfg.Logging.Profile)

		// Verify metrics defaults
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, 9090, cfg.Metrics.Port)

		// Verify health defaults
		assert.True(t, cfg.Health.Enabled)

		// Verify debug defaults
		assert.False(t, cfg.Debug.Enabled)
		assert.False(t, cfg.Debug.PprofEnabled)
	})

	// Test runtime overrides
	t.Run("RuntimeOverrides", func(t *testing.T) {
		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"logging": map[string]any{
				"level": "debug",
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Verify overrides were applied
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)

		// Verify non-overridden values remain default
		assert.Equal(t, "SIMPLE", cfg.Logging.Profile)
		assert.Equal(t, 9090, cfg.Metrics.Port)
	})

	// Test environment variable overrides
	t.Run("EnvOverrides", func(t *testing.T) {
		// Set environment variables
		require.NoError(t, os.Setenv("ROSEYSYNTH_PORT", "3000"))
		require.NoError(t, os.Setenv("ROSEYSYNTH_LOG_LEVEL", "warn"))
		require.NoError(t, os.Setenv("ROSEYSYNTH_METRICS_ENABLED", "false"))
		require.NoError(t, os.Setenv("ROSEYSYNTH_POLL_JITTER", "0.5"))
		defer func() {
			_ = os.Unsetenv("ROSEYSYNTH_PORT")
			_ = os.Unsetenv("ROSEYSYNTH_LOG_LEVEL")
			_ = os.Unsetenv("ROSEYSYNTH_METRICS_ENABLED")
			_ = os.Unsetenv("ROSEYSYNTH_POLL_JITTER")
		}()

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Verify env overrides were applied
		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.False(t, cfg.Metrics.Enabled)
		assert.Equal(t, 0.5, cfg.Poll.Jitter)
	})

	// Test dynamic provider and routing env overrides
	t.Run("SynthLinkEnvOverrides", func(t *testing.T) {
		require.NoError(t, os.Setenv("ROSEYSYNTH_SYNTHLINK_PROVIDERS_REPLICATE_MAIN_ENABLED", "true"))
		require.NoError(t, os.Setenv("ROSEYSYNTH_SYNTHLINK_PROVIDERS_REPLICATE_MAIN_CREDENTIALS_0_API_KEY", "r8_test"))
		require.NoError(t, os.Setenv("ROSEYSYNTH_SYNTHLINK_PROVIDERS_REPLICATE_MAIN_MODELS_SONG_GEN", "meta/musicgen-stereo"))
		require.NoError(t, os.Setenv("ROSEYSYNTH_SYNTHLINK_ROUTING_SONG_GEN", "replicate-main"))
		defer func() {
			_ = os.Unsetenv("ROSEYSYNTH_SYNTHLINK_PROVIDERS_REPLICATE_MAIN_ENABLED")
			_ = os.Unsetenv("ROSEYSYNTH_SYNTHLINK_PROVIDERS_REPLICATE_MAIN_CREDENTIALS_0_API_KEY")
			_ = os.Unsetenv("ROSEYSYNTH_SYNTHLINK_PROVIDERS_REPLICATE_MAIN_MODELS_SONG_GEN")
			_ = os.Unsetenv("ROSEYSYNTH_SYNTHLINK_ROUTING_SONG_GEN")
		}()

		cfg, err := Load(ctx)
		require.NoError(t, err)

		instance, ok := cfg.SynthLink.Providers["replicate-main"]
		require.True(t, ok)
		assert.True(t, instance.Enabled)
		require.Len(t, instance.Credentials, 1)
		assert.Equal(t, "r8_test", instance.Credentials[0].APIKey)
		assert.Equal(t, "meta/musicgen-stereo", instance.Models["song-gen"])
		assert.Equal(t, "replicate-main", cfg.SynthLink.Routing["song-gen"])
	})

	// Test config precedence: runtime > env > defaults
	t.Run("ConfigPrecedence", func(t *testing.T) {
		// Set environment variable
		require.NoError(t, os.Setenv("ROSEYSYNTH_PORT", "4000"))
		defer func() {
			_ = os.Unsetenv("ROSEYSYNTH_PORT")
		}()

		// Runtime override should win
		overrides := map[string]any{
			"server": map[string]any{
				"port": 5000,
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Runtime override should take precedence over env var
		assert.Equal(t, 5000, cfg.Server.Port)
	})
}

func TestGetConfig(t *testing.T) {
	ctx := context.Background()

	// Load config first
	cfg, err := Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Test GetConfig returns the same instance
	t.Run("GetConfigReturnsLoadedConfig", func(t *testing.T) {
		retrieved := GetConfig()
		assert.NotNil(t, retrieved)
		assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
		assert.Equal(t, cfg.Logging.Level, retrieved.Logging.Level)
	})
}

func TestEnvSpecs(t *testing.T) {
	// Need to set app identity for env specs
	ctx := context.Background()
	_, err := Load(ctx)
	require.NoError(t, err)

	specs := getEnvSpecs()
	assert.NotEmpty(t, specs)

	// Verify critical env var mappings exist
	envVarNames := make(map[string]bool)
	for _, spec := range specs {
		envVarNames[spec.Name] = true
	}

	// Check required Workhorse Standard env vars
	assert.True(t, envVarNames["ROSEYSYNTH_LOG_LEVEL"], "LOG_LEVEL env var must be mapped")
	assert.True(t, envVarNames["ROSEYSYNTH_PORT"], "PORT env var must be mapped")
	assert.True(t, envVarNames["ROSEYSYNTH_HOST"], "HOST env var must be mapped")
	assert.True(t, envVarNames["ROSEYSYNTH_METRICS_PORT"], "METRICS_PORT env var must be mapped")
	assert.True(t, envVarNames["ROSEYSYNTH_DB_PATH"], "DB_PATH env var must be mapped")
	assert.True(t, envVarNames["ROSEYSYNTH_ORCHESTRATOR_DEFAULT_DEADLINE"], "ORCHESTRATOR_DEFAULT_DEADLINE env var must be mapped")
}

func TestDurationParsing(t *testing.T) {
	ctx := context.Background()

	// Test duration parsing from string env var
	t.Run("DurationFromEnv", func(t *testing.T) {
		require.NoError(t, os.Setenv("ROSEYSYNTH_READ_TIMEOUT", "45s"))
		require.NoError(t, os.Setenv("ROSEYSYNTH_ORCHESTRATOR_SYNC_WAIT_CAP", "12s"))
		defer func() {
			_ = os.Unsetenv("ROSEYSYNTH_READ_TIMEOUT")
			_ = os.Unsetenv("ROSEYSYNTH_ORCHESTRATOR_SYNC_WAIT_CAP")
		}()

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 12*time.Second, cfg.Orchestrator.SyncWaitCap)
	})
}

func TestConfigReload(t *testing.T) {
	ctx := context.Background()

	// Load initial config
	cfg1, err := Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, cfg1)
	initialPort := cfg1.Server.Port

	// Reload with different runtime overrides
	overrides := map[string]any{
		"server": map[string]any{
			"port": initialPort + 1000,
		},
	}

	cfg2, err := Load(ctx, overrides)
	require.NoError(t, err)
	require.NotNil(t, cfg2)

	// Verify reload updated the config
	assert.Equal(t, initialPort+1000, cfg2.Server.Port)

	// Verify GetConfig returns the updated config
	current := GetConfig()
	assert.Equal(t, cfg2.Server.Port, current.Server.Port)
}
