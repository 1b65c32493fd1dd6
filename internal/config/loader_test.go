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

		// Verify upstream API defaults
		assert.Equal(t, "https://discord.com/api/v10", cfg.API.BaseURL)
		assert.Equal(t, 60*time.Second, cfg.API.Timeout)
		assert.Equal(t, 30*time.Second, cfg.API.HTTPTimeout)

		// Verify dispatch defaults
		assert.Equal(t, 1, cfg.Dispatch.MaxRetries)
		assert.Equal(t, 50.0, cfg.Dispatch.GlobalRate)
		assert.Equal(t, 50, cfg.Dispatch.GlobalBurst)
		assert.Equal(t, "", cfg.Dispatch.RoutesFile)

		// Verify server defaults
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 90*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		// Verify store defaults
		assert.Equal(t, "libsql", cfg.Store.Driver)
		expectedStorePath := filepath.Join(gfconfig.GetAppDataDir("guildrest"), "guildrest.db")
		assert.Equal(t, expectedStorePath, cfg.Store.Path)
		assert.Equal(t, "", cfg.Store.URL)
		assert.Equal(t, "", cfg.Store.AuthToken)
		assert.Equal(t, "localhost:6379", cfg.Store.Redis.Addr)
		assert.Equal(t, "guildrest:bucket:", cfg.Store.Redis.Prefix)

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
		t.Setenv("GUILDREST_PORT", "3000")
		t.Setenv("GUILDREST_LOG_LEVEL", "warn")
		t.Setenv("GUILDREST_METRICS_ENABLED", "false")
		t.Setenv("GUILDREST_DISPATCH_GLOBAL_RATE", "12.5")
		t.Setenv("GUILDREST_DISPATCH_MAX_RETRIES", "3")
		t.Setenv("GUILDREST_TOKEN", "bot-token")

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Verify env overrides were applied
		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.False(t, cfg.Metrics.Enabled)
		assert.Equal(t, 12.5, cfg.Dispatch.GlobalRate)
		assert.Equal(t, 3, cfg.Dispatch.MaxRetries)
		assert.Equal(t, "bot-token", cfg.API.Token)
	})

	// Test config precedence: runtime > env > defaults
	t.Run("ConfigPrecedence", func(t *testing.T) {
		// Set environment variable
		t.Setenv("GUILDREST_PORT", "4000")

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

func TestEnvSpecs(t *testing.T) {
	_, err := Load(context.Background())
	require.NoError(t, err)

	specs := getEnvSpecs()
	assert.NotEmpty(t, specs)

	// Verify critical env var mappings exist
	envVarNames := make(map[string]bool)
	for _, spec := range specs {
		envVarNames[spec.Name] = true
	}

	// Check required Workhorse Standard env vars
	assert.True(t, envVarNames["GUILDREST_LOG_LEVEL"], "LOG_LEVEL env var must be mapped")
	assert.True(t, envVarNames["GUILDREST_PORT"], "PORT env var must be mapped")
	assert.True(t, envVarNames["GUILDREST_HOST"], "HOST env var must be mapped")
	assert.True(t, envVarNames["GUILDREST_METRICS_PORT"], "METRICS_PORT env var must be mapped")
	assert.True(t, envVarNames["GUILDREST_DB_PATH"], "DB_PATH env var must be mapped")
	assert.True(t, envVarNames["GUILDREST_TOKEN"], "TOKEN env var must be mapped")
	assert.True(t, envVarNames["GUILDREST_REDIS_ADDR"], "REDIS_ADDR env var must be mapped")
}

func TestDurationParsing(t *testing.T) {
	ctx := context.Background()

	// Test duration parsing from string env var
	t.Run("DurationFromEnv", func(t *testing.T) {
		t.Setenv("GUILDREST_READ_TIMEOUT", "45s")
		t.Setenv("GUILDREST_SHUTDOWN_TIMEOUT", "5m")

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 5*time.Minute, cfg.Server.ShutdownTimeout)
	})
}

func TestReloadUpdatesCurrentConfig(t *testing.T) {
	ctx := context.Background()

	first, err := Load(ctx)
	require.NoError(t, err)
	require.Same(t, first, GetConfig())

	second, err := Load(ctx, map[string]any{
		"server": map[string]any{"port": first.Server.Port + 1000},
	})
	require.NoError(t, err)
	assert.Equal(t, first.Server.Port+1000, second.Server.Port)
	assert.Same(t, second, GetConfig())
}

func TestExplicitConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guildrest.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 7777\ndispatch:\n  max_retries: 4\n"), 0o600))

	SetConfigFile(path)
	t.Cleanup(func() { SetConfigFile("") })

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Dispatch.MaxRetries)
	assert.Equal(t, path, DefaultConfigPath())
	// Values the file leaves out keep their defaults.
	assert.Equal(t, "https://discord.com/api/v10", cfg.API.BaseURL)
}

func TestInvalidGlobalRateEnv(t *testing.T) {
	t.Setenv("GUILDREST_DISPATCH_GLOBAL_RATE", "fast")
	_, err := Load(context.Background())
	require.ErrorContains(t, err, "DISPATCH_GLOBAL_RATE")
}

func TestCIBoundary(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "src", "guildrest")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	t.Setenv("FULMEN_WORKSPACE_ROOT", "")
	t.Setenv("GITHUB_WORKSPACE", "relative/path")
	t.Setenv("CI_PROJECT_DIR", root)
	t.Setenv("WORKSPACE", "")
	assert.Equal(t, root, ciBoundary(nested))

	assert.Equal(t, "", ciBoundary(t.TempDir()))
}

func TestEnsureMap(t *testing.T) {
	parent := map[string]any{"dispatch": "not a map"}
	ensureMap(parent, "dispatch")["global_rate"] = 5.0
	assert.Equal(t, map[string]any{"global_rate": 5.0}, parent["dispatch"])

	ensureMap(parent, "dispatch")["global_burst"] = 5
	assert.Len(t, parent["dispatch"], 2)
}

func TestValidate(t *testing.T) {
	cfg := &Config{Store: StoreConfig{Driver: "libsql"}}
	require.NoError(t, cfg.Validate())

	cfg.Dispatch.MaxRetries = -1
	require.Error(t, cfg.Validate())

	cfg.Dispatch.MaxRetries = 1
	cfg.Dispatch.GlobalRate = -5
	require.Error(t, cfg.Validate())

	cfg.Dispatch.GlobalRate = 50
	cfg.Store.Driver = "postgres"
	require.ErrorContains(t, cfg.Validate(), "unsupported store driver")

	cfg.Store.Driver = "redis"
	require.NoError(t, cfg.Validate())

	cfg.Dispatch.GlobalBurst = -1
	require.ErrorContains(t, cfg.Validate(), "global_burst")
}
