// Package config loads guildrest configuration in three layers through
// gofulmen/config:
//
//  1. defaults from config/guildrest/v0/guildrest-defaults.yaml
//  2. the user file (XDG path, or the file named by --config)
//  3. GUILDREST_* environment variables, then runtime overrides
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/appidentity"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/pathfinder"
	"github.com/fulmenhq/gofulmen/schema"
	"github.com/go-viper/mapstructure/v2"

	"github.com/namelens/guildrest/internal/appid"
)

const fallbackName = "guildrest"

var (
	configMu    sync.RWMutex
	appConfig   *Config
	appIdentity *appidentity.Identity
	configFile  string
)

// EnvVarSpec maps a {PREFIX}{NAME} environment variable to a config path.
type EnvVarSpec = gfconfig.EnvVarSpec

const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// ciBoundaryKeys name workspace variables that bound repository discovery
// in CI, where the checkout may live outside $HOME.
var ciBoundaryKeys = []string{"FULMEN_WORKSPACE_ROOT", "GITHUB_WORKSPACE", "CI_PROJECT_DIR", "WORKSPACE"}

var rootMarkers = []string{"go.mod", ".git"}

func isCI() bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv("GITHUB_ACTIONS")), "true") ||
		strings.EqualFold(strings.TrimSpace(os.Getenv("CI")), "true")
}

// ciBoundary returns the first CI workspace directory that contains cwd.
func ciBoundary(cwd string) string {
	for _, key := range ciBoundaryKeys {
		boundary := filepath.Clean(strings.TrimSpace(os.Getenv(key)))
		if boundary == "." || !filepath.IsAbs(boundary) {
			continue
		}
		if st, err := os.Stat(boundary); err != nil || !st.IsDir() {
			continue
		}
		if rel, err := filepath.Rel(boundary, cwd); err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		return boundary
	}
	return ""
}

// findProjectRoot locates the directory holding config/ and schemas/.
func findProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	if isCI() {
		if boundary := ciBoundary(cwd); boundary != "" {
			root, err := pathfinder.FindRepositoryRoot(cwd, rootMarkers,
				pathfinder.WithBoundary(boundary),
				pathfinder.WithMaxDepth(20),
			)
			if err == nil {
				return root, nil
			}
		}
	}

	root, err := pathfinder.FindRepositoryRoot(cwd, rootMarkers, pathfinder.WithMaxDepth(10))
	if err != nil {
		return "", fmt.Errorf("project root not found: %w", err)
	}
	return root, nil
}

// SetConfigFile makes Load read path instead of the XDG user config.
// An empty path restores discovery.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	configFile = strings.TrimSpace(path)
}

func identity(ctx context.Context) error {
	if appIdentity != nil {
		return nil
	}
	id, err := appid.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to load app identity: %w", err)
	}
	appIdentity = id
	return nil
}

// Load merges defaults, the user file, environment variables and any
// runtime overrides (later maps win), decodes the result and makes it the
// current config. It is safe to call again on reload.
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	if err := identity(ctx); err != nil {
		return nil, err
	}

	projectRoot, err := findProjectRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to find project root: %w", err)
	}

	env, err := envOverrides()
	if err != nil {
		return nil, err
	}

	opts := gfconfig.LayeredConfigOptions{
		Category:     "guildrest",
		Version:      "v0",
		DefaultsFile: "guildrest-defaults.yaml",
		SchemaID:     "guildrest/v0/config",
		UserPaths:    getUserConfigPaths(),
		Catalog:      schema.NewCatalog(filepath.Join(projectRoot, "schemas")),
		DefaultsRoot: filepath.Join(projectRoot, "config"),
	}
	merged, diagnostics, err := gfconfig.LoadLayeredConfig(opts, append([]map[string]any{env}, runtimeOverrides...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to load layered config: %w", err)
	}
	// Schema diagnostics are reported, not fatal.
	for _, diag := range diagnostics {
		fmt.Fprintf(os.Stderr, "Config validation: %s: %s\n", diag.Pointer, diag.Message)
	}

	cfg, err := decode(merged)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Store.Driver), "libsql") &&
		strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

func decode(merged map[string]any) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(merged); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// envOverrides reads the mapped environment variables. gofulmen env specs
// carry no float type, so the global rate is parsed here.
func envOverrides() (map[string]any, error) {
	overrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	if overrides == nil {
		overrides = map[string]any{}
	}

	if value := strings.TrimSpace(os.Getenv(envPrefix() + "DISPATCH_GLOBAL_RATE")); value != "" {
		rate, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %sDISPATCH_GLOBAL_RATE: %w", envPrefix(), err)
		}
		ensureMap(overrides, "dispatch")["global_rate"] = rate
	}
	return overrides, nil
}

// Validate rejects settings the dispatcher cannot run with.
func (c *Config) Validate() error {
	if c.Dispatch.MaxRetries < 0 {
		return fmt.Errorf("dispatch.max_retries must be >= 0, got %d", c.Dispatch.MaxRetries)
	}
	if c.Dispatch.GlobalRate < 0 {
		return fmt.Errorf("dispatch.global_rate must be >= 0, got %g", c.Dispatch.GlobalRate)
	}
	if c.Dispatch.GlobalBurst < 0 {
		return fmt.Errorf("dispatch.global_burst must be >= 0, got %d", c.Dispatch.GlobalBurst)
	}
	switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
	case "", "none", "libsql", "redis":
	default:
		return fmt.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	return nil
}

func envPrefix() string {
	prefix := "GUILDREST_"
	if appIdentity != nil && appIdentity.EnvPrefix != "" {
		prefix = appIdentity.EnvPrefix
	}
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	return prefix
}

// GetConfig returns the most recently loaded config.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// getUserConfigPaths returns the explicit config file when one is set, else
// the XDG candidates for the config name (plus the binary name when it
// differs).
func getUserConfigPaths() []string {
	configMu.RLock()
	explicit := configFile
	configMu.RUnlock()
	if explicit != "" {
		return []string{explicit}
	}

	configName, binaryName := appNamesForPaths()
	var legacy []string
	if binaryName != configName {
		legacy = append(legacy, binaryName)
	}
	return gfconfig.GetAppConfigPaths(configName, legacy...)
}

func getEnvSpecs() []EnvVarSpec {
	p := envPrefix()
	str := func(name string, path ...string) EnvVarSpec {
		return EnvVarSpec{Name: p + name, Path: path, Type: EnvString}
	}
	num := func(name string, path ...string) EnvVarSpec {
		return EnvVarSpec{Name: p + name, Path: path, Type: EnvInt}
	}
	flag := func(name string, path ...string) EnvVarSpec {
		return EnvVarSpec{Name: p + name, Path: path, Type: EnvBool}
	}

	// Durations travel as strings and are converted by the decode hook.
	return []EnvVarSpec{
		str("API_BASE_URL", "api", "base_url"),
		str("TOKEN", "api", "token"),
		str("API_USER_AGENT", "api", "user_agent"),
		str("API_TIMEOUT", "api", "timeout"),
		str("API_HTTP_TIMEOUT", "api", "http_timeout"),

		num("DISPATCH_MAX_RETRIES", "dispatch", "max_retries"),
		num("DISPATCH_GLOBAL_BURST", "dispatch", "global_burst"),
		str("DISPATCH_ROUTES_FILE", "dispatch", "routes_file"),

		str("HOST", "server", "host"),
		num("PORT", "server", "port"),
		str("READ_TIMEOUT", "server", "read_timeout"),
		str("WRITE_TIMEOUT", "server", "write_timeout"),
		str("IDLE_TIMEOUT", "server", "idle_timeout"),
		str("SHUTDOWN_TIMEOUT", "server", "shutdown_timeout"),

		str("LOG_LEVEL", "logging", "level"),
		str("LOG_PROFILE", "logging", "profile"),

		str("DB_DRIVER", "store", "driver"),
		str("DB_PATH", "store", "path"),
		str("DB_URL", "store", "url"),
		str("DB_AUTH_TOKEN", "store", "auth_token"),
		str("REDIS_ADDR", "store", "redis", "addr"),
		str("REDIS_PASSWORD", "store", "redis", "password"),
		num("REDIS_DB", "store", "redis", "db"),
		str("REDIS_PREFIX", "store", "redis", "prefix"),

		flag("METRICS_ENABLED", "metrics", "enabled"),
		num("METRICS_PORT", "metrics", "port"),
		flag("HEALTH_ENABLED", "health", "enabled"),
		flag("DEBUG_ENABLED", "debug", "enabled"),
		flag("DEBUG_PPROF_ENABLED", "debug", "pprof_enabled"),
	}
}

// appNamesForPaths returns the config and binary names from app identity.
func appNamesForPaths() (configName, binaryName string) {
	configName, binaryName = fallbackName, fallbackName
	if appIdentity == nil {
		return configName, binaryName
	}
	if name := strings.TrimSpace(appIdentity.ConfigName); name != "" {
		configName = name
	}
	if name := strings.TrimSpace(appIdentity.BinaryName); name != "" {
		binaryName = name
	}
	return configName, binaryName
}

// DefaultConfigPath returns the XDG user config file, or the explicit file
// when one was set.
func DefaultConfigPath() string {
	configMu.RLock()
	explicit := configFile
	configMu.RUnlock()
	if explicit != "" {
		return explicit
	}
	configName, _ := appNamesForPaths()
	dir := gfconfig.GetAppConfigDir(configName)
	if strings.TrimSpace(dir) == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// DefaultStorePath returns the XDG data path of the libsql bucket store.
func DefaultStorePath() string {
	configName, binaryName := appNamesForPaths()
	dataDir := gfconfig.GetAppDataDir(configName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + binaryName + ".db"
	}
	return filepath.Join(dataDir, binaryName+".db")
}

func ensureMap(parent map[string]any, key string) map[string]any {
	if existing, ok := parent[key].(map[string]any); ok {
		return existing
	}
	next := map[string]any{}
	parent[key] = next
	return next
}
