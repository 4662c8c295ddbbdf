// Package config provides centralized configuration management for phonelens.
// Defaults are registered on a viper instance, the optional config file is
// read by viper, and PHONELENS_* environment variables are applied through
// gofulmen/config env specs before decoding into the typed Config.
package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// AppName names the config, data and cache directories.
	AppName = "phonelens"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "PHONELENS_"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// EnvVarSpec defines environment variable mappings for config fields
// following the pattern: {PREFIX}{NAME} maps to config path
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	// Browser defaults
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.user_data_dir", DefaultProfileDir())
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 900)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.navigate_timeout", "30s")
	v.SetDefault("browser.action_timeout", "10s")

	// Checker defaults
	v.SetDefault("checker.strategies_file", "")
	v.SetDefault("checker.min_interval", "2s")
	v.SetDefault("checker.poll_interval", "500ms")
	v.SetDefault("checker.poll_attempts", 10)
	v.SetDefault("checker.reset_timeout", "15s")
	v.SetDefault("checker.no_signal", "no_account")
	v.SetDefault("checker.login_timeout", "120s")

	// Backoff defaults
	v.SetDefault("backoff.waits", []string{"30s-60s", "120s-180s", "300s-420s", "600s-900s"})
	v.SetDefault("backoff.progress_interval", "30s")
	v.SetDefault("backoff.settle_delay", "3s")

	// Batch defaults
	v.SetDefault("batch.size", 10)
	v.SetDefault("batch.pause_min", "30s")
	v.SetDefault("batch.pause_max", "120s")

	// Output defaults
	v.SetDefault("output.csv_path", "")
	v.SetDefault("output.json_path", "")

	// Store defaults
	v.SetDefault("store.enabled", true)
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 20)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)
}

// Load decodes the settings held by v, applies environment and runtime
// overrides and validates the result.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(ctx context.Context, v *viper.Viper, runtimeOverrides ...map[string]any) (*Config, error) {
	if v == nil {
		v = viper.New()
		SetDefaults(v)
	}

	merged := v.AllSettings()

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	allOverrides := []map[string]any{envOverrides}
	allOverrides = append(allOverrides, runtimeOverrides...)
	for _, overrides := range allOverrides {
		mergeMaps(merged, overrides)
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(merged); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Store the loaded config
	setConfig(cfg)

	return cfg, nil
}

// Validate checks ranges that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	var problems []string

	if c.Checker.PollAttempts < 1 {
		problems = append(problems, "checker.poll_attempts must be at least 1")
	}
	if c.Checker.MinInterval < 0 || c.Checker.PollInterval < 0 {
		problems = append(problems, "checker intervals must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(c.Checker.NoSignal)) {
	case "", "no_account", "unknown":
	default:
		problems = append(problems, fmt.Sprintf("checker.no_signal must be no_account or unknown, got %q", c.Checker.NoSignal))
	}
	if c.Batch.Size < 1 {
		problems = append(problems, "batch.size must be at least 1")
	}
	if c.Batch.PauseMin < 0 || c.Batch.PauseMax < c.Batch.PauseMin {
		problems = append(problems, "batch.pause_min must be non-negative and not exceed batch.pause_max")
	}
	if len(c.Backoff.Waits) == 0 {
		problems = append(problems, "backoff.waits must list at least one range")
	}
	if c.Store.Enabled {
		switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
		case "", "libsql":
		default:
			problems = append(problems, fmt.Sprintf("unsupported store driver %q", c.Store.Driver))
		}
	}

	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// getEnvSpecs returns environment variable specifications for config mapping
// Maps {PREFIX}{NAME} environment variables to config paths
func getEnvSpecs() []EnvVarSpec {
	prefix := EnvPrefix

	return []EnvVarSpec{
		// Browser config
		{Name: prefix + "HEADLESS", Path: []string{"browser", "headless"}, Type: EnvBool},
		{Name: prefix + "USER_DATA_DIR", Path: []string{"browser", "user_data_dir"}, Type: EnvString},
		{Name: prefix + "CHROME_PATH", Path: []string{"browser", "exec_path"}, Type: EnvString},
		{Name: prefix + "NO_SANDBOX", Path: []string{"browser", "no_sandbox"}, Type: EnvBool},
		{Name: prefix + "BROWSER_ARGS", Path: []string{"browser", "args"}, Type: EnvString},
		// Duration fields are parsed as strings and converted by mapstructure decode hook
		{Name: prefix + "NAVIGATE_TIMEOUT", Path: []string{"browser", "navigate_timeout"}, Type: EnvString},
		{Name: prefix + "ACTION_TIMEOUT", Path: []string{"browser", "action_timeout"}, Type: EnvString},

		// Checker config
		{Name: prefix + "STRATEGIES_FILE", Path: []string{"checker", "strategies_file"}, Type: EnvString},
		{Name: prefix + "MIN_INTERVAL", Path: []string{"checker", "min_interval"}, Type: EnvString},
		{Name: prefix + "POLL_INTERVAL", Path: []string{"checker", "poll_interval"}, Type: EnvString},
		{Name: prefix + "POLL_ATTEMPTS", Path: []string{"checker", "poll_attempts"}, Type: EnvInt},
		{Name: prefix + "NO_SIGNAL", Path: []string{"checker", "no_signal"}, Type: EnvString},
		{Name: prefix + "LOGIN_TIMEOUT", Path: []string{"checker", "login_timeout"}, Type: EnvString},

		// Backoff config
		{Name: prefix + "BACKOFF_WAITS", Path: []string{"backoff", "waits"}, Type: EnvString},

		// Batch config
		{Name: prefix + "BATCH_SIZE", Path: []string{"batch", "size"}, Type: EnvInt},
		{Name: prefix + "BATCH_PAUSE_MIN", Path: []string{"batch", "pause_min"}, Type: EnvString},
		{Name: prefix + "BATCH_PAUSE_MAX", Path: []string{"batch", "pause_max"}, Type: EnvString},

		// Output config
		{Name: prefix + "OUTPUT_CSV", Path: []string{"output", "csv_path"}, Type: EnvString},
		{Name: prefix + "OUTPUT_JSON", Path: []string{"output", "json_path"}, Type: EnvString},

		// Store config
		{Name: prefix + "STORE_ENABLED", Path: []string{"store", "enabled"}, Type: EnvBool},
		{Name: prefix + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: prefix + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: prefix + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},

		// Logging config
		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_FILE", Path: []string{"logging", "file"}, Type: EnvString},
	}
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(AppName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(AppName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}

// DefaultRunCSVPath is where a batch run writes its CSV when neither the
// store nor an output file is configured.
func DefaultRunCSVPath(runID string) string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		dataDir = "."
	}
	return filepath.Join(dataDir, "runs", runID+".csv")
}

// DefaultProfileDir returns the browser profile directory that keeps the login.
func DefaultProfileDir() string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + "-profile"
	}
	return filepath.Join(dataDir, "chrome-profile")
}

// mergeMaps deep-merges src into dst. Nested maps merge; other values replace.
func mergeMaps(dst, src map[string]any) {
	for key, value := range src {
		key = strings.ToLower(key)
		srcMap, srcIsMap := value.(map[string]any)
		if !srcIsMap {
			dst[key] = value
			continue
		}
		dstMap, dstIsMap := dst[key].(map[string]any)
		if !dstIsMap {
			dstMap = map[string]any{}
			dst[key] = dstMap
		}
		mergeMaps(dstMap, srcMap)
	}
}
