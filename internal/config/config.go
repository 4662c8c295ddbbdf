package config

import (
	"time"
)

// Config represents the complete application configuration.
// Values are layered: built-in defaults, then the optional YAML config file,
// then PHONELENS_* environment variables, then runtime overrides (flags).
type Config struct {
	Browser BrowserConfig `mapstructure:"browser"`
	Checker CheckerConfig `mapstructure:"checker"`
	Backoff BackoffConfig `mapstructure:"backoff"`
	Batch   BatchConfig   `mapstructure:"batch"`
	Output  OutputConfig  `mapstructure:"output"`
	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// BrowserConfig controls the Chrome instance driven by chromedp.
type BrowserConfig struct {
	Headless bool `mapstructure:"headless"`

	// UserDataDir keeps the profile, and with it the operator's login,
	// across runs. Empty means a throwaway profile.
	UserDataDir string `mapstructure:"user_data_dir"`

	// ExecPath overrides Chrome discovery.
	ExecPath string `mapstructure:"exec_path"`

	NoSandbox    bool `mapstructure:"no_sandbox"`
	WindowWidth  int  `mapstructure:"window_width"`
	WindowHeight int  `mapstructure:"window_height"`

	// Args are extra command line switches, "name" or "name=value".
	Args []string `mapstructure:"args"`

	NavigateTimeout time.Duration `mapstructure:"navigate_timeout"`
	ActionTimeout   time.Duration `mapstructure:"action_timeout"`
}

// CheckerConfig tunes a single check cycle.
type CheckerConfig struct {
	// StrategiesFile overlays DOM strategies on the built-in set.
	StrategiesFile string        `mapstructure:"strategies_file"`
	MinInterval    time.Duration `mapstructure:"min_interval"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	PollAttempts   int           `mapstructure:"poll_attempts"`
	ResetTimeout   time.Duration `mapstructure:"reset_timeout"`

	// NoSignal is the classification when no outcome is observed: no_account or unknown.
	NoSignal string `mapstructure:"no_signal"`

	LoginTimeout time.Duration `mapstructure:"login_timeout"`
}

// BackoffConfig tunes the rate-limit backoff.
type BackoffConfig struct {
	// Waits is the escalation table, one "min-max" range per consecutive detection.
	Waits            []string      `mapstructure:"waits"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
	SettleDelay      time.Duration `mapstructure:"settle_delay"`
}

// BatchConfig controls batch pacing.
type BatchConfig struct {
	Size     int           `mapstructure:"size"`
	PauseMin time.Duration `mapstructure:"pause_min"`
	PauseMax time.Duration `mapstructure:"pause_max"`
}

// OutputConfig names the result files rewritten at every batch flush.
type OutputConfig struct {
	CSVPath  string `mapstructure:"csv_path"`
	JSONPath string `mapstructure:"json_path"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: debug, info, warn, error
	Level string `mapstructure:"level"`

	// File enables a rotated JSON log of engine activity.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}
