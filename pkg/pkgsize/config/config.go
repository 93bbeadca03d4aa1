package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/logging"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Console    string            `mapstructure:"console"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// CacheConfig configures the result cache.
type CacheConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	MemoryEntries int    `mapstructure:"memory_entries"`
}

// HistoryConfig configures the analysis history.
type HistoryConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Retention int    `mapstructure:"retention"`
}

// DaemonConfig configures the background daemon.
type DaemonConfig struct {
	AutoStart   bool   `mapstructure:"auto_start"`
	BinaryPath  string `mapstructure:"binary_path"` // Path to pkgsized binary (auto-discovered if empty)
	SocketPath  string `mapstructure:"socket_path"`
	PIDPath     string `mapstructure:"pid_path"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Config represents the application configuration.
type Config struct {
	CDN                    string        `mapstructure:"cdn"`
	Minifier               string        `mapstructure:"minifier"`
	Debug                  bool          `mapstructure:"debug"`
	CustomImports          []string      `mapstructure:"custom_imports"`
	UseWebContainer        bool          `mapstructure:"use_web_container"`
	IncludeDependencySizes bool          `mapstructure:"include_dependency_sizes"`
	Concurrency            int           `mapstructure:"concurrency"`
	RateLimit              float64       `mapstructure:"rate_limit"`
	Output                 string        `mapstructure:"output"`
	ParseTimeLimit         time.Duration `mapstructure:"parse_time_limit"`

	Cache   CacheConfig   `mapstructure:"cache"`
	History HistoryConfig `mapstructure:"history"`
	Logging LoggingConfig `mapstructure:"logging"`
	Daemon  DaemonConfig  `mapstructure:"daemon"`
}

// Load loads configuration from the default locations.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/pkgsize/config.yaml
//   - $HOME/.config/pkgsize/config.yaml
//
// Environment variables are prefixed with PKGSIZE_ (e.g., PKGSIZE_CDN).
// A .env file in the working directory is read first; variables already
// set in the environment win.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches
// the default locations.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		v.SetConfigFile(expanded)
	} else {
		v.SetConfigName("config")
		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			v.AddConfigPath(filepath.Join(xdgConfigHome, appName))
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		v.AddConfigPath(filepath.Join(homeDir, ".config", appName))
	}

	v.SetEnvPrefix("PKGSIZE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is acceptable; we use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for _, p := range []*string{&cfg.Cache.Path, &cfg.History.Path, &cfg.Logging.Path, &cfg.Daemon.SocketPath, &cfg.Daemon.PIDPath} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cdn", DefaultCDN)
	v.SetDefault("minifier", DefaultMinifier)
	v.SetDefault("debug", false)
	v.SetDefault("custom_imports", []string{})
	v.SetDefault("use_web_container", false)
	v.SetDefault("include_dependency_sizes", false)
	v.SetDefault("concurrency", 0) // 0 means tuned to the host
	v.SetDefault("rate_limit", 0)
	v.SetDefault("output", DefaultOutput)
	v.SetDefault("parse_time_limit", DefaultParseTimeLimit)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.path", "") // Empty means use DefaultCachePath
	v.SetDefault("cache.memory_entries", DefaultMemoryEntries)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "") // Empty means use DefaultHistoryPath
	v.SetDefault("history.retention", DefaultHistoryRetention)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.console", "")
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", defaultComponentLevels)

	v.SetDefault("daemon.auto_start", false)
	v.SetDefault("daemon.socket_path", "")
	v.SetDefault("daemon.pid_path", "")
	v.SetDefault("daemon.metrics_addr", DefaultMetricsAddr)
}

// LoggingOptions converts the logging section for logging.Init.
func (c *Config) LoggingOptions() (logging.Config, error) {
	maxSize, err := types.ParseSize(c.Logging.Rotation.MaxSize)
	if err != nil {
		return logging.Config{}, fmt.Errorf("logging.rotation.max_size: %w", err)
	}

	path := c.Logging.Path
	if path == "" {
		path = DefaultLogPath()
	}

	return logging.Config{
		Level: c.Logging.Level,
		Path:  path,
		Rotation: logging.RotationConfig{
			MaxSize:    maxSize,
			MaxAge:     c.Logging.Rotation.MaxAge,
			MaxBackups: c.Logging.Rotation.MaxBackups,
			Daily:      c.Logging.Rotation.Daily,
		},
		Components:   c.Logging.Components,
		ConsoleLevel: c.Logging.Console,
	}, nil
}

// CachePath returns the configured cache directory or the default.
func (c *Config) CachePath() string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return DefaultCachePath()
}

// HistoryPath returns the configured history directory or the default.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return DefaultHistoryPath()
}

// SocketPath returns the configured daemon socket or the default.
func (c *Config) SocketPath() string {
	if c.Daemon.SocketPath != "" {
		return c.Daemon.SocketPath
	}
	return DefaultSocketPath()
}

// PIDPath returns the configured daemon PID file or the default.
func (c *Config) PIDPath() string {
	if c.Daemon.PIDPath != "" {
		return c.Daemon.PIDPath
	}
	return DefaultPIDPath()
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, appName), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", appName), nil
}

// ConfigPath returns the path of the default config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return nil
}

// WriteDefault writes a default config file if none exists and returns its
// path. An existing file is left untouched.
func WriteDefault() (string, error) {
	if err := EnsureConfigDir(); err != nil {
		return "", err
	}

	configPath, err := ConfigPath()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# pkgsize configuration

# Registry CDN: unpkg, jsdelivr, skypack, esm
cdn: %s

# Minifier: fast or ast-based
minifier: %s

# Measure parse time and log verbose warnings. Parse time runs the
# package's code in an embedded JS runtime.
debug: false
parse_time_limit: %s

# Subpaths re-exported when a package has no entry file
custom_imports: []

# Install packages with npm instead of bundling from the CDN.
# Sizes from this mode are approximate.
use_web_container: false

# Break the bundle down by owning dependency
include_dependency_sizes: false

# Concurrent file downloads (0 tunes to this machine)
concurrency: 0

# Registry requests per second (0 is unlimited)
rate_limit: 0

# Output format: pretty, plain, json, jsonl, yaml, csv, tsv, markdown
output: %s

# Result cache for exact versions
cache:
  enabled: true
  # Empty means use default: $XDG_CACHE_HOME/pkgsize/results
  path: ""
  memory_entries: %d

# Analysis history
history:
  enabled: true
  # Empty means use default: $XDG_STATE_HOME/pkgsize/history
  path: ""
  retention: %d

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means use default: $XDG_STATE_HOME/pkgsize/pkgsize.log)
  path: ""
  # Mirror entries at or above this level to stderr (empty disables)
  console: ""
  rotation:
    max_size: 10MB
    max_age: 30       # days
    max_backups: 5
    daily: true
  components:
    registry: info
    bundler: info
    analyzer: info
    cache: warn
    daemon: info
    tui: info

# Daemon configuration
daemon:
  # Start pkgsized automatically when the CLI runs
  auto_start: false
  # Unix socket path (empty means use default: $XDG_DATA_HOME/pkgsize/pkgsize.sock)
  socket_path: ""
  # PID file path (empty means use default: $XDG_DATA_HOME/pkgsize/pkgsize.pid)
  pid_path: ""
  # Prometheus listen address, e.g. 127.0.0.1:9464 (empty disables)
  metrics_addr: ""
`, DefaultCDN, DefaultMinifier, DefaultParseTimeLimit, DefaultOutput, DefaultMemoryEntries, DefaultHistoryRetention)

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}

	return configPath, nil
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}

// DataDir returns $XDG_DATA_HOME/pkgsize/ for socket and pid files.
func DataDir() string {
	return filepath.Join(xdg.DataHome, appName)
}

// StateDir returns $XDG_STATE_HOME/pkgsize/ for logs and history.
func StateDir() string {
	return filepath.Join(xdg.StateHome, appName)
}

// CacheDir returns $XDG_CACHE_HOME/pkgsize/.
func CacheDir() string {
	return filepath.Join(xdg.CacheHome, appName)
}

// DefaultSocketPath returns the default Unix socket path.
func DefaultSocketPath() string {
	return filepath.Join(DataDir(), "pkgsize.sock")
}

// DefaultPIDPath returns the default PID file path.
func DefaultPIDPath() string {
	return filepath.Join(DataDir(), "pkgsize.pid")
}

// DefaultCachePath returns the default result cache directory.
func DefaultCachePath() string {
	return filepath.Join(CacheDir(), "results")
}

// DefaultHistoryPath returns the default history directory.
func DefaultHistoryPath() string {
	return filepath.Join(StateDir(), "history")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return logging.DefaultLogPath()
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	if err := os.MkdirAll(DataDir(), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}
