// Package config loads toolgate settings from defaults, an optional JSON
// file at ~/.toolgate/config.json, and TOOLGATE_* environment overrides,
// in that order of increasing precedence.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"toolgate.dev/cli/internal/core/ports"
)

// DefaultDirName is the per-user directory that holds all toolgate state.
const DefaultDirName = ".toolgate"

// Config holds the resolved settings for a toolgate run.
type Config struct {
	// PluginsDir is where installed plugin trees live.
	PluginsDir string `json:"plugins_dir"`
	// RegistryPath is the JSON file recording installed plugins.
	RegistryPath string `json:"registry_path"`
	// AnalyticsPath is the SQLite database for call analytics.
	AnalyticsPath string `json:"analytics_path"`
	// LogLevel is the minimum level emitted to stderr.
	LogLevel ports.LogLevel `json:"log_level"`

	InitializeTimeout time.Duration `json:"initialize_timeout"`
	ListToolsTimeout  time.Duration `json:"list_tools_timeout"`
	CallToolTimeout   time.Duration `json:"call_tool_timeout"`
}

// Default returns the built-in configuration rooted under the user's home
// directory. It falls back to the working directory when the home directory
// cannot be resolved.
func Default() Config {
	base, err := os.UserHomeDir()
	if err != nil {
		base = "."
	}
	root := filepath.Join(base, DefaultDirName)

	return Config{
		PluginsDir:        filepath.Join(root, "plugins"),
		RegistryPath:      filepath.Join(root, "plugins.json"),
		AnalyticsPath:     filepath.Join(root, "analytics.db"),
		LogLevel:          ports.LogLevelInfo,
		InitializeTimeout: 10 * time.Second,
		ListToolsTimeout:  5 * time.Second,
		CallToolTimeout:   30 * time.Second,
	}
}

// DefaultFilePath returns the path of the optional config file.
func DefaultFilePath() string {
	base, err := os.UserHomeDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, DefaultDirName, "config.json")
}

// Load resolves the effective configuration: defaults, then the config
// file when present, then environment overrides. A missing file is not an
// error; a malformed one is.
func Load() (Config, error) {
	return LoadFrom(DefaultFilePath())
}

// LoadFrom is Load with an explicit config file path, used by tests.
func LoadFrom(path string) (Config, error) {
	cfg := Default()

	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &fileOverlay{&cfg}); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

// fileOverlay unmarshals the config file over existing values so absent
// fields keep their defaults and durations accept "30s" style strings.
type fileOverlay struct {
	cfg *Config
}

func (o *fileOverlay) UnmarshalJSON(data []byte) error {
	var raw struct {
		PluginsDir        *string `json:"plugins_dir"`
		RegistryPath      *string `json:"registry_path"`
		AnalyticsPath     *string `json:"analytics_path"`
		LogLevel          *string `json:"log_level"`
		InitializeTimeout *string `json:"initialize_timeout"`
		ListToolsTimeout  *string `json:"list_tools_timeout"`
		CallToolTimeout   *string `json:"call_tool_timeout"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.PluginsDir != nil {
		o.cfg.PluginsDir = *raw.PluginsDir
	}
	if raw.RegistryPath != nil {
		o.cfg.RegistryPath = *raw.RegistryPath
	}
	if raw.AnalyticsPath != nil {
		o.cfg.AnalyticsPath = *raw.AnalyticsPath
	}
	if raw.LogLevel != nil {
		o.cfg.LogLevel = ports.LogLevel(*raw.LogLevel)
	}
	for _, pair := range []struct {
		value *string
		dst   *time.Duration
		field string
	}{
		{raw.InitializeTimeout, &o.cfg.InitializeTimeout, "initialize_timeout"},
		{raw.ListToolsTimeout, &o.cfg.ListToolsTimeout, "list_tools_timeout"},
		{raw.CallToolTimeout, &o.cfg.CallToolTimeout, "call_tool_timeout"},
	} {
		if pair.value == nil {
			continue
		}
		d, err := time.ParseDuration(*pair.value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", pair.field, err)
		}
		*pair.dst = d
	}
	return nil
}

// applyEnv overrides settings from TOOLGATE_* variables. Unparseable
// values are ignored rather than failing startup.
func applyEnv(cfg *Config) {
	if v := os.Getenv("TOOLGATE_PLUGINS_DIR"); v != "" {
		cfg.PluginsDir = v
	}
	if v := os.Getenv("TOOLGATE_REGISTRY_PATH"); v != "" {
		cfg.RegistryPath = v
	}
	if v := os.Getenv("TOOLGATE_ANALYTICS_PATH"); v != "" {
		cfg.AnalyticsPath = v
	}
	if v := os.Getenv("TOOLGATE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = ports.LogLevel(v)
	}
	if v := os.Getenv("TOOLGATE_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil && b {
			cfg.LogLevel = ports.LogLevelDebug
		}
	}
	if v := os.Getenv("TOOLGATE_CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CallToolTimeout = d
		}
	}
}
