// Package config handles configuration loading, validation, and management for copyx.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"copyx/internal/logging"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete copyx configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Expander configures the keystroke buffer and separator handling.
	Expander ExpanderConfig `toml:"expander" json:"expander" yaml:"expander"`

	// Placeholders configures template resolution.
	Placeholders PlaceholderConfig `toml:"placeholders" json:"placeholders" yaml:"placeholders"`

	// Storage configures where snippets are persisted.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// IME configures the IBus input method engine.
	IME IMEConfig `toml:"ime" json:"ime" yaml:"ime"`
}

// ExpanderConfig holds keystroke buffer configuration.
type ExpanderConfig struct {
	// IdleTimeoutMs clears a partially typed shortcut after this many
	// milliseconds without a keystroke.
	IdleTimeoutMs int `toml:"idle_timeout_ms" json:"idle_timeout_ms" yaml:"idle_timeout_ms"`

	// MaxBuffer is the longest shortcut, in characters, the buffer retains.
	MaxBuffer int `toml:"max_buffer" json:"max_buffer" yaml:"max_buffer"`

	// Separators are the keys that complete a shortcut: "space", "enter", "tab".
	Separators []string `toml:"separators" json:"separators" yaml:"separators"`
}

// PlaceholderConfig holds placeholder resolution configuration.
type PlaceholderConfig struct {
	// DateLayout is the Go time layout for ${date}.
	DateLayout string `toml:"date_layout" json:"date_layout" yaml:"date_layout"`

	// TimeLayout is the Go time layout for ${time}.
	TimeLayout string `toml:"time_layout" json:"time_layout" yaml:"time_layout"`

	// DateTimeLayout is the Go time layout for ${datetime}.
	DateTimeLayout string `toml:"datetime_layout" json:"datetime_layout" yaml:"datetime_layout"`

	// ClipboardTimeoutMs bounds the ${clipboard} read.
	ClipboardTimeoutMs int `toml:"clipboard_timeout_ms" json:"clipboard_timeout_ms" yaml:"clipboard_timeout_ms"`
}

// StorageConfig holds snippet persistence configuration.
type StorageConfig struct {
	// Type is the storage backend type: "json" or "sqlite".
	Type string `toml:"type" json:"type" yaml:"type"`

	// Path is the snippet file or database path.
	Path string `toml:"path" json:"path" yaml:"path"`

	// PollIntervalMs is how often the sqlite backend checks for writes
	// made by other processes.
	PollIntervalMs int `toml:"poll_interval_ms" json:"poll_interval_ms" yaml:"poll_interval_ms"`

	// BusyTimeoutMs is the SQLite busy timeout in milliseconds.
	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr", "file" or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when Output is "file" or "both").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of old log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of log files in days.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress determines whether to compress rotated logs.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// IMEConfig holds IBus engine configuration.
type IMEConfig struct {
	// BusName is the D-Bus name the engine factory claims.
	BusName string `toml:"bus_name" json:"bus_name" yaml:"bus_name"`

	// EngineName is the engine name registered with IBus.
	EngineName string `toml:"engine_name" json:"engine_name" yaml:"engine_name"`

	// SkipPasswordFields treats password and PIN inputs as non-editable.
	SkipPasswordFields bool `toml:"skip_password_fields" json:"skip_password_fields" yaml:"skip_password_fields"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	dir := DataDir()

	return &Config{
		Version: Version,
		Expander: ExpanderConfig{
			IdleTimeoutMs: 1000,
			MaxBuffer:     64,
			Separators:    []string{"space", "enter", "tab"},
		},
		Placeholders: PlaceholderConfig{
			DateLayout:         "1/2/2006",
			TimeLayout:         "3:04:05 PM",
			DateTimeLayout:     "1/2/2006, 3:04:05 PM",
			ClipboardTimeoutMs: 500,
		},
		Storage: StorageConfig{
			Type:           "json",
			Path:           filepath.Join(dir, "snippets.json"),
			PollIntervalMs: 1000,
			BusyTimeoutMs:  5000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "copyx.log"),
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		},
		IME: IMEConfig{
			BusName:            "org.freedesktop.IBus.Copyx",
			EngineName:         "copyx",
			SkipPasswordFields: true,
		},
	}
}

// ConfigPath returns the configuration file in use: the first file found by
// FindConfigFile, else config.toml in the platform config directory.
func ConfigPath() string {
	if path := FindConfigFile(); path != "" {
		return path
	}
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// DataDir returns the base copyx data directory.
// COPYX_DATA_DIR overrides the platform default.
func DataDir() string {
	if envDir := os.Getenv("COPYX_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// Load reads configuration from path, falling back to ConfigPath when path is
// empty. A missing file yields the defaults. The format is chosen by file
// extension: TOML, JSON or YAML. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the storage and log files live in.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Storage.Path),
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with COPYX_.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("COPYX_STORAGE_TYPE"); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv("COPYX_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}

	if v := os.Getenv("COPYX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("COPYX_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}

	if n, ok := envInt("COPYX_IDLE_TIMEOUT_MS"); ok {
		c.Expander.IdleTimeoutMs = n
	}
	if n, ok := envInt("COPYX_CLIPBOARD_TIMEOUT_MS"); ok {
		c.Placeholders.ClipboardTimeoutMs = n
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IdleTimeout returns Expander.IdleTimeoutMs as a duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Expander.IdleTimeoutMs) * time.Millisecond
}

// ClipboardTimeout returns Placeholders.ClipboardTimeoutMs as a duration.
func (c *Config) ClipboardTimeout() time.Duration {
	return time.Duration(c.Placeholders.ClipboardTimeoutMs) * time.Millisecond
}

// PollInterval returns Storage.PollIntervalMs as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Storage.PollIntervalMs) * time.Millisecond
}

// BusyTimeout returns Storage.BusyTimeoutMs as a duration.
func (c *Config) BusyTimeout() time.Duration {
	return time.Duration(c.Storage.BusyTimeoutMs) * time.Millisecond
}

// LogConfig converts the logging section into a logging.Config.
func (c *Config) LogConfig(component string) (*logging.Config, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return nil, err
	}

	return &logging.Config{
		Level:      level,
		Format:     format,
		Output:     c.Logging.Output,
		FilePath:   c.Logging.FilePath,
		MaxSize:    int64(c.Logging.MaxSizeMB),
		MaxAge:     c.Logging.MaxAgeDays,
		MaxBackups: c.Logging.MaxBackups,
		Compress:   c.Logging.Compress,
		Component:  component,
	}, nil
}
