package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("COPYX_DATA_DIR", "")
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if cfg.IdleTimeout() != time.Second {
		t.Errorf("expected idle timeout 1s, got %v", cfg.IdleTimeout())
	}
	if cfg.Expander.MaxBuffer != 64 {
		t.Errorf("expected max buffer 64, got %d", cfg.Expander.MaxBuffer)
	}
	if len(cfg.Expander.Separators) != 3 {
		t.Errorf("expected 3 separators, got %v", cfg.Expander.Separators)
	}
	if cfg.Placeholders.DateLayout != "1/2/2006" {
		t.Errorf("unexpected date layout %q", cfg.Placeholders.DateLayout)
	}
	if !strings.Contains(cfg.Storage.Path, "copyx") {
		t.Errorf("storage path should contain copyx: %s", cfg.Storage.Path)
	}
	if !strings.HasSuffix(cfg.Logging.FilePath, "copyx.log") {
		t.Errorf("log path should end with copyx.log: %s", cfg.Logging.FilePath)
	}
}

func TestConfigPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	t.Setenv("HOME", home)

	path := ConfigPath()
	if !strings.HasSuffix(path, "config.toml") {
		t.Errorf("expected path ending with config.toml, got %s", path)
	}

	// An existing file in another supported format wins.
	yamlPath := filepath.Join(PlatformConfigDir(), "config.yaml")
	if err := os.MkdirAll(filepath.Dir(yamlPath), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(yamlPath, []byte("version: 1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if got := ConfigPath(); got != yamlPath {
		t.Errorf("expected %s, got %s", yamlPath, got)
	}
}

func TestDataDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("COPYX_DATA_DIR", dir)

	if DataDir() != dir {
		t.Errorf("expected %s, got %s", dir, DataDir())
	}
	if got := DefaultConfig().Storage.Path; got != filepath.Join(dir, "snippets.json") {
		t.Errorf("storage path should follow data dir override, got %s", got)
	}
}

func TestLoadNonexistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Expander.IdleTimeoutMs != 1000 {
		t.Errorf("expected default idle timeout, got %d", cfg.Expander.IdleTimeoutMs)
	}
}

func TestLoadTOML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
# comment
[expander]
idle_timeout_ms = 1500 # inline
separators = ["space", "tab"]

[placeholders]
date_layout = "2006-01-02"

[storage]
type = "sqlite"
path = "/custom/snippets.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Expander.IdleTimeoutMs != 1500 {
		t.Errorf("expected idle timeout 1500, got %d", cfg.Expander.IdleTimeoutMs)
	}
	if len(cfg.Expander.Separators) != 2 || cfg.Expander.Separators[1] != "tab" {
		t.Errorf("unexpected separators %v", cfg.Expander.Separators)
	}
	if cfg.Placeholders.DateLayout != "2006-01-02" {
		t.Errorf("unexpected date layout %q", cfg.Placeholders.DateLayout)
	}
	if cfg.Storage.Type != "sqlite" || cfg.Storage.Path != "/custom/snippets.db" {
		t.Errorf("unexpected storage %+v", cfg.Storage)
	}
	// Untouched sections keep their defaults.
	if cfg.Placeholders.TimeLayout != "3:04:05 PM" {
		t.Errorf("time layout should keep default, got %q", cfg.Placeholders.TimeLayout)
	}
	if cfg.Expander.MaxBuffer != 64 {
		t.Errorf("max buffer should keep default, got %d", cfg.Expander.MaxBuffer)
	}
}

func TestLoadJSONAndYAML(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "config.json")
	if err := os.WriteFile(jsonPath, []byte(`{"expander": {"max_buffer": 32}}`), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(jsonPath)
	if err != nil {
		t.Fatalf("Load JSON failed: %v", err)
	}
	if cfg.Expander.MaxBuffer != 32 {
		t.Errorf("expected max buffer 32, got %d", cfg.Expander.MaxBuffer)
	}

	yamlPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(yamlPath, []byte("logging:\n  level: debug\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(yamlPath)
	if err != nil {
		t.Fatalf("Load YAML failed: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("this is not valid toml {{{"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("COPYX_STORAGE_TYPE", "sqlite")
	t.Setenv("COPYX_STORAGE_PATH", "/env/snippets.db")
	t.Setenv("COPYX_LOG_LEVEL", "warn")
	t.Setenv("COPYX_IDLE_TIMEOUT_MS", "250")
	t.Setenv("COPYX_CLIPBOARD_TIMEOUT_MS", "not-a-number")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Storage.Type != "sqlite" || cfg.Storage.Path != "/env/snippets.db" {
		t.Errorf("storage overrides not applied: %+v", cfg.Storage)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected warn, got %s", cfg.Logging.Level)
	}
	if cfg.IdleTimeout() != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", cfg.IdleTimeout())
	}
	if cfg.Placeholders.ClipboardTimeoutMs != 500 {
		t.Errorf("malformed override should be ignored, got %d", cfg.Placeholders.ClipboardTimeoutMs)
	}
}

func TestValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestValidateFields(t *testing.T) {
	tests := []struct {
		field  string
		mutate func(*Config)
	}{
		{"version", func(c *Config) { c.Version = 0 }},
		{"expander.idle_timeout_ms", func(c *Config) { c.Expander.IdleTimeoutMs = 0 }},
		{"expander.max_buffer", func(c *Config) { c.Expander.MaxBuffer = 0 }},
		{"expander.separators", func(c *Config) { c.Expander.Separators = []string{"space", "comma"} }},
		{"expander.separators", func(c *Config) { c.Expander.Separators = nil }},
		{"placeholders.date_layout", func(c *Config) { c.Placeholders.DateLayout = "" }},
		{"placeholders.time_layout", func(c *Config) { c.Placeholders.TimeLayout = "now" }},
		{"placeholders.clipboard_timeout_ms", func(c *Config) { c.Placeholders.ClipboardTimeoutMs = 0 }},
		{"storage.type", func(c *Config) { c.Storage.Type = "memory" }},
		{"storage.path", func(c *Config) { c.Storage.Path = "" }},
		{"storage.poll_interval_ms", func(c *Config) { c.Storage.Type = "sqlite"; c.Storage.PollIntervalMs = 1 }},
		{"logging.level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"logging.output", func(c *Config) { c.Logging.Output = "syslog" }},
		{"logging.file_path", func(c *Config) { c.Logging.Output = "file"; c.Logging.FilePath = "" }},
		{"ime.bus_name", func(c *Config) { c.IME.BusName = "copyx" }},
		{"ime.engine_name", func(c *Config) { c.IME.EngineName = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidationErrors, got %T", err)
			}
			if !verrs.HasField(tt.field) {
				t.Errorf("expected error on %s, got %v", tt.field, verrs)
			}
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Storage.Path = filepath.Join(tmpDir, "a", "b", "snippets.json")
	cfg.Logging.Output = "file"
	cfg.Logging.FilePath = filepath.Join(tmpDir, "logs", "copyx.log")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{filepath.Join(tmpDir, "a", "b"), filepath.Join(tmpDir, "logs")} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			t.Errorf("%s was not created", dir)
		}
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	for _, ext := range []string{".toml", ".json", ".yaml"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "config"+ext)
			cfg := DefaultConfig()
			cfg.Expander.MaxBuffer = 48
			cfg.Placeholders.DateLayout = "02.01.2006"

			if err := SaveConfig(cfg, path); err != nil {
				t.Fatalf("SaveConfig failed: %v", err)
			}
			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if loaded.Expander.MaxBuffer != 48 || loaded.Placeholders.DateLayout != "02.01.2006" {
				t.Errorf("round trip lost values: %+v", loaded.Expander)
			}
		})
	}
}

func TestLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	_, created, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if !created {
		t.Error("expected file to be created")
	}

	_, created, err = LoadOrCreate(path)
	if err != nil {
		t.Fatalf("second LoadOrCreate failed: %v", err)
	}
	if created {
		t.Error("expected existing file to be loaded")
	}
}

func TestLoaderRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[storage]\ntype = \"memory\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(path)
	defer l.Close()
	if _, err := l.Load(); err == nil {
		t.Error("expected validation error")
	}
	if l.Config() != nil {
		t.Error("invalid config must not be stored")
	}
}

func TestLoaderWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[expander]\nmax_buffer = 10\n"), 0600); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(path)
	defer l.Close()
	if _, err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	changed := make(chan *Config, 1)
	l.OnChange(func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	})
	if err := l.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("[expander]\nmax_buffer = 20\n"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-changed:
		if c.Expander.MaxBuffer != 20 {
			t.Errorf("expected reloaded max buffer 20, got %d", c.Expander.MaxBuffer)
		}
		if l.Config().Expander.MaxBuffer != 20 {
			t.Error("loader should hold the reloaded config")
		}
	case err := <-l.Errors():
		t.Fatalf("watch error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestLogConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Format = "json"

	lc, err := cfg.LogConfig("copyxd")
	if err != nil {
		t.Fatalf("LogConfig failed: %v", err)
	}
	if lc.Component != "copyxd" || lc.MaxSize != 20 {
		t.Errorf("unexpected logging config %+v", lc)
	}

	cfg.Logging.Level = "loud"
	if _, err := cfg.LogConfig("copyxd"); err == nil {
		t.Error("expected error for unknown level")
	}
}
