package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "copyx"

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/copyx/
//   - Linux:   $XDG_DATA_HOME/copyx/ or ~/.local/share/copyx/
//   - Windows: %APPDATA%\copyx\
func PlatformDataDir() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appName)
	case "windows":
		return windowsAppData(home)
	default:
		return xdgDir("XDG_DATA_HOME", filepath.Join(home, ".local", "share"))
	}
}

// PlatformConfigDir returns the platform-specific config directory.
// macOS and Windows keep config next to data.
func PlatformConfigDir() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appName)
	case "windows":
		return windowsAppData(home)
	default:
		return xdgDir("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	}
}

// PlatformLogDir returns the platform-specific log directory.
//
// Platform paths:
//   - macOS:   ~/Library/Logs/copyx/
//   - Linux:   $XDG_STATE_HOME/copyx/ or ~/.local/state/copyx/
//   - Windows: %LOCALAPPDATA%\copyx\logs\
func PlatformLogDir() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Logs", appName)
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, appName, "logs")
		}
		return filepath.Join(home, "AppData", "Local", appName, "logs")
	default:
		return xdgDir("XDG_STATE_HOME", filepath.Join(home, ".local", "state"))
	}
}

func xdgDir(env, fallback string) string {
	if v := os.Getenv(env); v != "" {
		return filepath.Join(v, appName)
	}
	return filepath.Join(fallback, appName)
}

func windowsAppData(home string) string {
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, appName)
	}
	return filepath.Join(home, "AppData", "Roaming", appName)
}

// DefaultPaths collects the default file locations for the current platform.
type DefaultPaths struct {
	DataDir   string
	ConfigDir string
	LogDir    string

	ConfigFile   string
	SnippetsFile string
	DatabaseFile string
	MetricsFile  string

	// PrometheusFile holds the same snapshot in the Prometheus text format,
	// for a textfile collector.
	PrometheusFile string
}

// GetDefaultPaths returns all default paths for the current platform.
func GetDefaultPaths() *DefaultPaths {
	dataDir := DataDir()
	configDir := PlatformConfigDir()

	return &DefaultPaths{
		DataDir:   dataDir,
		ConfigDir: configDir,
		LogDir:    PlatformLogDir(),

		ConfigFile:   filepath.Join(configDir, "config.toml"),
		SnippetsFile: filepath.Join(dataDir, "snippets.json"),
		DatabaseFile: filepath.Join(dataDir, "snippets.db"),
		MetricsFile:  filepath.Join(dataDir, "metrics.json"),

		PrometheusFile: filepath.Join(dataDir, "metrics.prom"),
	}
}

// SupportedConfigFormats returns the list of supported config file extensions.
func SupportedConfigFormats() []string {
	return []string{"toml", "json", "yaml", "yml"}
}

// FindConfigFile searches the current directory and then the config
// directory for config.<ext>. It returns "" when none exists.
func FindConfigFile() string {
	for _, dir := range []string{".", PlatformConfigDir()} {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
