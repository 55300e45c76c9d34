package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// appName namespaces the per-user config/data directory. The session
// store shares the "gcloud-node" namespace with the config directory.
const appName = "gcloud-node"

// configFileName is the config file's name within DefaultConfigDir().
const configFileName = "config.toml"

// DefaultConfigDir returns the platform-specific directory for config
// files, respecting XDG_CONFIG_HOME on Linux.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", appName)
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, ".config", appName)
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// DefaultSessionStorePath returns the default path for the resumable
// session SQLite database (internal/resumestore), alongside the config
// file.
func DefaultSessionStorePath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, "sessions.db")
}
