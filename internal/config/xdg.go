package config

import (
	"os"
	"path/filepath"
)

// XDGConfigHome returns the XDG config home or a default fallback.
func XDGConfigHome() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".config")
}

// XDGDataHome returns the XDG data home or a default fallback.
func XDGDataHome() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".local", "share")
}

// DefaultConfigPath is the config file read when --config is not given.
func DefaultConfigPath() string {
	return filepath.Join(XDGConfigHome(), "radtrack", "config.yaml")
}

// DefaultStatePath is the tracker's KeyedStore database.
func DefaultStatePath() string {
	return filepath.Join(XDGDataHome(), "radtrack", "state.db")
}
