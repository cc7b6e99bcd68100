package config

import (
	"os"
	"path/filepath"
)

const (
	// EnvConfigPath names an explicit config file
	EnvConfigPath = "LANWATCH_CONFIG"
	// ConfigFileName is looked up in the working directory
	ConfigFileName = "lanwatch.yaml"
	// ConfigDirName is the directory under the XDG, home and /etc roots
	ConfigDirName = "lanwatch"
)

// SearchPaths lists the config file candidates in lookup order. Entries
// whose environment variable is unset are left out.
func SearchPaths() []string {
	var paths []string

	if explicit := os.Getenv(EnvConfigPath); explicit != "" {
		paths = append(paths, explicit)
	}

	cwd := ConfigFileName
	if abs, err := filepath.Abs(ConfigFileName); err == nil {
		cwd = abs
	}
	paths = append(paths, cwd)

	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		paths = append(paths, filepath.Join(xdgHome, ConfigDirName, "config.yaml"))
	}
	if home := os.Getenv("HOME"); home != "" {
		paths = append(paths, filepath.Join(home, ".config", ConfigDirName, "config.yaml"))
	}

	return append(paths, filepath.Join("/etc", ConfigDirName, "config.yaml"))
}

// FindConfigPath returns the first existing entry of SearchPaths, or ""
func FindConfigPath() string {
	for _, path := range SearchPaths() {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// DefaultConfigPath is where a new config file is written: the per-user
// config directory when one is known, else the working directory.
func DefaultConfigPath() string {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, ConfigDirName, "config.yaml")
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".config", ConfigDirName, "config.yaml")
	}
	return ConfigFileName
}
