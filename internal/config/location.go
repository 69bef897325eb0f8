package config

import (
	"os"
	"path/filepath"
)

// GetConfigPath returns the configuration file path. The JMXSH_CONFIG
// environment variable takes precedence over ~/.jmxsh/config.toml.
func GetConfigPath() (string, error) {
	if configPath := os.Getenv("JMXSH_CONFIG"); configPath != "" {
		return configPath, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".jmxsh", "config.toml"), nil
}

// HistoryPath returns the history file to use: the configured one, or
// ~/.jmxsh_history.
func (c *Config) HistoryPath() (string, error) {
	if c.Shell.HistoryFile != "" {
		return c.Shell.HistoryFile, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".jmxsh_history"), nil
}

// EnsureConfigDir ensures that the configuration directory exists.
func EnsureConfigDir() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	return os.MkdirAll(filepath.Dir(configPath), 0755)
}
