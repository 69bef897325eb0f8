// Package config loads the jmxsh configuration file, a TOML document with
// [shell], [log] and [jolokia] tables and a [[bookmarks]] array.
package config

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the application configuration.
type Config struct {
	Shell     ShellConfig   `toml:"shell"`
	Log       LogConfig     `toml:"log"`
	Jolokia   JolokiaConfig `toml:"jolokia"`
	Bookmarks []Bookmark    `toml:"bookmarks"`

	// Warnings contains any warnings generated during config loading
	Warnings []string `toml:"-"`
}

// ShellConfig controls the interactive shell.
type ShellConfig struct {
	// HistoryFile defaults to ~/.jmxsh_history when empty.
	HistoryFile   string            `toml:"history_file"`
	HistorySize   int               `toml:"history_size"`
	NoHistory     bool              `toml:"no_history"`
	StartInBrowse bool              `toml:"start_in_browse"`
	Colors        map[string]string `toml:"colors"`
}

// LogConfig controls the session log. The in-memory buffer is always kept;
// File adds a JSON log file.
type LogConfig struct {
	File       string `toml:"file"`
	Level      string `toml:"level"`
	BufferSize int    `toml:"buffer_size"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxFiles   int    `toml:"max_files"`
}

// JolokiaConfig configures the HTTP connector.
type JolokiaConfig struct {
	ProxyURL           string   `toml:"proxy_url"`
	Timeout            Duration `toml:"timeout"`
	InsecureSkipVerify bool     `toml:"insecure_skip_verify"`
	DefaultPath        string   `toml:"default_path"`
}

// Bookmark is a saved connection. Either URL or Host and Port are set.
type Bookmark struct {
	Name     string `toml:"name"`
	URL      string `toml:"url"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Protocol string `toml:"protocol"`
	Path     string `toml:"path"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

// Duration is a time.Duration written as a string such as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// NewConfig returns the default configuration.
func NewConfig() *Config {
	return &Config{
		Shell: ShellConfig{
			HistorySize: 1000,
			Colors:      make(map[string]string),
		},
		Log: LogConfig{
			Level:      "info",
			BufferSize: 1000,
			MaxSizeMB:  10,
			MaxFiles:   3,
		},
		Jolokia: JolokiaConfig{
			Timeout:     Duration{30 * time.Second},
			DefaultPath: "/jolokia",
		},
		Warnings: make([]string, 0),
	}
}

// Load loads configuration from the default config file path.
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads configuration from the specified file path. A missing
// file yields the defaults.
//
// SECURITY: symlinks are rejected, so the config path cannot be pointed at
// an unrelated file.
func LoadFromPath(path string) (*Config, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewConfig(), nil
		}
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("symlink not allowed in config path: %s", path)
	}

	file, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg, err := LoadFromReader(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a TOML document over the defaults. Keys the
// application does not know are reported in Warnings rather than failing.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := NewConfig()
	meta, err := toml.NewDecoder(r).Decode(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	for _, key := range meta.Undecoded() {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("unknown configuration key: %s", key))
	}
	if cfg.Shell.Colors == nil {
		cfg.Shell.Colors = make(map[string]string)
	}
	return cfg, nil
}

// Validate returns a description of each problem with the configuration.
func (c *Config) Validate() []string {
	var issues []string
	if c.Shell.HistorySize < 0 {
		issues = append(issues, "shell.history_size must not be negative")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		issues = append(issues, fmt.Sprintf("log.level: invalid log level: %s", c.Log.Level))
	}
	if c.Log.BufferSize < 0 {
		issues = append(issues, "log.buffer_size must not be negative")
	}
	if c.Jolokia.Timeout.Duration < 0 {
		issues = append(issues, "jolokia.timeout must not be negative")
	}
	seen := make(map[string]bool, len(c.Bookmarks))
	for i, b := range c.Bookmarks {
		switch {
		case b.Name == "":
			issues = append(issues, fmt.Sprintf("bookmarks[%d]: missing name", i))
		case seen[b.Name]:
			issues = append(issues, fmt.Sprintf("bookmarks[%d]: duplicate name %q", i, b.Name))
		}
		seen[b.Name] = true
		if b.URL == "" && (b.Host == "" || b.Port <= 0) {
			issues = append(issues, fmt.Sprintf("bookmarks[%d]: needs url, or host and port", i))
		}
	}
	return issues
}

// Bookmark returns the bookmark with the given name.
func (c *Config) Bookmark(name string) (Bookmark, bool) {
	i := slices.IndexFunc(c.Bookmarks, func(b Bookmark) bool { return b.Name == name })
	if i < 0 {
		return Bookmark{}, false
	}
	return c.Bookmarks[i], true
}
