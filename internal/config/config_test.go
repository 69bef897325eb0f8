package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
[shell]
history_file = "/tmp/jmxsh_history"
history_size = 50
start_in_browse = true

[shell.colors]
input = "yellow"

[log]
file = "/var/log/jmxsh.log"
level = "debug"

[jolokia]
proxy_url = "http://proxy:8080/jolokia"
timeout = "5s"
insecure_skip_verify = true

[[bookmarks]]
name = "local"
host = "localhost"
port = 9999
user = "admin"

[[bookmarks]]
name = "agent"
url = "service:jmx:http:///jndi/http://app:8778/jolokia"
`

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 1000, cfg.Shell.HistorySize)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 1000, cfg.Log.BufferSize)
	assert.Equal(t, 30*time.Second, cfg.Jolokia.Timeout.Duration)
	assert.Equal(t, "/jolokia", cfg.Jolokia.DefaultPath)
	assert.Empty(t, cfg.Validate())
}

func TestLoadFromReader(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/jmxsh_history", cfg.Shell.HistoryFile)
	assert.Equal(t, 50, cfg.Shell.HistorySize)
	assert.True(t, cfg.Shell.StartInBrowse)
	assert.Equal(t, map[string]string{"input": "yellow"}, cfg.Shell.Colors)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched keys keep their defaults
	assert.Equal(t, 1000, cfg.Log.BufferSize)
	assert.Equal(t, 5*time.Second, cfg.Jolokia.Timeout.Duration)
	assert.True(t, cfg.Jolokia.InsecureSkipVerify)
	assert.Equal(t, "/jolokia", cfg.Jolokia.DefaultPath)

	require.Len(t, cfg.Bookmarks, 2)
	b, ok := cfg.Bookmark("local")
	require.True(t, ok)
	assert.Equal(t, Bookmark{Name: "local", Host: "localhost", Port: 9999, User: "admin"}, b)
	_, ok = cfg.Bookmark("missing")
	assert.False(t, ok)

	assert.Empty(t, cfg.Warnings)
	assert.Empty(t, cfg.Validate())
}

func TestLoadFromReaderUnknownKeys(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("[shell]\nhistory = 1\n[extra]\nx = true\n"))
	require.NoError(t, err)
	assert.Contains(t, cfg.Warnings, "unknown configuration key: shell.history")
	assert.Contains(t, cfg.Warnings, "unknown configuration key: extra.x")
}

func TestLoadFromReaderErrors(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("[jolokia]\ntimeout = \"soon\"\n"))
	assert.Error(t, err)

	_, err = LoadFromReader(strings.NewReader("[shell\n"))
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestValidate(t *testing.T) {
	cfg := NewConfig()
	cfg.Shell.HistorySize = -1
	cfg.Log.Level = "loud"
	cfg.Bookmarks = []Bookmark{
		{Name: "a", Host: "h", Port: 1},
		{Name: "a", URL: "service:jmx:rmi:///jndi/rmi://h:1/jmxrmi"},
		{Host: "h"},
	}
	assert.Equal(t, []string{
		"shell.history_size must not be negative",
		"log.level: invalid log level: loud",
		`bookmarks[1]: duplicate name "a"`,
		"bookmarks[2]: missing name",
		"bookmarks[2]: needs url, or host and port",
	}, cfg.Validate())
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadFromPath(filepath.Join(dir, "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, NewConfig(), cfg)

	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))
	cfg, err = LoadFromPath(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Bookmarks, 2)

	link := filepath.Join(dir, "link.toml")
	if err := os.Symlink(path, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	_, err = LoadFromPath(link)
	assert.ErrorContains(t, err, "symlink not allowed")
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("JMXSH_CONFIG", "/etc/jmxsh.toml")
	path, err := GetConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "/etc/jmxsh.toml", path)

	t.Setenv("JMXSH_CONFIG", "")
	t.Setenv("HOME", "/home/user")
	path, err = GetConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/user", ".jmxsh", "config.toml"), path)
}

func TestHistoryPath(t *testing.T) {
	t.Setenv("HOME", "/home/user")
	cfg := NewConfig()
	path, err := cfg.HistoryPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/user", ".jmxsh_history"), path)

	cfg.Shell.HistoryFile = "/tmp/h"
	path, err = cfg.HistoryPath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/h", path)
}

func TestGet(t *testing.T) {
	cfg := NewConfig()
	for key, want := range map[string]string{
		"shell.history_size":           "1000",
		"shell.no_history":             "false",
		"log.level":                    "info",
		"jolokia.timeout":              "30s",
		"jolokia.insecure_skip_verify": "false",
	} {
		got, ok := cfg.Get(key)
		assert.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}
	_, ok := cfg.Get("shell.colors")
	assert.False(t, ok)
}

func TestOptionParse(t *testing.T) {
	opt, ok := LookupOption("shell.no_history")
	require.True(t, ok)
	v, err := opt.Parse("yes")
	require.NoError(t, err)
	assert.Equal(t, true, v)
	_, err = opt.Parse("maybe")
	assert.Error(t, err)

	opt, _ = LookupOption("log.max_files")
	v, err = opt.Parse("5")
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)

	opt, _ = LookupOption("jolokia.timeout")
	_, err = opt.Parse("10")
	assert.ErrorContains(t, err, "invalid duration")
}

func TestSetKeyInFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")

	require.NoError(t, SetKeyInFile(path, "log.level", "debug"))
	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)

	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))
	require.NoError(t, SetKeyInFile(path, "shell.history_size", "7"))
	require.NoError(t, SetKeyInFile(path, "jolokia.timeout", "1m"))

	cfg, err = LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Shell.HistorySize)
	assert.Equal(t, time.Minute, cfg.Jolokia.Timeout.Duration)
	assert.Equal(t, "/tmp/jmxsh_history", cfg.Shell.HistoryFile)
	assert.Equal(t, "yellow", cfg.Shell.Colors["input"])
	assert.Len(t, cfg.Bookmarks, 2)
	assert.Empty(t, cfg.Warnings)

	assert.ErrorContains(t, SetKeyInFile(path, "shell.nope", "1"), "unknown configuration key")
	assert.Error(t, SetKeyInFile(path, "shell.history_size", "many"))
}

func TestFormatHelp(t *testing.T) {
	help := FormatHelp()
	for _, o := range Options() {
		assert.Contains(t, help, o.Key)
	}
}
