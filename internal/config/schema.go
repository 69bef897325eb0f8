package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
)

// OptionType represents the expected type of a configuration option value.
type OptionType string

const (
	TypeString   OptionType = "string"
	TypeBool     OptionType = "bool"
	TypeInt      OptionType = "int"
	TypeDuration OptionType = "duration"
)

// Option describes one scalar configuration key.
type Option struct {
	// Key is the dotted path, such as "log.level".
	Key         string
	Type        OptionType
	Description string
	get         func(*Config) string
}

var options = []Option{
	{"shell.history_file", TypeString, "History file (default ~/.jmxsh_history)", func(c *Config) string { return c.Shell.HistoryFile }},
	{"shell.history_size", TypeInt, "Maximum history entries kept", func(c *Config) string { return strconv.Itoa(c.Shell.HistorySize) }},
	{"shell.no_history", TypeBool, "Do not save history", func(c *Config) string { return strconv.FormatBool(c.Shell.NoHistory) }},
	{"shell.start_in_browse", TypeBool, "Start interactive sessions in browse mode", func(c *Config) string { return strconv.FormatBool(c.Shell.StartInBrowse) }},
	{"log.file", TypeString, "JSON log file; empty keeps logs in memory only", func(c *Config) string { return c.Log.File }},
	{"log.level", TypeString, "Log file level: debug, info, warn or error", func(c *Config) string { return c.Log.Level }},
	{"log.buffer_size", TypeInt, "Log entries kept in memory for log.getLogs()", func(c *Config) string { return strconv.Itoa(c.Log.BufferSize) }},
	{"log.max_size_mb", TypeInt, "Log file size that triggers rotation", func(c *Config) string { return strconv.Itoa(c.Log.MaxSizeMB) }},
	{"log.max_files", TypeInt, "Rotated log files kept", func(c *Config) string { return strconv.Itoa(c.Log.MaxFiles) }},
	{"jolokia.proxy_url", TypeString, "Jolokia proxy for rmi and jmxmp servers", func(c *Config) string { return c.Jolokia.ProxyURL }},
	{"jolokia.timeout", TypeDuration, "HTTP request timeout", func(c *Config) string { return c.Jolokia.Timeout.String() }},
	{"jolokia.insecure_skip_verify", TypeBool, "Skip TLS certificate verification", func(c *Config) string { return strconv.FormatBool(c.Jolokia.InsecureSkipVerify) }},
	{"jolokia.default_path", TypeString, "Agent path for URLs without one", func(c *Config) string { return c.Jolokia.DefaultPath }},
}

// Options returns the known scalar keys in display order.
func Options() []Option {
	return slices.Clone(options)
}

// LookupOption returns the option for key.
func LookupOption(key string) (Option, bool) {
	i := slices.IndexFunc(options, func(o Option) bool { return o.Key == key })
	if i < 0 {
		return Option{}, false
	}
	return options[i], true
}

// Get returns the effective value of a dotted key.
func (c *Config) Get(key string) (string, bool) {
	opt, ok := LookupOption(key)
	if !ok {
		return "", false
	}
	return opt.get(c), true
}

// Parse converts a command-line string into the TOML value for the option.
func (o Option) Parse(value string) (any, error) {
	switch o.Type {
	case TypeBool:
		switch strings.ToLower(value) {
		case "true", "yes", "on", "1":
			return true, nil
		case "false", "no", "off", "0":
			return false, nil
		}
		return nil, fmt.Errorf("%s: invalid bool %q", o.Key, value)
	case TypeInt:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid int %q", o.Key, value)
		}
		return n, nil
	case TypeDuration:
		if _, err := time.ParseDuration(value); err != nil {
			return nil, fmt.Errorf("%s: invalid duration %q", o.Key, value)
		}
		return value, nil
	default:
		return value, nil
	}
}

// FormatHelp renders the option table.
func FormatHelp() string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 8, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tTYPE\tDESCRIPTION")
	for _, o := range options {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", o.Key, o.Type, o.Description)
	}
	_ = w.Flush()
	sb.WriteString("\nshell.colors is a table of prompt colors; bookmarks are [[bookmarks]] entries\nwith name, url or host/port/protocol/path, user and password.\n")
	return sb.String()
}
