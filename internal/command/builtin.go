package command

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/BurntSushi/toml"
	"github.com/joeycumines/jmxsh/internal/config"
)

// HelpCommand displays help information for commands.
type HelpCommand struct {
	*BaseCommand
	registry *Registry
}

// NewHelpCommand creates a new help command.
func NewHelpCommand(registry *Registry) *HelpCommand {
	return &HelpCommand{
		BaseCommand: NewBaseCommand(
			"help",
			"Display help information for commands",
			"help [command]",
		),
		registry: registry,
	}
}

// Execute displays help information.
func (c *HelpCommand) Execute(_ context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stdout, "jmxsh - a command-line interface to JMX servers")
		_, _ = fmt.Fprintln(stdout, "")
		_, _ = fmt.Fprintln(stdout, "Usage: jmxsh [OPTIONS] [-h host -p port] [FILENAME ARGS]")
		_, _ = fmt.Fprintln(stdout, "       jmxsh <command> [options] [args...]")
		_, _ = fmt.Fprintln(stdout, "")
		_, _ = fmt.Fprintln(stdout, "The first non-option argument, if present, is the file name of a script")
		_, _ = fmt.Fprintln(stdout, "to execute. Any remaining arguments are passed as argv to the script.")
		_, _ = fmt.Fprintln(stdout, "If no script is given, or -I is set, an interactive session starts.")
		_, _ = fmt.Fprintln(stdout, "")
		_, _ = fmt.Fprintln(stdout, "Commands:")

		w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
		for _, name := range c.registry.List() {
			if cmd, err := c.registry.Get(name); err == nil {
				_, _ = fmt.Fprintf(w, "  %s\t%s\n", name, cmd.Description())
			}
		}
		_ = w.Flush()

		_, _ = fmt.Fprintln(stdout, "")
		_, _ = fmt.Fprintln(stdout, "Use 'jmxsh help <command>' for its flags; 'jmxsh help shell' lists the")
		_, _ = fmt.Fprintln(stdout, "connection options.")
		return nil
	}

	cmd, err := c.registry.Get(args[0])
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		return &ExitError{Code: 2}
	}

	_, _ = fmt.Fprintf(stdout, "Command: %s\n", cmd.Name())
	_, _ = fmt.Fprintf(stdout, "Description: %s\n", cmd.Description())
	_, _ = fmt.Fprintf(stdout, "Usage: %s\n", cmd.Usage())

	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	buf := &bytes.Buffer{}
	fs.SetOutput(buf)
	cmd.SetupFlags(fs)
	fs.PrintDefaults()
	if buf.Len() > 0 {
		_, _ = fmt.Fprintln(stdout, "")
		_, _ = fmt.Fprintln(stdout, "Flags:")
		_, _ = fmt.Fprint(stdout, buf.String())
	}
	return nil
}

// VersionCommand displays version information.
type VersionCommand struct {
	*BaseCommand
	version string
	date    string
}

// NewVersionCommand creates a new version command.
func NewVersionCommand(version, date string) *VersionCommand {
	return &VersionCommand{
		BaseCommand: NewBaseCommand(
			"version",
			"Display version information",
			"version",
		),
		version: version,
		date:    date,
	}
}

// Execute displays version information.
func (c *VersionCommand) Execute(_ context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args)
		return &ExitError{Code: 2}
	}
	_, _ = fmt.Fprintf(stdout, "jmxsh v%s, %s\n", c.version, c.date)
	return nil
}

// ConfigCommand shows and edits the configuration file.
type ConfigCommand struct {
	*BaseCommand
	config     *config.Config
	configPath string
}

// NewConfigCommand creates a new config command. Values are written to
// configPath.
func NewConfigCommand(cfg *config.Config, configPath string) *ConfigCommand {
	return &ConfigCommand{
		BaseCommand: NewBaseCommand(
			"config",
			"Show or change configuration settings",
			"config [show | path | validate | schema | <key> [value]]",
		),
		config:     cfg,
		configPath: configPath,
	}
}

// Execute manages configuration.
func (c *ConfigCommand) Execute(_ context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stdout, "Configuration management:")
		_, _ = fmt.Fprintln(stdout, "  config show           - Show the effective configuration")
		_, _ = fmt.Fprintln(stdout, "  config path           - Show the configuration file path")
		_, _ = fmt.Fprintln(stdout, "  config validate       - Validate configuration")
		_, _ = fmt.Fprintln(stdout, "  config schema         - Show the configuration keys")
		_, _ = fmt.Fprintln(stdout, "  config <key>          - Get configuration value")
		_, _ = fmt.Fprintln(stdout, "  config <key> <value>  - Set configuration value")
		return nil
	}

	switch args[0] {
	case "show":
		shown := *c.config
		shown.Bookmarks = slices.Clone(shown.Bookmarks)
		for i := range shown.Bookmarks {
			if shown.Bookmarks[i].Password != "" {
				shown.Bookmarks[i].Password = "********"
			}
		}
		if err := toml.NewEncoder(stdout).Encode(shown); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		return nil
	case "path":
		_, _ = fmt.Fprintln(stdout, c.configPath)
		return nil
	case "validate":
		return c.executeValidate(stdout)
	case "schema":
		_, _ = fmt.Fprint(stdout, config.FormatHelp())
		return nil
	}

	switch len(args) {
	case 1:
		value, ok := c.config.Get(args[0])
		if !ok {
			_, _ = fmt.Fprintf(stderr, "Configuration key '%s' not found\n", args[0])
			return &ExitError{Code: 1}
		}
		_, _ = fmt.Fprintf(stdout, "%s: %s\n", args[0], value)
		return nil
	case 2:
		key, value := args[0], args[1]
		if err := config.SetKeyInFile(c.configPath, key, value); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(stdout, "Set configuration: %s = %s\n", key, value)
		return nil
	}

	_, _ = fmt.Fprintln(stderr, "Invalid number of arguments")
	return &ExitError{Code: 2}
}

func (c *ConfigCommand) executeValidate(stdout io.Writer) error {
	issues := append(append([]string(nil), c.config.Warnings...), c.config.Validate()...)
	if len(issues) == 0 {
		_, _ = fmt.Fprintln(stdout, "Configuration is valid.")
		return nil
	}
	_, _ = fmt.Fprintf(stdout, "Configuration has %d issue(s):\n", len(issues))
	for _, issue := range issues {
		_, _ = fmt.Fprintf(stdout, "  - %s\n", issue)
	}
	return nil
}
