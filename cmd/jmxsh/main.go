// Command jmxsh is a command-line interface to JMX servers.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joeycumines/jmxsh/internal/command"
	"github.com/joeycumines/jmxsh/internal/config"
)

// Set with -ldflags "-X main.version=... -X main.date=...".
var (
	version = "1.0.0"
	date    = "unreleased"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath, err := config.GetConfigPath()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	cfg, err := config.LoadFromPath(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	registry := command.NewRegistry()
	registry.SetDefault(command.NewShellCommand(cfg, version, date))
	registry.Register(command.NewHelpCommand(registry))
	registry.Register(command.NewVersionCommand(version, date))
	registry.Register(command.NewConfigCommand(cfg, configPath))

	err = registry.Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	if code := command.ExitCode(err); code != 0 {
		var reported *command.ExitError
		if !errors.As(err, &reported) {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return code
	}
	return 0
}
