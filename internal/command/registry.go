package command

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
)

// Registry manages the collection of available commands. Arguments that do
// not start with a command name go to the default command.
type Registry struct {
	commands map[string]Command
	fallback Command
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Register adds a command.
func (r *Registry) Register(cmd Command) {
	r.commands[cmd.Name()] = cmd
}

// SetDefault registers cmd and runs it when no command name is given.
func (r *Registry) SetDefault(cmd Command) {
	r.Register(cmd)
	r.fallback = cmd
}

// Get returns a command by name.
func (r *Registry) Get(name string) (Command, error) {
	if cmd, exists := r.commands[name]; exists {
		return cmd, nil
	}
	return nil, fmt.Errorf("command not found: %s", name)
}

// List returns the command names, sorted.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run dispatches args, the command line without the program name.
func (r *Registry) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var name string
	if len(args) > 0 {
		name = args[0]
	}
	switch name {
	case "-?", "-help", "--help":
		name, args = "help", append([]string{"help"}, args[1:]...)
	case "-v", "-version", "--version":
		name, args = "version", append([]string{"version"}, args[1:]...)
	}

	cmd, exists := r.commands[name]
	switch {
	case exists:
		args = args[1:]
	case r.fallback != nil:
		cmd = r.fallback
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", name)
		return &ExitError{Code: 2}
	}

	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(stderr, "Usage: %s\n", cmd.Usage())
		_, _ = fmt.Fprintf(stderr, "\n%s\n\n", cmd.Description())
		_, _ = fmt.Fprintln(stderr, "Options:")
		fs.PrintDefaults()
	}
	cmd.SetupFlags(fs)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return &ExitError{Code: 2}
	}
	return cmd.Execute(ctx, fs.Args(), stdout, stderr)
}
