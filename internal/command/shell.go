package command

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joeycumines/jmxsh/internal/builtin/jmxmod"
	"github.com/joeycumines/jmxsh/internal/config"
	"github.com/joeycumines/jmxsh/internal/console"
	"github.com/joeycumines/jmxsh/internal/jmx"
	"github.com/joeycumines/jmxsh/internal/jmx/jolokia"
	"github.com/joeycumines/jmxsh/internal/jmxerr"
	"github.com/joeycumines/jmxsh/internal/scripting"
)

// shutdownGrace is how long a signalled shell may take to return before
// sessions are closed underneath it and the process exits.
const shutdownGrace = 2 * time.Second

// ShellCommand connects, runs include files and a script, and then, unless a
// script ran without -I, the interactive shell.
type ShellCommand struct {
	*BaseCommand
	config  *config.Config
	version string
	date    string

	server      string
	host        string
	port        int
	path        string
	user        string
	password    string
	protocol    string
	includes    stringList
	interactive bool
	browse      bool
	noHistory   bool
	historyFile string
	logPath     string
	logLevel    string
	debug       bool

	// dialer opens connections; nil uses the Jolokia connector
	dialer jmx.Dialer
	// input replaces the terminal; it is used by tests
	input console.Prompter
	// ctxFactory creates the execution context. If nil, uses
	// signal.NotifyContext. Tests should set this to avoid signal handling
	// races.
	ctxFactory func() (context.Context, context.CancelFunc)
	exit       func(code int)
}

// NewShellCommand creates the shell command.
func NewShellCommand(cfg *config.Config, version, date string) *ShellCommand {
	return &ShellCommand{
		BaseCommand: NewBaseCommand(
			"shell",
			"Start a command-line interface to a JMX service provider",
			"shell [OPTIONS] [-h host -p port] [FILENAME ARGS]",
		),
		config:  cfg,
		version: version,
		date:    date,
		exit:    os.Exit,
	}
}

// SetupFlags configures the flags for the shell command. Short names follow
// the classic jmxsh options.
func (c *ShellCommand) SetupFlags(fs *flag.FlagSet) {
	str := func(p *string, short, long, usage string) {
		fs.StringVar(p, short, "", usage)
		fs.StringVar(p, long, "", usage+" (long form)")
	}
	boolean := func(p *bool, short, long, usage string) {
		fs.BoolVar(p, short, false, usage)
		fs.BoolVar(p, long, false, usage+" (long form)")
	}
	str(&c.server, "s", "server", "Connect to this JMX service URL")
	str(&c.host, "h", "host", "Connect to this host")
	fs.IntVar(&c.port, "p", 0, "Connect to this port")
	fs.IntVar(&c.port, "port", 0, "Connect to this port (long form)")
	str(&c.path, "T", "url-path", "Use this JMX service URL path")
	str(&c.user, "U", "user", "Connect with this user name")
	str(&c.password, "P", "password", "Connect with this password")
	str(&c.protocol, "R", "protocol", "Connection protocol (rmi, jmxmp, http, https), default rmi")
	fs.Var(&c.includes, "i", "Source this file; may be repeated")
	fs.Var(&c.includes, "include", "Source this file; may be repeated (long form)")
	boolean(&c.interactive, "I", "interactive", "Go into interactive mode even after running a script")
	boolean(&c.browse, "b", "browse", "Start the interactive session in browse mode")
	boolean(&c.noHistory, "n", "nohistory", "Do not save history")
	str(&c.historyFile, "H", "historyfile", "Save history to this file (default $HOME/.jmxsh_history)")
	str(&c.logPath, "l", "log-file", "Log to this file as JSON")
	fs.StringVar(&c.logLevel, "log-level", "", "Log file level (debug, info, warn, error)")
	boolean(&c.debug, "d", "debug", "Verbose logging, same as -log-level debug")
}

// Execute runs the shell.
func (c *ShellCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var cancel context.CancelFunc
	if c.ctxFactory != nil {
		ctx, cancel = c.ctxFactory()
	} else {
		ctx, cancel = signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGHUP)
	}
	defer cancel()

	cfg := c.config
	if cfg == nil {
		cfg = config.NewConfig()
	}

	logs, logger, closeLog, err := c.openLog(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Unable to open logfile: %v\n", err)
		return &ExitError{Code: 1}
	}
	defer closeLog()
	for _, w := range cfg.Warnings {
		logger.Warn("config", slog.String("warning", w))
	}

	var terminal *console.Terminal
	input := c.input
	if input == nil {
		colors := console.DefaultColors()
		if unknown := colors.Apply(cfg.Shell.Colors); len(unknown) > 0 {
			logger.Warn("unknown prompt colors", slog.Any("keys", unknown))
		}
		terminal = console.NewTerminal(console.WithOutput(stdout), console.WithColors(colors), console.WithLogger(logger))
		input = terminal
	}

	dialer := c.dialer
	if dialer == nil {
		dialer = jolokia.NewDialer(jolokia.Config{
			ProxyURL:           cfg.Jolokia.ProxyURL,
			Timeout:            cfg.Jolokia.Timeout.Duration,
			InsecureSkipVerify: cfg.Jolokia.InsecureSkipVerify,
			DefaultPath:        cfg.Jolokia.DefaultPath,
			Logger:             logger,
		})
	}

	engine, err := scripting.NewEngine(ctx, dialer, input,
		scripting.WithStdout(stdout),
		scripting.WithLogging(logs, logger),
		scripting.WithBookmarks(bookmarks(cfg)),
	)
	if err != nil {
		return fmt.Errorf("failed to create scripting engine: %w", err)
	}
	defer func() {
		if err := engine.Close(context.Background()); err != nil {
			logger.Warn("close failed", slog.Any("error", err))
		}
	}()
	slog.SetDefault(engine.Logger())

	done := make(chan struct{})
	defer close(done)
	stopWatch := context.AfterFunc(ctx, func() {
		select {
		case <-done:
		case <-time.After(shutdownGrace):
			logger.Warn("shell did not stop after signal, exiting")
			_ = engine.Registry().CloseAll(context.Background())
			c.exit(1)
		}
	})
	defer stopWatch()

	if c.server != "" || (c.host != "" && c.port != 0) {
		if err := c.connect(ctx, engine, input); err != nil {
			_, _ = fmt.Fprintf(stderr, "Failed to connect to %s, port %d: %s\n", c.target(), c.port, message(err))
			return &ExitError{Code: 1}
		}
	}

	for _, file := range c.includes {
		logger.Debug("including", slog.String("file", file))
		if err := engine.EvalFile(ctx, file); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %s\n", message(err))
			return &ExitError{Code: 1}
		}
	}

	if len(args) > 0 {
		if err := engine.SetArgs(ctx, args[0], args[1:]); err != nil {
			return err
		}
		if err := engine.EvalFile(ctx, args[0]); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %s\n", message(err))
			return &ExitError{Code: 1}
		}
		if !c.interactive {
			return nil
		}
	}

	return c.runInteractive(ctx, cfg, engine, input, terminal, stdout)
}

func (c *ShellCommand) runInteractive(ctx context.Context, cfg *config.Config, engine *scripting.Engine, input console.Prompter, terminal *console.Terminal, stdout io.Writer) error {
	var opts []scripting.ShellOption
	if !c.noHistory && !cfg.Shell.NoHistory {
		if h := c.openHistory(cfg, stdout); h != nil && terminal != nil {
			terminal.SetHistory(h)
		}
	}
	if rec, ok := input.(scripting.HistoryRecorder); ok {
		opts = append(opts, scripting.WithHistoryRecorder(rec))
	}
	if terminal != nil {
		terminal.SetCompleter(engine.Suggest)
	}
	opts = append(opts, scripting.StartInBrowse(c.browse || cfg.Shell.StartInBrowse))

	_, _ = fmt.Fprintf(stdout, "jmxsh v%s, %s\n\n", c.version, c.date)
	_, _ = fmt.Fprint(stdout, "Type 'help' for help.\n\n")

	err := scripting.NewShell(engine, input, opts...).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *ShellCommand) openHistory(cfg *config.Config, stdout io.Writer) *console.History {
	path := c.historyFile
	if path == "" {
		var err error
		if path, err = cfg.HistoryPath(); err != nil {
			slog.Warn("no history file", slog.Any("error", err))
			return nil
		}
	}
	h, err := console.OpenHistory(path, cfg.Shell.HistorySize)
	if err != nil {
		slog.Debug("history unavailable", slog.Any("error", err))
		_, _ = fmt.Fprintf(stdout, "History file %s not writable, command-line history disabled.\n", path)
		return nil
	}
	return h
}

func (c *ShellCommand) connect(ctx context.Context, engine *scripting.Engine, input console.Prompter) error {
	creds, err := jmxmod.Credentials(input, c.user, c.password)
	if err != nil {
		return err
	}
	_, err = engine.Registry().Connect(ctx, jmx.Identity{
		URL:      c.server,
		Host:     c.host,
		Port:     c.port,
		Protocol: c.protocol,
		Path:     c.path,
	}, creds)
	return err
}

func (c *ShellCommand) target() string {
	if c.host == "" {
		return c.server
	}
	return c.host
}

func (c *ShellCommand) openLog(cfg *config.Config) (*scripting.LogHandler, *slog.Logger, func(), error) {
	levelName := c.logLevel
	if levelName == "" {
		levelName = cfg.Log.Level
	}
	if c.debug {
		levelName = "debug"
	}
	level, err := scripting.ParseLogLevel(levelName)
	if err != nil {
		return nil, nil, nil, err
	}

	logs := scripting.NewLogHandler(cfg.Log.BufferSize)
	path := c.logPath
	if path == "" {
		path = cfg.Log.File
	}
	if path == "" {
		return logs, scripting.NewLogger(logs, nil, level), func() {}, nil
	}
	w, err := scripting.NewRotatingFileWriter(path, cfg.Log.MaxSizeMB, cfg.Log.MaxFiles)
	if err != nil {
		return nil, nil, nil, err
	}
	return logs, scripting.NewLogger(logs, w, level), func() { _ = w.Close() }, nil
}

func bookmarks(cfg *config.Config) map[string]jmxmod.Bookmark {
	out := make(map[string]jmxmod.Bookmark, len(cfg.Bookmarks))
	for _, b := range cfg.Bookmarks {
		out[b.Name] = jmxmod.Bookmark{
			Identity: jmx.Identity{
				URL:      b.URL,
				Host:     b.Host,
				Port:     b.Port,
				Protocol: b.Protocol,
				Path:     b.Path,
			},
			User:     b.User,
			Password: b.Password,
		}
	}
	return out
}

// message is the user-facing text of err, without the operation prefix.
func message(err error) string {
	var jerr *jmxerr.Error
	if errors.As(err, &jerr) && jerr.Msg != "" {
		return jerr.Msg
	}
	return err.Error()
}
