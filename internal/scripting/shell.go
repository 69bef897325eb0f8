package scripting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joeycumines/jmxsh/internal/browse"
	"github.com/joeycumines/jmxsh/internal/console"
)

// HistoryRecorder receives each command submitted in shell mode.
type HistoryRecorder interface {
	AddHistory(line string)
}

// mode is one of the two ways the shell reads input.
type mode interface {
	// display is printed before each prompt.
	display(ctx context.Context) string
	prompt() string
	// pending reports whether an unfinished command is buffered.
	pending() bool
	// execute handles one line, returning the command to record in history,
	// if any.
	execute(ctx context.Context, line string) string
	help() string
	entering() string
}

// Shell is the interactive loop. An empty line switches between shell mode,
// which evaluates JavaScript, and browse mode, which drives the menus.
type Shell struct {
	engine  *Engine
	input   console.Prompter
	out     io.Writer
	history HistoryRecorder
	logger  *slog.Logger

	modes  [2]mode
	active int
}

// ShellOption configures a Shell.
type ShellOption func(*Shell)

// WithHistoryRecorder records submitted commands.
func WithHistoryRecorder(h HistoryRecorder) ShellOption {
	return func(s *Shell) { s.history = h }
}

// StartInBrowse starts in browse mode instead of shell mode.
func StartInBrowse(browse bool) ShellOption {
	return func(s *Shell) {
		if browse {
			s.active = 1
		}
	}
}

// NewShell returns a shell reading from input and writing to the engine's
// output.
func NewShell(engine *Engine, input console.Prompter, opts ...ShellOption) *Shell {
	s := &Shell{
		engine: engine,
		input:  input,
		out:    engine.out,
		logger: engine.logger,
	}
	s.modes = [2]mode{
		&shellMode{engine: engine, out: engine.out},
		&browseMode{m: engine.browser},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InBrowseMode reports whether browse mode is active.
func (s *Shell) InBrowseMode() bool { return s.active == 1 }

// Run reads and handles lines until input ends or ctx is done.
func (s *Shell) Run(ctx context.Context) error {
	if s.InBrowseMode() {
		fmt.Fprintln(s.out, "Starting up in browser mode.")
	} else {
		fmt.Fprintln(s.out, "Starting up in shell mode.")
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		m := s.modes[s.active]
		fmt.Fprint(s.out, m.display(ctx))

		line, err := s.input.Prompt(m.prompt() + " ")
		switch {
		case errors.Is(err, io.EOF):
			fmt.Fprintln(s.out)
			return nil
		case errors.Is(err, console.ErrInterrupted):
			continue
		case err != nil:
			return err
		}

		if !m.pending() {
			if line == "" {
				s.active = 1 - s.active
				s.logger.Debug("mode switched", slog.Bool("browse", s.InBrowseMode()))
				fmt.Fprintln(s.out, s.modes[s.active].entering())
				continue
			}
			if strings.TrimSpace(line) == "help" {
				fmt.Fprintln(s.out, m.help())
				continue
			}
		}

		if cmd := m.execute(ctx, line); cmd != "" && s.history != nil {
			s.history.AddHistory(cmd)
		}
	}
}

// shellMode evaluates JavaScript, buffering lines until the source parses.
type shellMode struct {
	engine *Engine
	out    io.Writer
	buf    strings.Builder
}

func (m *shellMode) display(context.Context) string { return "" }

func (m *shellMode) prompt() string {
	if m.pending() {
		return ">>"
	}
	return "%"
}

func (m *shellMode) pending() bool { return m.buf.Len() > 0 }

func (m *shellMode) entering() string { return "Entering shell mode." }

func (m *shellMode) execute(ctx context.Context, line string) string {
	if m.pending() {
		m.buf.WriteByte('\n')
	}
	m.buf.WriteString(line)
	source := m.buf.String()
	if !IsComplete(source) {
		return ""
	}
	m.buf.Reset()
	if strings.TrimSpace(source) == "" {
		return ""
	}

	// ctrl-c interrupts the running script rather than the process
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	result, err := m.engine.Eval(ctx, source)
	if err != nil {
		fmt.Fprintf(m.out, "Error: %s\n", err)
	} else if result != "" {
		fmt.Fprintln(m.out, result)
	}
	return source
}

func (m *shellMode) help() string { return shellHelp }

const shellHelp = `Shell mode evaluates JavaScript. A statement left open continues at the
'>>' prompt. Enter an empty line to switch to browse mode.

The jmx object (also require("jmxsh:jmx")) talks to the servers:

  jmx.connect({host, port, protocol, path, user, password}) or jmx.connect(url)
  jmx.close(server)
  jmx.get({server, mbean, attribute, noconvert})
  jmx.set({server, mbean, attribute, value})
  jmx.invoke({server, mbean, operation, signature, args, noconvert})
  jmx.list("domain_regex:mbean_regex", server)
  jmx.servers()  jmx.domains(server)  jmx.mbeans(domain, server)
  jmx.info(mbean, server)  jmx.release(ref)
  jmx.bookmark(name)  jmx.bookmarks()

Omitted options are taken from the SERVER, MBEAN and ATTROP variables, which
browse mode sets as you navigate. SERVERS lists the open connections. The
functions are also available as jmx_connect, jmx_close, jmx_get, jmx_set,
jmx_invoke and jmx_list.

Give an operation's parameter types after its name to pick an overload:
jmx.invoke({operation: "setLevel String String", args: ["root", "DEBUG"]}).
With noconvert, get and invoke return a reference to the raw value instead of
a string; references can be passed back as arguments.

log.info(msg, attrs), log.getLogs(n) and log.searchLogs(text) give access
to the session log.`

// browseMode drives the browse menus.
type browseMode struct {
	m *browse.Machine
}

func (b *browseMode) display(ctx context.Context) string { return b.m.Display(ctx) }

func (b *browseMode) prompt() string { return b.m.Prompt() }

func (b *browseMode) pending() bool { return false }

func (b *browseMode) entering() string { return "Entering browse mode." }

func (b *browseMode) execute(ctx context.Context, line string) string {
	b.m.Step(ctx, line)
	return ""
}

func (b *browseMode) help() string { return b.m.Help() }
