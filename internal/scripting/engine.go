// Package scripting hosts the JavaScript shell: a goja runtime behind an
// event loop, the jmx and log globals, the navigation globals shared with
// the browse menus, and the interactive loop switching between the two.
package scripting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/dop251/goja"
	nodeconsole "github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"github.com/joeycumines/jmxsh/internal/browse"
	"github.com/joeycumines/jmxsh/internal/builtin"
	"github.com/joeycumines/jmxsh/internal/builtin/jmxmod"
	"github.com/joeycumines/jmxsh/internal/console"
	"github.com/joeycumines/jmxsh/internal/jmx"
	"github.com/joeycumines/jmxsh/internal/marshal"
	"github.com/joeycumines/jmxsh/internal/navctx"
)

// Engine owns the runtime and everything bound into it.
type Engine struct {
	rt       *Runtime
	store    *GlobalStore
	nav      *navctx.Accessor
	marshal  *marshal.Marshaller
	registry *jmx.Registry
	browser  *browse.Machine
	prompter console.Prompter
	out      io.Writer
	logs     *LogHandler
	logger   *slog.Logger

	busy atomic.Bool
	// evalCtx is only touched on the loop
	evalCtx context.Context
}

type engineConfig struct {
	out       io.Writer
	logs      *LogHandler
	logger    *slog.Logger
	bookmarks map[string]jmxmod.Bookmark
}

// EngineOption configures NewEngine.
type EngineOption func(*engineConfig)

// WithStdout sets where results, notices and console.log output go.
func WithStdout(w io.Writer) EngineOption {
	return func(c *engineConfig) { c.out = w }
}

// WithLogging sets the log buffer exposed to scripts and the logger. The
// logger should include logs among its handlers.
func WithLogging(logs *LogHandler, logger *slog.Logger) EngineOption {
	return func(c *engineConfig) { c.logs, c.logger = logs, logger }
}

// WithBookmarks sets the saved connection profiles.
func WithBookmarks(b map[string]jmxmod.Bookmark) EngineOption {
	return func(c *engineConfig) { c.bookmarks = b }
}

// NewEngine starts a runtime and binds a new registry, using dialer to open
// connections and prompter for interactive input.
func NewEngine(ctx context.Context, dialer jmx.Dialer, prompter console.Prompter, opts ...EngineOption) (*Engine, error) {
	cfg := engineConfig{out: os.Stdout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logs == nil {
		cfg.logs = NewLogHandler(0)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(cfg.logs)
	}

	modules := require.NewRegistry()
	modules.RegisterNativeModule(nodeconsole.ModuleName, nodeconsole.RequireWithPrinter(printer{cfg.out}))

	rt, err := NewRuntime(ctx, modules)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		rt:       rt,
		marshal:  marshal.New(),
		prompter: prompter,
		out:      cfg.out,
		logs:     cfg.logs,
		logger:   cfg.logger,
	}
	e.store = NewGlobalStore(rt, e.logger)
	e.nav = navctx.New(e.store)
	e.registry = jmx.NewRegistry(dialer, e.nav, e.marshal,
		jmx.WithLogger(e.logger),
		jmx.WithNotify(func(msg string) { fmt.Fprintln(e.out, msg) }),
		jmx.WithServersHook(e.store.setServers),
	)
	e.browser = browse.New(e.registry, e.nav, e.marshal, prompter, e.out, browse.WithLogger(e.logger))
	e.registry.Attach(e.browser)

	builtin.Register(modules, &jmxmod.Host{
		Registry:  e.registry,
		Prompter:  prompter,
		Bookmarks: cfg.bookmarks,
		Context:   func() context.Context { return e.evalCtx },
	})

	if err := rt.RunOnLoopSync(ctx, e.setupGlobals); err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("scripting: setup: %w", err)
	}
	return e, nil
}

// printer sends console.log and friends to the shell output.
type printer struct{ w io.Writer }

func (p printer) Log(s string)   { fmt.Fprintln(p.w, s) }
func (p printer) Warn(s string)  { fmt.Fprintln(p.w, s) }
func (p printer) Error(s string) { fmt.Fprintln(p.w, s) }

func (e *Engine) setupGlobals(vm *goja.Runtime) error {
	mod, ok := require.Require(vm, builtin.ModulePrefix+"jmx").(*goja.Object)
	if !ok {
		return errors.New("jmx module did not load")
	}
	if err := vm.Set("jmx", mod); err != nil {
		return err
	}
	for _, name := range []string{"connect", "close", "get", "set", "invoke", "list"} {
		if err := vm.Set("jmx_"+name, mod.Get(name)); err != nil {
			return err
		}
	}
	if err := vm.Set("log", e.logObject(vm)); err != nil {
		return err
	}
	return vm.Set("SERVERS", vm.NewArray())
}

// Registry returns the connection registry.
func (e *Engine) Registry() *jmx.Registry { return e.registry }

// Browser returns the browse menu state machine.
func (e *Engine) Browser() *browse.Machine { return e.browser }

// Nav returns the navigation context, stored in the script globals.
func (e *Engine) Nav() *navctx.Accessor { return e.nav }

// Marshaller returns the value marshaller.
func (e *Engine) Marshaller() *marshal.Marshaller { return e.marshal }

// Logs returns the in-memory log buffer.
func (e *Engine) Logs() *LogHandler { return e.logs }

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Runtime returns the underlying runtime.
func (e *Engine) Runtime() *Runtime { return e.rt }

// ScriptError is a failure raised by script code. Message is what the
// script would see as the error message.
type ScriptError struct {
	Message string
	Err     error
}

func (e *ScriptError) Error() string { return e.Message }

func (e *ScriptError) Unwrap() error { return e.Err }

func scriptError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return &ScriptError{Message: "interrupted", Err: err}
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		msg := ex.Value().String()
		if obj, ok := ex.Value().(*goja.Object); ok {
			if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
				msg = m.String()
			}
		}
		return &ScriptError{Message: msg, Err: err}
	}
	return &ScriptError{Message: err.Error(), Err: err}
}

// run executes a compiled script on the loop, recording ctx for remote calls
// made by the script.
func (e *Engine) run(ctx context.Context, name, source string) (result string, err error) {
	e.busy.Store(true)
	defer e.busy.Store(false)
	err = e.rt.RunOnLoopSync(ctx, func(vm *goja.Runtime) (err error) {
		e.evalCtx = ctx
		defer func() { e.evalCtx = nil }()
		defer func() {
			if r := recover(); r != nil {
				err = &ScriptError{Message: fmt.Sprintf("script panicked: %v", r)}
			}
		}()
		v, err := vm.RunScript(name, source)
		if err != nil {
			return scriptError(err)
		}
		result = display(vm, v)
		return nil
	})
	if err != nil && errors.Is(err, context.Canceled) {
		var se *ScriptError
		if !errors.As(err, &se) {
			err = &ScriptError{Message: "interrupted", Err: err}
		}
	}
	return result, err
}

// Eval runs source and returns its completion value for display, which is
// empty for undefined. Cancelling ctx interrupts the script.
func (e *Engine) Eval(ctx context.Context, source string) (string, error) {
	return e.run(ctx, "<shell>", source)
}

// EvalFile runs the script at path.
func (e *Engine) EvalFile(ctx context.Context, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("scripting: %w", err)
	}
	e.logger.Debug("running script", slog.String("path", path))
	_, err = e.run(ctx, path, stripHashbang(string(src)))
	return err
}

// stripHashbang blanks a leading "#!" line, keeping line numbers intact.
func stripHashbang(src string) string {
	if !strings.HasPrefix(src, "#!") {
		return src
	}
	if i := strings.IndexByte(src, '\n'); i >= 0 {
		return src[i:]
	}
	return ""
}

// display renders a completion value the way the shell prints it.
func display(vm *goja.Runtime, v goja.Value) string {
	switch {
	case v == nil || goja.IsUndefined(v):
		return ""
	case goja.IsNull(v):
		return "null"
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.String()
	}
	if _, isFn := goja.AssertFunction(obj); isFn {
		return v.String()
	}
	stringify, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("stringify"))
	if !ok {
		return v.String()
	}
	s, err := stringify(goja.Undefined(), v)
	if err != nil || goja.IsUndefined(s) {
		return v.String()
	}
	return s.String()
}

// SetArgs sets argv0, argv and argc for a script run.
func (e *Engine) SetArgs(ctx context.Context, argv0 string, args []string) error {
	return e.rt.RunOnLoopSync(ctx, func(vm *goja.Runtime) error {
		return errors.Join(
			vm.Set("argv0", argv0),
			vm.Set("argv", vm.NewArray(toValues(vm, args)...)),
			vm.Set("argc", len(args)),
		)
	})
}

// Close closes every session and stops the runtime.
func (e *Engine) Close(ctx context.Context) error {
	err := e.registry.CloseAll(ctx)
	return errors.Join(err, e.rt.Close())
}
