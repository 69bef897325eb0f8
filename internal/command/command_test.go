package command

import (
	"bytes"
	"context"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joeycumines/jmxsh/internal/config"
	"github.com/joeycumines/jmxsh/internal/console"
	"github.com/joeycumines/jmxsh/internal/jmx"
	"github.com/joeycumines/jmxsh/internal/jmx/jmxtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const serverURL = "service:jmx:rmi:///jndi/rmi://localhost:9999/jmxrmi"

type recordingCommand struct {
	*BaseCommand
	flagValue string
	args      []string
}

func (c *recordingCommand) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.flagValue, "x", "", "a flag")
}

func (c *recordingCommand) Execute(_ context.Context, args []string, stdout, _ io.Writer) error {
	c.args = args
	_, _ = io.WriteString(stdout, "ran "+c.Name())
	return nil
}

func newTestRegistry() (*Registry, *recordingCommand) {
	r := NewRegistry()
	def := &recordingCommand{BaseCommand: NewBaseCommand("shell", "the shell", "shell [args]")}
	r.SetDefault(def)
	r.Register(NewHelpCommand(r))
	r.Register(NewVersionCommand("1.2", "2026-10-19"))
	return r, def
}

func TestRegistryDispatch(t *testing.T) {
	r, def := newTestRegistry()
	var out, errOut bytes.Buffer

	require.NoError(t, r.Run(context.Background(), []string{"-x", "v", "script.js", "-y"}, &out, &errOut))
	assert.Equal(t, "v", def.flagValue)
	assert.Equal(t, []string{"script.js", "-y"}, def.args)

	require.NoError(t, r.Run(context.Background(), []string{"shell", "a"}, &out, &errOut))
	assert.Equal(t, []string{"a"}, def.args)

	require.NoError(t, r.Run(context.Background(), nil, &out, &errOut))
	assert.Empty(t, def.args)

	out.Reset()
	require.NoError(t, r.Run(context.Background(), []string{"-v"}, &out, &errOut))
	assert.Equal(t, "jmxsh v1.2, 2026-10-19\n", out.String())

	out.Reset()
	require.NoError(t, r.Run(context.Background(), []string{"-?"}, &out, &errOut))
	assert.Contains(t, out.String(), "Commands:")
	assert.Contains(t, out.String(), "  version")

	err := r.Run(context.Background(), []string{"-z"}, &out, &errOut)
	assert.Equal(t, 2, ExitCode(err))
	assert.Contains(t, errOut.String(), "flag provided but not defined: -z")
}

func TestRegistryWithoutDefault(t *testing.T) {
	r := NewRegistry()
	var errOut bytes.Buffer
	err := r.Run(context.Background(), []string{"nope"}, io.Discard, &errOut)
	assert.Equal(t, 2, ExitCode(err))
	assert.Equal(t, "Unknown command: nope\n", errOut.String())

	_, err = r.Get("nope")
	assert.Error(t, err)
}

func TestHelpCommandForCommand(t *testing.T) {
	r, _ := newTestRegistry()
	var out, errOut bytes.Buffer
	require.NoError(t, r.Run(context.Background(), []string{"help", "shell"}, &out, &errOut))
	assert.Contains(t, out.String(), "Usage: shell [args]")
	assert.Contains(t, out.String(), "-x string")

	err := r.Run(context.Background(), []string{"help", "missing"}, &out, &errOut)
	assert.Equal(t, 2, ExitCode(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(assert.AnError))
	assert.Equal(t, 3, ExitCode(&ExitError{Code: 3}))
}

type shellFixture struct {
	cmd    *ShellCommand
	server *jmxtest.Server
	dialer *jmxtest.Dialer
	input  *console.Scripted
	out    bytes.Buffer
	errOut bytes.Buffer
}

func newShellFixture(t *testing.T, lines ...string) *shellFixture {
	t.Helper()
	f := &shellFixture{
		server: jmxtest.NewSampleServer(),
		dialer: jmxtest.NewDialer(),
		input:  console.NewScripted(lines...),
	}
	f.dialer.Add(serverURL, f.server)
	f.cmd = NewShellCommand(config.NewConfig(), "1.2", "2026-10-19")
	f.cmd.dialer = f.dialer
	f.cmd.input = f.input
	f.cmd.ctxFactory = func() (context.Context, context.CancelFunc) {
		return context.WithCancel(context.Background())
	}
	f.cmd.exit = func(code int) { t.Errorf("unexpected exit %d", code) }
	return f
}

func (f *shellFixture) run(t *testing.T, args ...string) error {
	t.Helper()
	fs := flag.NewFlagSet("shell", flag.ContinueOnError)
	f.cmd.SetupFlags(fs)
	require.NoError(t, fs.Parse(args))
	return f.cmd.Execute(context.Background(), fs.Args(), &f.out, &f.errOut)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestShellConnectFromFlags(t *testing.T) {
	f := newShellFixture(t,
		"pw",
		"SERVER",
		"jmx.get({mbean: 'jmxsh:type=Sample', attribute: 'Name'})",
	)
	require.NoError(t, f.run(t, "-h", "localhost", "-p", "9999", "-U", "admin", "-n"))

	assert.Equal(t, &jmx.Credentials{User: "admin", Password: "pw"}, f.dialer.LastCredentials(serverURL))
	assert.Equal(t, []string{"Password: ", "% ", "% ", "% "}, f.input.Prompts())

	out := f.out.String()
	assert.Contains(t, out, "Connected to "+serverURL+".\n")
	assert.Contains(t, out, "jmxsh v1.2, 2026-10-19\n\nType 'help' for help.\n")
	assert.Contains(t, out, "Starting up in shell mode.\n")
	assert.Contains(t, out, serverURL+"\n")
	assert.Contains(t, out, "sample\n")
	assert.Empty(t, f.errOut.String())
}

func TestShellConnectByServerURL(t *testing.T) {
	f := newShellFixture(t)
	require.NoError(t, f.run(t, "-server", serverURL, "-b", "-n"))
	assert.Nil(t, f.dialer.LastCredentials(serverURL))
	assert.Contains(t, f.out.String(), "Starting up in browser mode.\n")
	assert.Contains(t, f.out.String(), " Available Domains:")
}

func TestShellConnectFailure(t *testing.T) {
	f := newShellFixture(t)
	err := f.run(t, "-h", "otherhost", "-p", "1", "-n")
	assert.Equal(t, 1, ExitCode(err))
	assert.True(t, strings.HasPrefix(f.errOut.String(), "Failed to connect to otherhost, port 1: "), f.errOut.String())
	assert.NotContains(t, f.out.String(), "Starting up")
}

func TestShellScript(t *testing.T) {
	f := newShellFixture(t)
	lib := writeFile(t, "lib.js", "function sampleName() { return jmx.get({mbean: 'jmxsh:type=Sample', attribute: 'Name'}); }\n")
	script := writeFile(t, "run.js", "jmx.connect(argv[0]);\nconsole.log(argc + ' ' + sampleName());\n")

	require.NoError(t, f.run(t, "-i", lib, script, serverURL))
	out := f.out.String()
	assert.Contains(t, out, "1 sample\n")
	assert.NotContains(t, out, "Starting up")
	assert.Empty(t, f.input.Prompts())
	assert.Equal(t, 1, f.dialer.Dials(serverURL))
}

func TestShellScriptThenInteractive(t *testing.T) {
	f := newShellFixture(t, "answer")
	script := writeFile(t, "run.js", "var answer = 42;\n")
	require.NoError(t, f.run(t, "-I", "-n", script))
	assert.Contains(t, f.out.String(), "Starting up in shell mode.\n")
	assert.Contains(t, f.out.String(), "42\n")
}

func TestShellScriptError(t *testing.T) {
	f := newShellFixture(t)
	script := writeFile(t, "bad.js", "throw new Error('boom');\n")
	err := f.run(t, script)
	assert.Equal(t, 1, ExitCode(err))
	assert.Equal(t, "Error: boom\n", f.errOut.String())

	f = newShellFixture(t)
	err = f.run(t, "-i", filepath.Join(t.TempDir(), "missing.js"))
	assert.Equal(t, 1, ExitCode(err))
	assert.Contains(t, f.errOut.String(), "Error: ")
}

func TestShellHistory(t *testing.T) {
	blocker := writeFile(t, "file", "")
	f := newShellFixture(t)
	path := filepath.Join(blocker, "history")
	require.NoError(t, f.run(t, "-H", path))
	assert.Contains(t, f.out.String(), "History file "+path+" not writable, command-line history disabled.\n")

	f = newShellFixture(t)
	path = filepath.Join(t.TempDir(), "history")
	require.NoError(t, f.run(t, "-historyfile", path))
	assert.NotContains(t, f.out.String(), "not writable")
	assert.FileExists(t, path)
}

func TestShellLogFile(t *testing.T) {
	f := newShellFixture(t)
	logPath := filepath.Join(t.TempDir(), "logs", "jmxsh.log")
	script := writeFile(t, "log.js", "log.debug('from script', {n: 1});\n")
	require.NoError(t, f.run(t, "-log-file", logPath, "-d", script))

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"msg":"from script"`)
	assert.Contains(t, string(content), `"level":"DEBUG"`)
}

func TestShellBadLogLevel(t *testing.T) {
	f := newShellFixture(t)
	err := f.run(t, "-log-level", "loud")
	assert.Equal(t, 1, ExitCode(err))
	assert.Contains(t, f.errOut.String(), "Unable to open logfile: invalid log level: loud")
}

func TestShellBookmarksFromConfig(t *testing.T) {
	f := newShellFixture(t)
	f.cmd.config.Bookmarks = []config.Bookmark{{Name: "local", Host: "localhost", Port: 9999, User: "admin", Password: "secret"}}
	script := writeFile(t, "bm.js", "console.log(jmx.bookmark('local'));\n")
	require.NoError(t, f.run(t, script))
	assert.Contains(t, f.out.String(), serverURL+"\n")
	assert.Equal(t, &jmx.Credentials{User: "admin", Password: "secret"}, f.dialer.LastCredentials(serverURL))
}

func TestConfigCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := config.NewConfig()
	cfg.Bookmarks = []config.Bookmark{{Name: "prod", URL: serverURL, Password: "hunter2"}}
	cmd := NewConfigCommand(cfg, path)
	var out, errOut bytes.Buffer
	ctx := context.Background()

	require.NoError(t, cmd.Execute(ctx, []string{"log.level"}, &out, &errOut))
	assert.Equal(t, "log.level: info\n", out.String())

	out.Reset()
	require.NoError(t, cmd.Execute(ctx, []string{"show"}, &out, &errOut))
	assert.Contains(t, out.String(), "[jolokia]")
	assert.Contains(t, out.String(), `timeout = "30s"`)
	assert.Contains(t, out.String(), "[[bookmarks]]")
	assert.NotContains(t, out.String(), "hunter2")
	assert.Equal(t, "hunter2", cfg.Bookmarks[0].Password)

	out.Reset()
	require.NoError(t, cmd.Execute(ctx, []string{"log.level", "debug"}, &out, &errOut))
	assert.Equal(t, "Set configuration: log.level = debug\n", out.String())
	saved, err := config.LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", saved.Log.Level)

	out.Reset()
	require.NoError(t, cmd.Execute(ctx, []string{"path"}, &out, &errOut))
	assert.Equal(t, path+"\n", out.String())

	out.Reset()
	require.NoError(t, cmd.Execute(ctx, []string{"validate"}, &out, &errOut))
	assert.Equal(t, "Configuration is valid.\n", out.String())

	cfg.Warnings = append(cfg.Warnings, "unknown configuration key: x")
	out.Reset()
	require.NoError(t, cmd.Execute(ctx, []string{"validate"}, &out, &errOut))
	assert.Contains(t, out.String(), "Configuration has 1 issue(s):\n  - unknown configuration key: x\n")

	err = cmd.Execute(ctx, []string{"missing.key"}, &out, &errOut)
	assert.Equal(t, 1, ExitCode(err))
	assert.Contains(t, errOut.String(), "Configuration key 'missing.key' not found")

	assert.Error(t, cmd.Execute(ctx, []string{"missing.key", "1"}, &out, &errOut))
	err = cmd.Execute(ctx, []string{"a", "b", "c"}, &out, &errOut)
	assert.Equal(t, 2, ExitCode(err))
}
