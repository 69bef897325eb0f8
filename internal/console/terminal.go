// Package console reads lines from the user: through go-prompt when attached
// to a terminal, or line by line from any other reader.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/joeycumines/go-prompt"
	istrings "github.com/joeycumines/go-prompt/strings"
	"golang.org/x/term"
)

// Prompter reads a line of input after printing text. Both methods return
// io.EOF once input is exhausted.
type Prompter interface {
	Prompt(text string) (string, error)
	PromptMasked(text string, mask rune) (string, error)
}

// CompleteFunc returns completions for the word ending at the cursor.
type CompleteFunc func(word string) []prompt.Suggest

// Terminal is the interactive Prompter.
type Terminal struct {
	in          io.Reader
	out         io.Writer
	fd          int
	interactive bool
	reader      *bufio.Reader

	history     *History
	colors      Colors
	complete    CompleteFunc
	logger      *slog.Logger
	lastHistory string
}

// Option configures a Terminal.
type Option func(*Terminal)

// WithInput reads from r instead of stdin. Input is only treated as
// interactive if r is a terminal.
func WithInput(r io.Reader) Option {
	return func(t *Terminal) { t.in = r }
}

// WithOutput writes prompts to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(t *Terminal) { t.out = w }
}

// WithHistory enables persistent history.
func WithHistory(h *History) Option {
	return func(t *Terminal) { t.history = h }
}

// WithColors sets the prompt colors.
func WithColors(c Colors) Option {
	return func(t *Terminal) { t.colors = c }
}

// WithCompleter sets the completion source.
func WithCompleter(fn CompleteFunc) Option {
	return func(t *Terminal) { t.complete = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Terminal) { t.logger = logger }
}

// NewTerminal returns a Terminal over stdin and stdout unless overridden.
func NewTerminal(opts ...Option) *Terminal {
	t := &Terminal{
		in:     os.Stdin,
		out:    os.Stdout,
		fd:     -1,
		colors: DefaultColors(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if f, ok := t.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		t.fd = int(f.Fd())
		t.interactive = true
	}
	t.reader = bufio.NewReader(t.in)
	return t
}

// Interactive reports whether input comes from a terminal.
func (t *Terminal) Interactive() bool { return t.interactive }

// Out returns the output writer.
func (t *Terminal) Out() io.Writer { return t.out }

// SetHistory enables persistent history, replacing any set before.
func (t *Terminal) SetHistory(h *History) {
	t.history = h
	t.lastHistory = ""
}

// SetCompleter replaces the completion source.
func (t *Terminal) SetCompleter(fn CompleteFunc) { t.complete = fn }

// Prompt implements Prompter.
func (t *Terminal) Prompt(text string) (string, error) {
	if !t.interactive {
		fmt.Fprint(t.out, text)
		return t.readLine()
	}

	var (
		line string
		got  bool
	)
	p := prompt.New(
		func(in string) {
			line, got = in, true
		},
		t.options(text)...,
	)
	p.Run()
	if !got {
		return "", io.EOF
	}
	return line, nil
}

func (t *Terminal) options(prefix string) []prompt.Option {
	c := t.colors
	opts := []prompt.Option{
		prompt.WithPrefix(prefix),
		prompt.WithInputTextColor(c.InputText),
		prompt.WithPrefixTextColor(c.PrefixText),
		prompt.WithSuggestionTextColor(c.SuggestionText),
		prompt.WithSuggestionBGColor(c.SuggestionBG),
		prompt.WithSelectedSuggestionTextColor(c.SelectedSuggestionText),
		prompt.WithSelectedSuggestionBGColor(c.SelectedSuggestionBG),
		prompt.WithDescriptionTextColor(c.DescriptionText),
		prompt.WithDescriptionBGColor(c.DescriptionBG),
		// one line per Run
		prompt.WithExitChecker(func(in string, breakline bool) bool { return breakline }),
	}
	if t.history != nil {
		if entries := t.history.Entries(); len(entries) > 0 {
			opts = append(opts, prompt.WithHistory(entries))
		}
	}
	if t.complete != nil {
		opts = append(opts, prompt.WithCompleter(t.completer))
	}
	return opts
}

func (t *Terminal) completer(d prompt.Document) ([]prompt.Suggest, istrings.RuneNumber, istrings.RuneNumber) {
	before := d.TextBeforeCursor()
	word := CurrentWord(before)
	end := utf8.RuneCountInString(before)
	start := end - utf8.RuneCountInString(word)
	return t.complete(word), istrings.RuneNumber(start), istrings.RuneNumber(end)
}

// CurrentWord returns the trailing identifier-like run of s, including dots,
// so "x = jmx.co" yields "jmx.co".
func CurrentWord(s string) string {
	i := len(s)
	for i > 0 {
		r, size := utf8.DecodeLastRuneInString(s[:i])
		if !isWordRune(r) {
			break
		}
		i -= size
	}
	return s[i:]
}

func isWordRune(r rune) bool {
	return r == '_' || r == '$' || r == '.' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func (t *Terminal) readLine() (string, error) {
	line, err := t.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// PromptMasked implements Prompter. On a terminal each typed character is
// echoed as mask, or not at all when mask is zero.
func (t *Terminal) PromptMasked(text string, mask rune) (string, error) {
	fmt.Fprint(t.out, text)
	if !t.interactive {
		return t.readLine()
	}

	state, err := term.MakeRaw(t.fd)
	if err != nil {
		return "", fmt.Errorf("console: raw mode: %w", err)
	}
	defer func() {
		if err := term.Restore(t.fd, state); err != nil {
			t.logger.Error("failed to restore terminal", slog.Any("error", err))
		}
	}()

	// read unbuffered so nothing typed after the newline is lost to go-prompt
	var (
		buf []byte
		b   [1]byte
	)
	for {
		if _, err := io.ReadFull(t.in, b[:]); err != nil {
			fmt.Fprint(t.out, "\r\n")
			return "", err
		}
		switch c := b[0]; {
		case c == '\r' || c == '\n':
			fmt.Fprint(t.out, "\r\n")
			return string(buf), nil
		case c == 3: // ctrl-c
			fmt.Fprint(t.out, "^C\r\n")
			return "", ErrInterrupted
		case c == 4: // ctrl-d
			if len(buf) == 0 {
				fmt.Fprint(t.out, "\r\n")
				return "", io.EOF
			}
		case c == 8 || c == 127:
			if len(buf) > 0 {
				_, size := utf8.DecodeLastRune(buf)
				buf = buf[:len(buf)-size]
				if mask != 0 {
					fmt.Fprint(t.out, "\b \b")
				}
			}
		case c < ' ':
		default:
			buf = append(buf, c)
			// echo once per rune, on its leading byte
			if mask != 0 && utf8.RuneStart(c) {
				fmt.Fprint(t.out, string(mask))
			}
		}
	}
}

// ErrInterrupted is returned by PromptMasked on ctrl-c.
var ErrInterrupted = errors.New("console: interrupted")

// AddHistory records line unless it repeats the previous entry.
func (t *Terminal) AddHistory(line string) {
	if t.history == nil || line == "" || line == t.lastHistory {
		return
	}
	t.lastHistory = line
	if err := t.history.Add(line); err != nil {
		t.logger.Warn("failed to save history", slog.Any("error", err))
	}
}
