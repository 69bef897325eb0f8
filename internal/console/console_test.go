package console

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joeycumines/go-prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipedPrompt(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(WithInput(strings.NewReader("first\r\nsecond\nlast")), WithOutput(&out))
	require.False(t, term.Interactive())

	for _, want := range []string{"first", "second", "last"} {
		got, err := term.Prompt("% ")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := term.Prompt("% ")
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "% % % % ", out.String())
}

func TestPipedPromptMasked(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(WithInput(strings.NewReader("secret\n")), WithOutput(&out))
	got, err := term.PromptMasked("Password: ", '*')
	require.NoError(t, err)
	assert.Equal(t, "secret", got)
	assert.Equal(t, "Password: ", out.String())
}

func TestCurrentWord(t *testing.T) {
	for in, want := range map[string]string{
		"":                 "",
		"jmx":              "jmx",
		"x = jmx.co":       "jmx.co",
		"jmx.get({mbean: ": "",
		"foo(bar_1":        "bar_1",
		"a $b":             "$b",
	} {
		assert.Equal(t, want, CurrentWord(in), in)
	}
}

func TestHistoryPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "history")
	h, err := OpenHistory(path, 3)
	require.NoError(t, err)
	assert.Empty(t, h.Entries())

	for _, line := range []string{"one", "two", "three\nfour", "five"} {
		require.NoError(t, h.Add(line))
	}
	assert.Equal(t, []string{"two", "three four", "five"}, h.Entries())

	h2, err := OpenHistory(path, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "three four", "five"}, h2.Entries())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree four\nfive\n", string(content))
}

func TestHistoryNotWritable(t *testing.T) {
	dir := t.TempDir()
	// a directory cannot be opened for append
	_, err := OpenHistory(dir, 0)
	assert.Error(t, err)
}

func TestAddHistoryDeduplicatesLast(t *testing.T) {
	h, err := OpenHistory(filepath.Join(t.TempDir(), "h"), 0)
	require.NoError(t, err)
	term := NewTerminal(WithInput(strings.NewReader("")), WithOutput(io.Discard), WithHistory(h))

	term.AddHistory("a")
	term.AddHistory("a")
	term.AddHistory("b")
	term.AddHistory("a")
	term.AddHistory("")
	assert.Equal(t, []string{"a", "b", "a"}, h.Entries())
}

func TestColorsApply(t *testing.T) {
	c := DefaultColors()
	unknown := c.Apply(map[string]string{"input": "Red", "prefix": "", "bogus": "blue"})
	assert.Equal(t, prompt.Red, c.InputText)
	assert.Equal(t, prompt.Cyan, c.PrefixText)
	assert.Equal(t, []string{"bogus"}, unknown)
	assert.Equal(t, prompt.DefaultColor, ParseColor("nope"))
}

func TestScripted(t *testing.T) {
	s := NewScripted("a")
	got, err := s.Prompt("one: ")
	require.NoError(t, err)
	assert.Equal(t, "a", got)
	_, err = s.PromptMasked("two: ", '*')
	assert.ErrorIs(t, err, io.EOF)
	s.Push("b")
	got, err = s.Prompt("three: ")
	require.NoError(t, err)
	assert.Equal(t, "b", got)
	assert.Equal(t, []string{"one: ", "two: ", "three: "}, s.Prompts())
}
