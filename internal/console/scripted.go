package console

import (
	"io"
	"sync"
)

// Scripted is a Prompter that answers from a fixed list of lines and then
// reports io.EOF. Prompts are recorded. It is meant for tests and for
// feeding canned answers to non-interactive runs.
type Scripted struct {
	mu      sync.Mutex
	lines   []string
	prompts []string
}

// NewScripted returns a Scripted answering with lines in order.
func NewScripted(lines ...string) *Scripted {
	return &Scripted{lines: lines}
}

func (s *Scripted) next(text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, text)
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

// Prompt implements Prompter.
func (s *Scripted) Prompt(text string) (string, error) { return s.next(text) }

// PromptMasked implements Prompter.
func (s *Scripted) PromptMasked(text string, mask rune) (string, error) { return s.next(text) }

// Push appends more answers.
func (s *Scripted) Push(lines ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, lines...)
}

// Prompts returns the prompt texts seen so far.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}
