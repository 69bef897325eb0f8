package console

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultHistorySize bounds the entries loaded and kept.
const DefaultHistorySize = 1000

// History is a line history persisted to a file, one entry per line.
type History struct {
	mu      sync.Mutex
	path    string
	size    int
	entries []string
}

// OpenHistory loads history from path, keeping the last size entries. A
// missing file is not an error. The file is created, and must be writable.
func OpenHistory(path string, size int) (*History, error) {
	if size <= 0 {
		size = DefaultHistorySize
	}
	h := &History{path: path, size: size}

	content, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("history: read %s: %w", path, err)
	}
	for _, line := range strings.Split(string(content), "\n") {
		if line = strings.TrimRight(line, "\r"); strings.TrimSpace(line) != "" {
			h.entries = append(h.entries, line)
		}
	}
	h.trim()

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: mkdir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("history: %s not writable: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return h, nil
}

func (h *History) trim() {
	if n := len(h.entries); n > h.size {
		h.entries = append([]string(nil), h.entries[n-h.size:]...)
	}
}

// Entries returns a copy of the history, oldest first.
func (h *History) Entries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.entries...)
}

// Add appends line to memory and to the file. Newlines in multi-line entries
// become spaces so each entry occupies one line of the file.
func (h *History) Add(line string) error {
	line = strings.TrimSpace(strings.ReplaceAll(line, "\n", " "))
	if line == "" {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, line)
	h.trim()

	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("history: %w", err)
	}
	return f.Close()
}

// Path returns the history file.
func (h *History) Path() string { return h.path }
