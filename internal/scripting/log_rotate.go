package scripting

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// RotatingFileWriter appends to a log file, moving it aside once it would
// grow past a size limit. Backups are named <path>.1 (newest) through
// <path>.<keep>; anything older is removed. Safe for concurrent use.
type RotatingFileWriter struct {
	mu    sync.Mutex
	path  string
	limit int64
	keep  int
	size  int64
	file  *os.File
}

var _ io.WriteCloser = (*RotatingFileWriter)(nil)

// NewRotatingFileWriter opens path for append, creating it and its parent
// directory if needed. maxSizeMB is raised to at least 1; maxFiles below zero
// is treated as zero, meaning the file is truncated on rotation.
func NewRotatingFileWriter(path string, maxSizeMB, maxFiles int) (*RotatingFileWriter, error) {
	return newRotatingFileWriter(path, int64(max(maxSizeMB, 1))<<20, max(maxFiles, 0))
}

func newRotatingFileWriter(path string, limit int64, keep int) (*RotatingFileWriter, error) {
	w := &RotatingFileWriter{path: path, limit: limit, keep: keep}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("log file: mkdir %s: %w", dir, err)
		}
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingFileWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("log file: open %s: %w", w.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("log file: stat %s: %w", w.path, err)
	}
	w.file, w.size = f, info.Size()
	return nil
}

// Write appends p, rotating first if p would push a non-empty file over the
// limit. A single write is never split between files.
func (w *RotatingFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.size > 0 && w.size+int64(len(p)) > w.limit {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("log file: rotate: %w", err)
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the current file.
func (w *RotatingFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingFileWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	w.file = nil

	w.prune()
	for n := w.keep - 1; n >= 1; n-- {
		if err := os.Rename(w.backup(n), w.backup(n+1)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	var err error
	if w.keep > 0 {
		err = os.Rename(w.path, w.backup(1))
	} else {
		err = os.Remove(w.path)
	}
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return w.open()
}

// prune removes backups numbered keep and above, since the shift would
// otherwise push them past the limit.
func (w *RotatingFileWriter) prune() {
	matches, _ := filepath.Glob(w.path + ".*")
	for _, m := range matches {
		n, err := strconv.Atoi(strings.TrimPrefix(m, w.path+"."))
		if err == nil && n >= 1 && n >= w.keep {
			_ = os.Remove(m)
		}
	}
}

func (w *RotatingFileWriter) backup(n int) string {
	return w.path + "." + strconv.Itoa(n)
}
