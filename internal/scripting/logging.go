package scripting

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// DefaultLogBufferSize is the number of entries kept in memory.
const DefaultLogBufferSize = 1000

// LogEntry is one buffered log record.
type LogEntry struct {
	Time    time.Time         `json:"time"`
	Level   slog.Level        `json:"level"`
	Message string            `json:"message"`
	Attrs   map[string]string `json:"attrs"`
}

// logRing is the storage shared by a LogHandler and its derived handlers.
type logRing struct {
	mu      sync.RWMutex
	entries []LogEntry
	max     int
}

// LogHandler keeps the most recent records in memory, so scripts can read
// them back through log.getLogs and log.searchLogs. Every level is recorded.
type LogHandler struct {
	ring   *logRing
	attrs  []slog.Attr
	groups []string
}

// NewLogHandler returns a handler keeping at most maxEntries records.
func NewLogHandler(maxEntries int) *LogHandler {
	if maxEntries <= 0 {
		maxEntries = DefaultLogBufferSize
	}
	return &LogHandler{ring: &logRing{max: maxEntries}}
}

// Enabled implements slog.Handler.
func (h *LogHandler) Enabled(context.Context, slog.Level) bool { return true }

// Handle implements slog.Handler.
func (h *LogHandler) Handle(_ context.Context, record slog.Record) error {
	entry := LogEntry{
		Time:    record.Time,
		Level:   record.Level,
		Message: record.Message,
		Attrs:   make(map[string]string, len(h.attrs)+record.NumAttrs()),
	}
	prefix := strings.Join(h.groups, ".")
	for _, a := range h.attrs {
		flattenAttr(entry.Attrs, "", a)
	}
	record.Attrs(func(a slog.Attr) bool {
		flattenAttr(entry.Attrs, prefix, a)
		return true
	})

	r := h.ring
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	if over := len(r.entries) - r.max; over > 0 {
		r.entries = append(r.entries[:0:0], r.entries[over:]...)
	}
	return nil
}

func flattenAttr(dst map[string]string, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	} else if key == "" {
		key = prefix
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			flattenAttr(dst, key, ga)
		}
		return
	}
	dst[key] = a.Value.String()
}

// WithAttrs implements slog.Handler.
func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	prefix := strings.Join(h.groups, ".")
	h2 := *h
	h2.attrs = slices.Clip(h.attrs)
	for _, a := range attrs {
		if prefix != "" {
			a.Key = prefix + "." + a.Key
		}
		h2.attrs = append(h2.attrs, a)
	}
	return &h2
}

// WithGroup implements slog.Handler.
func (h *LogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.groups = append(slices.Clip(h.groups), name)
	return &h2
}

// GetLogs returns a copy of every buffered entry, oldest first.
func (h *LogHandler) GetLogs() []LogEntry {
	return h.GetRecentLogs(0)
}

// GetRecentLogs returns the newest count entries, or all of them when count
// is not positive.
func (h *LogHandler) GetRecentLogs(count int) []LogEntry {
	r := h.ring
	r.mu.RLock()
	defer r.mu.RUnlock()
	if count <= 0 || count > len(r.entries) {
		count = len(r.entries)
	}
	return append([]LogEntry(nil), r.entries[len(r.entries)-count:]...)
}

// SearchLogs returns the entries whose message, attribute keys or attribute
// values contain query, ignoring case.
func (h *LogHandler) SearchLogs(query string) []LogEntry {
	query = strings.ToLower(query)
	r := h.ring
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matches []LogEntry
	for _, e := range r.entries {
		if entryContains(e, query) {
			matches = append(matches, e)
		}
	}
	return matches
}

func entryContains(e LogEntry, query string) bool {
	if strings.Contains(strings.ToLower(e.Message), query) {
		return true
	}
	for k, v := range e.Attrs {
		if strings.Contains(strings.ToLower(k), query) || strings.Contains(strings.ToLower(v), query) {
			return true
		}
	}
	return false
}

// ClearLogs drops every buffered entry.
func (h *LogHandler) ClearLogs() {
	r := h.ring
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

// fanoutHandler sends each record to every handler that accepts its level.
type fanoutHandler []slog.Handler

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var first error
	for _, h := range f {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// NewLogger returns a logger writing to buf and, when file is not nil, to
// file as JSON lines at or above level.
func NewLogger(buf *LogHandler, file io.Writer, level slog.Level) *slog.Logger {
	if file == nil {
		return slog.New(buf)
	}
	jsonHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(fanoutHandler{buf, jsonHandler})
}

// ParseLogLevel parses debug, info, warn or error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", s)
	}
}
