package scripting

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dop251/goja"
)

// logObject builds the log global:
//
//	log.info("connected", {server: SERVER});
//	log.printf("%d beans", n);
//	log.getLogs(10); log.searchLogs("refused"); log.clearLogs();
func (e *Engine) logObject(vm *goja.Runtime) *goja.Object {
	obj := vm.NewObject()
	level := func(l slog.Level) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			e.logger.LogAttrs(context.Background(), l, call.Argument(0).String(), jsAttrs(vm, call.Argument(1))...)
			return goja.Undefined()
		}
	}
	_ = obj.Set("debug", level(slog.LevelDebug))
	_ = obj.Set("info", level(slog.LevelInfo))
	_ = obj.Set("warn", level(slog.LevelWarn))
	_ = obj.Set("error", level(slog.LevelError))
	_ = obj.Set("printf", func(format string, args ...any) {
		e.logger.Info(fmt.Sprintf(format, args...))
	})
	_ = obj.Set("getLogs", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(entriesToJS(e.logs.GetRecentLogs(int(call.Argument(0).ToInteger()))))
	})
	_ = obj.Set("searchLogs", func(query string) []map[string]any {
		return entriesToJS(e.logs.SearchLogs(query))
	})
	_ = obj.Set("clearLogs", e.logs.ClearLogs)
	return obj
}

// jsAttrs converts a plain object into sorted log attributes.
func jsAttrs(vm *goja.Runtime, v goja.Value) []slog.Attr {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	obj := v.ToObject(vm)
	keys := obj.Keys()
	slices.Sort(keys)
	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, obj.Get(k).Export()))
	}
	return attrs
}

func entriesToJS(entries []LogEntry) []map[string]any {
	out := make([]map[string]any, len(entries))
	for i, e := range entries {
		attrs := make(map[string]any, len(e.Attrs))
		for k, v := range e.Attrs {
			attrs[k] = v
		}
		out[i] = map[string]any{
			"time":    e.Time.Format("2006-01-02T15:04:05.000Z07:00"),
			"level":   e.Level.String(),
			"message": e.Message,
			"attrs":   attrs,
		}
	}
	return out
}
