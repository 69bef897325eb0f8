package scripting

import (
	"context"
	"log/slog"

	"github.com/dop251/goja"
	"github.com/joeycumines/jmxsh/internal/navctx"
)

// GlobalStore keeps navigation variables as JavaScript globals, so scripts
// see and change the same SERVER, DOMAIN, MBEAN and ATTROP the menus use.
type GlobalStore struct {
	rt     *Runtime
	logger *slog.Logger
}

var _ navctx.Store = (*GlobalStore)(nil)

// NewGlobalStore returns a store over the globals of rt.
func NewGlobalStore(rt *Runtime, logger *slog.Logger) *GlobalStore {
	return &GlobalStore{rt: rt, logger: logger}
}

func (s *GlobalStore) do(op, name string, fn func(*goja.Runtime) error) {
	if err := s.rt.TryRunOnLoopSync(context.Background(), fn); err != nil {
		s.logger.Warn("global variable access failed", slog.String("op", op), slog.String("name", name), slog.Any("error", err))
	}
}

// Get returns the global's string value. Undefined and null are unset.
func (s *GlobalStore) Get(name string) (value string, ok bool) {
	s.do("get", name, func(vm *goja.Runtime) error {
		v := vm.Get(name)
		if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
			return nil
		}
		value, ok = v.String(), true
		return nil
	})
	return value, ok
}

// Set assigns a string global.
func (s *GlobalStore) Set(name, value string) {
	s.do("set", name, func(vm *goja.Runtime) error {
		return vm.Set(name, value)
	})
}

// Unset deletes the global. Globals declared with var cannot be deleted and
// are set to undefined instead.
func (s *GlobalStore) Unset(name string) {
	s.do("unset", name, func(vm *goja.Runtime) error {
		global := vm.GlobalObject()
		if err := global.Delete(name); err == nil && global.Get(name) == nil {
			return nil
		}
		return global.Set(name, goja.Undefined())
	})
}

// setServers mirrors the connected server list into the SERVERS global.
func (s *GlobalStore) setServers(servers []string) {
	s.do("set", "SERVERS", func(vm *goja.Runtime) error {
		return vm.Set("SERVERS", vm.NewArray(toValues(vm, servers)...))
	})
}

func toValues[T any](vm *goja.Runtime, items []T) []any {
	out := make([]any, len(items))
	for i, v := range items {
		out[i] = vm.ToValue(v)
	}
	return out
}
