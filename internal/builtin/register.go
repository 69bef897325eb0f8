// Package builtin registers the native modules available to scripts through
// require().
package builtin

import (
	"github.com/dop251/goja_nodejs/require"
	"github.com/joeycumines/jmxsh/internal/builtin/jmxmod"
)

// ModulePrefix namespaces the native modules.
const ModulePrefix = "jmxsh:"

// Register adds the native modules to registry. host backs the jmx module.
func Register(registry *require.Registry, host *jmxmod.Host) {
	registry.RegisterNativeModule(ModulePrefix+"jmx", jmxmod.Require(host))
}
