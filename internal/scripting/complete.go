package scripting

import (
	"context"
	"slices"
	"strings"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-prompt"
)

// IsComplete reports whether source can be run as is. Source that only fails
// to parse because it ends early (an open brace, bracket or template) is
// incomplete, and the shell keeps reading lines.
func IsComplete(source string) bool {
	_, err := goja.Compile("", source, false)
	return err == nil || !strings.Contains(err.Error(), "Unexpected end of input")
}

// Suggest completes a dotted global path such as "jmx.co". Nothing is
// suggested while a script is running.
func (e *Engine) Suggest(word string) []prompt.Suggest {
	if e.busy.Load() {
		return nil
	}
	var out []prompt.Suggest
	_ = e.rt.RunOnLoopSync(context.Background(), func(vm *goja.Runtime) error {
		out = suggest(vm, word)
		return nil
	})
	return out
}

func suggest(vm *goja.Runtime, word string) []prompt.Suggest {
	head, last := "", word
	obj := vm.GlobalObject()
	if i := strings.LastIndexByte(word, '.'); i >= 0 {
		head, last = word[:i+1], word[i+1:]
		for _, part := range strings.Split(word[:i], ".") {
			v := obj.Get(part)
			if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
				return nil
			}
			obj = v.ToObject(vm)
		}
	}

	names := obj.GetOwnPropertyNames()
	slices.Sort(names)
	var out []prompt.Suggest
	for _, name := range slices.Compact(names) {
		if !strings.HasPrefix(name, last) || strings.HasPrefix(name, "__") {
			continue
		}
		desc := "value"
		if v := obj.Get(name); v != nil {
			if _, ok := goja.AssertFunction(v); ok {
				desc = "function"
			} else if _, ok := v.(*goja.Object); ok {
				desc = "object"
			}
		}
		out = append(out, prompt.Suggest{Text: head + name, Description: desc})
	}
	return out
}
