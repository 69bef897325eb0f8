// Package jmxmod provides the "jmxsh:jmx" JavaScript module: connection
// management, attribute access, operation invocation and discovery against
// the sessions of a jmx.Registry.
//
// API (JS):
//
//	const jmx = require('jmxsh:jmx');
//
//	jmx.connect({host: 'localhost', port: 9999});        // returns the server id
//	jmx.connect('service:jmx:http://localhost:8778/jolokia');
//	jmx.get({mbean: 'java.lang:type=Memory', attribute: 'HeapMemoryUsage'});
//	jmx.set({attribute: 'Verbose', value: true});          // uses MBEAN from the context
//	jmx.invoke({mbean: 'java.lang:type=Memory', operation: 'gc'});
//	jmx.invoke({operation: 'add int int', args: [1, 2]});
//	jmx.list('java.*:type=.*');
//
// Omitted server, mbean, attribute and operation options fall back to the
// SERVER, MBEAN and ATTROP globals.
package jmxmod

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/dop251/goja"
	"github.com/joeycumines/jmxsh/internal/console"
	"github.com/joeycumines/jmxsh/internal/jmx"
	"github.com/joeycumines/jmxsh/internal/jmxerr"
	"github.com/joeycumines/jmxsh/internal/marshal"
	"github.com/joeycumines/jmxsh/internal/typename"
)

// Bookmark is a saved connection profile.
type Bookmark struct {
	Identity jmx.Identity
	User     string
	Password string
}

// Host is what the module runs against.
type Host struct {
	Registry *jmx.Registry
	// Prompter asks for missing credentials. It may be nil, in which case
	// missing credentials are an error.
	Prompter  console.Prompter
	Bookmarks map[string]Bookmark
	// Context returns the context for remote calls; nil means background.
	Context func() context.Context
}

func (h *Host) ctx() context.Context {
	if h.Context != nil {
		if ctx := h.Context(); ctx != nil {
			return ctx
		}
	}
	return context.Background()
}

// Require returns the module loader for host.
func Require(host *Host) func(runtime *goja.Runtime, module *goja.Object) {
	return func(runtime *goja.Runtime, module *goja.Object) {
		m := &jsModule{host: host, vm: runtime}
		exports := module.Get("exports").(*goja.Object)
		for name, fn := range map[string]func(goja.FunctionCall) goja.Value{
			"bookmark":  m.bookmark,
			"bookmarks": m.bookmarks,
			"close":     m.close,
			"connect":   m.connect,
			"domains":   m.domains,
			"get":       m.get,
			"info":      m.info,
			"invoke":    m.invoke,
			"list":      m.list,
			"mbeans":    m.mbeans,
			"release":   m.release,
			"servers":   m.servers,
			"set":       m.set,
		} {
			_ = exports.Set(name, fn)
		}
	}
}

type jsModule struct {
	host *Host
	vm   *goja.Runtime
}

func (m *jsModule) throw(err error) {
	panic(m.vm.NewGoError(err))
}

func (m *jsModule) reg() *jmx.Registry { return m.host.Registry }

func (m *jsModule) array(items []string) goja.Value {
	if items == nil {
		items = []string{}
	}
	return m.vm.ToValue(items)
}

// options wraps an optional argument object.
type options struct {
	vm  *goja.Runtime
	obj *goja.Object
}

func (m *jsModule) options(v goja.Value) options {
	if isNothing(v) {
		return options{vm: m.vm}
	}
	if _, ok := v.Export().(string); ok {
		return options{vm: m.vm}
	}
	return options{vm: m.vm, obj: v.ToObject(m.vm)}
}

func isNothing(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}

func (o options) value(name string) goja.Value {
	if o.obj == nil {
		return nil
	}
	v := o.obj.Get(name)
	if isNothing(v) {
		return nil
	}
	return v
}

func (o options) str(names ...string) string {
	for _, name := range names {
		if v := o.value(name); v != nil {
			return v.String()
		}
	}
	return ""
}

func (o options) flag(name string) bool {
	v := o.value(name)
	return v != nil && v.ToBoolean()
}

func (o options) number(name string) int {
	if v := o.value(name); v != nil {
		return int(v.ToInteger())
	}
	return 0
}

// stringArg returns argument i when it is a string.
func stringArg(call goja.FunctionCall, i int) (string, bool) {
	s, ok := call.Argument(i).Export().(string)
	return s, ok
}

// valueString converts a script value for the marshaller. Strings pass
// through, so opaque handles are recognized.
func valueString(v goja.Value) string {
	if isNothing(v) {
		return ""
	}
	if s, ok := v.Export().(string); ok {
		return s
	}
	return v.String()
}

// connect(url | {server|url, host, port, protocol, path, user, password}): string
func (m *jsModule) connect(call goja.FunctionCall) goja.Value {
	var (
		id         jmx.Identity
		user, pass string
	)
	if s, ok := stringArg(call, 0); ok {
		id.URL = s
	} else {
		o := m.options(call.Argument(0))
		id = jmx.Identity{
			URL:      o.str("server", "url"),
			Host:     o.str("host"),
			Port:     o.number("port"),
			Protocol: o.str("protocol"),
			Path:     o.str("path"),
		}
		user, pass = o.str("user"), o.str("password")
	}
	s, err := m.connectWith(id, user, pass)
	if err != nil {
		m.throw(err)
	}
	return m.vm.ToValue(s.ID)
}

func (m *jsModule) connectWith(id jmx.Identity, user, pass string) (*jmx.Session, error) {
	creds, err := Credentials(m.host.Prompter, user, pass)
	if err != nil {
		return nil, err
	}
	return m.reg().Connect(m.host.ctx(), id, creds)
}

// Credentials completes a user and password pair, asking for whichever half
// is missing. Neither given means no credentials.
func Credentials(p console.Prompter, user, pass string) (*jmx.Credentials, error) {
	if user == "" && pass == "" {
		return nil, nil
	}
	var err error
	if user == "" {
		if user, err = ask(p, "User: ", 0); err != nil {
			return nil, err
		}
	}
	if pass == "" {
		if pass, err = ask(p, "Password: ", '*'); err != nil {
			return nil, err
		}
	}
	return &jmx.Credentials{User: user, Password: pass}, nil
}

func ask(p console.Prompter, text string, mask rune) (string, error) {
	const op = "connect"
	if p == nil {
		return "", jmxerr.New(jmxerr.KindInvalidArgument, op, "%s required", strings.TrimSuffix(text, ": "))
	}
	var (
		s   string
		err error
	)
	if mask != 0 {
		s, err = p.PromptMasked(text, mask)
	} else {
		s, err = p.Prompt(text)
	}
	if err != nil {
		return "", fmt.Errorf("%s: reading %s: %w", op, strings.ToLower(strings.TrimSuffix(text, ": ")), err)
	}
	return s, nil
}

// close(server?)
func (m *jsModule) close(call goja.FunctionCall) goja.Value {
	server, _ := stringArg(call, 0)
	if server == "" {
		server = m.options(call.Argument(0)).str("server")
	}
	if err := m.reg().Close(m.host.ctx(), server); err != nil {
		m.throw(err)
	}
	return goja.Undefined()
}

// result converts a remote value, or stores it as a handle with noconvert.
func (m *jsModule) result(v any, noconvert bool) goja.Value {
	if noconvert {
		return m.vm.ToValue(m.reg().Marshaller().ToOpaqueReference(v))
	}
	return m.vm.ToValue(marshal.Format(v))
}

// get(attribute | {server, mbean, attribute, noconvert}): string
func (m *jsModule) get(call goja.FunctionCall) goja.Value {
	o := m.options(call.Argument(0))
	attr, _ := stringArg(call, 0)
	if attr == "" {
		attr = o.str("attribute")
	}
	v, err := m.reg().GetAttribute(m.host.ctx(), o.str("server"), o.str("mbean"), attr)
	if err != nil {
		m.throw(err)
	}
	return m.result(v, o.flag("noconvert"))
}

// set(attribute, value) or set({server, mbean, attribute, value})
func (m *jsModule) set(call goja.FunctionCall) goja.Value {
	o := m.options(call.Argument(0))
	attr, positional := stringArg(call, 0)
	var value goja.Value
	if positional {
		value = call.Argument(1)
	} else {
		attr = o.str("attribute")
		value = o.value("value")
	}
	if isNothing(value) {
		m.throw(jmxerr.New(jmxerr.KindInvalidArgument, "set", "no value given"))
	}
	if err := m.reg().SetAttribute(m.host.ctx(), o.str("server"), o.str("mbean"), attr, valueString(value)); err != nil {
		m.throw(err)
	}
	return goja.Undefined()
}

// invoke(operation, ...args) or invoke({server, mbean, operation, signature,
// args, noconvert}). operation may name the parameter types after the
// operation name, as a string ("add int int") or an array.
func (m *jsModule) invoke(call goja.FunctionCall) goja.Value {
	const op = "invoke"
	o := m.options(call.Argument(0))

	var (
		operation goja.Value
		args      []goja.Value
	)
	if _, ok := stringArg(call, 0); ok {
		operation = call.Argument(0)
		args = call.Arguments[1:]
	} else {
		operation = o.value("operation")
		if v := o.value("args"); v != nil {
			arr, ok := v.(*goja.Object)
			if !ok || arr.ClassName() != "Array" {
				m.throw(jmxerr.New(jmxerr.KindInvalidArgument, op, "args must be an array"))
			}
			for i := range arr.Get("length").ToInteger() {
				args = append(args, arr.Get(strconv.FormatInt(i, 10)))
			}
		}
	}

	name, types, err := m.operation(operation)
	if err != nil {
		m.throw(err)
	}
	if v := o.value("signature"); v != nil {
		if err := m.vm.ExportTo(v, &types); err != nil {
			m.throw(jmxerr.Wrap(jmxerr.KindInvalidArgument, op, err, "signature must be an array of type names"))
		}
	}
	if name == "" {
		if name = m.reg().Nav().AttrOp(); name == "" {
			m.throw(jmxerr.New(jmxerr.KindMissingContext, op, "No operation specified; please set ATTROP variable or use the operation option."))
		}
	}

	server, mbean := o.str("server"), o.str("mbean")
	var signature []string
	if types != nil {
		signature = make([]string, len(types))
		for i, t := range types {
			if signature[i], err = typename.TranslateNice(t); err != nil {
				m.throw(err)
			}
		}
	} else if signature, err = m.reg().Signature(m.host.ctx(), server, mbean, name); err != nil {
		m.throw(err)
	}

	values := make([]string, len(args))
	for i, a := range args {
		values[i] = valueString(a)
	}
	v, err := m.reg().Invoke(m.host.ctx(), server, mbean, name, values, signature)
	if err != nil {
		m.throw(err)
	}
	if v == nil {
		return goja.Undefined()
	}
	return m.result(v, o.flag("noconvert"))
}

// operation splits an operation string into its name and, if present, the
// nice names of its parameter types. types is nil when none were given.
func (m *jsModule) operation(v goja.Value) (name string, types []string, err error) {
	if v == nil {
		return "", nil, nil
	}
	var parts []string
	if s, ok := v.Export().(string); ok {
		parts = strings.Fields(s)
	} else if err := m.vm.ExportTo(v, &parts); err != nil {
		return "", nil, jmxerr.Wrap(jmxerr.KindInvalidArgument, "invoke", err, "operation must be a string or an array")
	}
	switch len(parts) {
	case 0:
		return "", nil, nil
	case 1:
		return parts[0], nil, nil
	default:
		return parts[0], parts[1:], nil
	}
}

// list(pattern?, server?): string[] where pattern is domain_regex:mbean_regex
func (m *jsModule) list(call goja.FunctionCall) goja.Value {
	pattern, _ := stringArg(call, 0)
	server, _ := stringArg(call, 1)
	names, err := m.reg().List(m.host.ctx(), server, pattern)
	if err != nil {
		m.throw(err)
	}
	return m.array(names)
}

// servers(): string[]
func (m *jsModule) servers(goja.FunctionCall) goja.Value {
	return m.array(m.reg().Servers())
}

// domains(server?): string[]
func (m *jsModule) domains(call goja.FunctionCall) goja.Value {
	server, _ := stringArg(call, 0)
	domains, err := m.reg().Domains(m.host.ctx(), server)
	if err != nil {
		m.throw(err)
	}
	return m.array(domains)
}

// mbeans(domain?, server?): string[]
func (m *jsModule) mbeans(call goja.FunctionCall) goja.Value {
	domain, _ := stringArg(call, 0)
	server, _ := stringArg(call, 1)
	names, err := m.reg().MBeans(m.host.ctx(), server, domain)
	if err != nil {
		m.throw(err)
	}
	return m.array(names)
}

// info(mbean?, server?): {className, description, attributes, operations}
func (m *jsModule) info(call goja.FunctionCall) goja.Value {
	mbean, _ := stringArg(call, 0)
	server, _ := stringArg(call, 1)
	info, err := m.reg().MBeanInfo(m.host.ctx(), server, mbean)
	if err != nil {
		m.throw(err)
	}
	attrs := make([]any, len(info.Attributes))
	for i, a := range info.Attributes {
		attrs[i] = map[string]any{
			"name":        a.Name,
			"type":        a.TypeName(),
			"description": a.Description,
			"readable":    a.Readable,
			"writable":    a.Writable,
			"isGetter":    a.IsGetter,
		}
	}
	ops := make([]any, len(info.Operations))
	for i, o := range info.Operations {
		params := make([]any, len(o.Params))
		for j, p := range o.Params {
			params[j] = map[string]any{"name": p.Name, "type": typename.Translate(p.Type)}
		}
		ops[i] = map[string]any{
			"name":        o.Name,
			"returnType":  typename.Translate(o.ReturnType),
			"params":      params,
			"description": o.Description,
		}
	}
	return m.vm.ToValue(map[string]any{
		"className":   info.ClassName,
		"description": info.Description,
		"attributes":  attrs,
		"operations":  ops,
	})
}

// release(ref): boolean
func (m *jsModule) release(call goja.FunctionCall) goja.Value {
	ref, _ := stringArg(call, 0)
	return m.vm.ToValue(m.reg().Marshaller().Release(ref))
}

// ErrUnknownBookmark is returned for a bookmark name not in the config.
var ErrUnknownBookmark = errors.New("unknown bookmark")

// bookmark(name): string connects to a saved profile
func (m *jsModule) bookmark(call goja.FunctionCall) goja.Value {
	name, _ := stringArg(call, 0)
	b, ok := m.host.Bookmarks[name]
	if !ok {
		m.throw(fmt.Errorf("bookmark %q: %w", name, ErrUnknownBookmark))
	}
	s, err := m.connectWith(b.Identity, b.User, b.Password)
	if err != nil {
		m.throw(err)
	}
	return m.vm.ToValue(s.ID)
}

// bookmarks(): string[]
func (m *jsModule) bookmarks(goja.FunctionCall) goja.Value {
	names := make([]string, 0, len(m.host.Bookmarks))
	for name := range m.host.Bookmarks {
		names = append(names, name)
	}
	slices.Sort(names)
	return m.array(names)
}
