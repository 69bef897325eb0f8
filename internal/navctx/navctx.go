// Package navctx holds the navigation context: the server, domain, mbean and
// attribute-or-operation currently in focus.
//
// The context is not stored here. It lives in a [Store], normally the script
// globals SERVER, DOMAIN, MBEAN and ATTROP, so that scripts and the browse menu
// always see the same values.
package navctx

import (
	"maps"
	"sync"

	"github.com/joeycumines/jmxsh/internal/jmxerr"
)

// Variable names used for each field.
const (
	VarServer = "SERVER"
	VarDomain = "DOMAIN"
	VarMBean  = "MBEAN"
	VarAttrOp = "ATTROP"
)

// Store is a named variable store.
type Store interface {
	Get(name string) (string, bool)
	Set(name, value string)
	Unset(name string)
}

// Context is a snapshot. Empty fields are unset.
type Context struct {
	Server string
	Domain string
	MBean  string
	AttrOp string
}

// IsZero reports whether every field is unset.
func (c Context) IsZero() bool { return c == Context{} }

// Accessor reads and writes the context through a Store. It keeps no copy.
type Accessor struct {
	store Store
}

// New returns an Accessor over store.
func New(store Store) *Accessor {
	return &Accessor{store: store}
}

func (a *Accessor) get(name string) string {
	v, _ := a.store.Get(name)
	return v
}

func (a *Accessor) set(name, value string) {
	if value == "" {
		a.store.Unset(name)
		return
	}
	a.store.Set(name, value)
}

// Load returns the current values.
func (a *Accessor) Load() Context {
	return Context{
		Server: a.get(VarServer),
		Domain: a.get(VarDomain),
		MBean:  a.get(VarMBean),
		AttrOp: a.get(VarAttrOp),
	}
}

func (a *Accessor) Server() string { return a.get(VarServer) }
func (a *Accessor) Domain() string { return a.get(VarDomain) }
func (a *Accessor) MBean() string  { return a.get(VarMBean) }
func (a *Accessor) AttrOp() string { return a.get(VarAttrOp) }

// SelectServer publishes server and clears the deeper fields.
func (a *Accessor) SelectServer(server string) {
	a.set(VarServer, server)
	a.store.Unset(VarDomain)
	a.store.Unset(VarMBean)
	a.store.Unset(VarAttrOp)
}

// SelectDomain publishes domain and clears the deeper fields.
func (a *Accessor) SelectDomain(domain string) {
	a.set(VarDomain, domain)
	a.store.Unset(VarMBean)
	a.store.Unset(VarAttrOp)
}

// SelectMBean publishes mbean and clears the attribute or operation.
func (a *Accessor) SelectMBean(mbean string) {
	a.set(VarMBean, mbean)
	a.store.Unset(VarAttrOp)
}

// SelectAttrOp publishes an attribute or operation name.
func (a *Accessor) SelectAttrOp(name string) {
	a.set(VarAttrOp, name)
}

// Clear unsets all four fields.
func (a *Accessor) Clear() {
	a.store.Unset(VarServer)
	a.store.Unset(VarDomain)
	a.store.Unset(VarMBean)
	a.store.Unset(VarAttrOp)
}

// Field identifies a context field for [Require].
type Field int

const (
	FieldServer Field = iota
	FieldDomain
	FieldMBean
	FieldAttrOp
)

func (f Field) String() string {
	switch f {
	case FieldServer:
		return "server"
	case FieldDomain:
		return "domain"
	case FieldMBean:
		return "mbean"
	case FieldAttrOp:
		return "attribute or operation"
	default:
		return "unknown"
	}
}

// Require returns a MissingContext error for the first of fields that is
// unset in c.
func (c Context) Require(op string, fields ...Field) error {
	for _, f := range fields {
		var v string
		switch f {
		case FieldServer:
			v = c.Server
		case FieldDomain:
			v = c.Domain
		case FieldMBean:
			v = c.MBean
		case FieldAttrOp:
			v = c.AttrOp
		}
		if v == "" {
			return jmxerr.New(jmxerr.KindMissingContext, op, "no %s selected", f)
		}
	}
	return nil
}

// MapStore is an in-memory Store.
type MapStore struct {
	mu   sync.Mutex
	vars map[string]string
}

// NewMapStore returns an empty MapStore.
func NewMapStore() *MapStore {
	return &MapStore{vars: make(map[string]string)}
}

func (s *MapStore) Get(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vars[name]
	return v, ok
}

func (s *MapStore) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = value
}

func (s *MapStore) Unset(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vars, name)
}

// Snapshot copies the current variables.
func (s *MapStore) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.vars)
}
