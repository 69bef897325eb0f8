// Package jmx is the connection registry: it owns the live management
// sessions, keyed by canonical service URL, and exposes discovery and typed
// attribute and operation access on top of them.
//
// The wire protocol is behind [Conn] and [Dialer]. The jolokia subpackage is
// the production binding; jmxtest provides an in-memory server for tests.
package jmx

import (
	"context"

	"github.com/joeycumines/jmxsh/internal/typename"
)

// AttributeInfo describes one attribute of an mbean. Type is the wire class
// name, e.g. "int" or "[Ljava.lang.String;".
type AttributeInfo struct {
	Name        string
	Type        string
	Description string
	Readable    bool
	Writable    bool
	IsGetter    bool
}

// TypeName returns the nice name of the attribute type.
func (a AttributeInfo) TypeName() string { return typename.Translate(a.Type) }

// ParameterInfo describes one operation parameter.
type ParameterInfo struct {
	Name        string
	Type        string
	Description string
}

// OperationInfo describes one operation of an mbean.
type OperationInfo struct {
	Name        string
	ReturnType  string
	Params      []ParameterInfo
	Description string
}

// Signature returns the parameter wire class names.
func (o OperationInfo) Signature() []string {
	sig := make([]string, len(o.Params))
	for i, p := range o.Params {
		sig[i] = p.Type
	}
	return sig
}

// IsVoid reports whether the operation returns nothing.
func (o OperationInfo) IsVoid() bool {
	return o.ReturnType == "" || o.ReturnType == "void" || o.ReturnType == "java.lang.Void"
}

// MBeanInfo is the management interface of one mbean.
type MBeanInfo struct {
	ClassName   string
	Description string
	Attributes  []AttributeInfo
	Operations  []OperationInfo
}

// Attribute finds an attribute by exact name.
func (m *MBeanInfo) Attribute(name string) (AttributeInfo, bool) {
	for _, a := range m.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return AttributeInfo{}, false
}

// Operation finds the first operation with the given name.
func (m *MBeanInfo) Operation(name string) (OperationInfo, bool) {
	for _, o := range m.Operations {
		if o.Name == name {
			return o, true
		}
	}
	return OperationInfo{}, false
}

// Credentials authenticate a connection.
type Credentials struct {
	User     string
	Password string
}

// Conn is one live connection to an mbean server.
//
// Errors should be *jmxerr.Error values where the kind is known. Values are
// whatever the binding decodes: strings, numbers, bools, nil, []any and
// map[string]any.
type Conn interface {
	Domains(ctx context.Context) ([]string, error)
	// QueryNames returns the object names matching pattern, e.g. "java.lang:*".
	QueryNames(ctx context.Context, pattern string) ([]string, error)
	MBeanInfo(ctx context.Context, mbean string) (*MBeanInfo, error)
	GetAttribute(ctx context.Context, mbean, attribute string) (any, error)
	SetAttribute(ctx context.Context, mbean, attribute string, value any) error
	// Invoke calls op; signature holds the wire class name of each parameter.
	Invoke(ctx context.Context, mbean, op string, args []any, signature []string) (any, error)
	Close() error
}

// Dialer opens connections. Errors are classified by the registry.
type Dialer interface {
	Dial(ctx context.Context, url ServiceURL, creds *Credentials) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url ServiceURL, creds *Credentials) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, url ServiceURL, creds *Credentials) (Conn, error) {
	return f(ctx, url, creds)
}
