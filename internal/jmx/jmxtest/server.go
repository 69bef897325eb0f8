// Package jmxtest provides an in-memory mbean server for tests.
package jmxtest

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/joeycumines/jmxsh/internal/jmx"
	"github.com/joeycumines/jmxsh/internal/jmxerr"
)

// OpFunc implements an operation.
type OpFunc func(args []any) (any, error)

// MBean is one registered object.
type MBean struct {
	Info   jmx.MBeanInfo
	Values map[string]any
	Ops    map[string]OpFunc
}

// Call records one remote call.
type Call struct {
	Method string
	MBean  string
	Name   string
	Args   []any
	Sig    []string
}

// Server is an in-memory mbean server. It is safe for concurrent use.
type Server struct {
	mu     sync.Mutex
	mbeans map[string]*MBean
	calls  []Call
	closes int
}

// NewServer returns an empty server.
func NewServer() *Server {
	return &Server{mbeans: make(map[string]*MBean)}
}

// Register adds or replaces an mbean.
func (s *Server) Register(name string, mb *MBean) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mb.Values == nil {
		mb.Values = make(map[string]any)
	}
	if mb.Ops == nil {
		mb.Ops = make(map[string]OpFunc)
	}
	s.mbeans[name] = mb
}

// Value returns the current value of an attribute.
func (s *Server) Value(mbean, attribute string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mb, ok := s.mbeans[mbean]; ok {
		return mb.Values[attribute]
	}
	return nil
}

// Calls returns the recorded remote calls.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// CallsTo returns the recorded calls of one method.
func (s *Server) CallsTo(method string) []Call {
	return slices.DeleteFunc(s.Calls(), func(c Call) bool { return c.Method != method })
}

// Closes returns how many connections were closed.
func (s *Server) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func (s *Server) record(c Call) {
	s.calls = append(s.calls, c)
}

// Conn returns a connection to the server.
func (s *Server) Conn() jmx.Conn { return &conn{server: s} }

type conn struct {
	server *Server
	closed bool
}

func (c *conn) lookup(op, name string) (*MBean, error) {
	if c.closed {
		return nil, jmxerr.New(jmxerr.KindTransport, op, "connection closed")
	}
	mb, ok := c.server.mbeans[name]
	if !ok {
		return nil, jmxerr.New(jmxerr.KindObjectNotFound, op, "MBean not found: %s", name)
	}
	return mb, nil
}

func (c *conn) Domains(ctx context.Context) ([]string, error) {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(Call{Method: "domains"})
	seen := make(map[string]struct{})
	for name := range s.mbeans {
		d, _, _ := strings.Cut(name, ":")
		seen[d] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen)), nil
}

func (c *conn) QueryNames(ctx context.Context, pattern string) ([]string, error) {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(Call{Method: "queryNames", Name: pattern})
	domain, _, _ := strings.Cut(pattern, ":")
	var out []string
	for name := range s.mbeans {
		if d, _, _ := strings.Cut(name, ":"); d == domain || domain == "*" {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (c *conn) MBeanInfo(ctx context.Context, mbean string) (*jmx.MBeanInfo, error) {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(Call{Method: "mbeanInfo", MBean: mbean})
	mb, err := c.lookup("mbeaninfo", mbean)
	if err != nil {
		return nil, err
	}
	info := mb.Info
	info.Attributes = slices.Clone(info.Attributes)
	info.Operations = slices.Clone(info.Operations)
	return &info, nil
}

func (c *conn) GetAttribute(ctx context.Context, mbean, attribute string) (any, error) {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(Call{Method: "getAttribute", MBean: mbean, Name: attribute})
	mb, err := c.lookup("get", mbean)
	if err != nil {
		return nil, err
	}
	a, ok := mb.Info.Attribute(attribute)
	if !ok {
		return nil, jmxerr.New(jmxerr.KindAttributeNotFound, "get", "Attribute not found.")
	}
	if !a.Readable {
		return nil, jmxerr.New(jmxerr.KindAttributeNotFound, "get", "Attribute is not readable.")
	}
	return mb.Values[attribute], nil
}

func (c *conn) SetAttribute(ctx context.Context, mbean, attribute string, value any) error {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(Call{Method: "setAttribute", MBean: mbean, Name: attribute, Args: []any{value}})
	mb, err := c.lookup("set", mbean)
	if err != nil {
		return err
	}
	a, ok := mb.Info.Attribute(attribute)
	if !ok {
		return jmxerr.New(jmxerr.KindAttributeNotFound, "set", "Attribute does not exist.")
	}
	if !a.Writable {
		return jmxerr.New(jmxerr.KindAttributeNotWritable, "set", "Attribute is not writable.")
	}
	mb.Values[attribute] = value
	return nil
}

func (c *conn) Invoke(ctx context.Context, mbean, op string, args []any, signature []string) (any, error) {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(Call{Method: "invoke", MBean: mbean, Name: op, Args: slices.Clone(args), Sig: slices.Clone(signature)})
	mb, err := c.lookup("invoke", mbean)
	if err != nil {
		return nil, err
	}
	for _, o := range mb.Info.Operations {
		if o.Name == op && slices.Equal(o.Signature(), signature) {
			fn, ok := mb.Ops[op]
			if !ok {
				return nil, nil
			}
			res, err := fn(args)
			if err != nil {
				return nil, &jmx.RemoteError{Type: "javax.management.MBeanException", Message: err.Error(), Status: 500}
			}
			return res, nil
		}
	}
	return nil, jmxerr.New(jmxerr.KindOperationNotFound, "invoke", "Could not find an operation that matches provided signature.")
}

func (c *conn) Close() error {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.closed {
		return fmt.Errorf("already closed")
	}
	c.closed = true
	s.closes++
	return nil
}

// Dialer hands out connections to servers keyed by canonical URL and counts
// dials.
type Dialer struct {
	mu      sync.Mutex
	servers map[string]*Server
	errs    map[string]error
	dials   map[string]int
	creds   map[string]*jmx.Credentials
}

// NewDialer returns a dialer with no servers.
func NewDialer() *Dialer {
	return &Dialer{
		servers: make(map[string]*Server),
		errs:    make(map[string]error),
		dials:   make(map[string]int),
		creds:   make(map[string]*jmx.Credentials),
	}
}

// Add makes server reachable at url (a canonical service URL).
func (d *Dialer) Add(url string, server *Server) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.servers[url] = server
}

// Fail makes dials to url return err.
func (d *Dialer) Fail(url string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs[url] = err
}

// Dials returns the number of dial attempts for url.
func (d *Dialer) Dials(url string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[url]
}

// LastCredentials returns the credentials of the last dial to url.
func (d *Dialer) LastCredentials(url string) *jmx.Credentials {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.creds[url]
}

func (d *Dialer) Dial(ctx context.Context, u jmx.ServiceURL, creds *jmx.Credentials) (jmx.Conn, error) {
	key := u.String()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials[key]++
	d.creds[key] = creds
	if err := d.errs[key]; err != nil {
		return nil, err
	}
	s, ok := d.servers[key]
	if !ok {
		return nil, &jmx.RemoteError{Type: "java.io.IOException", Message: "javax.naming.ServiceUnavailableException [Root exception is java.rmi.ConnectException: Connection refused to host]"}
	}
	return s.Conn(), nil
}
