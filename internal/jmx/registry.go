package jmx

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/google/uuid"
	"github.com/joeycumines/jmxsh/internal/jmxerr"
	"github.com/joeycumines/jmxsh/internal/marshal"
	"github.com/joeycumines/jmxsh/internal/navctx"
)

// BrowseLevel is the part of the browse menu the registry moves when the
// active server changes.
type BrowseLevel interface {
	AdvanceToDomain()
	ResetToServer()
}

// Session is one live connection.
type Session struct {
	ID         string
	URL        ServiceURL
	InstanceID uuid.UUID
	Connected  time.Time
	User       string

	conn Conn
}

// Conn returns the underlying connection.
func (s *Session) Conn() Conn { return s.conn }

// Registry owns the live sessions.
//
// A Registry is not safe for concurrent use. It is driven by whichever
// goroutine holds the foreground turn: the interactive loop, or the script
// event loop while the interactive loop waits on it.
type Registry struct {
	dialer   Dialer
	nav      *navctx.Accessor
	marshal  *marshal.Marshaller
	logger   *slog.Logger
	notify   func(string)
	onChange func(servers []string)
	browse   BrowseLevel

	sessions map[string]*Session
	order    []string
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithNotify sets the function used for interactive notices such as
// "Connected to ...".
func WithNotify(fn func(string)) Option {
	return func(r *Registry) { r.notify = fn }
}

// WithServersHook registers a function called with the server list whenever
// a session is added or removed.
func WithServersHook(fn func(servers []string)) Option {
	return func(r *Registry) { r.onChange = fn }
}

// NewRegistry returns an empty registry.
func NewRegistry(dialer Dialer, nav *navctx.Accessor, m *marshal.Marshaller, opts ...Option) *Registry {
	r := &Registry{
		dialer:   dialer,
		nav:      nav,
		marshal:  m,
		logger:   slog.Default(),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach sets the browse menu moved on connect and close.
func (r *Registry) Attach(b BrowseLevel) { r.browse = b }

// Marshaller returns the value marshaller.
func (r *Registry) Marshaller() *marshal.Marshaller { return r.marshal }

// Nav returns the navigation context accessor.
func (r *Registry) Nav() *navctx.Accessor { return r.nav }

func (r *Registry) say(msg string) {
	if r.notify != nil {
		r.notify(msg)
	}
}

func (r *Registry) changed() {
	if r.onChange != nil {
		r.onChange(r.Servers())
	}
}

// Connect opens a session for id, or returns the existing one.
func (r *Registry) Connect(ctx context.Context, id Identity, creds *Credentials) (*Session, error) {
	const op = "connect"
	u, err := id.Resolve()
	if err != nil {
		return nil, err
	}
	key := u.String()

	if s, ok := r.sessions[key]; ok {
		r.logger.Info("already connected", slog.String("server", key))
		r.say("Already connected.")
		return s, nil
	}

	r.logger.Debug("connecting", slog.String("server", key))
	conn, err := r.dialer.Dial(ctx, u, creds)
	if err != nil {
		err = Classify(op, err)
		r.logger.Error("connection error", slog.String("server", key), slog.Any("error", err), slog.Any("cause", errors.Unwrap(err)))
		return nil, err
	}

	s := &Session{
		ID:         key,
		URL:        u,
		InstanceID: uuid.New(),
		Connected:  time.Now(),
		conn:       conn,
	}
	if creds != nil {
		s.User = creds.User
	}
	r.sessions[key] = s
	r.order = append(r.order, key)

	r.nav.SelectServer(key)
	if r.browse != nil {
		r.browse.AdvanceToDomain()
	}
	r.changed()
	r.logger.Info("connected", slog.String("server", key), slog.String("instance", s.InstanceID.String()))
	r.say("Connected to " + key + ".")
	return s, nil
}

// Close closes the session for server, or the current server when empty. The
// session is removed even if the transport fails to close.
func (r *Registry) Close(ctx context.Context, server string) error {
	const op = "close"
	s, err := r.resolve(op, server)
	if err != nil {
		return err
	}

	closeErr := s.conn.Close()
	delete(r.sessions, s.ID)
	r.order = slices.DeleteFunc(r.order, func(id string) bool { return id == s.ID })

	if r.nav.Server() == s.ID {
		r.nav.Clear()
		if r.browse != nil {
			r.browse.ResetToServer()
		}
	}
	r.changed()

	if closeErr != nil {
		r.logger.Error("error closing connection", slog.String("server", s.ID), slog.Any("error", closeErr))
		return jmxerr.Wrap(jmxerr.KindTransport, op, closeErr, "Error closing connection.")
	}
	r.logger.Info("closed", slog.String("server", s.ID))
	return nil
}

// CloseAll closes every session.
func (r *Registry) CloseAll(ctx context.Context) error {
	var errs []error
	for _, id := range slices.Clone(r.order) {
		if err := r.Close(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Servers returns the connected server ids in connection order.
func (r *Registry) Servers() []string { return slices.Clone(r.order) }

// Session returns the session for id.
func (r *Registry) Session(id string) (*Session, bool) {
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) resolve(op, server string) (*Session, error) {
	if server == "" {
		server = r.nav.Server()
		if server == "" {
			return nil, jmxerr.New(jmxerr.KindMissingContext, op, "No server specified; please set SERVER variable or use the server option.")
		}
	}
	s, ok := r.sessions[server]
	if !ok {
		return nil, jmxerr.New(jmxerr.KindServerNotFound, op, "not connected to %s", server)
	}
	return s, nil
}

func (r *Registry) mbean(op, mbean string) (string, error) {
	if mbean == "" {
		mbean = r.nav.MBean()
		if mbean == "" {
			return "", jmxerr.New(jmxerr.KindMissingContext, op, "No mbean specified; please set MBEAN variable or use the mbean option.")
		}
	}
	return mbean, nil
}

// Domains lists the domains of server, sorted.
func (r *Registry) Domains(ctx context.Context, server string) ([]string, error) {
	s, err := r.resolve("domains", server)
	if err != nil {
		return nil, err
	}
	domains, err := s.conn.Domains(ctx)
	if err != nil {
		return nil, err
	}
	domains = slices.Clone(domains)
	slices.Sort(domains)
	return domains, nil
}

// MBeans lists the object names in domain, sorted.
func (r *Registry) MBeans(ctx context.Context, server, domain string) ([]string, error) {
	const op = "mbeans"
	s, err := r.resolve(op, server)
	if err != nil {
		return nil, err
	}
	if domain == "" {
		if domain = r.nav.Domain(); domain == "" {
			return nil, jmxerr.New(jmxerr.KindMissingContext, op, "no domain selected")
		}
	}
	names, err := s.conn.QueryNames(ctx, domain+":*")
	if err != nil {
		return nil, err
	}
	names = slices.Clone(names)
	slices.Sort(names)
	return names, nil
}

func compileListPattern(op, pattern string) (*regexp2.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp2.Compile(`^(?:`+pattern+`)$`, regexp2.None)
	if err != nil {
		return nil, jmxerr.Wrap(jmxerr.KindMalformedFilter, op, err, "invalid pattern %q", pattern)
	}
	return re, nil
}

func matches(re *regexp2.Regexp, s string) bool {
	if re == nil {
		return true
	}
	ok, err := re.MatchString(s)
	return err == nil && ok
}

// ListDomains returns the domains whose whole name matches the regular
// expression pattern. An empty pattern matches everything.
func (r *Registry) ListDomains(ctx context.Context, server, pattern string) ([]string, error) {
	re, err := compileListPattern("list", pattern)
	if err != nil {
		return nil, err
	}
	domains, err := r.Domains(ctx, server)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(domains, func(d string) bool { return !matches(re, d) }), nil
}

// ListMBeans returns the object names in domain whose key properties (the
// part after ':') match pattern.
func (r *Registry) ListMBeans(ctx context.Context, server, domain, pattern string) ([]string, error) {
	re, err := compileListPattern("list", pattern)
	if err != nil {
		return nil, err
	}
	names, err := r.MBeans(ctx, server, domain)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(names, func(n string) bool {
		_, props, _ := strings.Cut(n, ":")
		return !matches(re, props)
	}), nil
}

// List expands "domain_regex:mbean_regex" into the matching object names.
func (r *Registry) List(ctx context.Context, server, expr string) ([]string, error) {
	domainPattern, mbeanPattern, _ := strings.Cut(expr, ":")
	domains, err := r.ListDomains(ctx, server, domainPattern)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, d := range domains {
		names, err := r.ListMBeans(ctx, server, d, mbeanPattern)
		if err != nil {
			return nil, err
		}
		out = append(out, names...)
	}
	return out, nil
}

// MBeanInfo returns the management interface of mbean.
func (r *Registry) MBeanInfo(ctx context.Context, server, mbean string) (*MBeanInfo, error) {
	const op = "mbeaninfo"
	s, err := r.resolve(op, server)
	if err != nil {
		return nil, err
	}
	if mbean, err = r.mbean(op, mbean); err != nil {
		return nil, err
	}
	return s.conn.MBeanInfo(ctx, mbean)
}

// Attributes lists the attributes of mbean.
func (r *Registry) Attributes(ctx context.Context, server, mbean string) ([]AttributeInfo, error) {
	info, err := r.MBeanInfo(ctx, server, mbean)
	if err != nil {
		return nil, err
	}
	return info.Attributes, nil
}

// Operations lists the operations of mbean.
func (r *Registry) Operations(ctx context.Context, server, mbean string) ([]OperationInfo, error) {
	info, err := r.MBeanInfo(ctx, server, mbean)
	if err != nil {
		return nil, err
	}
	return info.Operations, nil
}

// GetAttribute reads an attribute. Empty server, mbean or attribute fall back
// to the navigation context.
func (r *Registry) GetAttribute(ctx context.Context, server, mbean, attribute string) (any, error) {
	const op = "get"
	s, err := r.resolve(op, server)
	if err != nil {
		return nil, err
	}
	if mbean, err = r.mbean(op, mbean); err != nil {
		return nil, err
	}
	if attribute == "" {
		if attribute = r.nav.AttrOp(); attribute == "" {
			return nil, jmxerr.New(jmxerr.KindMissingContext, op, "No attribute specified; please set ATTROP variable or use the attribute option.")
		}
	}
	r.logger.Debug("getting attribute", slog.String("server", s.ID), slog.String("mbean", mbean), slog.String("attribute", attribute))
	return s.conn.GetAttribute(ctx, mbean, attribute)
}

// SetAttribute converts value to the attribute's declared type and writes
// it. The attribute must exist and be writable.
func (r *Registry) SetAttribute(ctx context.Context, server, mbean, attribute, value string) error {
	const op = "set"
	s, err := r.resolve(op, server)
	if err != nil {
		return err
	}
	if mbean, err = r.mbean(op, mbean); err != nil {
		return err
	}
	if attribute == "" {
		if attribute = r.nav.AttrOp(); attribute == "" {
			return jmxerr.New(jmxerr.KindMissingContext, op, "No attribute specified; please set ATTROP variable or use the attribute option.")
		}
	}
	info, err := s.conn.MBeanInfo(ctx, mbean)
	if err != nil {
		return err
	}
	attr, ok := info.Attribute(attribute)
	if !ok {
		return jmxerr.New(jmxerr.KindAttributeNotFound, op, "Attribute does not exist.")
	}
	if !attr.Writable {
		return jmxerr.New(jmxerr.KindAttributeNotWritable, op, "Attribute is not writable.")
	}
	v, err := r.marshal.ToTypedValue(value, attr.Type)
	if err != nil {
		return err
	}
	return s.conn.SetAttribute(ctx, mbean, attribute, v)
}

// Signature returns the parameter class names of the first operation named
// opName.
func (r *Registry) Signature(ctx context.Context, server, mbean, opName string) ([]string, error) {
	const op = "signature"
	info, err := r.MBeanInfo(ctx, server, mbean)
	if err != nil {
		return nil, err
	}
	o, ok := info.Operation(opName)
	if !ok {
		return nil, jmxerr.New(jmxerr.KindOperationNotFound, op, "Could not find operation %s", opName)
	}
	return o.Signature(), nil
}

// Invoke converts each argument to the matching parameter type and invokes
// the operation. The argument count is checked before anything else is done.
func (r *Registry) Invoke(ctx context.Context, server, mbean, opName string, args []string, paramTypes []string) (any, error) {
	const op = "invoke"
	if len(args) != len(paramTypes) {
		return nil, signatureMismatch(op, len(paramTypes), len(args))
	}
	values := make([]any, len(args))
	for i, a := range args {
		v, err := r.marshal.ToTypedValue(a, paramTypes[i])
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return r.InvokeTyped(ctx, server, mbean, opName, values, paramTypes)
}

// InvokeTyped invokes an operation with already converted arguments.
func (r *Registry) InvokeTyped(ctx context.Context, server, mbean, opName string, args []any, paramTypes []string) (any, error) {
	const op = "invoke"
	if len(args) != len(paramTypes) {
		return nil, signatureMismatch(op, len(paramTypes), len(args))
	}
	s, err := r.resolve(op, server)
	if err != nil {
		return nil, err
	}
	if mbean, err = r.mbean(op, mbean); err != nil {
		return nil, err
	}
	if opName == "" {
		if opName = r.nav.AttrOp(); opName == "" {
			return nil, jmxerr.New(jmxerr.KindMissingContext, op, "No operation specified; please set ATTROP variable or use the operation option.")
		}
	}
	r.logger.Debug("invoking", slog.String("server", s.ID), slog.String("mbean", mbean), slog.String("operation", opName), slog.Any("signature", paramTypes))
	return s.conn.Invoke(ctx, mbean, opName, args, paramTypes)
}

func signatureMismatch(op string, want, got int) error {
	return jmxerr.New(jmxerr.KindSignatureMismatch, op, "Provided parameter list does not match signature (expected %d, got %d)", want, got)
}
