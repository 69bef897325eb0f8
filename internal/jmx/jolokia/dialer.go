package jolokia

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joeycumines/jmxsh/internal/jmx"
	"github.com/joeycumines/jmxsh/internal/jmxerr"
)

// DefaultAgentPath is used for agent URLs without a path.
const DefaultAgentPath = "/jolokia"

// Config configures a Dialer.
type Config struct {
	// ProxyURL is the Jolokia proxy used for non-HTTP protocols.
	ProxyURL string
	// Timeout bounds each HTTP request. Zero means no timeout.
	Timeout            time.Duration
	InsecureSkipVerify bool
	// DefaultPath replaces DefaultAgentPath when set.
	DefaultPath string
	// HTTPClient overrides the client built from the settings above.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Dialer implements jmx.Dialer.
type Dialer struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// NewDialer returns a Dialer for cfg.
func NewDialer(cfg Config) *Dialer {
	d := &Dialer{cfg: cfg, client: cfg.HTTPClient, logger: cfg.Logger}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		d.client = &http.Client{Transport: transport, Timeout: cfg.Timeout}
	}
	return d
}

func isAgentProtocol(p string) (scheme string, ok bool) {
	switch p {
	case "http", "jolokia":
		return "http", true
	case "https", "jolokias":
		return "https", true
	}
	return "", false
}

// Endpoint returns the HTTP endpoint and proxy target for u.
func (d *Dialer) Endpoint(u jmx.ServiceURL, creds *jmx.Credentials) (endpoint string, target *Target, err error) {
	if scheme, ok := isAgentProtocol(u.Protocol); ok {
		if u.Host == "" {
			return "", nil, jmxerr.New(jmxerr.KindInvalidArgument, "connect", "no host in %s", u)
		}
		host := u.Host
		if u.Port > 0 {
			host = net.JoinHostPort(u.Host, strconv.Itoa(u.Port))
		} else if strings.Contains(host, ":") {
			host = "[" + host + "]"
		}
		path := u.Path
		if path == "" {
			path = d.cfg.DefaultPath
			if path == "" {
				path = DefaultAgentPath
			}
		}
		return scheme + "://" + host + path, nil, nil
	}
	if d.cfg.ProxyURL == "" {
		return "", nil, jmxerr.New(jmxerr.KindTransport, "connect",
			"no connector for protocol %q: configure [jolokia] proxy_url", u.Protocol)
	}
	target = &Target{URL: u.String()}
	if creds != nil {
		target.User, target.Password = creds.User, creds.Password
	}
	return d.cfg.ProxyURL, target, nil
}

// Dial connects and performs a version handshake.
func (d *Dialer) Dial(ctx context.Context, u jmx.ServiceURL, creds *jmx.Credentials) (jmx.Conn, error) {
	endpoint, target, err := d.Endpoint(u, creds)
	if err != nil {
		return nil, err
	}
	c := &Client{
		http:     d.client,
		endpoint: endpoint,
		target:   target,
		logger:   d.logger.With(slog.String("server", u.String())),
	}
	if target == nil && creds != nil {
		c.user, c.password = creds.User, creds.Password
	}

	v, err := c.DoValue(ctx, Request{Type: "version"})
	if err != nil {
		return nil, err
	}
	conn := &Conn{client: c}
	if m, ok := v.(map[string]any); ok {
		conn.AgentVersion, _ = m["agent"].(string)
		conn.Protocol, _ = m["protocol"].(string)
	}
	c.logger.Info("jolokia agent", slog.String("agent", conn.AgentVersion), slog.String("protocol", conn.Protocol), slog.String("endpoint", endpoint))
	return conn, nil
}

// Conn implements jmx.Conn over a Client.
type Conn struct {
	client       *Client
	AgentVersion string
	Protocol     string
}

func (c *Conn) Domains(ctx context.Context) ([]string, error) {
	raw, err := c.client.Do(ctx, Request{Type: "list", Config: map[string]any{"maxDepth": 1}})
	if err != nil {
		return nil, opError("domains", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, jmxerr.Wrap(jmxerr.KindTransport, "domains", err, "unexpected list response")
	}
	out := make([]string, 0, len(m))
	for d := range m {
		out = append(out, d)
	}
	return out, nil
}

func (c *Conn) QueryNames(ctx context.Context, pattern string) ([]string, error) {
	raw, err := c.client.Do(ctx, Request{Type: "search", MBean: pattern})
	if err != nil {
		return nil, opError("search", err)
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, jmxerr.Wrap(jmxerr.KindTransport, "search", err, "unexpected search response")
	}
	return names, nil
}

func (c *Conn) MBeanInfo(ctx context.Context, mbean string) (*jmx.MBeanInfo, error) {
	domain, props, ok := strings.Cut(mbean, ":")
	if !ok {
		return nil, jmxerr.New(jmxerr.KindInvalidArgument, "mbeaninfo", "Invalid object name '%s'", mbean)
	}
	raw, err := c.client.Do(ctx, Request{Type: "list", Path: EscapePath(domain) + "/" + EscapePath(props)})
	if err != nil {
		return nil, opError("mbeaninfo", err)
	}
	info, err := parseMBeanInfo(raw)
	if err != nil {
		return nil, jmxerr.Wrap(jmxerr.KindTransport, "mbeaninfo", err, "unexpected list response")
	}
	return info, nil
}

func (c *Conn) GetAttribute(ctx context.Context, mbean, attribute string) (any, error) {
	v, err := c.client.DoValue(ctx, Request{Type: "read", MBean: mbean, Attribute: attribute})
	if err != nil {
		return nil, opError("get", err)
	}
	return v, nil
}

func (c *Conn) SetAttribute(ctx context.Context, mbean, attribute string, value any) error {
	_, err := c.client.Do(ctx, Request{Type: "write", MBean: mbean, Attribute: attribute, Value: value})
	return opError("set", err)
}

func (c *Conn) Invoke(ctx context.Context, mbean, op string, args []any, signature []string) (any, error) {
	v, err := c.client.DoValue(ctx, Request{
		Type:      "exec",
		MBean:     mbean,
		Operation: OperationSignature(op, signature),
		Arguments: args,
	})
	if err != nil {
		return nil, opError("invoke", err)
	}
	return v, nil
}

// Close is a no-op: HTTP connections are pooled by the client.
func (c *Conn) Close() error { return nil }

// OperationSignature renders "name(type,...)".
func OperationSignature(op string, signature []string) string {
	return op + "(" + strings.Join(signature, ",") + ")"
}

func opError(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *jmx.RemoteError
	if !errors.As(err, &re) {
		return jmx.Classify(op, err)
	}
	switch {
	case re.HasType("InstanceNotFoundException"):
		return jmxerr.Wrap(jmxerr.KindObjectNotFound, op, err, "MBean not found.")
	case re.HasType("AttributeNotFoundException"):
		return jmxerr.Wrap(jmxerr.KindAttributeNotFound, op, err, "Attribute not found.")
	case op == "invoke" && (re.HasType("ReflectionException") || re.HasType("NoSuchMethodException") ||
		strings.Contains(re.Message, "No operation")):
		return jmxerr.Wrap(jmxerr.KindOperationNotFound, op, err, "Could not find an operation that matches provided signature.")
	case re.HasType("SecurityException"):
		return jmxerr.Wrap(jmxerr.KindAuthentication, op, err, "Authentication error: %s", re.Message)
	case re.HasType("InvalidAttributeValueException"):
		return jmxerr.Wrap(jmxerr.KindConstructionFailed, op, err, "Invalid new value type for attribute.")
	case re.Status == http.StatusNotFound:
		return jmxerr.Wrap(jmxerr.KindObjectNotFound, op, err, "Not found.")
	default:
		return jmxerr.Wrap(jmxerr.KindRemote, op, err, "Exception thrown by remote MBean")
	}
}
