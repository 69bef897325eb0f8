package jmx

import (
	"net"
	"strconv"
	"strings"

	"github.com/joeycumines/jmxsh/internal/jmxerr"
)

const (
	servicePrefix = "service:jmx:"

	// DefaultRMIPath is the registry name used when an rmi identity has no
	// path.
	DefaultRMIPath = "jmxrmi"
)

// ServiceURL is a parsed "service:jmx:<protocol>://[host[:port]][path]".
type ServiceURL struct {
	Protocol string
	Host     string
	Port     int
	Path     string
}

// ParseServiceURL parses a service URL. Plain http and https agent URLs are
// accepted and mapped onto the http and https protocols.
func ParseServiceURL(s string) (ServiceURL, error) {
	const op = "parse url"
	s = strings.TrimSpace(s)
	rest, ok := strings.CutPrefix(s, servicePrefix)
	if !ok {
		lower := strings.ToLower(s)
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			return ServiceURL{}, jmxerr.New(jmxerr.KindInvalidArgument, op, "invalid URL %q: must start with %q", s, servicePrefix)
		}
		rest = s
	}

	proto, rest, ok := strings.Cut(rest, "://")
	if !ok || proto == "" {
		return ServiceURL{}, jmxerr.New(jmxerr.KindInvalidArgument, op, "invalid URL %q: missing protocol", s)
	}
	u := ServiceURL{Protocol: strings.ToLower(proto)}

	hostport := rest
	if i := strings.IndexAny(rest, "/;"); i >= 0 {
		hostport, u.Path = rest[:i], rest[i:]
	}
	if hostport == "" {
		return u, nil
	}

	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		// no port
		if strings.Count(hostport, ":") > 0 && !strings.HasPrefix(hostport, "[") {
			return ServiceURL{}, jmxerr.Wrap(jmxerr.KindInvalidArgument, op, err, "invalid URL %q", s)
		}
		u.Host = strings.Trim(hostport, "[]")
		return u, nil
	}
	u.Host = host
	if port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 0 || n > 65535 {
			return ServiceURL{}, jmxerr.New(jmxerr.KindInvalidArgument, op, "invalid URL %q: bad port %q", s, port)
		}
		u.Port = n
	}
	return u, nil
}

// String renders the canonical form.
func (u ServiceURL) String() string {
	var sb strings.Builder
	sb.WriteString(servicePrefix)
	sb.WriteString(u.Protocol)
	sb.WriteString("://")
	if u.Host != "" {
		host := u.Host
		if strings.Contains(host, ":") {
			host = "[" + host + "]"
		}
		sb.WriteString(host)
	}
	if u.Port > 0 {
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(u.Port))
	}
	sb.WriteString(u.Path)
	return sb.String()
}

// RMITarget returns the host and port of the rmi registry named by a
// "/jndi/rmi://host:port/name" path, if any.
func (u ServiceURL) RMITarget() (host string, port int, name string, ok bool) {
	rest, found := strings.CutPrefix(u.Path, "/jndi/rmi://")
	if !found {
		return "", 0, "", false
	}
	hostport, name, _ := strings.Cut(rest, "/")
	h, p, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport, 0, name, true
	}
	n, _ := strconv.Atoi(p)
	return h, n, name, true
}

// Identity names a server either by URL or by its parts.
type Identity struct {
	URL      string
	Host     string
	Port     int
	Protocol string
	Path     string
}

func (id Identity) String() string {
	if id.URL != "" {
		return id.URL
	}
	return id.Protocol + "://" + net.JoinHostPort(id.Host, strconv.Itoa(id.Port)) + id.Path
}

// Resolve normalises the identity into a service URL. A host identity without
// a protocol uses rmi, and rmi without a path uses [DefaultRMIPath].
func (id Identity) Resolve() (ServiceURL, error) {
	const op = "connect"
	if id.URL != "" {
		return ParseServiceURL(id.URL)
	}
	if id.Host == "" {
		return ServiceURL{}, jmxerr.New(jmxerr.KindInvalidArgument, op, "no server specified")
	}
	if id.Port <= 0 || id.Port > 65535 {
		return ServiceURL{}, jmxerr.New(jmxerr.KindInvalidArgument, op, "invalid port %d", id.Port)
	}
	proto := strings.ToLower(id.Protocol)
	if proto == "" {
		proto = "rmi"
	}
	if proto == "rmi" {
		path := strings.TrimPrefix(id.Path, "/")
		if path == "" {
			path = DefaultRMIPath
		}
		return ServiceURL{
			Protocol: proto,
			Path:     "/jndi/rmi://" + net.JoinHostPort(id.Host, strconv.Itoa(id.Port)) + "/" + path,
		}, nil
	}
	path := id.Path
	if path != "" && !strings.HasPrefix(path, "/") && !strings.HasPrefix(path, ";") {
		path = "/" + path
	}
	return ServiceURL{Protocol: proto, Host: id.Host, Port: id.Port, Path: path}, nil
}

// CanonicalURL returns the session key for id.
func CanonicalURL(id Identity) (string, error) {
	u, err := id.Resolve()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
