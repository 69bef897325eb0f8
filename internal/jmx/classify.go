package jmx

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/joeycumines/jmxsh/internal/jmxerr"
)

// RemoteError is an exception reported by the remote side. Type is the
// exception class name as reported, Status the protocol status code.
type RemoteError struct {
	Type    string
	Message string
	Status  int
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return e.Type
	}
	if e.Type == "" || strings.HasPrefix(e.Message, e.Type) {
		return e.Message
	}
	return e.Type + ": " + e.Message
}

// HasType reports whether the exception or anything named in its message
// matches the simple or qualified class name.
func (e *RemoteError) HasType(name string) bool {
	if e.Type == name || strings.HasSuffix(e.Type, "."+name) {
		return true
	}
	return strings.Contains(e.Message, name)
}

// HTTPStatusError is a non-2xx HTTP response.
type HTTPStatusError struct {
	Code int
	Body string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d %s", e.Code, http.StatusText(e.Code))
}

// Connection failure tags, checked in this order.
var connectionTags = []struct {
	kind    jmxerr.Kind
	message string
	match   func(error) bool
}{
	{jmxerr.KindAuthentication, "Authentication error", isAuthentication},
	{jmxerr.KindHostUnresolved, "Host name not found.", isHostUnresolved},
	{jmxerr.KindRefused, "Nothing is listening on that port, or it's firewalled off.", isRefused},
	{jmxerr.KindTimedOut, "Timed out.  Probably some non-JMX process is listening on it.", isTimedOut},
	{jmxerr.KindTLSRequired, "Host is using SSL, configure TLS to connect to it.", isTLSRequired},
}

const transportMessage = "Network error, see log."

// Classify maps a connection failure onto a connection kind, retaining the
// cause. Errors that already carry a kind are returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *jmxerr.Error
	if errors.As(err, &typed) && typed.Kind != jmxerr.KindUnknown {
		return err
	}
	for _, tag := range connectionTags {
		if tag.match(err) {
			msg := tag.message
			if tag.kind == jmxerr.KindAuthentication {
				msg += ": " + authDetail(err)
			}
			return jmxerr.Wrap(tag.kind, op, err, "%s", msg)
		}
	}
	return jmxerr.Wrap(jmxerr.KindTransport, op, err, "%s", transportMessage)
}

func remoteHas(err error, names ...string) bool {
	var re *RemoteError
	if !errors.As(err, &re) {
		return false
	}
	for _, n := range names {
		if re.HasType(n) {
			return true
		}
	}
	return false
}

func httpStatus(err error) int {
	var he *HTTPStatusError
	if errors.As(err, &he) {
		return he.Code
	}
	return 0
}

func isAuthentication(err error) bool {
	switch httpStatus(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return remoteHas(err, "SecurityException", "AuthenticationException")
}

func authDetail(err error) string {
	var re *RemoteError
	if errors.As(err, &re) && re.Message != "" {
		return re.Message
	}
	if code := httpStatus(err); code != 0 {
		return http.StatusText(code)
	}
	return err.Error()
}

func isHostUnresolved(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return remoteHas(err, "ConfigurationException", "UnknownHostException")
}

func isRefused(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return remoteHas(err, "ServiceUnavailableException", "ConnectException")
}

func isTimedOut(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return remoteHas(err, "CommunicationException", "SocketTimeoutException")
}

func isTLSRequired(err error) bool {
	var (
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		certErr     x509.CertificateInvalidError
		alertErr    tls.AlertError
	)
	if errors.As(err, &unknownAuth) || errors.As(err, &hostErr) || errors.As(err, &certErr) || errors.As(err, &alertErr) {
		return true
	}
	var he *HTTPStatusError
	if errors.As(err, &he) && strings.Contains(he.Body, "HTTP request to an HTTPS server") {
		return true
	}
	// a TLS alert read as plain HTTP
	if strings.Contains(err.Error(), "malformed HTTP response \"\\x15\\x03") {
		return true
	}
	return remoteHas(err, "SSLHandshakeException", "SSLException")
}
