package jmx

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/joeycumines/jmxsh/internal/jmxerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
	for _, tc := range []struct {
		name string
		err  error
		kind jmxerr.Kind
	}{
		{"http 401", &HTTPStatusError{Code: 401}, jmxerr.KindAuthentication},
		{"http 403", fmt.Errorf("post: %w", &HTTPStatusError{Code: 403}), jmxerr.KindAuthentication},
		{"security exception", &RemoteError{Type: "java.lang.SecurityException", Message: "Invalid credentials"}, jmxerr.KindAuthentication},
		{"dns", &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}, jmxerr.KindHostUnresolved},
		{"naming configuration", &RemoteError{Type: "java.io.IOException", Message: "javax.naming.ConfigurationException"}, jmxerr.KindHostUnresolved},
		{"econnrefused", refused, jmxerr.KindRefused},
		{"service unavailable", &RemoteError{Type: "java.io.IOException", Message: "javax.naming.ServiceUnavailableException"}, jmxerr.KindRefused},
		{"deadline", context.DeadlineExceeded, jmxerr.KindTimedOut},
		{"net timeout", &net.OpError{Op: "read", Err: timeoutErr{}}, jmxerr.KindTimedOut},
		{"communication", &RemoteError{Type: "javax.naming.CommunicationException"}, jmxerr.KindTimedOut},
		{"x509", x509.UnknownAuthorityError{}, jmxerr.KindTLSRequired},
		{"plain http to https", &HTTPStatusError{Code: 400, Body: "Client sent an HTTP request to an HTTPS server."}, jmxerr.KindTLSRequired},
		{"ssl handshake", &RemoteError{Type: "javax.net.ssl.SSLHandshakeException"}, jmxerr.KindTLSRequired},
		{"other", errors.New("boom"), jmxerr.KindTransport},
		{"http 500", &HTTPStatusError{Code: 500}, jmxerr.KindTransport},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := Classify("connect", tc.err)
			require.Error(t, err)
			assert.Equal(t, tc.kind, jmxerr.KindOf(err))
			assert.Equal(t, jmxerr.ClassConnection, jmxerr.ClassOf(err))
			assert.ErrorIs(t, err, tc.err, "cause retained")
		})
	}
}

func TestClassifyDistinctMessages(t *testing.T) {
	seen := make(map[string]jmxerr.Kind)
	for _, err := range []error{
		&HTTPStatusError{Code: 401},
		&net.DNSError{Err: "no such host"},
		os.NewSyscallError("connect", syscall.ECONNREFUSED),
		context.DeadlineExceeded,
		x509.UnknownAuthorityError{},
		errors.New("boom"),
	} {
		c := Classify("connect", err)
		msg := c.Error()
		k, dup := seen[msg]
		assert.False(t, dup, "message %q shared by %v and %v", msg, k, jmxerr.KindOf(c))
		seen[msg] = jmxerr.KindOf(c)
	}
	assert.Len(t, seen, 6)
}

func TestClassifyKeepsTypedErrors(t *testing.T) {
	orig := jmxerr.New(jmxerr.KindObjectNotFound, "get", "MBean not found.")
	assert.Same(t, orig, Classify("connect", orig))
	assert.NoError(t, Classify("connect", nil))
}

func TestRemoteError(t *testing.T) {
	e := &RemoteError{Type: "javax.management.InstanceNotFoundException", Message: "java.lang:type=Nope"}
	assert.Equal(t, "javax.management.InstanceNotFoundException: java.lang:type=Nope", e.Error())
	assert.True(t, e.HasType("InstanceNotFoundException"))
	assert.False(t, e.HasType("AttributeNotFoundException"))
	e = &RemoteError{Type: "java.lang.IllegalArgumentException", Message: "java.lang.IllegalArgumentException : bad"}
	assert.Equal(t, "java.lang.IllegalArgumentException : bad", e.Error())
}
