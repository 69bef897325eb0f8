package jolokia

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/joeycumines/jmxsh/internal/jmx"
	"github.com/joeycumines/jmxsh/internal/jmx/jmxtest"
	"github.com/joeycumines/jmxsh/internal/jmxerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// agent is a minimal Jolokia agent backed by an in-memory mbean server.
type agent struct {
	server *jmxtest.Server
	conn   jmx.Conn

	mu       sync.Mutex
	requests []Request
	auth     [][2]string
	user     string
}

func newAgent(t *testing.T) (*agent, *httptest.Server) {
	a := &agent{server: jmxtest.NewSampleServer()}
	a.conn = a.server.Conn()
	ts := httptest.NewServer(a)
	t.Cleanup(ts.Close)
	return a, ts
}

func (a *agent) reply(w http.ResponseWriter, v any, err error) {
	resp := map[string]any{"status": 200, "value": v, "timestamp": 1}
	if err != nil {
		errType, status := "java.lang.Exception", 500
		switch jmxerr.KindOf(err) {
		case jmxerr.KindObjectNotFound:
			errType, status = "javax.management.InstanceNotFoundException", 404
		case jmxerr.KindAttributeNotFound:
			errType, status = "javax.management.AttributeNotFoundException", 404
		case jmxerr.KindOperationNotFound:
			errType, status = "java.lang.IllegalArgumentException", 400
			err = errors.New("No operation matching signature")
		}
		var re *jmx.RemoteError
		if errors.As(err, &re) {
			errType = re.Type
		}
		resp = map[string]any{"status": status, "error_type": errType, "error": errType + " : " + err.Error()}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (a *agent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, pass, _ := r.BasicAuth()
	a.mu.Lock()
	a.auth = append(a.auth, [2]string{user, pass})
	wantUser := a.user
	a.mu.Unlock()
	if wantUser != "" && user != wantUser {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var req Request
	if err := dec.Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.mu.Lock()
	a.requests = append(a.requests, req)
	a.mu.Unlock()

	ctx := r.Context()
	switch req.Type {
	case "version":
		a.reply(w, map[string]any{"agent": "2.0.0", "protocol": "7.2"}, nil)
	case "search":
		names, err := a.conn.QueryNames(ctx, req.MBean)
		a.reply(w, names, err)
	case "list":
		if req.Path == "" {
			domains, err := a.conn.Domains(ctx)
			m := make(map[string]any)
			for _, d := range domains {
				m[d] = map[string]any{}
			}
			a.reply(w, m, err)
			return
		}
		domain, props, _ := strings.Cut(req.Path, "/")
		info, err := a.conn.MBeanInfo(ctx, unescape(domain)+":"+unescape(props))
		if err != nil {
			a.reply(w, nil, err)
			return
		}
		a.reply(w, listValue(info), nil)
	case "read":
		v, err := a.conn.GetAttribute(ctx, req.MBean, req.Attribute)
		a.reply(w, v, err)
	case "write":
		err := a.conn.SetAttribute(ctx, req.MBean, req.Attribute, req.Value)
		a.reply(w, nil, err)
	case "exec":
		name, sig, _ := strings.Cut(strings.TrimSuffix(req.Operation, ")"), "(")
		var signature []string
		if sig != "" {
			signature = strings.Split(sig, ",")
		}
		args := make([]any, len(req.Arguments))
		for i, v := range req.Arguments {
			// the wire carries JSON; the sample operations expect int32
			if n, ok := v.(json.Number); ok && signature[i] == "int" {
				i64, _ := n.Int64()
				v = int32(i64)
			}
			args[i] = v
		}
		v, err := a.conn.Invoke(ctx, req.MBean, name, args, signature)
		a.reply(w, v, err)
	default:
		http.Error(w, "bad type", http.StatusBadRequest)
	}
}

func unescape(s string) string {
	s = strings.ReplaceAll(s, "!/", "/")
	return strings.ReplaceAll(s, "!!", "!")
}

func listValue(info *jmx.MBeanInfo) map[string]any {
	attrs := make(map[string]any)
	for _, a := range info.Attributes {
		attrs[a.Name] = map[string]any{"type": a.Type, "desc": a.Description, "rw": a.Writable}
	}
	ops := make(map[string]any)
	for _, o := range info.Operations {
		args := []any{}
		for _, p := range o.Params {
			args = append(args, map[string]any{"name": p.Name, "type": p.Type, "desc": ""})
		}
		ops[o.Name] = map[string]any{"args": args, "ret": o.ReturnType, "desc": ""}
	}
	return map[string]any{"class": info.ClassName, "desc": "", "attr": attrs, "op": ops}
}

func (a *agent) lastAuth() [2]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.auth[len(a.auth)-1]
}

func (a *agent) lastRequest() Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requests[len(a.requests)-1]
}

func dialAgent(t *testing.T, ts *httptest.Server, creds *jmx.Credentials) jmx.Conn {
	t.Helper()
	u, err := jmx.ParseServiceURL(ts.URL + "/jolokia")
	require.NoError(t, err)
	conn, err := NewDialer(Config{}).Dial(context.Background(), u, creds)
	require.NoError(t, err)
	return conn
}

func TestDialHandshake(t *testing.T) {
	a, ts := newAgent(t)
	conn := dialAgent(t, ts, &jmx.Credentials{User: "admin", Password: "pw"})
	jc := conn.(*Conn)
	assert.Equal(t, "2.0.0", jc.AgentVersion)
	assert.Equal(t, "version", a.lastRequest().Type)
	assert.Equal(t, [2]string{"admin", "pw"}, a.lastAuth())
	require.NoError(t, conn.Close())
}

func TestDialUnauthorized(t *testing.T) {
	a, ts := newAgent(t)
	a.mu.Lock()
	a.user = "admin"
	a.mu.Unlock()
	u, err := jmx.ParseServiceURL(ts.URL + "/jolokia")
	require.NoError(t, err)
	_, err = NewDialer(Config{}).Dial(context.Background(), u, nil)
	require.Error(t, err)
	assert.ErrorIs(t, jmx.Classify("connect", err), jmxerr.ErrAuthentication)
}

func TestDialRefused(t *testing.T) {
	_, ts := newAgent(t)
	u, err := jmx.ParseServiceURL(ts.URL)
	require.NoError(t, err)
	ts.Close()
	_, err = NewDialer(Config{}).Dial(context.Background(), u, nil)
	require.Error(t, err)
	assert.ErrorIs(t, jmx.Classify("connect", err), jmxerr.ErrRefused)
}

func TestDiscovery(t *testing.T) {
	_, ts := newAgent(t)
	conn := dialAgent(t, ts, nil)
	ctx := context.Background()

	domains, err := conn.Domains(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"JMImplementation", "java.lang", "jmxsh"}, domains)

	names, err := conn.QueryNames(ctx, "java.lang:*")
	require.NoError(t, err)
	assert.Equal(t, []string{jmxtest.MemoryMBean, jmxtest.RuntimeMBean, jmxtest.ThreadingMBean}, names)

	info, err := conn.MBeanInfo(ctx, jmxtest.SampleMBean)
	require.NoError(t, err)
	require.Len(t, info.Attributes, 3)
	assert.Equal(t, "Counter", info.Attributes[0].Name)
	assert.True(t, info.Attributes[0].Writable)
	assert.False(t, info.Attributes[2].Writable)
	require.Len(t, info.Operations, 2)
	assert.Equal(t, []string{"int", "int"}, info.Operations[0].Signature())

	_, err = conn.MBeanInfo(ctx, "jmxsh:type=Missing")
	assert.ErrorIs(t, err, jmxerr.ErrObjectNotFound)
}

func TestReadWriteExec(t *testing.T) {
	a, ts := newAgent(t)
	conn := dialAgent(t, ts, nil)
	ctx := context.Background()

	v, err := conn.GetAttribute(ctx, jmxtest.SampleMBean, "Name")
	require.NoError(t, err)
	assert.Equal(t, "sample", v)

	v, err = conn.GetAttribute(ctx, jmxtest.MemoryMBean, "HeapMemoryUsage")
	require.NoError(t, err)
	assert.Equal(t, json.Number("1589160"), v.(map[string]any)["used"])

	_, err = conn.GetAttribute(ctx, jmxtest.SampleMBean, "Missing")
	assert.ErrorIs(t, err, jmxerr.ErrAttributeNotFound)

	require.NoError(t, conn.SetAttribute(ctx, jmxtest.SampleMBean, "Name", "renamed"))
	assert.Equal(t, "renamed", a.server.Value(jmxtest.SampleMBean, "Name"))

	v, err = conn.Invoke(ctx, jmxtest.SampleMBean, "add", []any{int32(2), int32(40)}, []string{"int", "int"})
	require.NoError(t, err)
	assert.Equal(t, json.Number("42"), v)
	assert.Equal(t, "add(int,int)", a.lastRequest().Operation)

	_, err = conn.Invoke(ctx, jmxtest.SampleMBean, "add", []any{int64(1)}, []string{"long"})
	assert.ErrorIs(t, err, jmxerr.ErrOperationNotFound)

	_, err = conn.Invoke(ctx, jmxtest.SampleMBean, "echo", []any{json.Number("1")}, []string{"java.lang.String"})
	assert.ErrorIs(t, err, jmxerr.ErrRemote)
}

func TestProxyTarget(t *testing.T) {
	a, ts := newAgent(t)
	u, err := jmx.ParseServiceURL("service:jmx:rmi:///jndi/rmi://db:9999/jmxrmi")
	require.NoError(t, err)

	_, err = NewDialer(Config{}).Dial(context.Background(), u, nil)
	assert.ErrorIs(t, err, jmxerr.ErrTransport)

	conn, err := NewDialer(Config{ProxyURL: ts.URL + "/jolokia"}).Dial(context.Background(), u, &jmx.Credentials{User: "u", Password: "p"})
	require.NoError(t, err)
	req := a.lastRequest()
	require.NotNil(t, req.Target)
	assert.Equal(t, Target{URL: u.String(), User: "u", Password: "p"}, *req.Target)
	// credentials travel in the target, not as basic auth
	assert.Equal(t, [2]string{"", ""}, a.lastAuth())

	_, err = conn.GetAttribute(context.Background(), jmxtest.RuntimeMBean, "VmName")
	require.NoError(t, err)
	assert.NotNil(t, a.lastRequest().Target)
}

func TestEndpoint(t *testing.T) {
	d := NewDialer(Config{DefaultPath: "/j"})
	ep, target, err := d.Endpoint(jmx.ServiceURL{Protocol: "https", Host: "h", Port: 8443}, nil)
	require.NoError(t, err)
	assert.Nil(t, target)
	assert.Equal(t, "https://h:8443/j", ep)

	ep, _, err = d.Endpoint(jmx.ServiceURL{Protocol: "jolokia", Host: "h", Path: "/x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://h/x", ep)

	_, _, err = d.Endpoint(jmx.ServiceURL{Protocol: "http"}, nil)
	assert.ErrorIs(t, err, jmxerr.ErrInvalidArgument)
}

func TestEscapePath(t *testing.T) {
	assert.Equal(t, "a!/b!!c", EscapePath("a/b!c"))
	assert.Equal(t, "add(int,int)", OperationSignature("add", []string{"int", "int"}))
	assert.Equal(t, "gc()", OperationSignature("gc", nil))
}

func TestParseMBeanInfoOverloads(t *testing.T) {
	raw := json.RawMessage(`{
		"class": "x.Y",
		"desc": "d",
		"attr": {"B": {"type": "int", "rw": false}, "A": {"type": "boolean", "rw": true}},
		"op": {
			"run": [
				{"args": [{"name": "p", "type": "long"}], "ret": "void"},
				{"args": [], "ret": "void"}
			],
			"echo": {"args": [{"name": "s", "type": "java.lang.String"}], "ret": "java.lang.String"}
		}
	}`)
	info, err := parseMBeanInfo(raw)
	require.NoError(t, err)
	assert.Equal(t, "A", info.Attributes[0].Name)
	assert.True(t, info.Attributes[0].IsGetter)
	require.Len(t, info.Operations, 3)
	assert.Equal(t, "echo", info.Operations[0].Name)
	assert.Empty(t, info.Operations[1].Params)
	assert.Equal(t, []string{"long"}, info.Operations[2].Signature())
	assert.True(t, info.Operations[2].IsVoid())
}
