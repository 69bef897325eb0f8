// Package jolokia connects to mbean servers through the Jolokia JSON-over-HTTP
// bridge. Agent URLs (http, https) are spoken to directly; any other protocol
// (rmi, jmxmp) goes through a Jolokia proxy, with the service URL sent as the
// request target.
package jolokia

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joeycumines/jmxsh/internal/jmx"
)

const maxResponseBytes = 32 << 20

// Target routes a proxy request to the actual mbean server.
type Target struct {
	URL      string `json:"url"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
}

// Request is a single Jolokia request.
type Request struct {
	Type      string         `json:"type"`
	MBean     string         `json:"mbean,omitempty"`
	Attribute string         `json:"attribute,omitempty"`
	Value     any            `json:"value,omitempty"`
	Operation string         `json:"operation,omitempty"`
	Arguments []any          `json:"arguments,omitempty"`
	Path      string         `json:"path,omitempty"`
	Target    *Target        `json:"target,omitempty"`
	Config    map[string]any `json:"config,omitempty"`
}

// Response is a single Jolokia response.
type Response struct {
	Status     int             `json:"status"`
	Value      json.RawMessage `json:"value"`
	Timestamp  int64           `json:"timestamp"`
	Error      string          `json:"error"`
	ErrorType  string          `json:"error_type"`
	Stacktrace string          `json:"stacktrace"`
}

// Client posts requests to one endpoint.
type Client struct {
	http     *http.Client
	endpoint string
	user     string
	password string
	target   *Target
	logger   *slog.Logger
}

// Do sends req and returns the raw value. Protocol level failures are
// *jmx.HTTPStatusError, remote exceptions are *jmx.RemoteError.
func (c *Client) Do(ctx context.Context, req Request) (json.RawMessage, error) {
	if c.target != nil {
		req.Target = c.target
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", req.Type, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-Id", uuid.NewString())
	if c.user != "" {
		httpReq.SetBasicAuth(c.user, c.password)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", req.Type, err)
	}
	c.logger.Debug("jolokia request",
		slog.String("type", req.Type),
		slog.String("mbean", req.MBean),
		slog.Int("http_status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &jmx.HTTPStatusError{Code: resp.StatusCode, Body: truncate(string(data), 512)}
	}

	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", req.Type, err)
	}
	if r.Status != http.StatusOK {
		return nil, &jmx.RemoteError{Type: r.ErrorType, Message: r.Error, Status: r.Status}
	}
	return r.Value, nil
}

// DoValue is Do followed by decoding the value, with numbers kept as
// json.Number.
func (c *Client) DoValue(ctx context.Context, req Request) (any, error) {
	raw, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	return decodeValue(raw)
}

func decodeValue(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return v, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// EscapePath escapes one element of a list path.
func EscapePath(s string) string {
	s = strings.ReplaceAll(s, "!", "!!")
	return strings.ReplaceAll(s, "/", "!/")
}
