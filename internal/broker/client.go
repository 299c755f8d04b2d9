// Package broker implements the HTTP+JSON protocol spoken with the agent
// fleet manager, for both the worker and the submitter side.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	"github.com/SLAMon/SLAMon/internal/domain"
	"github.com/SLAMon/SLAMon/internal/version"
)

// ProtocolVersion is sent with every worker-side request.
const ProtocolVersion = 1

// Client talks to a single broker. It holds no per-request state and is safe
// for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	now     func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger logs every request at debug level through logger. Apply it
// after WithHTTPClient.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		hc := *c.http
		hc.Transport = NewLoggingTransport(hc.Transport, l)
		c.http = &hc
	}
}

// WithClock overrides the clock used for agent_time.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a Client for the broker at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse broker url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("broker url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/",
		http:    &http.Client{Timeout: 30 * time.Second},
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// BaseURL returns the normalized broker URL, always ending in "/".
func (c *Client) BaseURL() string { return c.baseURL }

// do sends body as JSON and decodes a 2xx response into out (when non-nil).
// Failures come back classified as *domain.TemporaryError or *domain.FatalError.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	ctx, span := otel.Tracer("broker").Start(ctx, "broker."+op)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("broker.path", path),
	)

	err := c.roundTrip(ctx, op, method, path, body, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
		span.SetAttributes(attribute.Bool("broker.error.temporary", domain.IsTemporary(err)))
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &domain.FatalError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &domain.FatalError{Op: op, Err: fmt.Errorf("build request: %w", err)}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.TemporaryError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.TemporaryError{Op: op, StatusCode: statusIfServerError(resp.StatusCode), Err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &domain.FatalError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(snippet(payload))}
	case resp.StatusCode >= 500 && resp.StatusCode < 600:
		return &domain.TemporaryError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(snippet(payload))}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &domain.FatalError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	if out == nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &domain.TemporaryError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func statusIfServerError(code int) int {
	if code >= 500 && code < 600 {
		return code
	}
	return 0
}

// snippet trims a response body for inclusion in error messages.
func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "empty response body"
	}
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	return s
}
