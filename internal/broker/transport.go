package broker

import (
	"log/slog"
	"net/http"
	"time"
)

// loggingTransport logs every broker round trip at debug level with method,
// path, status and duration.
type loggingTransport struct {
	next   http.RoundTripper
	logger *slog.Logger
}

// NewLoggingTransport wraps next (http.DefaultTransport when nil).
func NewLoggingTransport(next http.RoundTripper, logger *slog.Logger) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &loggingTransport{next: next, logger: logger}
}

func (t *loggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(r)

	attrs := []any{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	}
	if err != nil {
		t.logger.Debug("broker request failed", append(attrs, slog.String("error", err.Error()))...)
		return nil, err
	}
	t.logger.Debug("broker request", append(attrs, slog.Int("status", resp.StatusCode))...)
	return resp, nil
}
