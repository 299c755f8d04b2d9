package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// HTTPStatusHandler checks a web page's availability by GETting data["url"]
// and reporting the status code. Any status is a result; only a failed
// request is an error.
type HTTPStatusHandler struct {
	client *http.Client
}

// NewHTTPStatusHandler creates an HTTPStatusHandler. A nil client gets a
// 15 second timeout.
func NewHTTPStatusHandler(client *http.Client) *HTTPStatusHandler {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPStatusHandler{client: client}
}

func (h *HTTPStatusHandler) Name() string { return "url_http_status" }
func (h *HTTPStatusHandler) Version() int { return 1 }

func (h *HTTPStatusHandler) Execute(ctx context.Context, data map[string]any) (map[string]any, error) {
	ctx, span := otel.Tracer("agent").Start(ctx, "handler.url_http_status")
	defer span.End()

	url, err := String(data, "url")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing 'url' field")
		return nil, err
	}
	span.SetAttributes(attribute.String("http.url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request failed")
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "http call failed")
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return map[string]any{"status": resp.StatusCode}, nil
}
