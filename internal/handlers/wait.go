package handlers

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// WaitHandler sleeps for data["time"] seconds and reports how long it
// actually waited, in milliseconds ("waited") and seconds ("time"). Used for
// prototyping and load testing the fleet.
type WaitHandler struct{}

// NewWaitHandler creates a WaitHandler.
func NewWaitHandler() *WaitHandler { return &WaitHandler{} }

func (h *WaitHandler) Name() string { return "wait" }
func (h *WaitHandler) Version() int { return 1 }

func (h *WaitHandler) Execute(ctx context.Context, data map[string]any) (map[string]any, error) {
	ctx, span := otel.Tracer("agent").Start(ctx, "handler.wait")
	defer span.End()

	secs, err := Float(data, "time")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid parameters")
		return nil, err
	}
	if secs < 0 {
		err := fmt.Errorf("parameter %q must not be negative", "time")
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid parameters")
		return nil, err
	}
	span.SetAttributes(attribute.Float64("wait.seconds", secs))

	start := time.Now()
	timer := time.NewTimer(time.Duration(secs * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		span.SetStatus(codes.Error, "interrupted")
		return nil, fmt.Errorf("wait interrupted: %w", ctx.Err())
	}
	waited := time.Since(start)
	return map[string]any{
		"waited": waited.Milliseconds(),
		"time":   waited.Seconds(),
	}, nil
}
