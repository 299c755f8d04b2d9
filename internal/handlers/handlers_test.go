package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SLAMon/SLAMon/internal/handlers"
)

func TestWaitHandler_Identity(t *testing.T) {
	h := handlers.NewWaitHandler()
	assert.Equal(t, "wait", h.Name())
	assert.Equal(t, 1, h.Version())
}

func TestWaitHandler_Execute_ReturnsWaitedTime(t *testing.T) {
	h := handlers.NewWaitHandler()

	out, err := h.Execute(context.Background(), map[string]any{"time": json.Number("0.01")})
	require.NoError(t, err)
	secs, ok := out["time"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, secs, 0.01)
	assert.GreaterOrEqual(t, out["waited"], int64(10))
}

func TestWaitHandler_Execute_MissingTime(t *testing.T) {
	_, err := handlers.NewWaitHandler().Execute(context.Background(), map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "time")
}

func TestWaitHandler_Execute_Negative(t *testing.T) {
	_, err := handlers.NewWaitHandler().Execute(context.Background(), map[string]any{"time": -1})
	assert.Error(t, err)
}

func TestWaitHandler_Execute_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := handlers.NewWaitHandler().Execute(ctx, map[string]any{"time": 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPStatusHandler_Execute_ReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	h := handlers.NewHTTPStatusHandler(srv.Client())
	out, err := h.Execute(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"status": http.StatusTeapot}, out)
}

func TestHTTPStatusHandler_Execute_MissingURL(t *testing.T) {
	h := handlers.NewHTTPStatusHandler(nil)
	_, err := h.Execute(context.Background(), map[string]any{"method": "GET"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url")
}

func TestHTTPStatusHandler_Execute_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := handlers.NewHTTPStatusHandler(nil).Execute(context.Background(), map[string]any{"url": url})
	assert.Error(t, err)
}

func TestFloat_AcceptsNumericForms(t *testing.T) {
	data := map[string]any{
		"number": json.Number("1.5"),
		"float":  2.5,
		"int":    3,
		"string": "4.5",
		"bool":   true,
	}
	for key, want := range map[string]float64{"number": 1.5, "float": 2.5, "int": 3, "string": 4.5} {
		got, err := handlers.Float(data, key)
		require.NoError(t, err, key)
		assert.Equal(t, want, got, key)
	}
	_, err := handlers.Float(data, "bool")
	assert.Error(t, err)
	_, err = handlers.Float(data, "absent")
	assert.Error(t, err)
}
