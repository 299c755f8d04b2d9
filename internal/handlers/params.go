package handlers

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Float reads a numeric parameter. Broker payloads are decoded with
// UseNumber, but callers embedding the agent may pass plain Go numbers or
// numeric strings.
func Float(data map[string]any, key string) (float64, error) {
	v, ok := data[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("missing required parameter %q", key)
	}
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("parameter %q: %w", key, err)
		}
		return f, nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("parameter %q is not a number: %q", key, n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("parameter %q has unsupported type %T", key, v)
	}
}

// String reads a required string parameter.
func String(data map[string]any, key string) (string, error) {
	v, ok := data[key]
	if !ok || v == nil {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q must be a string, got %T", key, v)
	}
	if s == "" {
		return "", fmt.Errorf("parameter %q is empty", key)
	}
	return s, nil
}
