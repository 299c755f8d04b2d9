package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/SLAMon/SLAMon/internal/events"
)

func TestPrintEvent(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		ev   events.Event
		want []string
	}{
		{
			ev:   events.Event{Type: events.TypeConnectionState, Source: "a1", Timestamp: ts, State: "CONNECTED"},
			want: []string{"a1", "connection_state", "CONNECTED"},
		},
		{
			ev:   events.Event{Type: events.TypeTaskError, Source: "a1", Timestamp: ts, Message: "no handler"},
			want: []string{"task_error", "no handler"},
		},
		{
			ev:   events.Event{Type: events.TypeTaskStarted, Source: "a2", Timestamp: ts},
			want: []string{"a2", "task_started"},
		},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		printEvent(&buf, tc.ev)
		for _, w := range tc.want {
			assert.Contains(t, buf.String(), w)
		}
		assert.NotContains(t, buf.String(), "\x1b[")
	}
}
