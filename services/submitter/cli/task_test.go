package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SLAMon/SLAMon/internal/domain"
)

func TestParseData(t *testing.T) {
	data, err := parseData(`{"url": "https://example.com", "time": 1.5}`)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", data["url"])
	assert.Equal(t, json.Number("1.5"), data["time"])

	data, err = parseData("null")
	require.NoError(t, err)
	assert.NotNil(t, data)

	_, err = parseData(`[1, 2]`)
	assert.Error(t, err)
	_, err = parseData(`{"url":`)
	assert.Error(t, err)
}

func TestReadTaskFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addTaskFlags(fs)
	require.NoError(t, fs.Parse([]string{"--type", "wait", "--version", "2", "--data", `{"time": 1}`, "--test-id", "sla-1"}))

	tf, err := readTaskFlags(fs)
	require.NoError(t, err)
	assert.Equal(t, "wait", tf.Type)
	assert.Equal(t, 2, tf.Version)
	assert.Equal(t, "sla-1", tf.TestID)
	assert.Equal(t, json.Number("1"), tf.Data["time"])
}

func TestReadTaskFlags_Invalid(t *testing.T) {
	cases := map[string][]string{
		"missing type":     {},
		"negative version": {"--type", "wait", "--version", "-1"},
		"bad data":         {"--type", "wait", "--data", "nope"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
			addTaskFlags(fs)
			require.NoError(t, fs.Parse(args))
			_, err := readTaskFlags(fs)
			assert.Error(t, err)
		})
	}
}

func TestPrintOutcome(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	var buf bytes.Buffer
	printOutcome(&buf, &domain.Task{
		ID:        "t1",
		Result:    map[string]any{"status": 200},
		Completed: "2024-05-01T12:00:00.000000Z",
	})
	assert.Contains(t, buf.String(), "COMPLETED t1")
	assert.Contains(t, buf.String(), `"status": 200`)

	buf.Reset()
	printOutcome(&buf, &domain.Task{ID: "t2", Error: "connection refused", Failed: "2024-05-01T12:00:00.000000Z"})
	assert.Contains(t, buf.String(), "FAILED t2")
	assert.Contains(t, buf.String(), "connection refused")
}
