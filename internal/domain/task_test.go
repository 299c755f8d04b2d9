package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SLAMon/SLAMon/internal/domain"
)

func TestVersion_Decode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want domain.Version
	}{
		{"integer", `1`, 1},
		{"decimal truncates", `2.9`, 2},
		{"quoted", `"3"`, 3},
		{"exponent", `1e1`, 10},
		{"null", `null`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v domain.Version
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &v))
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestVersion_DecodeRejects(t *testing.T) {
	for _, raw := range []string{`-1`, `"abc"`, `true`} {
		var v domain.Version
		assert.Error(t, json.Unmarshal([]byte(raw), &v), raw)
	}
}

func TestTask_VersionEncodesAsInteger(t *testing.T) {
	var task domain.Task
	require.NoError(t, json.Unmarshal([]byte(`{"task_id":"t1","task_type":"wait","task_version":1.0}`), &task))

	out, err := json.Marshal(&task)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"task_version":1`)
	assert.NotContains(t, string(out), `1.0`)
	assert.NotContains(t, string(out), "task_completed")
}

func TestTask_Outcomes(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	task := &domain.Task{ID: "t1"}
	assert.False(t, task.IsTerminal())

	task.Complete(nil, now)
	assert.True(t, task.IsTerminal())
	assert.True(t, task.Succeeded())
	assert.NotNil(t, task.Result)

	task.Fail("boom", now)
	assert.False(t, task.Succeeded())
	assert.Nil(t, task.Result)
	assert.Equal(t, "boom", task.Error)
	assert.Equal(t, "2024-05-01T12:00:00.000000Z", task.Failed)
}

func TestTimestampRoundTrip(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 123456000, time.FixedZone("EET", 2*3600))
	parsed, err := domain.ParseTimestamp(domain.FormatTimestamp(ts))
	require.NoError(t, err)
	assert.True(t, ts.Equal(parsed))

	_, err = domain.ParseTimestamp("not-a-time")
	assert.Error(t, err)
}
