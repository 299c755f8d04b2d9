package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProbes(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
broker_url: "http://afm.local:8080"
poll_interval: "1s"
max_per_window: 10
rate_window: "1m"
probes:
  - name: homepage
    cron: "*/5 * * * *"
    task_type: url_http_status
    task_version: 1
    test_id: sla-homepage
    timeout: "2m"
    task_data:
      url: "https://example.com"
  - name: heartbeat
    cron: "@every 30s"
    task_type: wait
    task_version: 1
    task_data:
      time: 1
`)))

	cfg := Load(v)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 10, cfg.MaxPerWindow)
	assert.Equal(t, time.Minute, cfg.RateWindow)

	probes, err := LoadProbes(v)
	require.NoError(t, err)
	require.Len(t, probes, 2)

	assert.Equal(t, "homepage", probes[0].Name)
	assert.Equal(t, "url_http_status", probes[0].Type)
	assert.Equal(t, 1, probes[0].Version)
	assert.Equal(t, "sla-homepage", probes[0].TestID)
	assert.Equal(t, 2*time.Minute, probes[0].Timeout)
	assert.Equal(t, "https://example.com", probes[0].Data["url"])
	for _, p := range probes {
		assert.NoError(t, p.Validate())
	}
}

func TestLoadProbes_Missing(t *testing.T) {
	probes, err := LoadProbes(viper.New())
	require.NoError(t, err)
	assert.Empty(t, probes)
}
