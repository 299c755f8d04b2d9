package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/SLAMon/SLAMon/services/scheduler"
)

// Config holds typed configuration for the submitter.
type Config struct {
	LogLevel       string
	LogFile        string
	BrokerURL      string
	PollInterval   time.Duration
	RequestTimeout time.Duration
	MetricsAddr    string
	OTelEndpoint   string

	// Scheduling
	RedisURL       string
	LeaderElection bool
	LeaderTTL      time.Duration
	MaxPerWindow   int
	RateWindow     time.Duration
	RunTimeout     time.Duration
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:       v.GetString("log_level"),
		LogFile:        v.GetString("log_file"),
		BrokerURL:      v.GetString("broker_url"),
		PollInterval:   v.GetDuration("poll_interval"),
		RequestTimeout: v.GetDuration("request_timeout"),
		MetricsAddr:    v.GetString("metrics_addr"),
		OTelEndpoint:   v.GetString("otel_endpoint"),
		RedisURL:       v.GetString("redis_url"),
		LeaderElection: v.GetBool("leader_election"),
		LeaderTTL:      v.GetDuration("leader_ttl"),
		MaxPerWindow:   v.GetInt("max_per_window"),
		RateWindow:     v.GetDuration("rate_window"),
		RunTimeout:     v.GetDuration("run_timeout"),
	}
}

// LoadProbes reads the probes list from the config file.
func LoadProbes(v *viper.Viper) ([]scheduler.Probe, error) {
	var probes []scheduler.Probe
	if err := v.UnmarshalKey("probes", &probes); err != nil {
		return nil, fmt.Errorf("decode probes: %w", err)
	}
	return probes, nil
}
