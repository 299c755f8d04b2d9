package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the agent.
type Config struct {
	LogLevel string
	LogFile  string

	BrokerURL       string
	AgentID         string
	AgentName       string
	Concurrency     int
	Backoff         time.Duration
	TaskTimeout     time.Duration
	ResultPolicy    string
	ResultRetryBase time.Duration
	ResultRetryMax  time.Duration
	ShutdownTimeout time.Duration
	HTTPTimeout     time.Duration

	Location *Location

	EventBus     string
	EventPrefix  string
	RedisURL     string
	NATSURL      string
	KafkaBrokers []string
	KafkaGroupID string
	StateStore   bool
	PostgresDSN  string
	MetricsAddr  string
	OTelEndpoint string
}

// Location is the optional agent_location block.
type Location struct {
	Country   string
	Region    string
	Latitude  *float64
	Longitude *float64
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:        v.GetString("log_level"),
		LogFile:         v.GetString("log_file"),
		BrokerURL:       v.GetString("broker_url"),
		AgentID:         v.GetString("agent_id"),
		AgentName:       v.GetString("agent_name"),
		Concurrency:     v.GetInt("concurrency"),
		Backoff:         v.GetDuration("backoff"),
		TaskTimeout:     v.GetDuration("task_timeout"),
		ResultPolicy:    v.GetString("result_policy"),
		ResultRetryBase: v.GetDuration("result_retry_base"),
		ResultRetryMax:  v.GetDuration("result_retry_max"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		HTTPTimeout:     v.GetDuration("http_timeout"),
		Location:        loadLocation(v),
		EventBus:        v.GetString("event_bus"),
		EventPrefix:     v.GetString("event_prefix"),
		RedisURL:        v.GetString("redis_url"),
		NATSURL:         v.GetString("nats_url"),
		KafkaBrokers:    splitList(v.GetString("kafka_brokers")),
		KafkaGroupID:    v.GetString("kafka_group_id"),
		StateStore:      v.GetBool("state_store"),
		PostgresDSN:     v.GetString("postgres_dsn"),
		MetricsAddr:     v.GetString("metrics_addr"),
		OTelEndpoint:    v.GetString("otel_endpoint"),
	}
}

// Validate reports configuration the agent cannot start with.
func (c Config) Validate() error {
	if c.BrokerURL == "" {
		return fmt.Errorf("broker_url is required")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.Location != nil && (c.Location.Latitude == nil) != (c.Location.Longitude == nil) {
		return fmt.Errorf("agent_location needs both latitude and longitude, or neither")
	}
	return nil
}

func loadLocation(v *viper.Viper) *Location {
	if !v.IsSet("agent_location") {
		return nil
	}
	loc := &Location{
		Country: v.GetString("agent_location.country"),
		Region:  v.GetString("agent_location.region"),
	}
	if v.IsSet("agent_location.latitude") {
		lat := v.GetFloat64("agent_location.latitude")
		loc.Latitude = &lat
	}
	if v.IsSet("agent_location.longitude") {
		lon := v.GetFloat64("agent_location.longitude")
		loc.Longitude = &lon
	}
	if loc.Country == "" && loc.Region == "" && loc.Latitude == nil && loc.Longitude == nil {
		return nil
	}
	return loc
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
