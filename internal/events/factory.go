package events

import (
	"fmt"
	"log/slog"
	"strings"
)

// BusConfig selects and addresses an event bus backend.
type BusConfig struct {
	// Kind is one of none, memory, redis, nats, kafka.
	Kind         string
	RedisURL     string
	NATSURL      string
	KafkaBrokers []string
	KafkaGroupID string
}

// NewBus builds the configured Bus. Kind "none" (or empty) returns nil.
func NewBus(cfg BusConfig, logger *slog.Logger) (Bus, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryBus(), nil
	case "redis":
		return NewRedisBus(cfg.RedisURL)
	case "nats":
		return NewNATSBus(cfg.NATSURL)
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("kafka event bus requires at least one broker")
		}
		return NewKafkaBus(cfg.KafkaBrokers, cfg.KafkaGroupID, logger), nil
	default:
		return nil, fmt.Errorf("unknown event bus %q (want none, memory, redis, nats or kafka)", cfg.Kind)
	}
}
