package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// Message wraps a Kafka message with the fields consumers need.
type Message struct {
	Topic  string
	Key    []byte
	Value  []byte
	Offset int64
}

// HandlerFunc processes a single Kafka message. Returning an error leaves
// the offset uncommitted.
type HandlerFunc func(ctx context.Context, msg Message) error

// Consumer reads messages from a Kafka topic.
type Consumer interface {
	Subscribe(ctx context.Context, handler HandlerFunc) error
	Close() error
}

type consumer struct {
	reader  *kafka.Reader
	grouped bool
	logger  *slog.Logger
}

// NewConsumer creates a consumer for topic. With a groupID, offsets are
// committed after each handled message and reading resumes where the group
// left off. Without one, the consumer tails partition 0 from the newest
// message and never commits, which suits one-off observers.
func NewConsumer(brokers []string, topic, groupID string, logger *slog.Logger) Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6, // 10 MB
		MaxWait:  500 * time.Millisecond,
	}
	if groupID != "" {
		cfg.GroupID = groupID
		cfg.CommitInterval = 0 // manual commit only
		cfg.StartOffset = kafka.FirstOffset
	} else {
		cfg.StartOffset = kafka.LastOffset
	}
	return &consumer{reader: kafka.NewReader(cfg), grouped: groupID != "", logger: logger}
}

// Subscribe reads messages in a loop until ctx is cancelled.
func (c *consumer) Subscribe(ctx context.Context, handler HandlerFunc) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}

		carrier := HeaderCarrier(m.Headers)
		msgCtx := otel.GetTextMapPropagator().Extract(ctx, &carrier)

		msg := Message{Topic: m.Topic, Key: m.Key, Value: m.Value, Offset: m.Offset}
		if err := handler(msgCtx, msg); err != nil {
			c.logger.Warn("kafka message handler failed",
				slog.String("topic", m.Topic),
				slog.Int64("offset", m.Offset),
				slog.String("error", err.Error()),
			)
			continue
		}

		if !c.grouped {
			continue
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.logger.Error("failed to commit kafka offset",
				slog.String("topic", m.Topic),
				slog.Int64("offset", m.Offset),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (c *consumer) Close() error {
	return c.reader.Close()
}
