package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/SLAMon/SLAMon/internal/kafka"
)

// KafkaBus publishes events to Kafka topics named after the subject. The
// event source is the message key.
type KafkaBus struct {
	brokers  []string
	groupID  string
	producer kafka.Producer
	logger   *slog.Logger
}

// NewKafkaBus creates a KafkaBus. Subscribers share groupID; leave it empty
// for tail-style subscriptions that start at the newest message.
func NewKafkaBus(brokers []string, groupID string, logger *slog.Logger) *KafkaBus {
	return &KafkaBus{
		brokers:  brokers,
		groupID:  groupID,
		producer: kafka.NewProducer(brokers),
		logger:   logger,
	}
}

func (b *KafkaBus) Publish(ctx context.Context, subject string, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.producer.Publish(ctx, kafka.Message{Topic: subject, Key: []byte(ev.Source), Value: raw})
}

func (b *KafkaBus) Subscribe(ctx context.Context, subject string) (<-chan Event, func(), error) {
	consumer := kafka.NewConsumer(b.brokers, subject, b.groupID, b.logger)
	subCtx, cancel := context.WithCancel(ctx)
	out := make(chan Event, 32)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(out)
		err := consumer.Subscribe(subCtx, func(_ context.Context, msg kafka.Message) error {
			ev, err := ParseEvent(msg.Value)
			if err != nil {
				return err
			}
			select {
			case out <- ev:
			default:
			}
			return nil
		})
		if err != nil {
			b.logger.Error("kafka subscription ended", slog.String("topic", subject), slog.String("error", err.Error()))
		}
	}()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			cancel()
			wg.Wait()
			_ = consumer.Close()
		})
	}
	return out, unsubscribe, nil
}

func (b *KafkaBus) Close() error {
	return b.producer.Close()
}
