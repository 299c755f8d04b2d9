package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// Producer writes keyed messages. Trace context from ctx travels in the
// message headers.
type Producer interface {
	Publish(ctx context.Context, msgs ...Message) error
	Close() error
}

type writer struct {
	w   *kafka.Writer
	now func() time.Time
}

// NewProducer returns a Producer for the given brokers. Messages sharing a
// key land on the same partition, so one agent's events keep their order.
// Topics are created on first write.
func NewProducer(brokers []string) Producer {
	return &writer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			BatchTimeout:           50 * time.Millisecond,
			MaxAttempts:            3,
			WriteTimeout:           5 * time.Second,
			AllowAutoTopicCreation: true,
		},
		now: time.Now,
	}
}

func (p *writer) Publish(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	var headers HeaderCarrier
	otel.GetTextMapPropagator().Inject(ctx, &headers)

	out := make([]kafka.Message, len(msgs))
	for i, m := range msgs {
		out[i] = kafka.Message{
			Topic:   m.Topic,
			Key:     m.Key,
			Value:   m.Value,
			Headers: headers,
			Time:    p.now(),
		}
	}
	if err := p.w.WriteMessages(ctx, out...); err != nil {
		return fmt.Errorf("kafka write to %s: %w", msgs[0].Topic, err)
	}
	return nil
}

func (p *writer) Close() error { return p.w.Close() }
