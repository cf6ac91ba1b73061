package outbox

import (
	"context"
	"log/slog"

	"github.com/dmehra2102/payment-gateway/pkg/tracing"
	"github.com/segmentio/kafka-go"
)

// Publisher forwards an event message to a broker.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type KafkaPublisher struct {
	log      *slog.Logger
	producer Producer
	topic    string
}

func NewKafkaPublisher(log *slog.Logger, producer Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{log: log, producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) error {
	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(msg.Type)},
		{Key: "message_id", Value: []byte(msg.ID.String())},
	}
	if msg.Traceparent != "" {
		headers = tracing.InjectKafkaHeaders(tracing.WithTraceparent(ctx, msg.Traceparent), headers)
	}

	km := kafka.Message{
		Topic:   p.topic,
		Key:     []byte(msg.AggregateID.String()),
		Value:   msg.Payload,
		Headers: headers,
	}
	if err := p.producer.WriteMessages(ctx, km); err != nil {
		p.log.Error("kafka publish failed", "message_id", msg.ID, "err", err)
		return err
	}
	p.log.Info("event published", "message_id", msg.ID, "type", msg.Type, "topic", p.topic)
	return nil
}
