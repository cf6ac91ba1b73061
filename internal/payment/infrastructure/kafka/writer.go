package kafka

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// NewWriter returns a producer for status events. Messages keyed by payment id
// land on the same partition, so consumers see one payment's transitions in
// order.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
}
