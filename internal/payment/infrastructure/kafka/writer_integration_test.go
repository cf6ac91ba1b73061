//go:build integration

package kafka_test

import (
	"context"
	"testing"
	"time"

	"github.com/dmehra2102/payment-gateway/internal/payment/domain"
	paymentkafka "github.com/dmehra2102/payment-gateway/internal/payment/infrastructure/kafka"
	"github.com/dmehra2102/payment-gateway/internal/testenv"
	"github.com/dmehra2102/payment-gateway/pkg/logging"
	"github.com/dmehra2102/payment-gateway/pkg/outbox"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestPublishStatusChanged(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	brokers := testenv.Kafka(t)
	const topic = "payment.events.it"

	writer := paymentkafka.NewWriter(brokers)
	t.Cleanup(func() { _ = writer.Close() })
	pub := outbox.NewKafkaPublisher(logging.Discard(), writer, topic)

	paymentID := uuid.New()
	msg, err := outbox.NewMessage(paymentID, domain.MessagePaymentStatusChanged,
		domain.PaymentStatusChanged{PaymentID: paymentID, Status: domain.StatusAuthorized, AuthCode: "AUTH-1"},
		"00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", time.Now())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// the first write may race topic auto-creation
	require.Eventually(t, func() bool { return pub.Publish(ctx, msg) == nil }, 30*time.Second, time.Second)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: "payment-events-it",
	})
	t.Cleanup(func() { _ = reader.Close() })

	got, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, paymentID.String(), string(got.Key))
	assert.JSONEq(t, string(msg.Payload), string(got.Value))

	headers := map[string]string{}
	for _, h := range got.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, domain.MessagePaymentStatusChanged, headers["event_type"])
	assert.Equal(t, msg.ID.String(), headers["message_id"])
	assert.Equal(t, msg.Traceparent, headers["traceparent"])
}
