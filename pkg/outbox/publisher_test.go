package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmehra2102/payment-gateway/pkg/logging"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const testTraceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

type fakeProducer struct {
	msgs []kafka.Message
	err  error
}

func (p *fakeProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func statusMessage(t *testing.T) Message {
	t.Helper()
	m, err := NewMessage(uuid.New(), "PaymentStatusChanged", map[string]string{"status": "Authorized"}, testTraceparent, time.Now())
	require.NoError(t, err)
	return m
}

func TestKafkaPublisher_Publish(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	prod := &fakeProducer{}
	p := NewKafkaPublisher(logging.Discard(), prod, "payment.events")
	m := statusMessage(t)

	require.NoError(t, p.Publish(context.Background(), m))
	require.Len(t, prod.msgs, 1)

	km := prod.msgs[0]
	assert.Equal(t, "payment.events", km.Topic)
	assert.Equal(t, m.AggregateID.String(), string(km.Key))
	assert.JSONEq(t, `{"status":"Authorized"}`, string(km.Value))

	headers := map[string]string{}
	for _, h := range km.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "PaymentStatusChanged", headers["event_type"])
	assert.Equal(t, m.ID.String(), headers["message_id"])
	assert.Equal(t, testTraceparent, headers["traceparent"])
}

func TestKafkaPublisher_Error(t *testing.T) {
	p := NewKafkaPublisher(logging.Discard(), &fakeProducer{err: errors.New("broker down")}, "t")
	assert.Error(t, p.Publish(context.Background(), statusMessage(t)))
}

type fakeNATS struct {
	sent        []*nats.Msg
	hadDeadline bool
}

func (c *fakeNATS) PublishMsg(m *nats.Msg) error {
	c.sent = append(c.sent, m)
	return nil
}

func (c *fakeNATS) FlushWithContext(ctx context.Context) error {
	_, c.hadDeadline = ctx.Deadline()
	return nil
}

func TestNATSPublisher_Publish(t *testing.T) {
	conn := &fakeNATS{}
	p := NewNATSPublisher(logging.Discard(), conn, "payment.events")
	m := statusMessage(t)

	require.NoError(t, p.Publish(context.Background(), m))
	require.Len(t, conn.sent, 1)
	assert.True(t, conn.hadDeadline)

	sent := conn.sent[0]
	assert.Equal(t, "payment.events", sent.Subject)
	assert.Equal(t, "PaymentStatusChanged", sent.Header.Get("Event-Type"))
	assert.Equal(t, m.ID.String(), sent.Header.Get("Nats-Msg-Id"))
	assert.Equal(t, testTraceparent, sent.Header.Get("traceparent"))
}
