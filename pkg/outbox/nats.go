package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmehra2102/payment-gateway/pkg/tracing"
	"github.com/nats-io/nats.go"
)

// FlushWithContext refuses a context without a deadline.
const flushTimeout = 5 * time.Second

type NATSConn interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
}

type NATSPublisher struct {
	log     *slog.Logger
	conn    NATSConn
	subject string
}

func NewNATSPublisher(log *slog.Logger, conn NATSConn, subject string) *NATSPublisher {
	return &NATSPublisher{log: log, conn: conn, subject: subject}
}

// Publish flushes before returning so the message is on the server when the
// caller marks it dispatched.
func (p *NATSPublisher) Publish(ctx context.Context, msg Message) error {
	m := nats.NewMsg(p.subject)
	m.Data = msg.Payload
	m.Header.Set("Event-Type", msg.Type)
	m.Header.Set("Nats-Msg-Id", msg.ID.String())
	m.Header.Set("Aggregate-Id", msg.AggregateID.String())
	if msg.Traceparent != "" {
		m.Header.Set(tracing.TraceparentHeader, msg.Traceparent)
	}

	if err := p.conn.PublishMsg(m); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	p.log.Info("event published", "message_id", msg.ID, "type", msg.Type, "subject", p.subject)
	return nil
}
