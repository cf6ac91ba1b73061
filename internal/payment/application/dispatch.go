package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmehra2102/payment-gateway/internal/payment/domain"
	"github.com/dmehra2102/payment-gateway/pkg/outbox"
	"github.com/dmehra2102/payment-gateway/pkg/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type DispatchConfig struct {
	// CryptoConfirmations is recorded on a transaction when it is confirmed.
	CryptoConfirmations int
	// EmitEvents appends a PaymentStatusChanged message after every transition.
	EmitEvents bool
}

// Dispatcher resolves outbox messages against payments. Every path that
// finishes a message does so through PaymentRepository.CompleteDispatch, so
// the state change and the dispatched flag are written together. A returned
// error leaves the message undispatched for the relay to retry.
type Dispatcher struct {
	log       *slog.Logger
	repo      PaymentRepository
	psp       PSPClient
	publisher outbox.Publisher
	cfg       DispatchConfig
	now       func() time.Time
	tracer    trace.Tracer
}

// NewDispatcher builds a Dispatcher. publisher may be nil when no events broker
// is configured.
func NewDispatcher(log *slog.Logger, repo PaymentRepository, psp PSPClient, publisher outbox.Publisher, cfg DispatchConfig) *Dispatcher {
	if cfg.CryptoConfirmations < 1 {
		cfg.CryptoConfirmations = 1
	}
	return &Dispatcher{
		log:       log,
		repo:      repo,
		psp:       psp,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
		tracer:    otel.Tracer("payment-dispatcher"),
	}
}

func (d *Dispatcher) Handle(ctx context.Context, msg outbox.Message) error {
	ctx, span := d.tracer.Start(ctx, "dispatch."+msg.Type, trace.WithAttributes(
		attribute.String("payment.id", msg.AggregateID.String()),
	))
	defer span.End()

	if msg.Type == domain.MessagePaymentStatusChanged {
		return d.publish(ctx, msg)
	}

	p, err := d.repo.GetPayment(ctx, msg.AggregateID)
	if errors.Is(err, domain.ErrNotFound) {
		d.log.Warn("outbox message references missing payment, discarding",
			"message_id", msg.ID, "type", msg.Type, "payment_id", msg.AggregateID)
		return d.complete(ctx, msg, Completion{})
	}
	if err != nil {
		return fmt.Errorf("load payment: %w", err)
	}

	switch msg.Type {
	case domain.MessageAuthorize:
		return d.authorize(ctx, msg, p)
	case domain.MessageCryptoConfirm:
		return d.confirmCrypto(ctx, msg, p)
	default:
		d.log.Warn("unknown outbox message type, discarding", "message_id", msg.ID, "type", msg.Type)
		return d.complete(ctx, msg, Completion{})
	}
}

func (d *Dispatcher) authorize(ctx context.Context, msg outbox.Message, p *domain.Payment) error {
	if p.Status().Final() {
		d.log.Info("payment already final, skipping PSP call", "payment_id", p.ID(), "status", p.Status())
		return d.complete(ctx, msg, Completion{})
	}

	payload, err := domain.DecodeAuthorize(msg.Payload)
	if err != nil {
		return err
	}

	res, err := d.psp.Authorize(ctx, AuthorizeRequest{
		PaymentID:   p.ID(),
		Amount:      p.Amount(),
		Currency:    p.Currency(),
		SourceToken: payload.SourceToken,
	})
	now := d.now()
	switch {
	case errors.Is(err, ErrUnexpectedPSPResponse):
		d.log.Warn("unexpected PSP response, failing payment", "payment_id", p.ID(), "err", err)
		err = p.Fail(now)
	case err != nil:
		return fmt.Errorf("psp authorize: %w", err)
	case res.Authorized && res.AuthCode != "":
		err = p.Authorize(res.AuthCode, now)
	case !res.Authorized:
		d.log.Info("payment declined", "payment_id", p.ID(), "reason", res.Reason)
		err = p.Decline(now)
	default:
		d.log.Warn("PSP authorized without a code, failing payment", "payment_id", p.ID())
		err = p.Fail(now)
	}
	if err != nil {
		return err
	}
	return d.completeTransition(ctx, msg, Completion{Payment: p})
}

func (d *Dispatcher) confirmCrypto(ctx context.Context, msg outbox.Message, p *domain.Payment) error {
	payload, err := domain.DecodeCryptoConfirm(msg.Payload)
	if err != nil {
		return err
	}

	tx, err := d.repo.GetCryptoTransaction(ctx, p.ID())
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("load crypto transaction: %w", err)
	}
	if tx == nil || (payload.TxHash != "" && tx.TxHash() != payload.TxHash) {
		d.log.Warn("no crypto transaction to confirm", "message_id", msg.ID, "payment_id", p.ID(), "tx_hash", payload.TxHash)
		return d.complete(ctx, msg, Completion{})
	}

	now := d.now()
	c := Completion{}
	if err := tx.Confirm(d.cfg.CryptoConfirmations, now); err == nil {
		c.Crypto = tx
	} else if !errors.Is(err, domain.ErrAlreadyConfirmed) {
		return err
	}
	if err := p.Authorize(tx.TxHash(), now); err == nil {
		c.Payment = p
	} else if !errors.Is(err, domain.ErrFinalState) {
		return err
	}

	if c.Payment == nil {
		return d.complete(ctx, msg, c)
	}
	return d.completeTransition(ctx, msg, c)
}

func (d *Dispatcher) publish(ctx context.Context, msg outbox.Message) error {
	if d.publisher == nil {
		d.log.Warn("no events broker configured, dropping status event", "message_id", msg.ID)
		return d.complete(ctx, msg, Completion{})
	}
	if err := d.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish status event: %w", err)
	}
	return d.complete(ctx, msg, Completion{})
}

// completeTransition also enqueues the status event for c.Payment when enabled.
func (d *Dispatcher) completeTransition(ctx context.Context, msg outbox.Message, c Completion) error {
	if d.cfg.EmitEvents {
		ev, err := outbox.NewMessage(c.Payment.ID(), domain.MessagePaymentStatusChanged,
			domain.StatusChangedFrom(c.Payment), tracing.Traceparent(ctx), d.now())
		if err != nil {
			return err
		}
		c.FollowUps = append(c.FollowUps, ev)
	}
	if err := d.complete(ctx, msg, c); err != nil {
		return err
	}
	d.log.Info("payment transitioned", "payment_id", c.Payment.ID(), "status", c.Payment.Status(), "message_id", msg.ID)
	return nil
}

func (d *Dispatcher) complete(ctx context.Context, msg outbox.Message, c Completion) error {
	if err := d.repo.CompleteDispatch(ctx, msg, c); err != nil {
		return fmt.Errorf("complete dispatch: %w", err)
	}
	return nil
}
