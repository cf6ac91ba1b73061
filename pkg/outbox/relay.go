package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmehra2102/payment-gateway/pkg/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Store interface {
	// Claim leases the oldest undispatched, unquarantined message to relayID.
	Claim(ctx context.Context, relayID string, lease time.Duration) (Message, error)
	// Release drops the claim after a failed attempt, recording cause and
	// bumping the attempt counter. quarantine parks the message for good.
	Release(ctx context.Context, msg Message, relayID, cause string, quarantine bool) error
}

// Handler resolves one message. It is responsible for marking the message
// dispatched together with whatever state change it makes.
type Handler interface {
	Handle(ctx context.Context, msg Message) error
}

type HandlerFunc func(ctx context.Context, msg Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg Message) error { return f(ctx, msg) }

type Relay struct {
	log         *slog.Logger
	store       Store
	handler     Handler
	relayID     string
	interval    time.Duration
	lease       time.Duration
	maxAttempts int
	wake        <-chan struct{}
	tracer      trace.Tracer
}

type Option func(*Relay)

func WithInterval(d time.Duration) Option { return func(r *Relay) { r.interval = d } }

func WithLease(d time.Duration) Option { return func(r *Relay) { r.lease = d } }

// WithMaxAttempts quarantines a message after n failed attempts. Zero retries forever.
func WithMaxAttempts(n int) Option { return func(r *Relay) { r.maxAttempts = n } }

// WithWakeup lets a change notification cut the idle sleep short.
func WithWakeup(ch <-chan struct{}) Option { return func(r *Relay) { r.wake = ch } }

func NewRelay(log *slog.Logger, store Store, handler Handler, relayID string, opts ...Option) *Relay {
	r := &Relay{
		log:         log,
		store:       store,
		handler:     handler,
		relayID:     relayID,
		interval:    2 * time.Second,
		lease:       30 * time.Second,
		maxAttempts: 10,
		tracer:      otel.Tracer("outbox-relay"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes messages one at a time, oldest first, until ctx is done.
// Cancellation is only observed between messages.
func (r *Relay) Run(ctx context.Context) error {
	r.log.Info("relay started", "relay_id", r.relayID, "interval", r.interval, "max_attempts", r.maxAttempts)
	for {
		if ctx.Err() != nil {
			r.log.Info("relay stopping", "relay_id", r.relayID)
			return nil
		}

		processed, err := r.RunOnce(ctx)
		if err != nil {
			r.log.Error("relay iteration failed", "relay_id", r.relayID, "err", err)
		}
		if processed && err == nil {
			continue
		}
		r.wait(ctx, err == nil)
	}
}

// RunOnce claims and handles at most one message. processed is false when
// the queue was empty.
func (r *Relay) RunOnce(ctx context.Context) (processed bool, err error) {
	msg, err := r.store.Claim(ctx, r.relayID, r.lease)
	if errors.Is(err, ErrNoMessage) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	// an in-flight handler finishes even if shutdown starts
	hctx := tracing.WithTraceparent(context.WithoutCancel(ctx), msg.Traceparent)
	hctx, span := r.tracer.Start(hctx, "outbox.handle", trace.WithAttributes(
		attribute.String("outbox.message_id", msg.ID.String()),
		attribute.String("outbox.type", msg.Type),
		attribute.Int("outbox.attempts", msg.Attempts),
	))
	defer span.End()

	herr := r.handler.Handle(hctx, msg)
	if herr == nil {
		return true, nil
	}
	span.RecordError(herr)
	span.SetStatus(codes.Error, herr.Error())

	if errors.Is(herr, ErrLeaseLost) {
		r.log.Warn("outbox lease lost", "message_id", msg.ID, "relay_id", r.relayID)
		return true, nil
	}

	attempts := msg.Attempts + 1
	quarantine := r.maxAttempts > 0 && attempts >= r.maxAttempts
	if rerr := r.store.Release(hctx, msg, r.relayID, herr.Error(), quarantine); rerr != nil {
		return true, errors.Join(herr, rerr)
	}
	if quarantine {
		r.log.Warn("outbox message quarantined",
			"message_id", msg.ID, "type", msg.Type, "aggregate_id", msg.AggregateID, "attempts", attempts, "err", herr)
		return true, nil
	}
	return true, herr
}

func (r *Relay) wait(ctx context.Context, wakeable bool) {
	var wake <-chan struct{}
	if wakeable {
		wake = r.wake
	}
	t := time.NewTimer(r.interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	case <-wake:
	}
}
