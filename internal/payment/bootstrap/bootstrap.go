// Package bootstrap turns a config.Config into the wired components shared by
// the gateway, the standalone worker and outboxctl.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmehra2102/payment-gateway/internal/payment/application"
	paymentkafka "github.com/dmehra2102/payment-gateway/internal/payment/infrastructure/kafka"
	"github.com/dmehra2102/payment-gateway/internal/payment/infrastructure/memory"
	"github.com/dmehra2102/payment-gateway/internal/payment/infrastructure/postgres"
	"github.com/dmehra2102/payment-gateway/internal/payment/infrastructure/psp"
	"github.com/dmehra2102/payment-gateway/pkg/config"
	"github.com/dmehra2102/payment-gateway/pkg/idempotency"
	"github.com/dmehra2102/payment-gateway/pkg/outbox"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

type Stores struct {
	Repo   application.PaymentRepository
	Outbox outbox.Store
	Admin  outbox.Admin

	// Pool is nil for the memory driver.
	Pool *pgxpool.Pool
	mem  *memory.Store
}

func OpenStores(ctx context.Context, log *slog.Logger, cfg config.Config) (*Stores, error) {
	if cfg.Store.Driver == "memory" {
		m := memory.NewStore()
		log.Warn("using in-memory store, state is lost on exit")
		return &Stores{Repo: m, Outbox: m, Admin: m, mem: m}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Store.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("pg connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg ping: %w", err)
	}
	if cfg.Store.AutoMigrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("schema migrated")
	}

	ob := postgres.NewOutboxStore(log, pool)
	return &Stores{
		Repo:   postgres.NewRepository(log, pool),
		Outbox: ob,
		Admin:  ob,
		Pool:   pool,
	}, nil
}

func (s *Stores) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// Wakeups returns the channel that nudges the relay when new messages are
// committed, or nil when polling is the only option.
func (s *Stores) Wakeups(ctx context.Context, log *slog.Logger, cfg config.Config) <-chan struct{} {
	switch {
	case s.mem != nil:
		return s.mem.Wakeups()
	case s.Pool != nil && cfg.Worker.Listen:
		return postgres.Listen(ctx, log, s.Pool)
	default:
		return nil
	}
}

// Guard builds the idempotency guard. The returned func releases whatever
// backends were opened for it.
func (s *Stores) Guard(ctx context.Context, log *slog.Logger, cfg config.Config) (*idempotency.Guard, func(), error) {
	var (
		records idempotency.Store
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Idempotency.Backend {
	case "postgres":
		records = postgres.NewIdempotencyStore(s.Pool)
	case "bolt":
		b, err := idempotency.OpenBoltStore(cfg.Idempotency.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { _ = b.Close() })
		records = b
	default:
		records = idempotency.NewMemoryStore()
	}

	var locker idempotency.Locker
	switch cfg.Idempotency.Locker {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		closers = append(closers, func() { _ = rdb.Close() })
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			// the guard fails open on lock errors, so keep going
			log.Warn("redis unreachable, in-flight locking degraded", "addr", cfg.Redis.Addr, "err", err)
		}
		locker = idempotency.NewRedisLocker(rdb)
	case "memory":
		locker = idempotency.NewMemoryLocker()
	}

	guard := idempotency.NewGuard(log, records, locker, idempotency.Options{
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		LockTTL:      cfg.Idempotency.LockTTL,
		InFlightWait: cfg.Idempotency.InFlightWait,
		PollInterval: cfg.Idempotency.PollInterval,
	})
	return guard, closeAll, nil
}

// Publisher connects the configured events broker. It returns a nil
// Publisher when events are disabled.
func Publisher(log *slog.Logger, cfg config.Config) (outbox.Publisher, func(), error) {
	switch cfg.Events.Broker {
	case "kafka":
		w := paymentkafka.NewWriter([]string{cfg.Events.KafkaAddr})
		return outbox.NewKafkaPublisher(log, w, cfg.Events.Topic), func() { _ = w.Close() }, nil
	case "nats":
		nc, err := nats.Connect(cfg.Events.NATSURL, nats.Name(cfg.Service))
		if err != nil {
			return nil, nil, fmt.Errorf("nats connect: %w", err)
		}
		return outbox.NewNATSPublisher(log, nc, cfg.Events.Subject), nc.Close, nil
	default:
		return nil, func() {}, nil
	}
}

// Relay wires the dispatcher, PSP client and publisher behind an outbox relay.
func (s *Stores) Relay(ctx context.Context, log *slog.Logger, cfg config.Config) (*outbox.Relay, func(), error) {
	pub, closePub, err := Publisher(log, cfg)
	if err != nil {
		return nil, nil, err
	}
	dispatcher := application.NewDispatcher(log, s.Repo, psp.NewClient(cfg.PSP.BaseURL, cfg.PSP.Timeout), pub,
		application.DispatchConfig{
			CryptoConfirmations: cfg.Worker.CryptoConfirmations,
			EmitEvents:          cfg.Events.Enabled(),
		})

	relay := outbox.NewRelay(log, s.Outbox, dispatcher, cfg.Worker.RelayID,
		outbox.WithInterval(cfg.Worker.PollInterval),
		outbox.WithLease(cfg.Worker.Lease),
		outbox.WithMaxAttempts(cfg.Worker.MaxAttempts),
		outbox.WithWakeup(s.Wakeups(ctx, log, cfg)),
	)
	return relay, closePub, nil
}
