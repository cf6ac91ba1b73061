package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Listen holds a dedicated connection on the outbox notification channel and
// signals the returned channel for every notification. It reconnects until
// ctx is done.
func Listen(ctx context.Context, log *slog.Logger, pool *pgxpool.Pool) <-chan struct{} {
	wake := make(chan struct{}, 1)
	go func() {
		for {
			err := listenOnce(ctx, pool, wake)
			if ctx.Err() != nil {
				return
			}
			log.Warn("outbox listener disconnected, retrying", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}()
	return wake
}

func listenOnce(ctx context.Context, pool *pgxpool.Pool, wake chan<- struct{}) error {
	conn, err := pgx.ConnectConfig(ctx, pool.Config().ConnConfig.Copy())
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close(context.WithoutCancel(ctx)) }()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return err
	}
	for {
		if _, err := conn.WaitForNotification(ctx); err != nil {
			return err
		}
		select {
		case wake <- struct{}{}:
		default:
		}
	}
}
