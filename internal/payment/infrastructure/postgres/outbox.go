package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmehra2102/payment-gateway/pkg/outbox"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OutboxStore struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewOutboxStore(log *slog.Logger, pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{log: log, pool: pool}
}

const messageColumns = `id, aggregate_id, type, payload, COALESCE(traceparent, ''), dispatched, attempts,
	COALESCE(last_error, ''), COALESCE(claimed_by, ''), created_at, dispatched_at, quarantined_at`

func scanMessage(row pgx.Row) (outbox.Message, error) {
	var m outbox.Message
	err := row.Scan(&m.ID, &m.AggregateID, &m.Type, &m.Payload, &m.Traceparent, &m.Dispatched, &m.Attempts,
		&m.LastError, &m.ClaimedBy, &m.CreatedAt, &m.DispatchedAt, &m.QuarantinedAt)
	return m, err
}

// Claim leases the oldest claimable message. Rows locked by a concurrent
// claim are skipped rather than waited on.
func (s *OutboxStore) Claim(ctx context.Context, relayID string, lease time.Duration) (outbox.Message, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE outbox_messages
		SET claimed_by = $1, lease_until = now() + make_interval(secs => $2)
		WHERE id = (
			SELECT id FROM outbox_messages
			WHERE dispatched = FALSE
			  AND quarantined_at IS NULL
			  AND (lease_until IS NULL OR lease_until < now())
			ORDER BY created_at, id
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+messageColumns, relayID, lease.Seconds())

	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return outbox.Message{}, outbox.ErrNoMessage
	}
	if err != nil {
		return outbox.Message{}, fmt.Errorf("claim outbox message: %w", err)
	}
	return m, nil
}

func (s *OutboxStore) Release(ctx context.Context, msg outbox.Message, relayID, cause string, quarantine bool) error {
	ct, err := s.pool.Exec(ctx, `UPDATE outbox_messages
		SET attempts = attempts + 1, last_error = $3, claimed_by = NULL, lease_until = NULL,
		    quarantined_at = CASE WHEN $4 THEN now() ELSE NULL END
		WHERE id = $1 AND claimed_by = $2 AND dispatched = FALSE`, msg.ID, relayID, cause, quarantine)
	if err != nil {
		return fmt.Errorf("release outbox message: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return outbox.ErrLeaseLost
	}
	return nil
}

func (s *OutboxStore) Pending(ctx context.Context, limit int) ([]outbox.Message, error) {
	return s.list(ctx, `SELECT `+messageColumns+` FROM outbox_messages
		WHERE dispatched = FALSE AND quarantined_at IS NULL
		ORDER BY created_at, id LIMIT $1`, limit)
}

func (s *OutboxStore) Quarantined(ctx context.Context, limit int) ([]outbox.Message, error) {
	return s.list(ctx, `SELECT `+messageColumns+` FROM outbox_messages
		WHERE dispatched = FALSE AND quarantined_at IS NOT NULL
		ORDER BY quarantined_at, id LIMIT $1`, limit)
}

func (s *OutboxStore) Requeue(ctx context.Context, id uuid.UUID) (bool, error) {
	ct, err := s.pool.Exec(ctx, `UPDATE outbox_messages
		SET quarantined_at = NULL, attempts = 0, claimed_by = NULL, lease_until = NULL
		WHERE id = $1 AND dispatched = FALSE AND quarantined_at IS NOT NULL`, id)
	if err != nil {
		return false, fmt.Errorf("requeue outbox message: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return false, nil
	}
	if _, err := s.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, id.String()); err != nil {
		s.log.Warn("requeue notify failed", "message_id", id, "err", err)
	}
	return true, nil
}

func (s *OutboxStore) list(ctx context.Context, query string, limit int) ([]outbox.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []outbox.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
