package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const notifyChannel = "outbox_messages"

// Column widths follow the domain field limits (domain.Max*Len).
var schema = []string{
	`CREATE TABLE IF NOT EXISTS payments (
		id           UUID PRIMARY KEY,
		amount       BIGINT NOT NULL CHECK (amount > 0),
		currency     VARCHAR(32) NOT NULL,
		merchant_ref VARCHAR(200) NOT NULL,
		status       VARCHAR(16) NOT NULL,
		auth_code    VARCHAR(200),
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_payments_merchant_ref ON payments (merchant_ref)`,
	`CREATE TABLE IF NOT EXISTS crypto_transactions (
		id              UUID PRIMARY KEY,
		payment_id      UUID NOT NULL UNIQUE REFERENCES payments (id) ON DELETE CASCADE,
		crypto_currency VARCHAR(32) NOT NULL,
		network         VARCHAR(32) NOT NULL,
		from_wallet     VARCHAR(128) NOT NULL,
		tx_hash         VARCHAR(128) NOT NULL UNIQUE,
		status          VARCHAR(16) NOT NULL,
		confirmations   INT NOT NULL DEFAULT 0,
		created_at      TIMESTAMPTZ NOT NULL,
		confirmed_at    TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_messages (
		id             UUID PRIMARY KEY,
		aggregate_id   UUID NOT NULL,
		type           VARCHAR(100) NOT NULL,
		payload        JSONB NOT NULL,
		traceparent    VARCHAR(64),
		dispatched     BOOLEAN NOT NULL DEFAULT FALSE,
		dispatched_at  TIMESTAMPTZ,
		attempts       INT NOT NULL DEFAULT 0,
		last_error     TEXT,
		claimed_by     VARCHAR(128),
		lease_until    TIMESTAMPTZ,
		quarantined_at TIMESTAMPTZ,
		created_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_outbox_pending ON outbox_messages (dispatched, created_at)`,
	`CREATE TABLE IF NOT EXISTS idempotency_records (
		derived_key       CHAR(64) PRIMARY KEY,
		status_code       INT NOT NULL,
		response_body     BYTEA NOT NULL,
		headers           JSONB NOT NULL DEFAULT '{}',
		canonical_payload TEXT NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate creates the schema if it is missing. Safe to run on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}
