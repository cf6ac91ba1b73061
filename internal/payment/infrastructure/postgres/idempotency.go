package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmehra2102/payment-gateway/pkg/idempotency"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyStore keeps guard records in idempotency_records. The primary key
// on derived_key makes the first writer win.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (idempotency.Record, bool, error) {
	rec := idempotency.Record{Key: key}
	var canonical string
	err := s.pool.QueryRow(ctx, `SELECT status_code, response_body, headers, canonical_payload, created_at
		FROM idempotency_records WHERE derived_key=$1`, key).
		Scan(&rec.StatusCode, &rec.Body, &rec.Headers, &canonical, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return idempotency.Record{}, false, nil
	}
	if err != nil {
		return idempotency.Record{}, false, fmt.Errorf("get idempotency record: %w", err)
	}
	rec.CanonicalPayload = []byte(canonical)
	return rec, true, nil
}

func (s *IdempotencyStore) PutIfAbsent(ctx context.Context, rec idempotency.Record) (idempotency.Record, bool, error) {
	headers := rec.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	ct, err := s.pool.Exec(ctx, `INSERT INTO idempotency_records
		(derived_key, status_code, response_body, headers, canonical_payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (derived_key) DO NOTHING`,
		rec.Key, rec.StatusCode, rec.Body, headers, string(rec.CanonicalPayload), rec.CreatedAt)
	if err != nil {
		return idempotency.Record{}, false, fmt.Errorf("put idempotency record: %w", err)
	}
	if ct.RowsAffected() == 1 {
		return rec, true, nil
	}

	existing, ok, err := s.Get(ctx, rec.Key)
	if err != nil {
		return idempotency.Record{}, false, err
	}
	if !ok {
		return idempotency.Record{}, false, fmt.Errorf("idempotency record %s vanished after conflict", rec.Key)
	}
	return existing, false, nil
}
