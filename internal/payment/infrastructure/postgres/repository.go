package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmehra2102/payment-gateway/internal/payment/application"
	"github.com/dmehra2102/payment-gateway/internal/payment/domain"
	"github.com/dmehra2102/payment-gateway/pkg/outbox"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) CreatePayment(ctx context.Context, p *domain.Payment, msgs ...outbox.Message) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := insertPayment(ctx, tx, p); err != nil {
			return err
		}
		return insertMessages(ctx, tx, msgs)
	})
}

func (r *Repository) CreateCryptoPayment(ctx context.Context, p *domain.Payment, ct *domain.CryptoTransaction, msgs ...outbox.Message) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := insertPayment(ctx, tx, p); err != nil {
			return err
		}
		s := ct.Snapshot()
		_, err := tx.Exec(ctx, `INSERT INTO crypto_transactions
			(id, payment_id, crypto_currency, network, from_wallet, tx_hash, status, confirmations, created_at, confirmed_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			s.ID, s.PaymentID, s.CryptoCurrency, s.Network, s.FromWallet, s.TxHash, string(s.Status), s.Confirmations, s.CreatedAt, s.ConfirmedAt)
		if err != nil {
			return fmt.Errorf("insert crypto transaction: %w", err)
		}
		return insertMessages(ctx, tx, msgs)
	})
}

func (r *Repository) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	var (
		s        domain.PaymentSnapshot
		status   string
		authCode *string
	)
	err := r.pool.QueryRow(ctx, `SELECT id, amount, currency, merchant_ref, status, auth_code, created_at, updated_at
		FROM payments WHERE id=$1`, id).
		Scan(&s.ID, &s.Amount, &s.Currency, &s.MerchantRef, &status, &authCode, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Status = domain.Status(status)
	if authCode != nil {
		s.AuthCode = *authCode
	}
	return domain.RestorePayment(s)
}

func (r *Repository) GetCryptoTransaction(ctx context.Context, paymentID uuid.UUID) (*domain.CryptoTransaction, error) {
	var (
		s      domain.CryptoSnapshot
		status string
	)
	err := r.pool.QueryRow(ctx, `SELECT id, payment_id, crypto_currency, network, from_wallet, tx_hash, status, confirmations, created_at, confirmed_at
		FROM crypto_transactions WHERE payment_id=$1`, paymentID).
		Scan(&s.ID, &s.PaymentID, &s.CryptoCurrency, &s.Network, &s.FromWallet, &s.TxHash, &status, &s.Confirmations, &s.CreatedAt, &s.ConfirmedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Status = domain.CryptoStatus(status)
	return domain.RestoreCryptoTransaction(s)
}

func (r *Repository) CompleteDispatch(ctx context.Context, msg outbox.Message, c application.Completion) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `UPDATE outbox_messages
			SET dispatched = TRUE, dispatched_at = now(), claimed_by = NULL, lease_until = NULL
			WHERE id = $1 AND claimed_by = $2 AND dispatched = FALSE`, msg.ID, msg.ClaimedBy)
		if err != nil {
			return fmt.Errorf("mark dispatched: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return outbox.ErrLeaseLost
		}

		if c.Payment != nil {
			s := c.Payment.Snapshot()
			ct, err := tx.Exec(ctx, `UPDATE payments SET status=$2, auth_code=NULLIF($3, ''), updated_at=$4
				WHERE id=$1 AND status=$5`, s.ID, string(s.Status), s.AuthCode, s.UpdatedAt, string(domain.StatusPending))
			if err != nil {
				return fmt.Errorf("update payment: %w", err)
			}
			if ct.RowsAffected() == 0 {
				return fmt.Errorf("%w: %s changed concurrently", domain.ErrFinalState, s.ID)
			}
		}
		if c.Crypto != nil {
			s := c.Crypto.Snapshot()
			ct, err := tx.Exec(ctx, `UPDATE crypto_transactions SET status=$2, confirmations=$3, confirmed_at=$4
				WHERE id=$1 AND status=$5`, s.ID, string(s.Status), s.Confirmations, s.ConfirmedAt, string(domain.CryptoPending))
			if err != nil {
				return fmt.Errorf("update crypto transaction: %w", err)
			}
			if ct.RowsAffected() == 0 {
				return fmt.Errorf("%w: %s", domain.ErrAlreadyConfirmed, s.TxHash)
			}
		}
		return insertMessages(ctx, tx, c.FollowUps)
	})
}

func (r *Repository) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertPayment(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	s := p.Snapshot()
	_, err := tx.Exec(ctx, `INSERT INTO payments (id, amount, currency, merchant_ref, status, auth_code, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6, ''),$7,$8)`,
		s.ID, s.Amount, s.Currency, s.MerchantRef, string(s.Status), s.AuthCode, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// insertMessages appends msgs and wakes any listening relay once the
// transaction commits.
func insertMessages(ctx context.Context, tx pgx.Tx, msgs []outbox.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range msgs {
		batch.Queue(`INSERT INTO outbox_messages (id, aggregate_id, type, payload, traceparent, created_at)
			VALUES ($1,$2,$3,$4,NULLIF($5, ''),$6)`,
			m.ID, m.AggregateID, m.Type, m.Payload, m.Traceparent, m.CreatedAt)
	}
	batch.Queue(`SELECT pg_notify($1, $2)`, notifyChannel, msgs[0].ID.String())
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert outbox messages: %w", err)
	}
	return nil
}
