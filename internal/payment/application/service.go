package application

import (
	"context"
	"fmt"
	"time"

	"github.com/dmehra2102/payment-gateway/internal/payment/canonical"
	"github.com/dmehra2102/payment-gateway/internal/payment/chain"
	"github.com/dmehra2102/payment-gateway/internal/payment/domain"
	"github.com/dmehra2102/payment-gateway/pkg/outbox"
	"github.com/dmehra2102/payment-gateway/pkg/tracing"
	"github.com/google/uuid"
)

const cryptoCurrencyPrefix = "CRYPTO-"

type Service struct {
	repo PaymentRepository
	now  func() time.Time
}

func NewService(repo PaymentRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Charge records a Pending fiat payment together with its Authorize intent.
func (s *Service) Charge(ctx context.Context, req domain.ChargeRequest) (*domain.Payment, error) {
	n := canonical.NormalizeCharge(req)
	if n.SourceToken == "" {
		return nil, fmt.Errorf("%w: sourceToken is required", domain.ErrInvalidPayment)
	}

	now := s.now()
	p, err := domain.NewPayment(n.Amount, n.Currency, n.MerchantRef, now)
	if err != nil {
		return nil, err
	}
	msg, err := outbox.NewMessage(p.ID(), domain.MessageAuthorize,
		domain.AuthorizePayload{SourceToken: n.SourceToken}, tracing.Traceparent(ctx), now)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreatePayment(ctx, p, msg); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	return p, nil
}

// CryptoCharge records a Pending crypto payment, its Pending transaction with
// a placeholder hash, and the CryptoConfirm intent.
func (s *Service) CryptoCharge(ctx context.Context, req domain.CryptoChargeRequest) (*domain.Payment, *domain.CryptoTransaction, error) {
	n := canonical.NormalizeCryptoCharge(req)
	if n.CryptoCurrency == "" || n.Network == "" || n.FromWallet == "" {
		return nil, nil, fmt.Errorf("%w: cryptoCurrency, network and fromWallet are required", domain.ErrInvalidPayment)
	}
	if err := chain.ValidateWallet(n.Network, n.FromWallet); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", domain.ErrInvalidPayment, err)
	}

	now := s.now()
	p, err := domain.NewPayment(n.Amount, cryptoCurrencyPrefix+n.CryptoCurrency, n.MerchantRef, now)
	if err != nil {
		return nil, nil, err
	}
	hash, err := chain.PlaceholderTxHash(n.Network)
	if err != nil {
		return nil, nil, err
	}
	tx, err := domain.NewCryptoTransaction(p.ID(), n.CryptoCurrency, n.Network, n.FromWallet, hash, now)
	if err != nil {
		return nil, nil, err
	}
	msg, err := outbox.NewMessage(p.ID(), domain.MessageCryptoConfirm,
		domain.CryptoConfirmPayload{TxHash: hash, Network: n.Network}, tracing.Traceparent(ctx), now)
	if err != nil {
		return nil, nil, err
	}
	if err := s.repo.CreateCryptoPayment(ctx, p, tx, msg); err != nil {
		return nil, nil, fmt.Errorf("create crypto payment: %w", err)
	}
	return p, tx, nil
}

func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return s.repo.GetPayment(ctx, id)
}

func (s *Service) GetCryptoTransaction(ctx context.Context, paymentID uuid.UUID) (*domain.CryptoTransaction, error) {
	return s.repo.GetCryptoTransaction(ctx, paymentID)
}
