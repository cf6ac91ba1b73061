package application

import (
	"context"
	"errors"

	"github.com/dmehra2102/payment-gateway/internal/payment/domain"
	"github.com/dmehra2102/payment-gateway/pkg/outbox"
	"github.com/google/uuid"
)

type PaymentRepository interface {
	// CreatePayment writes p and msgs in one transaction.
	CreatePayment(ctx context.Context, p *domain.Payment, msgs ...outbox.Message) error
	// CreateCryptoPayment writes p, tx and msgs in one transaction.
	CreateCryptoPayment(ctx context.Context, p *domain.Payment, tx *domain.CryptoTransaction, msgs ...outbox.Message) error
	GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetCryptoTransaction(ctx context.Context, paymentID uuid.UUID) (*domain.CryptoTransaction, error)
	// CompleteDispatch persists c and marks msg dispatched in one transaction,
	// as long as msg is still claimed by msg.ClaimedBy. Otherwise it returns
	// outbox.ErrLeaseLost and writes nothing.
	CompleteDispatch(ctx context.Context, msg outbox.Message, c Completion) error
}

// Completion is the state change that accompanies marking a message dispatched.
// Nil fields are left untouched.
type Completion struct {
	Payment   *domain.Payment
	Crypto    *domain.CryptoTransaction
	FollowUps []outbox.Message
}

// ErrUnexpectedPSPResponse marks a PSP answer that cannot be interpreted.
// Retrying will not help, so the payment ends in Error.
var ErrUnexpectedPSPResponse = errors.New("unexpected PSP response")

type PSPClient interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (AuthorizeResult, error)
}

type AuthorizeRequest struct {
	PaymentID   uuid.UUID `json:"paymentId"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	SourceToken string    `json:"sourceToken"`
}

type AuthorizeResult struct {
	Authorized bool
	AuthCode   string
	Reason     string
}
