package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outbox message types.
const (
	MessageAuthorize            = "Authorize"
	MessageCryptoConfirm        = "CryptoConfirm"
	MessagePaymentStatusChanged = "PaymentStatusChanged"
)

type AuthorizePayload struct {
	SourceToken string `json:"sourceToken"`
}

type CryptoConfirmPayload struct {
	TxHash  string `json:"txHash,omitempty"`
	Network string `json:"network,omitempty"`
}

// PaymentStatusChanged is published to the events broker after a transition.
type PaymentStatusChanged struct {
	PaymentID   uuid.UUID `json:"paymentId"`
	Status      Status    `json:"status"`
	AuthCode    string    `json:"authCode,omitempty"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	MerchantRef string    `json:"merchantRef"`
	OccurredAt  time.Time `json:"occurredAt"`
}

func StatusChangedFrom(p *Payment) PaymentStatusChanged {
	return PaymentStatusChanged{
		PaymentID:   p.ID(),
		Status:      p.Status(),
		AuthCode:    p.AuthCode(),
		Amount:      p.Amount(),
		Currency:    p.Currency(),
		MerchantRef: p.MerchantRef(),
		OccurredAt:  p.UpdatedAt(),
	}
}

func DecodeAuthorize(raw []byte) (AuthorizePayload, error) {
	var p AuthorizePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return AuthorizePayload{}, fmt.Errorf("decode authorize payload: %w", err)
	}
	if p.SourceToken == "" {
		return AuthorizePayload{}, fmt.Errorf("decode authorize payload: %w: sourceToken missing", ErrInvalidPayment)
	}
	return p, nil
}

// DecodeCryptoConfirm accepts an empty payload; both fields are optional filters.
func DecodeCryptoConfirm(raw []byte) (CryptoConfirmPayload, error) {
	var p CryptoConfirmPayload
	if len(raw) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return CryptoConfirmPayload{}, fmt.Errorf("decode crypto confirm payload: %w", err)
	}
	return p, nil
}
