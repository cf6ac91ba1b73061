package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrFinalState     = errors.New("payment already in a final state")
	ErrInvalidAmount  = errors.New("amount must be a positive number of minor units")
	ErrInvalidPayment = errors.New("invalid payment")
)

// Field limits, in characters. The postgres columns are sized to match.
const (
	MaxCurrencyLen    = 32
	MaxMerchantRefLen = 200
	MaxNetworkLen     = 32
	MaxWalletLen      = 128
	MaxTxHashLen      = 128
)

func checkLen(field, v string, limit int) error {
	if n := utf8.RuneCountInString(v); n > limit {
		return fmt.Errorf("%w: %s is %d characters, limit %d", ErrInvalidPayment, field, n, limit)
	}
	return nil
}

type Status string

const (
	StatusPending    Status = "Pending"
	StatusAuthorized Status = "Authorized"
	StatusDeclined   Status = "Declined"
	StatusError      Status = "Error"
)

func (s Status) Final() bool {
	return s == StatusAuthorized || s == StatusDeclined || s == StatusError
}

func (s Status) Valid() bool {
	return s == StatusPending || s.Final()
}

// Payment moves from Pending to exactly one of Authorized, Declined or Error.
// Fields are reachable only through accessors so that the transition methods
// are the sole way to change state.
type Payment struct {
	id          uuid.UUID
	amount      int64
	currency    string
	merchantRef string
	status      Status
	authCode    string
	createdAt   time.Time
	updatedAt   time.Time
}

func NewPayment(amount int64, currency, merchantRef string, now time.Time) (*Payment, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if strings.TrimSpace(currency) == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrInvalidPayment)
	}
	if err := checkLen("currency", currency, MaxCurrencyLen); err != nil {
		return nil, err
	}
	if err := checkLen("merchantRef", merchantRef, MaxMerchantRefLen); err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	now = now.UTC()
	return &Payment{
		id:          id,
		amount:      amount,
		currency:    currency,
		merchantRef: merchantRef,
		status:      StatusPending,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// PaymentSnapshot is the persisted shape of a Payment.
type PaymentSnapshot struct {
	ID          uuid.UUID
	Amount      int64
	Currency    string
	MerchantRef string
	Status      Status
	AuthCode    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RestorePayment rebuilds a Payment loaded from storage.
func RestorePayment(s PaymentSnapshot) (*Payment, error) {
	if !s.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidPayment, s.Status)
	}
	return &Payment{
		id:          s.ID,
		amount:      s.Amount,
		currency:    s.Currency,
		merchantRef: s.MerchantRef,
		status:      s.Status,
		authCode:    s.AuthCode,
		createdAt:   s.CreatedAt,
		updatedAt:   s.UpdatedAt,
	}, nil
}

func (p *Payment) Snapshot() PaymentSnapshot {
	return PaymentSnapshot{
		ID:          p.id,
		Amount:      p.amount,
		Currency:    p.currency,
		MerchantRef: p.merchantRef,
		Status:      p.status,
		AuthCode:    p.authCode,
		CreatedAt:   p.createdAt,
		UpdatedAt:   p.updatedAt,
	}
}

func (p *Payment) ID() uuid.UUID        { return p.id }
func (p *Payment) Amount() int64        { return p.amount }
func (p *Payment) Currency() string     { return p.currency }
func (p *Payment) MerchantRef() string  { return p.merchantRef }
func (p *Payment) Status() Status       { return p.status }
func (p *Payment) AuthCode() string     { return p.authCode }
func (p *Payment) CreatedAt() time.Time { return p.createdAt }
func (p *Payment) UpdatedAt() time.Time { return p.updatedAt }

func (p *Payment) Authorize(authCode string, now time.Time) error {
	if authCode == "" {
		return fmt.Errorf("%w: authorization code is required", ErrInvalidPayment)
	}
	if err := p.transition(StatusAuthorized, now); err != nil {
		return err
	}
	p.authCode = authCode
	return nil
}

func (p *Payment) Decline(now time.Time) error {
	return p.transition(StatusDeclined, now)
}

func (p *Payment) Fail(now time.Time) error {
	return p.transition(StatusError, now)
}

func (p *Payment) transition(to Status, now time.Time) error {
	if p.status.Final() {
		return fmt.Errorf("%w: %s is %s", ErrFinalState, p.id, p.status)
	}
	p.status = to
	p.updatedAt = now.UTC()
	return nil
}
