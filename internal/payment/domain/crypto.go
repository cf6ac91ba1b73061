package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrAlreadyConfirmed = errors.New("crypto transaction already confirmed")

type CryptoStatus string

const (
	CryptoPending   CryptoStatus = "Pending"
	CryptoConfirmed CryptoStatus = "Confirmed"
)

// CryptoTransaction belongs to exactly one Payment and is confirmed at most once.
type CryptoTransaction struct {
	id             uuid.UUID
	paymentID      uuid.UUID
	cryptoCurrency string
	network        string
	fromWallet     string
	txHash         string
	status         CryptoStatus
	confirmations  int
	createdAt      time.Time
	confirmedAt    *time.Time
}

func NewCryptoTransaction(paymentID uuid.UUID, cryptoCurrency, network, fromWallet, txHash string, now time.Time) (*CryptoTransaction, error) {
	if txHash == "" {
		return nil, fmt.Errorf("%w: transaction hash is required", ErrInvalidPayment)
	}
	for _, f := range []struct {
		name, v string
		limit   int
	}{
		{"cryptoCurrency", cryptoCurrency, MaxCurrencyLen},
		{"network", network, MaxNetworkLen},
		{"fromWallet", fromWallet, MaxWalletLen},
		{"txHash", txHash, MaxTxHashLen},
	} {
		if err := checkLen(f.name, f.v, f.limit); err != nil {
			return nil, err
		}
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	return &CryptoTransaction{
		id:             id,
		paymentID:      paymentID,
		cryptoCurrency: cryptoCurrency,
		network:        network,
		fromWallet:     fromWallet,
		txHash:         txHash,
		status:         CryptoPending,
		createdAt:      now.UTC(),
	}, nil
}

type CryptoSnapshot struct {
	ID             uuid.UUID
	PaymentID      uuid.UUID
	CryptoCurrency string
	Network        string
	FromWallet     string
	TxHash         string
	Status         CryptoStatus
	Confirmations  int
	CreatedAt      time.Time
	ConfirmedAt    *time.Time
}

func RestoreCryptoTransaction(s CryptoSnapshot) (*CryptoTransaction, error) {
	if s.Status != CryptoPending && s.Status != CryptoConfirmed {
		return nil, fmt.Errorf("%w: unknown crypto status %q", ErrInvalidPayment, s.Status)
	}
	return &CryptoTransaction{
		id:             s.ID,
		paymentID:      s.PaymentID,
		cryptoCurrency: s.CryptoCurrency,
		network:        s.Network,
		fromWallet:     s.FromWallet,
		txHash:         s.TxHash,
		status:         s.Status,
		confirmations:  s.Confirmations,
		createdAt:      s.CreatedAt,
		confirmedAt:    s.ConfirmedAt,
	}, nil
}

func (c *CryptoTransaction) Snapshot() CryptoSnapshot {
	return CryptoSnapshot{
		ID:             c.id,
		PaymentID:      c.paymentID,
		CryptoCurrency: c.cryptoCurrency,
		Network:        c.network,
		FromWallet:     c.fromWallet,
		TxHash:         c.txHash,
		Status:         c.status,
		Confirmations:  c.confirmations,
		CreatedAt:      c.createdAt,
		ConfirmedAt:    c.confirmedAt,
	}
}

func (c *CryptoTransaction) ID() uuid.UUID          { return c.id }
func (c *CryptoTransaction) PaymentID() uuid.UUID   { return c.paymentID }
func (c *CryptoTransaction) CryptoCurrency() string { return c.cryptoCurrency }
func (c *CryptoTransaction) Network() string        { return c.network }
func (c *CryptoTransaction) FromWallet() string     { return c.fromWallet }
func (c *CryptoTransaction) TxHash() string         { return c.txHash }
func (c *CryptoTransaction) Status() CryptoStatus   { return c.status }
func (c *CryptoTransaction) Confirmations() int     { return c.confirmations }
func (c *CryptoTransaction) CreatedAt() time.Time   { return c.createdAt }
func (c *CryptoTransaction) ConfirmedAt() *time.Time {
	return c.confirmedAt
}

func (c *CryptoTransaction) Confirm(confirmations int, now time.Time) error {
	if c.status == CryptoConfirmed {
		return fmt.Errorf("%w: %s", ErrAlreadyConfirmed, c.txHash)
	}
	if confirmations < 1 {
		confirmations = 1
	}
	at := now.UTC()
	c.status = CryptoConfirmed
	c.confirmations = confirmations
	c.confirmedAt = &at
	return nil
}
