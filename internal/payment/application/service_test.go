package application_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/dmehra2102/payment-gateway/internal/payment/application"
	"github.com/dmehra2102/payment-gateway/internal/payment/domain"
	"github.com/dmehra2102/payment-gateway/internal/payment/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_Charge(t *testing.T) {
	store := memory.NewStore()
	svc := application.NewService(store)

	p, err := svc.Charge(context.Background(), domain.ChargeRequest{
		Amount:      1000,
		Currency:    "usd ",
		SourceToken: "tok_good",
		MerchantRef: "  Order #1  ",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, p.Status())
	assert.Equal(t, "USD", p.Currency())
	assert.Equal(t, "Order #1", p.MerchantRef())

	msgs := store.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, p.ID(), msgs[0].AggregateID)
	assert.Equal(t, domain.MessageAuthorize, msgs[0].Type)
	assert.False(t, msgs[0].Dispatched)
	assert.JSONEq(t, `{"sourceToken":"tok_good"}`, string(msgs[0].Payload))

	got, err := svc.GetPayment(context.Background(), p.ID())
	require.NoError(t, err)
	assert.Equal(t, p.Snapshot(), got.Snapshot())
}

func TestService_Charge_Invalid(t *testing.T) {
	store := memory.NewStore()
	svc := application.NewService(store)

	_, err := svc.Charge(context.Background(), domain.ChargeRequest{Amount: 0, Currency: "USD", SourceToken: "t", MerchantRef: "m"})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Charge(context.Background(), domain.ChargeRequest{Amount: 10, Currency: "USD", SourceToken: "  ", MerchantRef: "m"})
	assert.ErrorIs(t, err, domain.ErrInvalidPayment)

	assert.Empty(t, store.Messages(), "nothing is written for rejected charges")
}

func TestService_CryptoCharge(t *testing.T) {
	store := memory.NewStore()
	svc := application.NewService(store)

	p, tx, err := svc.CryptoCharge(context.Background(), domain.CryptoChargeRequest{
		Amount:         500,
		CryptoCurrency: "usdc",
		Network:        "base",
		FromWallet:     "0x52908400098527886E0F7030069857D2E4169EE7",
		MerchantRef:    "Inv 9",
	})
	require.NoError(t, err)

	assert.Equal(t, "CRYPTO-USDC", p.Currency())
	assert.Equal(t, p.ID(), tx.PaymentID())
	assert.Equal(t, "BASE", tx.Network())
	assert.Equal(t, domain.CryptoPending, tx.Status())
	assert.True(t, strings.HasPrefix(tx.TxHash(), "0x"))
	assert.Len(t, tx.TxHash(), 66)

	msgs := store.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.MessageCryptoConfirm, msgs[0].Type)
	var payload domain.CryptoConfirmPayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &payload))
	assert.Equal(t, tx.TxHash(), payload.TxHash)
	assert.Equal(t, "BASE", payload.Network)

	got, err := svc.GetCryptoTransaction(context.Background(), p.ID())
	require.NoError(t, err)
	assert.Equal(t, tx.Snapshot(), got.Snapshot())
}

func TestService_CryptoCharge_InvalidWallet(t *testing.T) {
	svc := application.NewService(memory.NewStore())

	_, _, err := svc.CryptoCharge(context.Background(), domain.CryptoChargeRequest{
		Amount: 500, CryptoCurrency: "ETH", Network: "ETHEREUM", FromWallet: "0x123", MerchantRef: "m",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPayment)

	// unknown networks are not validated
	_, _, err = svc.CryptoCharge(context.Background(), domain.CryptoChargeRequest{
		Amount: 500, CryptoCurrency: "BTC", Network: "BITCOIN", FromWallet: "bc1q-anything", MerchantRef: "m",
	})
	assert.NoError(t, err)
}

func TestService_Lookups_NotFound(t *testing.T) {
	svc := application.NewService(memory.NewStore())
	p, err := svc.Charge(context.Background(), domain.ChargeRequest{Amount: 1, Currency: "USD", SourceToken: "t", MerchantRef: "m"})
	require.NoError(t, err)

	_, err = svc.GetCryptoTransaction(context.Background(), p.ID())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

var _ application.PaymentRepository = (*memory.Store)(nil)
