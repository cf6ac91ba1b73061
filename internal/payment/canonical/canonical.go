// Package canonical derives idempotency keys from charge requests.
//
// The canonical form is a JSON object with lexicographically sorted keys and
// no insignificant whitespace. String fields are trimmed with internal
// whitespace runs collapsed to one space; currency, crypto currency and
// network codes are upper-cased. Fields that do not apply to the request
// type are left out. The key is the uppercase hex SHA-256 of those bytes.
//
// Any change to these rules changes every key and must ship as a new version.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmehra2102/payment-gateway/internal/payment/domain"
)

var ErrUnknownShape = errors.New("unknown request shape")

const (
	TypeFiat   = "fiat"
	TypeCrypto = "crypto"
)

// Result is the outcome of deriving a request.
type Result struct {
	Key       string
	Canonical []byte
}

func NormalizeCharge(req domain.ChargeRequest) domain.ChargeRequest {
	return domain.ChargeRequest{
		Amount:      req.Amount,
		Currency:    code(req.Currency),
		SourceToken: text(req.SourceToken),
		MerchantRef: text(req.MerchantRef),
	}
}

func NormalizeCryptoCharge(req domain.CryptoChargeRequest) domain.CryptoChargeRequest {
	return domain.CryptoChargeRequest{
		Amount:         req.Amount,
		CryptoCurrency: code(req.CryptoCurrency),
		Network:        code(req.Network),
		FromWallet:     text(req.FromWallet),
		MerchantRef:    text(req.MerchantRef),
	}
}

func DeriveCharge(req domain.ChargeRequest) (Result, error) {
	n := NormalizeCharge(req)
	return derive(map[string]any{
		"type":        TypeFiat,
		"amount":      n.Amount,
		"merchantRef": n.MerchantRef,
		"currency":    n.Currency,
		"sourceToken": n.SourceToken,
	})
}

func DeriveCryptoCharge(req domain.CryptoChargeRequest) (Result, error) {
	n := NormalizeCryptoCharge(req)
	return derive(map[string]any{
		"type":           TypeCrypto,
		"amount":         n.Amount,
		"merchantRef":    n.MerchantRef,
		"cryptoCurrency": n.CryptoCurrency,
		"network":        n.Network,
		"fromWallet":     n.FromWallet,
	})
}

// Map keys come out of encoding/json sorted, which is the ordering we need.
func derive(fields map[string]any) (Result, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fields); err != nil {
		return Result{}, fmt.Errorf("canonical: encode: %w", err)
	}
	canonical := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))

	sum := sha256.Sum256(canonical)
	return Result{
		Key:       strings.ToUpper(hex.EncodeToString(sum[:])),
		Canonical: canonical,
	}, nil
}

func text(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func code(s string) string {
	return strings.ToUpper(text(s))
}
