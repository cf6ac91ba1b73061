package canonical

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dmehra2102/payment-gateway/internal/payment/domain"
	"github.com/xeipuuv/gojsonschema"
)

var (
	chargeSchema = gojsonschema.NewStringLoader(`{
		"type": "object",
		"required": ["amount", "currency", "sourceToken", "merchantRef"],
		"properties": {
			"type":        {"enum": ["fiat"]},
			"amount":      {"type": "integer"},
			"currency":    {"type": "string"},
			"sourceToken": {"type": "string"},
			"merchantRef": {"type": "string"}
		},
		"additionalProperties": false
	}`)

	cryptoChargeSchema = gojsonschema.NewStringLoader(`{
		"type": "object",
		"required": ["amount", "cryptoCurrency", "network", "fromWallet", "merchantRef"],
		"properties": {
			"type":           {"enum": ["crypto"]},
			"amount":         {"type": "integer"},
			"cryptoCurrency": {"type": "string"},
			"network":        {"type": "string"},
			"fromWallet":     {"type": "string"},
			"merchantRef":    {"type": "string"}
		},
		"additionalProperties": false
	}`)
)

// ParseCharge checks body against the fiat charge shape and decodes it.
func ParseCharge(body []byte) (domain.ChargeRequest, error) {
	var req domain.ChargeRequest
	if err := parse(chargeSchema, body, &req); err != nil {
		return domain.ChargeRequest{}, err
	}
	return req, nil
}

func ParseCryptoCharge(body []byte) (domain.CryptoChargeRequest, error) {
	var req domain.CryptoChargeRequest
	if err := parse(cryptoChargeSchema, body, &req); err != nil {
		return domain.CryptoChargeRequest{}, err
	}
	return req, nil
}

// DeriveChargeBody has the shape of an idempotency.Deriver.
func DeriveChargeBody(body []byte) (string, []byte, error) {
	req, err := ParseCharge(body)
	if err != nil {
		return "", nil, err
	}
	res, err := DeriveCharge(req)
	return res.Key, res.Canonical, err
}

func DeriveCryptoChargeBody(body []byte) (string, []byte, error) {
	req, err := ParseCryptoCharge(body)
	if err != nil {
		return "", nil, err
	}
	res, err := DeriveCryptoCharge(req)
	return res.Key, res.Canonical, err
}

func parse(schema gojsonschema.JSONLoader, body []byte, dst any) error {
	// decoders substitute U+FFFD for bad bytes, which would merge distinct
	// payloads onto one key
	if !utf8.Valid(body) {
		return fmt.Errorf("%w: body is not valid UTF-8", ErrUnknownShape)
	}
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: body is not valid JSON", ErrUnknownShape)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return fmt.Errorf("%w: %s", ErrUnknownShape, strings.Join(msgs, "; "))
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownShape, err)
	}
	return nil
}
