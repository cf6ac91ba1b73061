package canonical

import (
	"testing"

	"github.com/dmehra2102/payment-gateway/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveCharge_ConcreteScenario(t *testing.T) {
	messy, err := DeriveCharge(domain.ChargeRequest{
		Amount:      1000,
		Currency:    "usd ",
		SourceToken: "tok_good",
		MerchantRef: "  Order #1  ",
	})
	require.NoError(t, err)

	assert.Equal(t,
		`{"amount":1000,"currency":"USD","merchantRef":"Order #1","sourceToken":"tok_good","type":"fiat"}`,
		string(messy.Canonical))
	assert.Equal(t, "D01EB7F9539FAB1B082EB0B6161CCDE69239AE9FEDF703B2DE91DC42B55BA361", messy.Key)

	clean, err := DeriveCharge(domain.ChargeRequest{
		Amount:      1000,
		Currency:    "USD",
		SourceToken: "tok_good",
		MerchantRef: "Order #1",
	})
	require.NoError(t, err)
	assert.Equal(t, messy.Key, clean.Key)
}

func TestDeriveCharge_EquivalentInputs(t *testing.T) {
	base := domain.ChargeRequest{Amount: 2500, Currency: "EUR", SourceToken: "tok_1", MerchantRef: "Cart 42 / A"}
	want, err := DeriveCharge(base)
	require.NoError(t, err)

	variants := []domain.ChargeRequest{
		{Amount: 2500, Currency: "eur", SourceToken: "tok_1", MerchantRef: "Cart 42 / A"},
		{Amount: 2500, Currency: " Eur\t", SourceToken: " tok_1 ", MerchantRef: "Cart   42 /\tA"},
		{Amount: 2500, Currency: "EUR", SourceToken: "tok_1", MerchantRef: "\n Cart 42 / A \n"},
	}
	for _, v := range variants {
		got, err := DeriveCharge(v)
		require.NoError(t, err)
		assert.Equal(t, want.Key, got.Key, "variant %+v", v)
	}
}

func TestDeriveCharge_SemanticDifferences(t *testing.T) {
	base := domain.ChargeRequest{Amount: 2500, Currency: "EUR", SourceToken: "tok_1", MerchantRef: "Cart 42"}
	corpus := []domain.ChargeRequest{
		base,
		{Amount: 2501, Currency: "EUR", SourceToken: "tok_1", MerchantRef: "Cart 42"},
		{Amount: 2500, Currency: "USD", SourceToken: "tok_1", MerchantRef: "Cart 42"},
		{Amount: 2500, Currency: "EUR", SourceToken: "tok_2", MerchantRef: "Cart 42"},
		{Amount: 2500, Currency: "EUR", SourceToken: "tok_1", MerchantRef: "Cart 43"},
		// merchant reference keeps its case
		{Amount: 2500, Currency: "EUR", SourceToken: "tok_1", MerchantRef: "cart 42"},
	}

	seen := map[string]domain.ChargeRequest{}
	for _, req := range corpus {
		res, err := DeriveCharge(req)
		require.NoError(t, err)
		prev, dup := seen[res.Key]
		assert.False(t, dup, "%+v collides with %+v", req, prev)
		seen[res.Key] = req
	}
}

func TestDeriveCryptoCharge(t *testing.T) {
	res, err := DeriveCryptoCharge(domain.CryptoChargeRequest{
		Amount:         500,
		CryptoCurrency: " usdc",
		Network:        "base",
		FromWallet:     "0x52908400098527886E0F7030069857D2E4169EE7",
		MerchantRef:    "Inv  9",
	})
	require.NoError(t, err)

	assert.Equal(t,
		`{"amount":500,"cryptoCurrency":"USDC","fromWallet":"0x52908400098527886E0F7030069857D2E4169EE7","merchantRef":"Inv 9","network":"BASE","type":"crypto"}`,
		string(res.Canonical))
	assert.Equal(t, "0476ED848BD6553CE17C4FE58BCF7C959D14C0A314C0459F762CAF4A142B0FDC", res.Key)
	assert.Len(t, res.Key, 64)
}

func TestDerive_FiatAndCryptoNeverShareKeys(t *testing.T) {
	fiat, err := DeriveCharge(domain.ChargeRequest{Amount: 1, Currency: "X", MerchantRef: "m"})
	require.NoError(t, err)
	crypto, err := DeriveCryptoCharge(domain.CryptoChargeRequest{Amount: 1, CryptoCurrency: "X", MerchantRef: "m"})
	require.NoError(t, err)
	assert.NotEqual(t, fiat.Key, crypto.Key)
}

func TestDerive_HTMLCharactersAreNotEscaped(t *testing.T) {
	res, err := DeriveCharge(domain.ChargeRequest{Amount: 1, Currency: "usd", SourceToken: "t", MerchantRef: "A&B <1>"})
	require.NoError(t, err)
	assert.Contains(t, string(res.Canonical), `"merchantRef":"A&B <1>"`)
}

func TestParseCharge(t *testing.T) {
	req, err := ParseCharge([]byte(`{"amount":1000,"currency":"usd ","sourceToken":"tok_good","merchantRef":"  Order #1  "}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), req.Amount)
	assert.Equal(t, "usd ", req.Currency)

	_, err = ParseCharge([]byte(`{"amount":1000,"currency":"usd","sourceToken":"t","merchantRef":"m","type":"fiat"}`))
	assert.NoError(t, err)
}

func TestParseCharge_UnknownShapes(t *testing.T) {
	bodies := map[string]string{
		"not json":          `amount=1000`,
		"empty":             ``,
		"array":             `[1,2]`,
		"missing field":     `{"amount":1000,"currency":"usd","merchantRef":"m"}`,
		"fractional amount": `{"amount":10.5,"currency":"usd","sourceToken":"t","merchantRef":"m"}`,
		"string amount":     `{"amount":"1000","currency":"usd","sourceToken":"t","merchantRef":"m"}`,
		"unknown field":     `{"amount":1000,"currency":"usd","sourceToken":"t","merchantRef":"m","tip":5}`,
		"crypto type":       `{"amount":1000,"currency":"usd","sourceToken":"t","merchantRef":"m","type":"crypto"}`,
		"crypto body":       `{"amount":1,"cryptoCurrency":"ETH","network":"BASE","fromWallet":"0x1","merchantRef":"m"}`,
		"invalid utf-8":     "{\"amount\":1000,\"currency\":\"usd\",\"sourceToken\":\"t\",\"merchantRef\":\"ref\xff\"}",
		"field name case":   `{"amount":1000,"currency":"usd","SourceToken":"t","merchantRef":"m"}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCharge([]byte(body))
			assert.ErrorIs(t, err, ErrUnknownShape)
		})
	}
}

func TestDeriveBody(t *testing.T) {
	key, canonical, err := DeriveChargeBody([]byte(`{"amount":1000,"currency":"usd ","sourceToken":"tok_good","merchantRef":"  Order #1  "}`))
	require.NoError(t, err)
	assert.Equal(t, "D01EB7F9539FAB1B082EB0B6161CCDE69239AE9FEDF703B2DE91DC42B55BA361", key)
	assert.NotEmpty(t, canonical)

	_, _, err = DeriveCryptoChargeBody([]byte(`{"amount":1000,"currency":"usd","sourceToken":"t","merchantRef":"m"}`))
	assert.ErrorIs(t, err, ErrUnknownShape)

	key, _, err = DeriveCryptoChargeBody([]byte(`{"amount":500,"cryptoCurrency":"usdc","network":"Base","fromWallet":"0x52908400098527886E0F7030069857D2E4169EE7","merchantRef":"Inv 9"}`))
	require.NoError(t, err)
	assert.Equal(t, "0476ED848BD6553CE17C4FE58BCF7C959D14C0A314C0459F762CAF4A142B0FDC", key)
}

func TestDeriveBody_InvalidUTF8DoesNotCollide(t *testing.T) {
	for _, ref := range []string{"ref\xff", "ref\xfe"} {
		body := `{"amount":1000,"currency":"USD","sourceToken":"t","merchantRef":"` + ref + `"}`
		_, _, err := DeriveChargeBody([]byte(body))
		assert.ErrorIs(t, err, ErrUnknownShape)
	}

	_, _, err := DeriveCryptoChargeBody([]byte("{\"amount\":1,\"cryptoCurrency\":\"ETH\",\"network\":\"X\",\"fromWallet\":\"w\xc3\",\"merchantRef\":\"m\"}"))
	assert.ErrorIs(t, err, ErrUnknownShape)
}
