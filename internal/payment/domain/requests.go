package domain

// ChargeRequest is a fiat charge as submitted by the client. Amount is in
// minor currency units.
type ChargeRequest struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	SourceToken string `json:"sourceToken"`
	MerchantRef string `json:"merchantRef"`
}

type CryptoChargeRequest struct {
	Amount         int64  `json:"amount"`
	CryptoCurrency string `json:"cryptoCurrency"`
	Network        string `json:"network"`
	FromWallet     string `json:"fromWallet"`
	MerchantRef    string `json:"merchantRef"`
}
