package chain

import (
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFamilyOf(t *testing.T) {
	assert.Equal(t, FamilyEVM, FamilyOf("BASE"))
	assert.Equal(t, FamilyEVM, FamilyOf("base-sepolia"))
	assert.Equal(t, FamilySolana, FamilyOf("SOLANA"))
	assert.Equal(t, FamilyUnknown, FamilyOf("BITCOIN"))
	assert.Equal(t, "evm", FamilyEVM.String())
}

func TestValidateWallet(t *testing.T) {
	cases := []struct {
		network, wallet string
		ok              bool
	}{
		{"ETHEREUM", "0x52908400098527886E0F7030069857D2E4169EE7", true},
		{"BASE", "52908400098527886E0F7030069857D2E4169EE7", true},
		{"POLYGON", "0x1234", false},
		{"ARBITRUM", "not-an-address", false},
		{"SOLANA", "11111111111111111111111111111111", true},
		{"SOLANA-DEVNET", "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", true},
		{"SOLANA", "0x52908400098527886E0F7030069857D2E4169EE7", false},
		{"BITCOIN", "anything goes", true},
	}
	for _, tc := range cases {
		err := ValidateWallet(tc.network, tc.wallet)
		if tc.ok {
			assert.NoError(t, err, "%s %s", tc.network, tc.wallet)
		} else {
			assert.ErrorIs(t, err, ErrInvalidWallet, "%s %s", tc.network, tc.wallet)
		}
	}
}

func TestPlaceholderTxHash(t *testing.T) {
	evm, err := PlaceholderTxHash("ETHEREUM")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(evm, "0x"))
	assert.Len(t, evm, 66)

	sol, err := PlaceholderTxHash("SOLANA")
	require.NoError(t, err)
	sig, err := solana.SignatureFromBase58(sol)
	require.NoError(t, err)
	assert.Equal(t, sol, sig.String())

	other, err := PlaceholderTxHash("BITCOIN")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(other, "0x"))
	assert.Len(t, other, 34)

	again, err := PlaceholderTxHash("ETHEREUM")
	require.NoError(t, err)
	assert.NotEqual(t, evm, again)
}
