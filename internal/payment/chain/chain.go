// Package chain knows just enough about blockchain networks to validate a
// source wallet and mint a placeholder transaction hash in the network's own
// format.
package chain

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

var ErrInvalidWallet = errors.New("invalid wallet address")

type Family int

const (
	FamilyUnknown Family = iota
	FamilyEVM
	FamilySolana
)

func (f Family) String() string {
	switch f {
	case FamilyEVM:
		return "evm"
	case FamilySolana:
		return "solana"
	default:
		return "unknown"
	}
}

var families = map[string]Family{
	"ETHEREUM":      FamilyEVM,
	"BASE":          FamilyEVM,
	"POLYGON":       FamilyEVM,
	"ARBITRUM":      FamilyEVM,
	"OPTIMISM":      FamilyEVM,
	"SEPOLIA":       FamilyEVM,
	"BASE-SEPOLIA":  FamilyEVM,
	"SOLANA":        FamilySolana,
	"SOLANA-DEVNET": FamilySolana,
}

// FamilyOf expects a normalized (upper-case) network code.
func FamilyOf(network string) Family {
	return families[strings.ToUpper(network)]
}

// ValidateWallet accepts anything on networks it does not recognise.
func ValidateWallet(network, wallet string) error {
	switch FamilyOf(network) {
	case FamilyEVM:
		if !common.IsHexAddress(wallet) {
			return fmt.Errorf("%w: %q is not a hex address on %s", ErrInvalidWallet, wallet, network)
		}
	case FamilySolana:
		if _, err := solana.PublicKeyFromBase58(wallet); err != nil {
			return fmt.Errorf("%w: %q on %s: %v", ErrInvalidWallet, wallet, network, err)
		}
	}
	return nil
}

// PlaceholderTxHash returns a random hash shaped like a real one on network,
// used until the on-chain transaction is observed.
func PlaceholderTxHash(network string) (string, error) {
	switch FamilyOf(network) {
	case FamilyEVM:
		var b [common.HashLength]byte
		if _, err := rand.Read(b[:]); err != nil {
			return "", err
		}
		return common.BytesToHash(b[:]).Hex(), nil
	case FamilySolana:
		var sig solana.Signature
		if _, err := rand.Read(sig[:]); err != nil {
			return "", err
		}
		return sig.String(), nil
	default:
		id, err := uuid.NewRandom()
		if err != nil {
			return "", err
		}
		return "0x" + strings.ReplaceAll(id.String(), "-", ""), nil
	}
}
