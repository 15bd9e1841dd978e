package signer

import (
	"errors"
	"fmt"
	"strings"

	addresscodec "github.com/Peersyst/xrpl-go/address-codec"
	"github.com/Peersyst/xrpl-go/pkg/crypto"
	"github.com/Peersyst/xrpl-go/xrpl/wallet"
)

var ErrInvalidSeed = errors.New("invalid seed")

// GenerateSeed returns a fresh ed25519 family seed (sEd...).
func GenerateSeed() (string, error) {
	w, err := wallet.New(crypto.ED25519())
	if err != nil {
		return "", err
	}
	return w.Seed, nil
}

func ValidSeed(seed string) bool {
	_, err := walletFromSeed(seed)
	return err == nil
}

// walletFromSeed derives the ledger key pair and classic address of seed.
// Both secp256k1 and ed25519 family seeds are accepted.
func walletFromSeed(seed string) (*wallet.Wallet, error) {
	if !strings.HasPrefix(seed, "s") {
		return nil, ErrInvalidSeed
	}
	w, err := wallet.FromSeed(seed, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}
	return &w, nil
}

func AddressFromSeed(seed string) (string, error) {
	w, err := walletFromSeed(seed)
	if err != nil {
		return "", err
	}
	return string(w.ClassicAddress), nil
}

// ValidAddress checks the classic address checksum.
func ValidAddress(addr string) bool {
	return addresscodec.IsValidClassicAddress(addr)
}
