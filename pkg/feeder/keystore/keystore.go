// Package keystore loads the EVM signing key used for oracle updates.
package keystore

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidKey indicates a private key that is not 32 bytes of hex.
var ErrInvalidKey = errors.New("invalid private key")

// LoadKey parses a hex-encoded secp256k1 private key, with or without a 0x
// prefix, and returns it together with the derived account address.
func LoadKey(hexKey string) (*ecdsa.PrivateKey, common.Address, error) {
	hexKey = strings.TrimSpace(hexKey)
	hexKey = strings.TrimPrefix(strings.TrimPrefix(hexKey, "0x"), "0X")
	if hexKey == "" {
		return nil, common.Address{}, fmt.Errorf("%w: empty", ErrInvalidKey)
	}

	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		// the underlying error never echoes key material
		return nil, common.Address{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey), nil
}
