package utils

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PrivateKeyFromHex creates a private key from hex string
func PrivateKeyFromHex(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, fmt.Errorf("private key cannot be empty")
	}

	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

// AddressFromPrivateKey derives the Ethereum address from a private key
func AddressFromPrivateKey(privateKey *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(privateKey.PublicKey)
}

// NormalizeAddress ensures an address is properly checksummed
func NormalizeAddress(address string) string {
	if !common.IsHexAddress(address) {
		return ""
	}
	return common.HexToAddress(address).Hex()
}

// ParseAddress validates and converts a 0x-prefixed address string.
func ParseAddress(address string) (common.Address, error) {
	if err := ValidateAddress(address); err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(address), nil
}
