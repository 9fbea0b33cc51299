package utils

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	hexPattern       = regexp.MustCompile(`^[0-9a-fA-F]+$`)
	basicEmail       = regexp.MustCompile(`\S+@\S+\.\S+`)
	uniqueCodeFormat = regexp.MustCompile(`^[A-Z0-9]{8}$`)
)

// ValidateAmount checks if an amount string is a valid non-negative decimal
func ValidateAmount(amount string) (*decimal.Decimal, error) {
	if amount == "" {
		return nil, fmt.Errorf("amount cannot be empty")
	}

	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}

	if dec.IsNegative() {
		return nil, fmt.Errorf("amount cannot be negative")
	}

	return &dec, nil
}

// ToBaseUnits converts a decimal amount into the chain's integer base unit.
// The conversion is exact: amounts with more fractional digits than the chain
// supports are rejected rather than rounded.
func ToBaseUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("amount cannot be negative")
	}

	shifted := amount.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}

	return shifted.BigInt(), nil
}

// FromBaseUnits formats a base-unit integer back into a decimal amount.
func FromBaseUnits(value *big.Int, decimals int32) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -decimals)
}

// ParseAmountWithDecimals parses a decimal amount string and converts it to base units.
func ParseAmountWithDecimals(amount string, decimals int32) (*big.Int, error) {
	dec, err := ValidateAmount(amount)
	if err != nil {
		return nil, err
	}
	return ToBaseUnits(*dec, decimals)
}

// ValidateAddress validates a 0x-prefixed EVM address.
func ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if !strings.HasPrefix(address, "0x") {
		return fmt.Errorf("address must start with 0x")
	}
	if len(address) != 42 {
		return fmt.Errorf("address must be 42 characters long")
	}
	if !hexPattern.MatchString(address[2:]) {
		return fmt.Errorf("address must be valid hex")
	}
	return nil
}

// ValidateTransactionHash validates a 0x-prefixed 32-byte transaction hash.
func ValidateTransactionHash(hash string) error {
	if hash == "" {
		return fmt.Errorf("transaction hash cannot be empty")
	}
	if !strings.HasPrefix(hash, "0x") {
		return fmt.Errorf("transaction hash must start with 0x")
	}
	if len(hash) != 66 {
		return fmt.Errorf("transaction hash must be 66 characters long")
	}
	if !hexPattern.MatchString(hash[2:]) {
		return fmt.Errorf("transaction hash must be valid hex")
	}
	return nil
}

// SameAddress compares two addresses case-insensitively.
func SameAddress(a, b common.Address) bool {
	return strings.EqualFold(a.Hex(), b.Hex())
}

// IsBasicEmail applies the storefront's loose email check (something@something.something).
func IsBasicEmail(s string) bool {
	return basicEmail.MatchString(s)
}

// IsUniqueCode reports whether s has the shape of a product short code.
func IsUniqueCode(s string) bool {
	return uniqueCodeFormat.MatchString(s)
}
