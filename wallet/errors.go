package wallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/vitwit/storefront/types"
)

// EIP-1193 and wallet_* error codes.
const (
	CodeUserRejected  = 4001
	CodeUnauthorized  = 4100
	CodeUnsupported   = 4200
	CodeDisconnected  = 4900
	CodeUnknownChain  = 4902
	CodeInternalError = -32603
)

var ErrNoAccounts = errors.New("wallet returned no accounts")

// ProviderRPCError is an error with an EIP-1193 code.
type ProviderRPCError struct {
	Code    int
	Message string
}

func (e *ProviderRPCError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

func (e *ProviderRPCError) ErrorCode() int {
	return e.Code
}

var _ rpc.Error = (*ProviderRPCError)(nil)

// ErrorCode extracts an EIP-1193 code from err.
func ErrorCode(err error) (int, bool) {
	var coded rpc.Error
	if errors.As(err, &coded) {
		return coded.ErrorCode(), true
	}
	return 0, false
}

// IsUnknownChain reports whether a switch request failed because the wallet
// does not know the chain.
func IsUnknownChain(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := ErrorCode(err); ok && code == CodeUnknownChain {
		return true
	}
	return strings.Contains(err.Error(), "Unrecognized chain ID")
}

// Classify maps a provider error to a checkout error kind.
func Classify(err error) types.ErrorKind {
	if err == nil {
		return ""
	}
	if code, ok := ErrorCode(err); ok && code == CodeUserRejected {
		return types.ErrUserRejected
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return types.ErrInsufficientFunds
	case strings.Contains(msg, "user rejected"), strings.Contains(msg, "user denied"):
		return types.ErrUserRejected
	}
	return types.ErrProviderError
}
