package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a checkout failure.
type ErrorKind string

const (
	ErrNoWalletDetected       ErrorKind = "NO_WALLET_DETECTED"
	ErrUserRejected           ErrorKind = "USER_REJECTED"
	ErrProviderError          ErrorKind = "PROVIDER_ERROR"
	ErrInsufficientFunds      ErrorKind = "INSUFFICIENT_FUNDS"
	ErrConfirmationTimeout    ErrorKind = "CONFIRMATION_TIMEOUT"
	ErrTransactionFailed      ErrorKind = "TRANSACTION_FAILED"
	ErrStatusMismatch         ErrorKind = "STATUS_MISMATCH"
	ErrSenderMismatch         ErrorKind = "SENDER_MISMATCH"
	ErrReceiverMismatch       ErrorKind = "RECEIVER_MISMATCH"
	ErrAmountInsufficient     ErrorKind = "AMOUNT_INSUFFICIENT"
	ErrOrderPersistenceFailed ErrorKind = "ORDER_PERSISTENCE_FAILED"
)

// PaymentError is the error type surfaced by the checkout flow. TxHash is set
// whenever a transaction was broadcast before the failure.
type PaymentError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	TxHash  string    `json:"txHash,omitempty"`
	Err     error     `json:"-"`
}

func (e *PaymentError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("%s (transaction %s)", e.Message, e.TxHash)
	}
	return e.Message
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// NewPaymentError builds a PaymentError wrapping cause.
func NewPaymentError(kind ErrorKind, cause error, format string, args ...any) *PaymentError {
	return &PaymentError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Err:     cause,
	}
}

// WithTxHash attaches the broadcast transaction hash.
func (e *PaymentError) WithTxHash(hash string) *PaymentError {
	e.TxHash = hash
	return e
}

// KindOf extracts the ErrorKind from err, or "" if err is not a PaymentError.
func KindOf(err error) ErrorKind {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
