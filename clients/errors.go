package clients

import "errors"

var (
	// ErrTransactionNotFound is returned when the node does not know the hash.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrChainMismatch is returned when the node serves a different chain
	// than the one configured.
	ErrChainMismatch = errors.New("rpc endpoint serves a different chain")
)
