package clients

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/storefront/types"
)

// Client is the read side of an EVM chain as seen by the storefront.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.TransactionRecord, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	Close()
}
