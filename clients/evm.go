package clients

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/vitwit/storefront/types"
)

var _ Client = (*EVMClient)(nil)

// EVMClient reads transactions and receipts from an EVM JSON-RPC node.
type EVMClient struct {
	rpcURL string
	chain  types.ChainSpec
	client *ethclient.Client

	mu      sync.Mutex
	chainID *big.Int
}

func NewEVMClient(chain types.ChainSpec, rpcURL string) (*EVMClient, error) {
	if rpcURL == "" {
		if len(chain.RPCURLs) == 0 {
			return nil, fmt.Errorf("no rpc url configured for chain %d", chain.ChainID)
		}
		rpcURL = chain.RPCURLs[0]
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum RPC: %w", err)
	}

	return &EVMClient{
		rpcURL: rpcURL,
		chain:  chain,
		client: client,
	}, nil
}

// Close implements Client.
func (e *EVMClient) Close() {
	e.client.Close()
}

// Chain returns the configured network.
func (e *EVMClient) Chain() types.ChainSpec {
	return e.chain
}

// ChainID returns the chain id reported by the node. The first successful
// answer is cached and checked against the configured chain.
func (e *EVMClient) ChainID(ctx context.Context) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.chainID != nil {
		return new(big.Int).Set(e.chainID), nil
	}

	id, err := e.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	if e.chain.ChainID != 0 && id.Cmp(e.chain.BigChainID()) != 0 {
		return nil, fmt.Errorf("%w: want %d, got %s", ErrChainMismatch, e.chain.ChainID, id)
	}

	e.chainID = id
	return new(big.Int).Set(id), nil
}

// TransactionByHash implements Client. The sender is recovered from the
// transaction signature.
func (e *EVMClient) TransactionByHash(ctx context.Context, hash common.Hash) (*types.TransactionRecord, error) {
	tx, _, err := e.client.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", hash.Hex(), err)
	}

	chainID := tx.ChainId()
	if chainID == nil || chainID.Sign() == 0 {
		if chainID, err = e.ChainID(ctx); err != nil {
			return nil, err
		}
	}

	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return nil, fmt.Errorf("failed to recover sender of %s: %w", hash.Hex(), err)
	}

	return &types.TransactionRecord{
		Hash:  tx.Hash(),
		From:  from,
		To:    tx.To(),
		Value: tx.Value(),
	}, nil
}

// TransactionReceipt implements Client. A nil receipt with a nil error means
// the transaction is not mined yet.
func (e *EVMClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	r, err := e.client.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch receipt %s: %w", hash.Hex(), err)
	}
	return ReceiptFromEth(r), nil
}

// BalanceAt returns the latest native balance of account.
func (e *EVMClient) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	bal, err := e.client.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return bal, nil
}

// PendingNonceAt returns the next nonce for account.
func (e *EVMClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return e.client.PendingNonceAt(ctx, account)
}

// SuggestGasPrice returns the node's legacy gas price suggestion.
func (e *EVMClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return e.client.SuggestGasPrice(ctx)
}

// SendTransaction broadcasts a signed transaction.
func (e *EVMClient) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	return e.client.SendTransaction(ctx, tx)
}

// ReceiptFromEth projects a go-ethereum receipt.
func ReceiptFromEth(r *ethtypes.Receipt) *types.Receipt {
	if r == nil {
		return nil
	}
	return &types.Receipt{
		TxHash:      r.TxHash,
		Status:      types.ConfirmationStatus(r.Status),
		BlockNumber: r.BlockNumber,
	}
}
