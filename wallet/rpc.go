package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/vitwit/storefront/clients"
	"github.com/vitwit/storefront/types"
)

var _ Provider = (*RPCProvider)(nil)

// RPCProvider talks to a wallet that exposes the EIP-1193 method set over
// JSON-RPC, such as a desktop wallet bridge.
type RPCProvider struct {
	info   Info
	client *rpc.Client
}

// DialRPCProvider connects to a wallet endpoint.
func DialRPCProvider(ctx context.Context, info Info, endpoint string) (*RPCProvider, error) {
	c, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to wallet %q: %w", info.Name, err)
	}
	return NewRPCProvider(info, c), nil
}

func NewRPCProvider(info Info, client *rpc.Client) *RPCProvider {
	return &RPCProvider{info: info, client: client}
}

func (p *RPCProvider) Info() Info { return p.info }

func (p *RPCProvider) Close() { p.client.Close() }

func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := p.client.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

type switchChainParams struct {
	ChainID string `json:"chainId"`
}

func (p *RPCProvider) SwitchNetwork(ctx context.Context, chainID *big.Int) error {
	return p.client.CallContext(ctx, nil, "wallet_switchEthereumChain",
		switchChainParams{ChainID: hexutil.EncodeBig(chainID)})
}

type nativeCurrencyParams struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
}

type addChainParams struct {
	ChainID           string               `json:"chainId"`
	ChainName         string               `json:"chainName"`
	NativeCurrency    nativeCurrencyParams `json:"nativeCurrency"`
	RPCURLs           []string             `json:"rpcUrls"`
	BlockExplorerURLs []string             `json:"blockExplorerUrls,omitempty"`
}

func (p *RPCProvider) AddNetwork(ctx context.Context, chain types.ChainSpec) error {
	return p.client.CallContext(ctx, nil, "wallet_addEthereumChain", addChainParams{
		ChainID:   chain.HexChainID(),
		ChainName: chain.Name,
		NativeCurrency: nativeCurrencyParams{
			Name:     chain.NativeCurrency.Name,
			Symbol:   chain.NativeCurrency.Symbol,
			Decimals: chain.NativeCurrency.Decimals,
		},
		RPCURLs:           chain.RPCURLs,
		BlockExplorerURLs: chain.BlockExplorerURLs,
	})
}

type sendTxParams struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value *hexutil.Big   `json:"value"`
	Gas   hexutil.Uint64 `json:"gas"`
}

func (p *RPCProvider) SendTransaction(ctx context.Context, req types.TransferRequest) (common.Hash, error) {
	var hash common.Hash
	err := p.client.CallContext(ctx, &hash, "eth_sendTransaction", sendTxParams{
		From:  req.From,
		To:    req.To,
		Value: (*hexutil.Big)(req.Value),
		Gas:   hexutil.Uint64(req.GasLimit),
	})
	if err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

type rpcTransaction struct {
	Hash  common.Hash     `json:"hash"`
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to"`
	Value *hexutil.Big    `json:"value"`
}

func (p *RPCProvider) TransactionByHash(ctx context.Context, hash common.Hash) (*types.TransactionRecord, error) {
	var raw *rpcTransaction
	if err := p.client.CallContext(ctx, &raw, "eth_getTransactionByHash", hash); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, clients.ErrTransactionNotFound
	}
	return &types.TransactionRecord{
		Hash:  raw.Hash,
		From:  raw.From,
		To:    raw.To,
		Value: raw.Value.ToInt(),
	}, nil
}

type rpcReceipt struct {
	TransactionHash common.Hash    `json:"transactionHash"`
	Status          hexutil.Uint64 `json:"status"`
	BlockNumber     *hexutil.Big   `json:"blockNumber"`
}

func (p *RPCProvider) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var raw *rpcReceipt
	if err := p.client.CallContext(ctx, &raw, "eth_getTransactionReceipt", hash); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return &types.Receipt{
		TxHash:      raw.TransactionHash,
		Status:      types.ConfirmationStatus(raw.Status),
		BlockNumber: raw.BlockNumber.ToInt(),
	}, nil
}
