package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/vitwit/storefront/types"
	"github.com/vitwit/storefront/utils"
)

// Backend is the chain access a KeyedProvider signs against.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.TransactionRecord, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Approval is asked before every transfer; returning false rejects it.
type Approval func(ctx context.Context, req types.TransferRequest) bool

var _ Provider = (*KeyedProvider)(nil)

// KeyedProvider is a wallet holding a local private key. It behaves like an
// injected wallet: networks must be added before they can be selected and
// every transfer can be gated by an approval callback.
type KeyedProvider struct {
	info    Info
	key     *ecdsa.PrivateKey
	address common.Address
	backend Backend
	approve Approval

	mu     sync.Mutex
	known  map[string]types.ChainSpec
	active *big.Int
}

type KeyedOption func(*KeyedProvider)

// WithApproval gates transfers behind a confirmation.
func WithApproval(a Approval) KeyedOption {
	return func(p *KeyedProvider) { p.approve = a }
}

// WithKnownNetwork pre-registers a network, as if the user had added it before.
func WithKnownNetwork(chain types.ChainSpec) KeyedOption {
	return func(p *KeyedProvider) { p.known[chain.HexChainID()] = chain }
}

func NewKeyedProvider(info Info, hexKey string, backend Backend, opts ...KeyedOption) (*KeyedProvider, error) {
	key, err := utils.PrivateKeyFromHex(hexKey)
	if err != nil {
		return nil, err
	}
	if info.Kind == "" {
		info.Kind = KindGeneric
	}

	p := &KeyedProvider{
		info:    info,
		key:     key,
		address: utils.AddressFromPrivateKey(key),
		backend: backend,
		known:   make(map[string]types.ChainSpec),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *KeyedProvider) Info() Info { return p.info }

// Address is the account controlled by the key.
func (p *KeyedProvider) Address() common.Address { return p.address }

func (p *KeyedProvider) RequestAccounts(context.Context) ([]common.Address, error) {
	return []common.Address{p.address}, nil
}

func (p *KeyedProvider) SwitchNetwork(_ context.Context, chainID *big.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	spec, ok := p.known[types.ChainSpec{ChainID: chainID.Int64()}.HexChainID()]
	if !ok {
		return &ProviderRPCError{Code: CodeUnknownChain, Message: "Unrecognized chain ID " + chainID.String()}
	}
	p.active = spec.BigChainID()
	return nil
}

func (p *KeyedProvider) AddNetwork(ctx context.Context, chain types.ChainSpec) error {
	if err := utils.ValidateStruct(chain); err != nil {
		return &ProviderRPCError{Code: CodeInternalError, Message: err.Error()}
	}

	backendID, err := p.backend.ChainID(ctx)
	if err != nil {
		return err
	}
	if backendID.Cmp(chain.BigChainID()) != 0 {
		return &ProviderRPCError{Code: CodeInternalError,
			Message: fmt.Sprintf("rpc endpoint reports chain %s, not %d", backendID, chain.ChainID)}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.known[chain.HexChainID()] = chain
	p.active = chain.BigChainID()
	return nil
}

func (p *KeyedProvider) SendTransaction(ctx context.Context, req types.TransferRequest) (common.Hash, error) {
	if req.From != p.address {
		return common.Hash{}, &ProviderRPCError{Code: CodeUnauthorized,
			Message: "account " + req.From.Hex() + " is not controlled by this wallet"}
	}

	p.mu.Lock()
	active := p.active
	p.mu.Unlock()
	if active == nil {
		return common.Hash{}, &ProviderRPCError{Code: CodeDisconnected, Message: "no network selected"}
	}

	if p.approve != nil && !p.approve(ctx, req) {
		return common.Hash{}, &ProviderRPCError{Code: CodeUserRejected, Message: "User rejected the request."}
	}

	nonce, err := p.backend.PendingNonceAt(ctx, p.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := p.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}

	to := req.To
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    req.Value,
		Gas:      req.GasLimit,
		GasPrice: gasPrice,
	})

	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(active), p.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := p.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	return signed.Hash(), nil
}

func (p *KeyedProvider) TransactionByHash(ctx context.Context, hash common.Hash) (*types.TransactionRecord, error) {
	return p.backend.TransactionByHash(ctx, hash)
}

func (p *KeyedProvider) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return p.backend.TransactionReceipt(ctx, hash)
}
