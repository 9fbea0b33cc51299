package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/storefront/types"
)

// Kind identifies a wallet family.
type Kind string

const (
	KindMetaMask Kind = "metamask"
	KindCoinbase Kind = "coinbase"
	KindTrust    Kind = "trust"
	KindOKX      Kind = "okx"
	KindPhantom  Kind = "phantom"
	KindGeneric  Kind = "generic"
)

// Primary is the wallet preferred when several are available.
const Primary = KindMetaMask

// Info names a provider.
type Info struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Provider is the capability set a checkout needs from a wallet.
// TransactionReceipt returns a nil receipt and nil error while the
// transaction is pending.
type Provider interface {
	Info() Info
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	SwitchNetwork(ctx context.Context, chainID *big.Int) error
	AddNetwork(ctx context.Context, chain types.ChainSpec) error
	SendTransaction(ctx context.Context, req types.TransferRequest) (common.Hash, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.TransactionRecord, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// ParseKind maps a configured name to a Kind, defaulting to KindGeneric.
func ParseKind(s string) Kind {
	switch Kind(s) {
	case KindMetaMask, KindCoinbase, KindTrust, KindOKX, KindPhantom:
		return Kind(s)
	}
	return KindGeneric
}
