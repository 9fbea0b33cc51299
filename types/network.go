package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// NativeCurrency describes a chain's native coin.
type NativeCurrency struct {
	Name     string `json:"name" validate:"required"`
	Symbol   string `json:"symbol" validate:"required"`
	Decimals int32  `json:"decimals" validate:"min=0,max=36"`
}

// ChainSpec is everything a wallet needs to add an unknown network.
type ChainSpec struct {
	ChainID           int64          `json:"chainId" validate:"required,gt=0"`
	Name              string         `json:"chainName" validate:"required"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls" validate:"required,min=1,dive,url"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty" validate:"dive,url"`
}

// BigChainID returns the chain id as a big.Int.
func (c ChainSpec) BigChainID() *big.Int {
	return big.NewInt(c.ChainID)
}

// HexChainID returns the 0x-prefixed chain id used by wallet RPC methods.
func (c ChainSpec) HexChainID() string {
	return hexutil.EncodeBig(c.BigChainID())
}

// ExplorerTxURL links a transaction on the first configured explorer.
func (c ChainSpec) ExplorerTxURL(txHash string) string {
	if len(c.BlockExplorerURLs) == 0 || txHash == "" {
		return ""
	}
	return c.BlockExplorerURLs[0] + "/tx/" + txHash
}

// UmiDevnet is the network the storefront settles on by default.
var UmiDevnet = ChainSpec{
	ChainID: 42069,
	Name:    "Umi Devnet",
	NativeCurrency: NativeCurrency{
		Name:     "Ether",
		Symbol:   "ETH",
		Decimals: 18,
	},
	RPCURLs:           []string{"https://devnet.uminetwork.com"},
	BlockExplorerURLs: []string{"https://devnet.explorer.moved.network"},
}
