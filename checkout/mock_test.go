package checkout

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/storefront/types"
	"github.com/vitwit/storefront/wallet"
)

var (
	sellerAddr = common.HexToAddress("0x384Aa214be0B279cbf211e9b2C992d8633F77848")
	buyerAddr  = common.HexToAddress("0xE4d365a5a8fC0DCEE9E3C5985D7FcBab8B4A0fE1")
	otherAddr  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	sentHash   = common.HexToHash("0x5f1c8a6a2b0f4b3d9c8e7f6a5b4c3d2e1f0a9b8c7d6e5f4a3b2c1d0e9f8a7b6c")
)

// scriptedWallet approves everything unless told otherwise. The transaction
// it reports mirrors the transfer it was asked to send, after txEdit.
type scriptedWallet struct {
	info wallet.Info

	accounts    []common.Address
	accountsErr error
	switchErr   error
	addErr      error
	sendErr     error

	// receiptAt is the receipt poll that first returns a receipt; 0 never.
	receiptAt     int
	receiptStatus types.ConfirmationStatus
	// refetchStatus, when set, replaces the status on later receipt reads.
	refetchStatus *types.ConfirmationStatus
	txEdit        func(*types.TransactionRecord)

	beforeAccounts func(ctx context.Context)
	afterSend      func()

	mu           sync.Mutex
	calls        []string
	sent         *types.TransferRequest
	receiptCalls int
	mined        bool
}

func approvingWallet() *scriptedWallet {
	return &scriptedWallet{
		info:          wallet.Info{Name: "MetaMask", Kind: wallet.KindMetaMask},
		accounts:      []common.Address{buyerAddr},
		receiptAt:     3,
		receiptStatus: types.StatusSuccess,
	}
}

func (w *scriptedWallet) record(call string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, call)
}

func (w *scriptedWallet) Calls() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.calls...)
}

func (w *scriptedWallet) Info() wallet.Info { return w.info }

func (w *scriptedWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	w.record("RequestAccounts")
	if w.beforeAccounts != nil {
		w.beforeAccounts(ctx)
	}
	if w.accountsErr != nil {
		return nil, w.accountsErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return w.accounts, nil
}

func (w *scriptedWallet) SwitchNetwork(_ context.Context, chainID *big.Int) error {
	w.record("SwitchNetwork:" + chainID.String())
	return w.switchErr
}

func (w *scriptedWallet) AddNetwork(_ context.Context, chain types.ChainSpec) error {
	w.record("AddNetwork:" + chain.HexChainID())
	return w.addErr
}

func (w *scriptedWallet) SendTransaction(_ context.Context, req types.TransferRequest) (common.Hash, error) {
	w.record("SendTransaction")
	if w.sendErr != nil {
		return common.Hash{}, w.sendErr
	}
	w.mu.Lock()
	w.sent = &req
	w.mu.Unlock()
	if w.afterSend != nil {
		w.afterSend()
	}
	return sentHash, nil
}

func (w *scriptedWallet) TransactionByHash(_ context.Context, hash common.Hash) (*types.TransactionRecord, error) {
	w.record("TransactionByHash")
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sent == nil || hash != sentHash {
		return nil, errors.New("unknown transaction")
	}
	to := w.sent.To
	rec := &types.TransactionRecord{
		Hash:  hash,
		From:  w.sent.From,
		To:    &to,
		Value: new(big.Int).Set(w.sent.Value),
	}
	if w.txEdit != nil {
		w.txEdit(rec)
	}
	return rec, nil
}

func (w *scriptedWallet) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.receiptCalls++

	if w.mined {
		status := w.receiptStatus
		if w.refetchStatus != nil {
			status = *w.refetchStatus
		}
		return &types.Receipt{TxHash: hash, Status: status, BlockNumber: big.NewInt(100)}, nil
	}
	if w.receiptAt > 0 && w.receiptCalls >= w.receiptAt {
		w.mined = true
		return &types.Receipt{TxHash: hash, Status: w.receiptStatus, BlockNumber: big.NewInt(100)}, nil
	}
	return nil, nil
}

func (w *scriptedWallet) ReceiptCalls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.receiptCalls
}

type recordingOrders struct {
	mu       sync.Mutex
	requests []types.OrderRequest
	err      error
}

func (o *recordingOrders) CreateOrder(_ context.Context, req types.OrderRequest) (*types.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests = append(o.requests, req)
	if o.err != nil {
		return nil, o.err
	}
	return &types.Order{
		ID:            "order-1",
		ProductID:     req.ProductID,
		Status:        req.Status,
		PaymentStatus: req.PaymentStatus,
		TxHash:        req.TxHash,
	}, nil
}

func (o *recordingOrders) Requests() []types.OrderRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]types.OrderRequest(nil), o.requests...)
}
