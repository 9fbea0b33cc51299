package settlement

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/storefront/events"
	"github.com/vitwit/storefront/store"
	"github.com/vitwit/storefront/types"
)

var (
	seller = common.HexToAddress("0x384Aa214be0B279cbf211e9b2C992d8633F77848")
	buyer  = common.HexToAddress("0xE4d365a5a8fC0DCEE9E3C5985D7FcBab8B4A0fE1")
	txHash = common.HexToHash("0x9b2f4c1e0d3a5b7c9e1f3a5b7c9d1e3f5a7b9c1d3e5f7a9b1c3d5e7f9a1b3c5d")
)

// chain is an in-memory verification.Source.
type chain struct {
	mu       sync.Mutex
	txs      map[common.Hash]*types.TransactionRecord
	receipts map[common.Hash]*types.Receipt
	err      error
}

func newChain() *chain {
	return &chain{
		txs:      make(map[common.Hash]*types.TransactionRecord),
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func (c *chain) mine(hash common.Hash, from, to common.Address, wei string, status types.ConfirmationStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, _ := new(big.Int).SetString(wei, 10)
	c.txs[hash] = &types.TransactionRecord{Hash: hash, From: from, To: &to, Value: value}
	c.receipts[hash] = &types.Receipt{TxHash: hash, Status: status, BlockNumber: big.NewInt(7)}
}

func (c *chain) TransactionByHash(_ context.Context, hash common.Hash) (*types.TransactionRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	tx, ok := c.txs[hash]
	if !ok {
		return nil, errors.New("not found")
	}
	return tx, nil
}

func (c *chain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return c.receipts[hash], nil
}

func unreconciled(productID string) events.PaymentUnreconciledEvent {
	return events.PaymentUnreconciledEvent{
		TxHash:           txHash.Hex(),
		ProductID:        productID,
		PayerAddress:     buyer.Hex(),
		RecipientAddress: seller.Hex(),
		AmountRequired:   decimal.RequireFromString("0.015"),
		CustomerName:     "Ada Lovelace",
		CustomerEmail:    "ada@example.com",
		CustomerPhone:    "+44 20 7946 0000",
		Street:           "12 St James's Square",
		City:             "London",
		State:            "Greater London",
		ZipCode:          "SW1Y 4JH",
		Country:          "UK",
		Reason:           "insert order: connection reset",
		VerifiedAt:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func setup(t *testing.T) (*chain, *store.Memory, *types.Product, *SettlementService) {
	t.Helper()
	db := store.NewMemory()
	p := &types.Product{
		SellerID:      "seller-1",
		Name:          "Hand-thrown mug",
		Price:         decimal.RequireFromString("0.015"),
		WalletAddress: seller.Hex(),
	}
	require.NoError(t, db.CreateProduct(context.Background(), p))

	c := newChain()
	return c, db, p, NewSettlementService(c, db, WithCatalog(db))
}

func TestReconcileCreatesOrder(t *testing.T) {
	c, db, p, svc := setup(t)
	c.mine(txHash, buyer, seller, "15000000000000000", types.StatusSuccess)

	res, err := svc.Reconcile(context.Background(), unreconciled(p.ID))
	require.NoError(t, err)
	assert.True(t, res.Created)
	require.NotNil(t, res.Verification)
	assert.Equal(t, "0.015", res.Verification.AmountConfirmed.String())

	order, err := db.OrderByTxHash(context.Background(), txHash.Hex())
	require.NoError(t, err)
	assert.Equal(t, res.OrderID, order.ID)
	assert.Equal(t, types.OrderPaid, order.Status)
	assert.Equal(t, types.PaymentCompleted, order.PaymentStatus)
	assert.Equal(t, "Hand-thrown mug", order.ProductName)
	assert.Equal(t, buyer.Hex(), order.PayerAddress)
	assert.Equal(t, "London", order.ShippingAddress.City)

	list, err := db.OrdersBySeller(context.Background(), "seller-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestReconcileIsIdempotent(t *testing.T) {
	c, db, p, svc := setup(t)
	c.mine(txHash, buyer, seller, "15000000000000000", types.StatusSuccess)

	first, err := svc.Reconcile(context.Background(), unreconciled(p.ID))
	require.NoError(t, err)

	c.err = errors.New("node offline")
	second, err := svc.Reconcile(context.Background(), unreconciled(p.ID))
	require.NoError(t, err, "an existing order short-circuits before the chain is read")
	assert.False(t, second.Created)
	assert.Equal(t, first.OrderID, second.OrderID)

	list, err := db.OrdersBySeller(context.Background(), "seller-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestReconcileErrorsArePermanentOrTransient(t *testing.T) {
	tests := []struct {
		name      string
		prepare   func(c *chain)
		modify    func(e *events.PaymentUnreconciledEvent)
		permanent bool
		kind      types.ErrorKind
	}{
		{
			name:    "not mined yet",
			prepare: func(*chain) {},
			kind:    types.ErrConfirmationTimeout,
		},
		{
			name:    "node unavailable",
			prepare: func(c *chain) { c.err = errors.New("dial tcp: connection refused") },
			kind:    types.ErrProviderError,
		},
		{
			name: "underpaid",
			prepare: func(c *chain) {
				c.mine(txHash, buyer, seller, "14999999999999999", types.StatusSuccess)
			},
			permanent: true,
			kind:      types.ErrAmountInsufficient,
		},
		{
			name: "reverted",
			prepare: func(c *chain) {
				c.mine(txHash, buyer, seller, "15000000000000000", types.StatusFailed)
			},
			permanent: true,
			kind:      types.ErrStatusMismatch,
		},
		{
			name: "paid to someone else",
			prepare: func(c *chain) {
				c.mine(txHash, buyer, buyer, "15000000000000000", types.StatusSuccess)
			},
			permanent: true,
			kind:      types.ErrReceiverMismatch,
		},
		{
			name:      "malformed hash",
			prepare:   func(*chain) {},
			modify:    func(e *events.PaymentUnreconciledEvent) { e.TxHash = "0x1234" },
			permanent: true,
		},
		{
			name:      "malformed payer",
			prepare:   func(*chain) {},
			modify:    func(e *events.PaymentUnreconciledEvent) { e.PayerAddress = "nobody" },
			permanent: true,
		},
		{
			name: "missing customer email",
			prepare: func(c *chain) {
				c.mine(txHash, buyer, seller, "15000000000000000", types.StatusSuccess)
			},
			modify:    func(e *events.PaymentUnreconciledEvent) { e.CustomerEmail = "" },
			permanent: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, db, p, svc := setup(t)
			tt.prepare(c)
			evt := unreconciled(p.ID)
			if tt.modify != nil {
				tt.modify(&evt)
			}

			_, err := svc.Reconcile(context.Background(), evt)
			require.Error(t, err)
			assert.Equal(t, tt.permanent, events.IsPermanent(err))
			if tt.kind != "" {
				assert.Equal(t, tt.kind, types.KindOf(err))
			}

			_, err = db.OrderByTxHash(context.Background(), evt.TxHash)
			assert.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

func TestHandleDecodesEnvelope(t *testing.T) {
	c, db, p, svc := setup(t)
	c.mine(txHash, buyer, seller, "15000000000000000", types.StatusSuccess)

	env, err := events.NewEnvelope(events.TypePaymentUnreconciled, unreconciled(p.ID), time.Now())
	require.NoError(t, err)
	require.NoError(t, events.Dispatch(context.Background(), svc.Handle, env))

	_, err = db.OrderByTxHash(context.Background(), txHash.Hex())
	assert.NoError(t, err)

	other, err := events.NewEnvelope(events.TypeOrderPaid, events.OrderPaidEvent{OrderID: "x"}, time.Now())
	require.NoError(t, err)
	assert.NoError(t, svc.Handle(context.Background(), other), "other event types are ignored")

	bad := events.Envelope{EventID: "e1", Type: events.TypePaymentUnreconciled, Data: []byte(`{"tx_hash": 7}`)}
	assert.True(t, events.IsPermanent(svc.Handle(context.Background(), bad)))
}
