package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/storefront/events"
	"github.com/vitwit/storefront/logger"
	"github.com/vitwit/storefront/metrics"
	"github.com/vitwit/storefront/store"
	"github.com/vitwit/storefront/types"
	"github.com/vitwit/storefront/utils"
	"github.com/vitwit/storefront/verification"
)

// Reconciler settles a verified payment that has no order yet.
type Reconciler interface {
	Reconcile(ctx context.Context, evt events.PaymentUnreconciledEvent) (*Result, error)
}

// Orders is the part of the order store the reconciler needs.
type Orders interface {
	CreateOrder(ctx context.Context, req types.OrderRequest) (*types.Order, error)
	OrderByTxHash(ctx context.Context, txHash string) (*types.Order, error)
}

// Catalog resolves product names for reconciled orders.
type Catalog interface {
	ProductByID(ctx context.Context, id string) (*types.Product, error)
}

// Result describes one reconciliation.
type Result struct {
	TxHash       string                    `json:"txHash"`
	OrderID      string                    `json:"orderId"`
	Created      bool                      `json:"created"`
	Verification *types.VerificationResult `json:"verification,omitempty"`
}

// SettlementService re-verifies unreconciled payments against the chain and
// creates the missing orders. Reconciling the same transaction twice is a
// no-op.
type SettlementService struct {
	source   verification.Source
	orders   Orders
	catalog  Catalog
	decimals int32
	timeout  time.Duration
	clock    verification.Clock
	logger   logger.Logger
	metrics  metrics.Recorder
}

var _ Reconciler = (*SettlementService)(nil)

type Option func(*SettlementService)

// WithTimeout bounds each chain re-verification.
func WithTimeout(d time.Duration) Option {
	return func(s *SettlementService) { s.timeout = d }
}

// WithCatalog fills the product name on created orders.
func WithCatalog(c Catalog) Option {
	return func(s *SettlementService) { s.catalog = c }
}

func WithDecimals(d int32) Option {
	return func(s *SettlementService) { s.decimals = d }
}

func WithClock(c verification.Clock) Option {
	return func(s *SettlementService) { s.clock = c }
}

func WithLogger(l logger.Logger) Option {
	return func(s *SettlementService) { s.logger = l }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(s *SettlementService) { s.metrics = m }
}

// NewSettlementService creates a new settlement service
func NewSettlementService(source verification.Source, orders Orders, opts ...Option) *SettlementService {
	s := &SettlementService{
		source:   source,
		orders:   orders,
		decimals: types.UmiDevnet.NativeCurrency.Decimals,
		timeout:  30 * time.Second,
		clock:    verification.RealClock{},
		logger:   logger.NoopLogger{},
		metrics:  metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reconcile verifies the payment in evt and creates its order. Errors
// wrapped with events.Permanent will never succeed on retry; any other
// error is transient.
func (s *SettlementService) Reconcile(ctx context.Context, evt events.PaymentUnreconciledEvent) (*Result, error) {
	res, err := s.reconcile(ctx, evt)

	outcome := "created"
	switch {
	case err != nil && events.IsPermanent(err):
		outcome = "rejected"
	case err != nil:
		outcome = "retry"
	case !res.Created:
		outcome = "existing"
	}
	s.metrics.IncCounter(metrics.ReconcileOutcome, map[string]string{"state": outcome, "kind": string(types.KindOf(err))})

	fields := map[string]any{"tx_hash": evt.TxHash, "product_id": evt.ProductID, "outcome": outcome}
	if err != nil {
		fields["err"] = err
		s.logger.Warn("payment reconciliation failed", fields)
	} else {
		fields["order_id"] = res.OrderID
		s.logger.Info("payment reconciled", fields)
	}
	return res, err
}

func (s *SettlementService) reconcile(ctx context.Context, evt events.PaymentUnreconciledEvent) (*Result, error) {
	if err := utils.ValidateTransactionHash(evt.TxHash); err != nil {
		return nil, events.Permanent(fmt.Errorf("invalid tx hash: %w", err))
	}
	payer, err := utils.ParseAddress(evt.PayerAddress)
	if err != nil {
		return nil, events.Permanent(fmt.Errorf("invalid payer address: %w", err))
	}
	recipient, err := utils.ParseAddress(evt.RecipientAddress)
	if err != nil {
		return nil, events.Permanent(fmt.Errorf("invalid recipient address: %w", err))
	}

	existing, err := s.orders.OrderByTxHash(ctx, evt.TxHash)
	switch {
	case err == nil:
		return &Result{TxHash: evt.TxHash, OrderID: existing.ID}, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("look up order: %w", err)
	}

	svc := verification.NewVerificationService(s.source, s.decimals,
		verification.WithTimeout(s.timeout),
		verification.WithClock(s.clock),
		verification.WithLogger(s.logger),
		verification.WithMetrics(s.metrics),
	)
	intent := types.PaymentIntent{
		ProductID:      evt.ProductID,
		Recipient:      recipient,
		AmountRequired: evt.AmountRequired,
		Payer:          &payer,
	}
	verified, err := svc.Verify(ctx, intent, payer, common.HexToHash(evt.TxHash))
	if err != nil {
		switch types.KindOf(err) {
		case types.ErrConfirmationTimeout, types.ErrProviderError:
			return nil, err
		}
		return nil, events.Permanent(err)
	}

	order, err := s.orders.CreateOrder(ctx, types.OrderRequest{
		ProductID:     evt.ProductID,
		ProductName:   s.productName(ctx, evt.ProductID),
		ProductPrice:  evt.AmountRequired,
		CustomerName:  evt.CustomerName,
		CustomerEmail: evt.CustomerEmail,
		CustomerPhone: evt.CustomerPhone,
		ShippingAddress: types.ShippingAddress{
			Street:  evt.Street,
			City:    evt.City,
			State:   evt.State,
			ZipCode: evt.ZipCode,
			Country: evt.Country,
		},
		Status:        types.OrderPaid,
		PaymentStatus: types.PaymentCompleted,
		WalletAddress: evt.RecipientAddress,
		PayerAddress:  evt.PayerAddress,
		Notes:         evt.Notes,
		TxHash:        evt.TxHash,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateOrder) {
			existing, lookupErr := s.orders.OrderByTxHash(ctx, evt.TxHash)
			if lookupErr != nil {
				return nil, fmt.Errorf("look up order after conflict: %w", lookupErr)
			}
			return &Result{TxHash: evt.TxHash, OrderID: existing.ID, Verification: verified}, nil
		}
		var fields utils.FieldErrors
		if errors.As(err, &fields) {
			return nil, events.Permanent(err)
		}
		return nil, fmt.Errorf("create order: %w", err)
	}

	return &Result{TxHash: evt.TxHash, OrderID: order.ID, Created: true, Verification: verified}, nil
}

func (s *SettlementService) productName(ctx context.Context, id string) string {
	if s.catalog == nil {
		return ""
	}
	p, err := s.catalog.ProductByID(ctx, id)
	if err != nil {
		s.logger.Debug("product lookup failed", map[string]any{"product_id": id, "err": err})
		return ""
	}
	return p.Name
}

// Handle is an events.Handler for payment.unreconciled messages.
func (s *SettlementService) Handle(ctx context.Context, env events.Envelope) error {
	if env.Type != events.TypePaymentUnreconciled {
		return nil
	}
	var evt events.PaymentUnreconciledEvent
	if err := env.Decode(&evt); err != nil {
		return events.Permanent(err)
	}
	_, err := s.Reconcile(ctx, evt)
	return err
}
