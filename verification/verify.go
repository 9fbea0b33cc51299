package verification

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/storefront/logger"
	"github.com/vitwit/storefront/metrics"
	"github.com/vitwit/storefront/types"
	"github.com/vitwit/storefront/utils"
)

// ErrReceiptPending is wrapped when a transaction has no receipt yet.
var ErrReceiptPending = errors.New("transaction receipt not available yet")

// Source is anything that can read a transaction and its receipt. Wallet
// providers and chain clients both satisfy it.
type Source interface {
	ReceiptSource
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.TransactionRecord, error)
}

// Check runs the payment checks in order: receipt status, sender, receiver,
// amount. The first failing check decides the error kind.
func Check(intent types.PaymentIntent, payer common.Address, tx *types.TransactionRecord, receipt *types.Receipt, decimals int32) (*types.VerificationResult, error) {
	hash := ""
	if tx != nil {
		hash = tx.Hash.Hex()
	} else if receipt != nil {
		hash = receipt.TxHash.Hex()
	}

	if !receipt.Succeeded() {
		return nil, types.NewPaymentError(types.ErrStatusMismatch, nil,
			"transaction receipt does not indicate success").WithTxHash(hash)
	}
	if tx == nil {
		return nil, types.NewPaymentError(types.ErrStatusMismatch, nil,
			"transaction details unavailable").WithTxHash(hash)
	}

	if !utils.SameAddress(tx.From, payer) {
		return nil, types.NewPaymentError(types.ErrSenderMismatch, nil,
			"transaction sender %s does not match connected wallet %s", tx.From.Hex(), payer.Hex()).WithTxHash(hash)
	}

	if tx.To == nil || !utils.SameAddress(*tx.To, intent.Recipient) {
		to := "none"
		if tx.To != nil {
			to = tx.To.Hex()
		}
		return nil, types.NewPaymentError(types.ErrReceiverMismatch, nil,
			"transaction recipient %s does not match seller wallet %s", to, intent.Recipient.Hex()).WithTxHash(hash)
	}

	required, err := utils.ToBaseUnits(intent.AmountRequired, decimals)
	if err != nil {
		return nil, types.NewPaymentError(types.ErrAmountInsufficient, err,
			"required amount %s cannot be represented on chain", intent.AmountRequired).WithTxHash(hash)
	}

	if tx.Value == nil || tx.Value.Cmp(required) < 0 {
		return nil, types.NewPaymentError(types.ErrAmountInsufficient, nil,
			"insufficient payment amount: expected %s, got %s",
			intent.AmountRequired.String(), utils.FromBaseUnits(tx.Value, decimals).String()).WithTxHash(hash)
	}

	return &types.VerificationResult{
		Success:         true,
		TxHash:          hash,
		AmountConfirmed: utils.FromBaseUnits(tx.Value, decimals),
		ValueBaseUnits:  tx.Value,
		From:            tx.From.Hex(),
		To:              tx.To.Hex(),
	}, nil
}

// VerificationService re-reads a transaction from a Source and checks it
// against a payment intent.
type VerificationService struct {
	source   Source
	decimals int32
	timeout  time.Duration
	clock    Clock
	logger   logger.Logger
	metrics  metrics.Recorder
}

type Option func(*VerificationService)

func WithTimeout(d time.Duration) Option {
	return func(s *VerificationService) { s.timeout = d }
}

func WithClock(c Clock) Option {
	return func(s *VerificationService) { s.clock = c }
}

func WithLogger(l logger.Logger) Option {
	return func(s *VerificationService) { s.logger = l }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(s *VerificationService) { s.metrics = m }
}

// NewVerificationService creates a new verification service
func NewVerificationService(source Source, decimals int32, opts ...Option) *VerificationService {
	s := &VerificationService{
		source:   source,
		decimals: decimals,
		timeout:  30 * time.Second,
		clock:    RealClock{},
		logger:   logger.NoopLogger{},
		metrics:  metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify fetches the receipt and transaction for hash and checks them.
func (s *VerificationService) Verify(ctx context.Context, intent types.PaymentIntent, payer common.Address, hash common.Hash) (*types.VerificationResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := s.clock.Now()
	result, err := s.verify(ctx, intent, payer, hash)

	outcome := "success"
	if err != nil {
		outcome = string(types.KindOf(err))
		s.logger.Warn("payment verification failed", map[string]any{
			"tx_hash":    hash.Hex(),
			"product_id": intent.ProductID,
			"kind":       outcome,
			"err":        err,
		})
	} else {
		result.VerifiedAt = s.clock.Now()
		s.logger.Info("payment verified", map[string]any{
			"tx_hash":    hash.Hex(),
			"product_id": intent.ProductID,
			"amount":     result.AmountConfirmed.String(),
		})
	}
	s.metrics.ObserveLatency(metrics.VerificationLatency, s.clock.Now().Sub(start), map[string]string{"outcome": outcome})

	return result, err
}

func (s *VerificationService) verify(ctx context.Context, intent types.PaymentIntent, payer common.Address, hash common.Hash) (*types.VerificationResult, error) {
	receipt, err := s.source.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, types.NewPaymentError(types.ErrProviderError, err,
			"failed to fetch transaction receipt: %v", err).WithTxHash(hash.Hex())
	}
	if receipt == nil {
		return nil, types.NewPaymentError(types.ErrConfirmationTimeout, ErrReceiptPending,
			"transaction is not confirmed yet").WithTxHash(hash.Hex())
	}

	tx, err := s.source.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, types.NewPaymentError(types.ErrProviderError, err,
			"failed to fetch transaction: %v", err).WithTxHash(hash.Hex())
	}

	return Check(intent, payer, tx, receipt, s.decimals)
}
