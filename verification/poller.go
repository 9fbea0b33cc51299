package verification

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/storefront/types"
)

const (
	DefaultPollInterval = 3 * time.Second
	DefaultMaxAttempts  = 60
)

// ReceiptSource returns a nil receipt while the transaction is pending.
type ReceiptSource interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Poller waits for a receipt with a bounded number of attempts.
type Poller struct {
	Clock       Clock
	Interval    time.Duration
	MaxAttempts int

	// OnAttempt is called after every poll with the 1-based attempt number
	// and the poll error, if any.
	OnAttempt func(attempt int, err error)
}

// NewPoller returns a poller with the default 3s x 60 bound.
func NewPoller(clock Clock) *Poller {
	if clock == nil {
		clock = RealClock{}
	}
	return &Poller{
		Clock:       clock,
		Interval:    DefaultPollInterval,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// WaitForReceipt polls until a receipt appears. It waits Interval between
// attempts, never before the first or after the last. A failed poll counts
// as a pending attempt. Exhaustion and context cancellation both yield a
// ConfirmationTimeout carrying the hash; a mined receipt with a failed
// status yields TransactionFailed.
func (p *Poller) WaitForReceipt(ctx context.Context, src ReceiptSource, hash common.Hash) (*types.Receipt, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	clock := p.Clock
	if clock == nil {
		clock = RealClock{}
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		receipt, err := src.TransactionReceipt(ctx, hash)
		if p.OnAttempt != nil {
			p.OnAttempt(attempt, err)
		}

		if err == nil && receipt != nil {
			if !receipt.Succeeded() {
				return receipt, types.NewPaymentError(types.ErrTransactionFailed, nil,
					"transaction was mined but reverted").WithTxHash(hash.Hex())
			}
			return receipt, nil
		}

		if attempt == attempts {
			break
		}
		if ctx.Err() != nil {
			return nil, stopped(ctx, hash, attempt)
		}

		select {
		case <-ctx.Done():
			return nil, stopped(ctx, hash, attempt)
		case <-clock.After(p.Interval):
		}
	}

	return nil, types.NewPaymentError(types.ErrConfirmationTimeout, nil,
		"transaction not confirmed after %d attempts; it may still confirm later", attempts).
		WithTxHash(hash.Hex())
}

func stopped(ctx context.Context, hash common.Hash, attempt int) error {
	return types.NewPaymentError(types.ErrConfirmationTimeout, ctx.Err(),
		"stopped waiting for confirmation after %d attempts; the transaction may still confirm", attempt).
		WithTxHash(hash.Hex())
}
