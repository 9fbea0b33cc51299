package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/storefront/types"
)

// scriptedReceipts returns nil until the receipt is ready on attempt `at`.
type scriptedReceipts struct {
	at      int
	receipt *types.Receipt
	err     error
	calls   int
}

func (s *scriptedReceipts) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	s.calls++
	if s.at > 0 && s.calls >= s.at {
		return s.receipt, nil
	}
	return nil, s.err
}

func TestPollerTimesOutAfterExactlySixtyAttempts(t *testing.T) {
	clock := NewStepClock(time.Unix(0, 0))
	src := &scriptedReceipts{}
	p := NewPoller(clock)

	r, err := p.WaitForReceipt(context.Background(), src, txHash)
	require.Error(t, err)
	assert.Nil(t, r)
	assert.Equal(t, types.ErrConfirmationTimeout, types.KindOf(err))
	assert.Equal(t, 60, src.calls)
	assert.Len(t, clock.Waits(), 59)
	assert.Equal(t, 177*time.Second, clock.Elapsed())
	for _, w := range clock.Waits() {
		assert.Equal(t, 3*time.Second, w)
	}

	var pe *types.PaymentError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, txHash.Hex(), pe.TxHash)
}

func TestPollerPollErrorsCountAsPending(t *testing.T) {
	clock := NewStepClock(time.Unix(0, 0))
	src := &scriptedReceipts{err: errors.New("temporarily unavailable")}
	p := &Poller{Clock: clock, Interval: time.Second, MaxAttempts: 5}

	var seen []int
	p.OnAttempt = func(attempt int, err error) {
		seen = append(seen, attempt)
		assert.Error(t, err)
	}

	_, err := p.WaitForReceipt(context.Background(), src, txHash)
	assert.Equal(t, types.ErrConfirmationTimeout, types.KindOf(err))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, seen)
}

func TestPollerReturnsReceiptWhenMined(t *testing.T) {
	clock := NewStepClock(time.Unix(0, 0))
	src := &scriptedReceipts{at: 4, receipt: goodReceipt()}

	r, err := NewPoller(clock).WaitForReceipt(context.Background(), src, txHash)
	require.NoError(t, err)
	assert.True(t, r.Succeeded())
	assert.Equal(t, 4, src.calls)
	assert.Len(t, clock.Waits(), 3)
}

func TestPollerRevertedReceipt(t *testing.T) {
	src := &scriptedReceipts{at: 1, receipt: &types.Receipt{TxHash: txHash, Status: types.StatusFailed}}

	r, err := NewPoller(NewStepClock(time.Unix(0, 0))).WaitForReceipt(context.Background(), src, txHash)
	require.Error(t, err)
	assert.NotNil(t, r)
	assert.Equal(t, types.ErrTransactionFailed, types.KindOf(err))
}

func TestPollerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &scriptedReceipts{}
	p := NewPoller(NewStepClock(time.Unix(0, 0)))
	p.OnAttempt = func(attempt int, _ error) {
		if attempt == 2 {
			cancel()
		}
	}

	_, err := p.WaitForReceipt(ctx, src, txHash)
	require.Error(t, err)
	assert.Equal(t, types.ErrConfirmationTimeout, types.KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, src.calls)
}
