package settlement

import (
	"context"
	"time"

	"github.com/vitwit/storefront/events"
	"github.com/vitwit/storefront/verification"
)

// Backoff bounds retries of transient reconciliation failures.
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// DefaultBackoff waits 2s, 4s, 8s and 16s between five attempts.
var DefaultBackoff = Backoff{Attempts: 5, Initial: 2 * time.Second, Max: 30 * time.Second}

func (b Backoff) delay(attempt int) time.Duration {
	d := b.Initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	return d
}

// Retry runs fn until it succeeds, fails with an events.Permanent error or
// runs out of attempts. ctx only stops the waits between attempts; an
// attempt already running is not interrupted. The last error is returned.
func Retry(ctx context.Context, clock verification.Clock, b Backoff, fn func() error) error {
	attempts := b.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return lastErr
			case <-clock.After(b.delay(attempt - 1)):
			}
		}

		lastErr = fn()
		if lastErr == nil || events.IsPermanent(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
