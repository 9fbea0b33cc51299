package events

import (
	"context"
	"errors"
	"fmt"
)

// ErrPermanent marks a handler error that retrying cannot fix.
var ErrPermanent = errors.New("permanent event failure")

// Permanent wraps err so the consumer drops the message instead of
// requeueing it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// Dispatch runs handler and converts a panic into a permanent error.
func Dispatch(ctx context.Context, handler Handler, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return handler(ctx, env)
}
