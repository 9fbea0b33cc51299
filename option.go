package storefront

import (
	"time"

	"github.com/vitwit/storefront/checkout"
	"github.com/vitwit/storefront/events"
	"github.com/vitwit/storefront/logger"
	"github.com/vitwit/storefront/metrics"
	"github.com/vitwit/storefront/settlement"
	"github.com/vitwit/storefront/store"
	"github.com/vitwit/storefront/verification"
	"github.com/vitwit/storefront/wallet"
)

type Option func(*Storefront)

func WithLogger(l logger.Logger) Option {
	return func(s *Storefront) {
		s.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(s *Storefront) {
		s.metrics = r
	}
}

// WithTimeout bounds each server-side chain verification.
func WithTimeout(t time.Duration) Option {
	return func(s *Storefront) {
		s.timeout = t
	}
}

// WithClock times confirmation polling and reconciliation retries.
func WithClock(c verification.Clock) Option {
	return func(s *Storefront) {
		s.clock = c
	}
}

// WithSettlementBackoff bounds in-process reconciliation retries.
func WithSettlementBackoff(b settlement.Backoff) Option {
	return func(s *Storefront) {
		s.backoff = b
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Storefront) {
		s.publisher = p
	}
}

func WithStore(st store.Store) Option {
	return func(s *Storefront) {
		s.store = st
	}
}

// WithBackend replaces the EVM client used for chain reads and keyed
// wallets.
func WithBackend(b wallet.Backend) Option {
	return func(s *Storefront) {
		s.backend = b
	}
}

// WithWalletEnvironment replaces the configured wallets.
func WithWalletEnvironment(env wallet.Environment) Option {
	return func(s *Storefront) {
		s.env = env
	}
}

// WithApproval gates transfers from configured keyed wallets.
func WithApproval(a wallet.Approval) Option {
	return func(s *Storefront) {
		s.approval = a
	}
}

// WithStateListener is called after every checkout state transition.
func WithStateListener(fn func(checkout.Transition)) Option {
	return func(s *Storefront) {
		s.listener = fn
	}
}
