package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vitwit/storefront/events"
	"github.com/vitwit/storefront/logger"
	"github.com/vitwit/storefront/metrics"
	"github.com/vitwit/storefront/types"
	"github.com/vitwit/storefront/utils"
	"github.com/vitwit/storefront/verification"
	"github.com/vitwit/storefront/wallet"
)

// DefaultGasLimit covers a plain native transfer.
const DefaultGasLimit = 21000

var (
	ErrAttemptInProgress = errors.New("checkout: a payment attempt is already in progress")
	ErrNotRetryable      = errors.New("checkout: only a failed attempt can be retried")
	ErrNotAcceptingForm  = errors.New("checkout: session is not accepting a submission")
)

// OrderCreator persists the order for a verified payment.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req types.OrderRequest) (*types.Order, error)
}

// Verifier runs payment checkouts against the wallets found in an
// environment. It holds no per-attempt state; see Session.
type Verifier struct {
	env       wallet.Environment
	orders    OrderCreator
	chain     types.ChainSpec
	gasLimit  uint64
	interval  time.Duration
	attempts  int
	clock     verification.Clock
	logger    logger.Logger
	metrics   metrics.Recorder
	publisher events.Publisher
	listener  func(Transition)
}

type Option func(*Verifier)

func WithLogger(l logger.Logger) Option {
	return func(v *Verifier) { v.logger = l }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(v *Verifier) { v.metrics = m }
}

func WithClock(c verification.Clock) Option {
	return func(v *Verifier) { v.clock = c }
}

func WithPollInterval(d time.Duration) Option {
	return func(v *Verifier) { v.interval = d }
}

func WithMaxAttempts(n int) Option {
	return func(v *Verifier) { v.attempts = n }
}

func WithGasLimit(g uint64) Option {
	return func(v *Verifier) { v.gasLimit = g }
}

// WithChain sets the network payments settle on.
func WithChain(c types.ChainSpec) Option {
	return func(v *Verifier) { v.chain = c }
}

// WithPublisher sets where order.paid and payment.unreconciled events go.
func WithPublisher(p events.Publisher) Option {
	return func(v *Verifier) { v.publisher = p }
}

// WithStateListener registers a callback invoked after every transition.
func WithStateListener(fn func(Transition)) Option {
	return func(v *Verifier) { v.listener = fn }
}

func NewVerifier(env wallet.Environment, orders OrderCreator, opts ...Option) *Verifier {
	v := &Verifier{
		env:       env,
		orders:    orders,
		chain:     types.UmiDevnet,
		gasLimit:  DefaultGasLimit,
		interval:  verification.DefaultPollInterval,
		attempts:  verification.DefaultMaxAttempts,
		clock:     verification.RealClock{},
		logger:    logger.NoopLogger{},
		metrics:   metrics.NoopRecorder{},
		publisher: events.NoopPublisher{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Chain returns the settlement network.
func (v *Verifier) Chain() types.ChainSpec {
	return v.chain
}

// NewSession starts a checkout for product. The product's price must be
// positive and representable in the chain's base unit.
func (v *Verifier) NewSession(product types.Product) (*Session, error) {
	recipient, err := utils.ParseAddress(product.WalletAddress)
	if err != nil {
		return nil, fmt.Errorf("product %s has an invalid wallet address: %w", product.ID, err)
	}
	if !product.Price.IsPositive() {
		return nil, fmt.Errorf("product %s has a non-positive price", product.ID)
	}
	value, err := utils.ToBaseUnits(product.Price, v.chain.NativeCurrency.Decimals)
	if err != nil {
		return nil, fmt.Errorf("product %s: %w", product.ID, err)
	}

	return &Session{
		v:       v,
		product: product,
		value:   value,
		intent: types.PaymentIntent{
			ProductID:      product.ID,
			Recipient:      recipient,
			AmountRequired: product.Price,
		},
		log:   logger.With(v.logger, map[string]any{"product_id": product.ID}),
		state: StateForm,
	}, nil
}
