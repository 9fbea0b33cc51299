// Package storefront wires the storefront together: product and order
// storage, the wallet checkout flow, server-side payment verification and
// reconciliation of payments whose order could not be saved.
package storefront

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/vitwit/storefront/api"
	"github.com/vitwit/storefront/checkout"
	"github.com/vitwit/storefront/clients"
	"github.com/vitwit/storefront/config"
	"github.com/vitwit/storefront/events"
	"github.com/vitwit/storefront/logger"
	"github.com/vitwit/storefront/metrics"
	"github.com/vitwit/storefront/settlement"
	"github.com/vitwit/storefront/store"
	"github.com/vitwit/storefront/verification"
	"github.com/vitwit/storefront/wallet"
)

// Storefront is the main struct that provides all storefront functionality
type Storefront struct {
	cfg config.Config

	store        store.Store
	backend      wallet.Backend
	env          wallet.Environment
	approval     wallet.Approval
	listener     func(checkout.Transition)
	publisher    events.Publisher
	verification *verification.VerificationService
	settlement   *settlement.SettlementService
	checkout     *checkout.Verifier

	logger  logger.Logger
	metrics metrics.Recorder
	timeout time.Duration
	clock   verification.Clock
	backoff settlement.Backoff

	closers []func()
	pending sync.WaitGroup
	done    context.Context
	stop    context.CancelFunc
}

// New builds a Storefront from cfg. Collaborators not injected through opts
// are created from the configuration: a Postgres or in-memory store, an EVM
// client on the configured node, a RabbitMQ or in-process publisher and the
// configured wallets.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Storefront, error) {
	s := &Storefront{
		cfg:     cfg,
		logger:  logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
		timeout: cfg.Checkout.VerifyTimeout.Std(),
		clock:   verification.RealClock{},
		backoff: settlement.DefaultBackoff,
	}
	s.done, s.stop = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(s)
	}

	if err := s.init(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Storefront) init(ctx context.Context) error {
	cfg := s.cfg

	if s.store == nil {
		db, err := openStore(ctx, cfg.Database)
		if err != nil {
			return err
		}
		s.store = db
		s.closers = append(s.closers, db.Close)
	}

	if s.backend == nil {
		client, err := clients.NewEVMClient(cfg.Chain, cfg.ChainNodeURL())
		if err != nil {
			return fmt.Errorf("failed to create EVM client for %s: %w", cfg.Chain.Name, err)
		}
		s.backend = client
		s.closers = append(s.closers, client.Close)
	}

	if s.publisher == nil {
		pub, err := s.openPublisher()
		if err != nil {
			return err
		}
		s.publisher = pub
		s.closers = append(s.closers, func() { _ = pub.Close() })
	}

	decimals := cfg.Chain.NativeCurrency.Decimals
	s.verification = verification.NewVerificationService(s.backend, decimals,
		verification.WithTimeout(s.timeout),
		verification.WithClock(s.clock),
		verification.WithLogger(s.logger),
		verification.WithMetrics(s.metrics),
	)
	s.settlement = settlement.NewSettlementService(s.backend, s.store,
		settlement.WithCatalog(s.store),
		settlement.WithDecimals(decimals),
		settlement.WithTimeout(s.timeout),
		settlement.WithClock(s.clock),
		settlement.WithLogger(s.logger),
		settlement.WithMetrics(s.metrics),
	)

	if s.env == nil {
		keyed := []wallet.KeyedOption{wallet.WithKnownNetwork(cfg.Chain)}
		if s.approval != nil {
			keyed = append(keyed, wallet.WithApproval(s.approval))
		}
		env, err := wallet.OpenAll(ctx, cfg.Wallets, s.backend, keyed...)
		if err != nil {
			return fmt.Errorf("open wallets: %w", err)
		}
		s.env = env
	}

	copts := []checkout.Option{
		checkout.WithChain(cfg.Chain),
		checkout.WithGasLimit(cfg.Checkout.GasLimit),
		checkout.WithPollInterval(cfg.Checkout.PollInterval.Std()),
		checkout.WithMaxAttempts(cfg.Checkout.MaxAttempts),
		checkout.WithClock(s.clock),
		checkout.WithPublisher(s.publisher),
		checkout.WithLogger(s.logger),
		checkout.WithMetrics(s.metrics),
	}
	if s.listener != nil {
		copts = append(copts, checkout.WithStateListener(s.listener))
	}
	s.checkout = checkout.NewVerifier(s.env, s.store, copts...)
	return nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := store.NewPostgres(ctx, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return db, nil
	case "", "memory":
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// openPublisher connects to RabbitMQ when configured. Otherwise events stay
// in process and payment.unreconciled is reconciled in the background,
// retrying transient failures until Close.
func (s *Storefront) openPublisher() (events.Publisher, error) {
	if s.cfg.Rabbit.URL != "" {
		pub, err := events.NewRabbitPublisher(s.cfg.Rabbit.URL, s.cfg.Rabbit.Exchange)
		if err != nil {
			return nil, fmt.Errorf("open event publisher: %w", err)
		}
		return pub, nil
	}

	mem := events.NewMemoryPublisher()
	mem.Subscribe(func(ctx context.Context, msg events.Message) {
		if msg.RoutingKey != events.TypePaymentUnreconciled {
			return
		}
		var env events.Envelope
		if err := json.Unmarshal(msg.Body, &env); err != nil {
			s.logger.Error("undecodable event", map[string]any{"routing_key": msg.RoutingKey, "err": err})
			return
		}
		s.pending.Add(1)
		go func() {
			defer s.pending.Done()
			attempts := 0
			err := settlement.Retry(s.done, s.clock, s.backoff, func() error {
				attempts++
				return events.Dispatch(context.WithoutCancel(ctx), s.settlement.Handle, env)
			})
			if err != nil {
				s.logger.Error("in-process reconciliation failed", map[string]any{
					"event_id":  env.EventID,
					"attempts":  attempts,
					"permanent": events.IsPermanent(err),
					"err":       err,
				})
			}
		}()
	})
	return mem, nil
}

// Store exposes the persistence layer.
func (s *Storefront) Store() store.Store {
	return s.store
}

// Settlement exposes the reconciliation service.
func (s *Storefront) Settlement() *settlement.SettlementService {
	return s.settlement
}

// Verification exposes server-side payment verification.
func (s *Storefront) Verification() *verification.VerificationService {
	return s.verification
}

// Checkout starts a payment session for the product shared under code.
func (s *Storefront) Checkout(ctx context.Context, code string) (*checkout.Session, error) {
	p, err := s.store.ProductByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("product %q: %w", code, err)
	}
	return s.checkout.NewSession(*p)
}

// Handler returns the HTTP API.
func (s *Storefront) Handler() http.Handler {
	deps := api.Dependencies{
		Store:         s.store,
		Verifier:      s.verification,
		Publisher:     s.publisher,
		Logger:        s.logger,
		Metrics:       s.metrics,
		PublicBaseURL: s.cfg.PublicBaseURL,
	}
	if h, ok := s.store.(api.HealthChecker); ok {
		deps.Health = h
	}
	if m, ok := s.metrics.(interface{ Handler() http.Handler }); ok && s.cfg.Metrics.Enabled {
		deps.MetricsHandler = m.Handler()
	}
	return api.NewRouter(deps)
}

// RunSettlement consumes payment.unreconciled events from RabbitMQ until ctx
// is done. Without RabbitMQ, events are reconciled in process and this only
// waits for ctx.
func (s *Storefront) RunSettlement(ctx context.Context) error {
	if s.cfg.Rabbit.URL == "" {
		<-ctx.Done()
		return nil
	}

	consumer, err := events.NewRabbitConsumer(s.cfg.Rabbit.URL, s.cfg.Rabbit.Exchange, s.cfg.Rabbit.Queue, s.logger)
	if err != nil {
		return fmt.Errorf("open settlement consumer: %w", err)
	}
	defer consumer.Close()

	s.logger.Info("settlement consumer started", map[string]any{"queue": s.cfg.Rabbit.Queue})
	return consumer.Start(ctx, s.settlement.Handle, events.TypePaymentUnreconciled)
}

// Close cancels pending reconciliation retries, waits for attempts already
// running and releases everything New opened. Injected collaborators are
// left open.
func (s *Storefront) Close() {
	s.stop()
	s.pending.Wait()
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
