package checkout

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/storefront/events"
	"github.com/vitwit/storefront/logger"
	"github.com/vitwit/storefront/metrics"
	"github.com/vitwit/storefront/types"
	"github.com/vitwit/storefront/verification"
	"github.com/vitwit/storefront/wallet"
)

// Outcome is the state of a session after Submit returns.
type Outcome struct {
	State   State                     `json:"state"`
	Intent  types.PaymentIntent       `json:"intent"`
	TxHash  string                    `json:"txHash,omitempty"`
	Result  *types.VerificationResult `json:"result,omitempty"`
	Order   *types.Order              `json:"order,omitempty"`
	Err     *types.PaymentError       `json:"error,omitempty"`
	Warning *types.PaymentError       `json:"warning,omitempty"`
}

// Session is one buyer's checkout of one product. Only one attempt may run
// at a time.
type Session struct {
	v       *Verifier
	product types.Product
	value   *big.Int
	log     logger.Logger

	mu      sync.Mutex
	state   State
	running bool
	intent  types.PaymentIntent
	form    Form
	txHash  string
	result  *types.VerificationResult
	order   *types.Order
	err     *types.PaymentError
	warning *types.PaymentError
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Form returns the data last submitted, as entered.
func (s *Session) Form() Form {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.form
}

func (s *Session) Outcome() *Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Session) snapshot() *Outcome {
	return &Outcome{
		State:   s.state,
		Intent:  s.intent,
		TxHash:  s.txHash,
		Result:  s.result,
		Order:   s.order,
		Err:     s.err,
		Warning: s.warning,
	}
}

// Submit validates form and runs the payment flow to a terminal state.
// A validation error leaves the session in form. If ctx is cancelled before
// a transaction is broadcast, the session returns to form and ctx's error is
// returned. After the broadcast, cancellation only stops the confirmation
// wait. The returned error is the outcome's *types.PaymentError when the
// attempt failed.
func (s *Session) Submit(ctx context.Context, form Form) (*Outcome, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrAttemptInProgress
	}
	if s.state != StateForm {
		s.mu.Unlock()
		return nil, ErrNotAcceptingForm
	}
	s.form = form
	if err := form.Validate(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if err := s.run(ctx, form.Normalize()); err != nil {
		return s.Outcome(), err
	}

	out := s.Outcome()
	if out.Err != nil {
		return out, out.Err
	}
	return out, nil
}

// Retry moves a failed session back to form. Entered form data is kept.
func (s *Session) Retry() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAttemptInProgress
	}
	if s.state != StateFailed {
		s.mu.Unlock()
		return ErrNotRetryable
	}
	s.err = nil
	s.warning = nil
	s.txHash = ""
	s.result = nil
	s.order = nil
	s.intent.Payer = nil
	s.mu.Unlock()

	s.moveTo(StateForm)
	return nil
}

// run returns a non-nil error only when the attempt was abandoned before
// anything irreversible happened.
func (s *Session) run(ctx context.Context, form Form) error {
	s.moveTo(StateConnecting)

	providers := wallet.Discover(ctx, s.v.env)
	provider, ok := wallet.Select(providers)
	if !ok {
		s.fail(types.NewPaymentError(types.ErrNoWalletDetected, nil,
			"No wallet detected. Please install a browser wallet such as MetaMask and try again."))
		return nil
	}
	s.log.Info("wallet selected", map[string]any{
		"wallet":    provider.Info().Name,
		"kind":      string(provider.Info().Kind),
		"available": len(providers),
	})

	payer, err := s.connect(ctx, provider)
	if err != nil {
		return s.failBeforeBroadcast(ctx, err)
	}

	s.mu.Lock()
	s.intent.Payer = &payer
	intent := s.intent
	s.mu.Unlock()
	s.moveTo(StatePayment)

	hash, err := provider.SendTransaction(ctx, types.TransferRequest{
		From:     payer,
		To:       intent.Recipient,
		Value:    new(big.Int).Set(s.value),
		GasLimit: s.v.gasLimit,
	})
	if err != nil {
		return s.failBeforeBroadcast(ctx, providerFailure(err, "sending the payment"))
	}

	s.mu.Lock()
	s.txHash = hash.Hex()
	s.mu.Unlock()
	s.log.Info("payment broadcast", map[string]any{"tx_hash": hash.Hex(), "payer": payer.Hex()})
	s.moveTo(StateConfirming)

	if err := s.confirm(ctx, provider, hash); err != nil {
		s.fail(err)
		return nil
	}

	s.moveTo(StateVerifying)
	result, perr := s.verify(ctx, provider, intent, payer, hash)
	if perr != nil {
		s.fail(perr)
		return nil
	}

	order, warning := s.placeOrder(ctx, form, payer, result)
	s.succeed(result, order, warning)
	return nil
}

func (s *Session) connect(ctx context.Context, p wallet.Provider) (common.Address, error) {
	chain := s.v.chain
	if err := p.SwitchNetwork(ctx, chain.BigChainID()); err != nil {
		if !wallet.IsUnknownChain(err) {
			return common.Address{}, providerFailure(err, "switching network")
		}
		s.log.Info("adding network to wallet", map[string]any{"chain_id": chain.ChainID, "chain": chain.Name})
		if err := p.AddNetwork(ctx, chain); err != nil {
			return common.Address{}, providerFailure(err, "adding the network")
		}
	}

	accounts, err := p.RequestAccounts(ctx)
	if err != nil {
		return common.Address{}, providerFailure(err, "connecting your wallet")
	}
	if len(accounts) == 0 {
		return common.Address{}, types.NewPaymentError(types.ErrProviderError, wallet.ErrNoAccounts,
			"Your wallet returned no accounts. Please unlock it and try again.")
	}
	return accounts[0], nil
}

func (s *Session) confirm(ctx context.Context, p wallet.Provider, hash common.Hash) *types.PaymentError {
	start := s.v.clock.Now()
	poller := &verification.Poller{
		Clock:       s.v.clock,
		Interval:    s.v.interval,
		MaxAttempts: s.v.attempts,
		OnAttempt: func(attempt int, err error) {
			fields := map[string]any{"tx_hash": hash.Hex(), "attempt": attempt}
			if err != nil {
				fields["err"] = err
			}
			s.log.Debug("polled for receipt", fields)
		},
	}

	_, err := poller.WaitForReceipt(ctx, p, hash)
	outcome := "success"
	if err != nil {
		outcome = string(types.KindOf(err))
	}
	s.v.metrics.ObserveLatency(metrics.ConfirmationLatency, s.v.clock.Now().Sub(start), map[string]string{"outcome": outcome})

	if err != nil {
		return asPaymentError(err, hash)
	}
	return nil
}

func (s *Session) verify(ctx context.Context, p wallet.Provider, intent types.PaymentIntent, payer common.Address, hash common.Hash) (*types.VerificationResult, *types.PaymentError) {
	svc := verification.NewVerificationService(p, s.v.chain.NativeCurrency.Decimals,
		verification.WithTimeout(0),
		verification.WithClock(s.v.clock),
		verification.WithLogger(s.log),
		verification.WithMetrics(s.v.metrics),
	)

	result, err := svc.Verify(ctx, intent, payer, hash)
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, types.NewPaymentError(types.ErrConfirmationTimeout, ctx.Err(),
			"stopped before the payment could be verified; the transaction may still confirm").WithTxHash(hash.Hex())
	}
	return nil, asPaymentError(err, hash)
}

// placeOrder never fails the checkout. A persistence error becomes a
// warning and a payment.unreconciled event.
func (s *Session) placeOrder(ctx context.Context, form Form, payer common.Address, result *types.VerificationResult) (*types.Order, *types.PaymentError) {
	ctx = context.WithoutCancel(ctx)
	req := types.OrderRequest{
		ProductID:       s.product.ID,
		ProductName:     s.product.Name,
		ProductPrice:    s.product.Price,
		CustomerName:    form.CustomerName,
		CustomerEmail:   form.CustomerEmail,
		CustomerPhone:   form.CustomerPhone,
		ShippingAddress: form.ShippingAddress(),
		Status:          types.OrderPaid,
		PaymentStatus:   types.PaymentCompleted,
		WalletAddress:   s.product.WalletAddress,
		PayerAddress:    payer.Hex(),
		Notes:           form.Notes,
		TxHash:          result.TxHash,
	}

	var (
		order *types.Order
		err   error
	)
	if s.v.orders == nil {
		err = fmt.Errorf("no order service configured")
	} else {
		order, err = s.v.orders.CreateOrder(ctx, req)
	}

	if err != nil {
		warning := types.NewPaymentError(types.ErrOrderPersistenceFailed, err,
			"Payment successful but order creation failed. Please keep your transaction hash and contact support.").
			WithTxHash(result.TxHash)
		s.log.Error("order creation failed after verified payment", map[string]any{
			"tx_hash": result.TxHash,
			"err":     err,
		})
		s.publish(ctx, events.TypePaymentUnreconciled, events.PaymentUnreconciledEvent{
			TxHash:           result.TxHash,
			ProductID:        s.product.ID,
			PayerAddress:     payer.Hex(),
			RecipientAddress: s.product.WalletAddress,
			AmountRequired:   s.product.Price,
			CustomerName:     form.CustomerName,
			CustomerEmail:    form.CustomerEmail,
			CustomerPhone:    form.CustomerPhone,
			Street:           form.Street,
			City:             form.City,
			State:            form.State,
			ZipCode:          form.ZipCode,
			Country:          form.Country,
			Notes:            form.Notes,
			Reason:           err.Error(),
			VerifiedAt:       result.VerifiedAt,
		})
		return nil, warning
	}

	s.v.metrics.IncCounter(metrics.OrderCreated, nil)
	s.publish(ctx, events.TypeOrderPaid, events.OrderPaidEvent{
		OrderID:       order.ID,
		ProductID:     s.product.ID,
		SellerID:      s.product.SellerID,
		TxHash:        result.TxHash,
		Amount:        result.AmountConfirmed,
		PayerAddress:  payer.Hex(),
		WalletAddress: s.product.WalletAddress,
		CustomerEmail: form.CustomerEmail,
		PaidAt:        result.VerifiedAt,
	})
	return order, nil
}

func (s *Session) publish(ctx context.Context, eventType string, data any) {
	err := events.Emit(ctx, s.v.publisher, eventType, data)
	status := "ok"
	if err != nil {
		status = "error"
		s.log.Error("failed to publish event", map[string]any{"type": eventType, "err": err})
	}
	s.v.metrics.IncCounter(metrics.EventPublished, map[string]string{"state": status, "kind": eventType})
}

// failBeforeBroadcast abandons the attempt when ctx is done, otherwise
// fails it.
func (s *Session) failBeforeBroadcast(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		s.log.Info("checkout abandoned before payment", map[string]any{"err": ctxErr})
		s.moveTo(StateForm)
		return ctxErr
	}
	s.fail(asPaymentError(err, common.Hash{}))
	return nil
}

func (s *Session) fail(err *types.PaymentError) {
	s.mu.Lock()
	if s.txHash != "" && err.TxHash == "" {
		err.TxHash = s.txHash
	}
	s.err = err
	s.mu.Unlock()

	s.log.Warn("checkout failed", map[string]any{
		"kind":    string(err.Kind),
		"tx_hash": err.TxHash,
		"err":     err,
	})
	s.v.metrics.IncCounter(metrics.CheckoutOutcome, map[string]string{"state": string(StateFailed), "kind": string(err.Kind)})
	s.moveTo(StateFailed)
}

func (s *Session) succeed(result *types.VerificationResult, order *types.Order, warning *types.PaymentError) {
	s.mu.Lock()
	s.result = result
	s.order = order
	s.warning = warning
	s.mu.Unlock()

	kind := ""
	if warning != nil {
		kind = string(warning.Kind)
	}
	s.v.metrics.IncCounter(metrics.CheckoutOutcome, map[string]string{"state": string(StateSuccess), "kind": kind})
	s.moveTo(StateSuccess)
}

func (s *Session) moveTo(to State) {
	s.mu.Lock()
	from := s.state
	if !canMove(from, to) {
		s.mu.Unlock()
		panic(fmt.Sprintf("checkout: illegal transition %s -> %s", from, to))
	}
	s.state = to
	hash := s.txHash
	s.mu.Unlock()

	s.log.Info("checkout state changed", map[string]any{
		"from":    string(from),
		"state":   string(to),
		"tx_hash": hash,
	})
	s.v.metrics.IncCounter(metrics.StateTransition, map[string]string{"state": string(to)})
	if s.v.listener != nil {
		s.v.listener(Transition{From: from, To: to, TxHash: hash})
	}
}

func asPaymentError(err error, hash common.Hash) *types.PaymentError {
	var pe *types.PaymentError
	if !errors.As(err, &pe) {
		pe = types.NewPaymentError(types.ErrProviderError, err, "%v", err)
	}
	if pe.TxHash == "" && hash != (common.Hash{}) {
		pe.TxHash = hash.Hex()
	}
	return pe
}

// providerFailure turns a wallet error into a buyer-facing PaymentError.
func providerFailure(err error, action string) *types.PaymentError {
	kind := wallet.Classify(err)
	switch kind {
	case types.ErrUserRejected:
		return types.NewPaymentError(kind, err, "Request was rejected in your wallet while %s.", action)
	case types.ErrInsufficientFunds:
		return types.NewPaymentError(kind, err, "Insufficient funds in your wallet.")
	}

	if code, ok := wallet.ErrorCode(err); ok && code == wallet.CodeInternalError {
		return types.NewPaymentError(types.ErrProviderError, err, "Internal JSON-RPC error while %s. Please try again.", action)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "gas"):
		return types.NewPaymentError(types.ErrProviderError, err, "Transaction failed due to gas issues. Please try again.")
	case strings.Contains(msg, "network"):
		return types.NewPaymentError(types.ErrProviderError, err, "Network error. Please check your connection and try again.")
	}
	return types.NewPaymentError(types.ErrProviderError, err, "Wallet error while %s: %v", action, err)
}
