package metrics

import "time"

// Recorder is the metrics sink used across the storefront. Label keys are
// fixed per metric family; unknown keys are ignored.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// Metric names.
const (
	CheckoutOutcome     = "checkout_outcome"
	StateTransition     = "state_transition"
	OrderCreated        = "order_created"
	EventPublished      = "event_published"
	ReconcileOutcome    = "reconcile_outcome"
	ConfirmationLatency = "confirmation"
	VerificationLatency = "verification"
	HTTPRequest         = "http_request"
)
