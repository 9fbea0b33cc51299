package checkout

// State is the position of a checkout attempt in the payment flow.
type State string

const (
	StateForm       State = "form"
	StateConnecting State = "connecting"
	StatePayment    State = "payment"
	StateConfirming State = "confirming"
	StateVerifying  State = "verifying"
	StateSuccess    State = "success"
	StateFailed     State = "failed"
)

// Message is the buyer-facing text for the state.
func (s State) Message() string {
	switch s {
	case StateConnecting:
		return "Connecting to the network and your wallet..."
	case StatePayment:
		return "Please confirm the payment in your wallet..."
	case StateConfirming:
		return "Transaction sent! Waiting for blockchain confirmation..."
	case StateVerifying:
		return "Verifying payment details on blockchain..."
	case StateSuccess:
		return "Payment successful! Order has been placed."
	case StateFailed:
		return "Payment failed. Please try again."
	default:
		return ""
	}
}

// Terminal reports whether the state ends an attempt.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed
}

// Transition is reported to state listeners.
type Transition struct {
	From   State
	To     State
	TxHash string
}

// next lists the legal forward moves.
var next = map[State][]State{
	StateForm:       {StateConnecting},
	StateConnecting: {StatePayment, StateFailed, StateForm},
	StatePayment:    {StateConfirming, StateFailed, StateForm},
	StateConfirming: {StateVerifying, StateFailed},
	StateVerifying:  {StateSuccess, StateFailed},
	StateFailed:     {StateForm},
}

func canMove(from, to State) bool {
	for _, s := range next[from] {
		if s == to {
			return true
		}
	}
	return false
}
