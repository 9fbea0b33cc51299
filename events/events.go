package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types. They double as routing keys.
const (
	TypeOrderPaid           = "order.paid"
	TypePaymentUnreconciled = "payment.unreconciled"
)

// Envelope wraps every message on the exchange.
type Envelope struct {
	EventID    string          `json:"event_id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s event %s: %w", e.Type, e.EventID, err)
	}
	return nil
}

type OrderPaidEvent struct {
	OrderID       string          `json:"order_id"`
	ProductID     string          `json:"product_id"`
	SellerID      string          `json:"seller_id,omitempty"`
	TxHash        string          `json:"tx_hash"`
	Amount        decimal.Decimal `json:"amount"`
	PayerAddress  string          `json:"payer_address"`
	WalletAddress string          `json:"wallet_address"`
	CustomerEmail string          `json:"customer_email"`
	PaidAt        time.Time       `json:"paid_at"`
}

// PaymentUnreconciledEvent reports a verified payment with no order. It
// carries everything needed to create the order later.
type PaymentUnreconciledEvent struct {
	TxHash           string          `json:"tx_hash"`
	ProductID        string          `json:"product_id"`
	PayerAddress     string          `json:"payer_address"`
	RecipientAddress string          `json:"recipient_address"`
	AmountRequired   decimal.Decimal `json:"amount_required"`
	CustomerName     string          `json:"customer_name"`
	CustomerEmail    string          `json:"customer_email"`
	CustomerPhone    string          `json:"customer_phone"`
	Street           string          `json:"street"`
	City             string          `json:"city"`
	State            string          `json:"state"`
	ZipCode          string          `json:"zip_code"`
	Country          string          `json:"country"`
	Notes            string          `json:"notes,omitempty"`
	Reason           string          `json:"reason"`
	VerifiedAt       time.Time       `json:"verified_at"`
}

// NewEnvelope serializes data under a fresh event id.
func NewEnvelope(eventType string, data any, now time.Time) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s event: %w", eventType, err)
	}
	return Envelope{
		EventID:    uuid.NewString(),
		Type:       eventType,
		OccurredAt: now.UTC(),
		Data:       raw,
	}, nil
}

// Emit wraps data in an envelope and publishes it with the event type as
// routing key.
func Emit(ctx context.Context, p Publisher, eventType string, data any) error {
	env, err := NewEnvelope(eventType, data, time.Now())
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return p.Publish(ctx, eventType, body)
}
