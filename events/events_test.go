package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitPublishesEnvelope(t *testing.T) {
	pub := NewMemoryPublisher()

	err := Emit(context.Background(), pub, TypeOrderPaid, OrderPaidEvent{
		OrderID: "o-1",
		TxHash:  "0xabc",
		Amount:  decimal.RequireFromString("0.015"),
	})
	require.NoError(t, err)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, TypeOrderPaid, msgs[0].RoutingKey)

	var env Envelope
	require.NoError(t, json.Unmarshal(msgs[0].Body, &env))
	assert.Equal(t, TypeOrderPaid, env.Type)
	assert.NotEmpty(t, env.EventID)
	assert.WithinDuration(t, time.Now(), env.OccurredAt, time.Minute)

	var got OrderPaidEvent
	require.NoError(t, env.Decode(&got))
	assert.Equal(t, "o-1", got.OrderID)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("0.015")))
}

func TestMemoryPublisherSubscribersAndFailure(t *testing.T) {
	pub := NewMemoryPublisher()
	var seen []string
	pub.Subscribe(func(_ context.Context, m Message) { seen = append(seen, m.RoutingKey) })

	require.NoError(t, pub.Publish(context.Background(), "a", []byte("{}")))
	pub.FailWith(errors.New("broker down"))
	assert.Error(t, pub.Publish(context.Background(), "b", []byte("{}")))

	assert.Equal(t, []string{"a"}, seen)
	assert.Len(t, pub.Messages(), 1)
}

func TestDispatchRecoversPanics(t *testing.T) {
	err := Dispatch(context.Background(), func(context.Context, Envelope) error {
		panic("boom")
	}, Envelope{})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))

	cause := errors.New("bad payload")
	err := Permanent(cause)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsPermanent(cause))
}

func TestWanted(t *testing.T) {
	assert.True(t, wanted("x", nil))
	assert.True(t, wanted(TypeOrderPaid, []string{TypePaymentUnreconciled, TypeOrderPaid}))
	assert.False(t, wanted(TypeOrderPaid, []string{TypePaymentUnreconciled}))
}
