package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
	"github.com/vitwit/storefront/logger"
)

// Handler processes one envelope. Returning an error requeues the message
// unless the error wraps ErrPermanent.
type Handler func(ctx context.Context, env Envelope) error

type Consumer struct {
	conn   *amqp091.Connection
	queue  string
	logger logger.Logger
}

func NewRabbitConsumer(url, exchange, queue string, log logger.Logger) (*Consumer, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := declareExchange(ch, exchange); err != nil {
		conn.Close()
		return nil, err
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(
		queue,
		"",
		exchange,
		false,
		nil,
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Consumer{
		conn:   conn,
		queue:  queue,
		logger: log,
	}, nil
}

// Start consumes until ctx is done. Messages whose type is not in types are
// acked and skipped.
func (c *Consumer) Start(ctx context.Context, handler Handler, types ...string) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Qos(32, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("consume queue: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = ch.Cancel("", false)
		ch.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Info("consumer channel closed", map[string]any{"queue": c.queue})
				return nil
			}
			c.handle(ctx, msg, handler, types)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg amqp091.Delivery, handler Handler, types []string) {
	var env Envelope
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		c.logger.Error("dropping malformed message", map[string]any{"queue": c.queue, "err": err})
		_ = msg.Nack(false, false)
		return
	}

	if !wanted(env.Type, types) {
		_ = msg.Ack(false)
		return
	}

	switch err := Dispatch(ctx, handler, env); {
	case err == nil:
		_ = msg.Ack(false)
	case IsPermanent(err):
		c.logger.Error("event rejected", map[string]any{"event_id": env.EventID, "type": env.Type, "err": err})
		_ = msg.Nack(false, false)
	default:
		c.logger.Warn("event handling failed, requeueing", map[string]any{"event_id": env.EventID, "type": env.Type, "err": err})
		_ = msg.Nack(false, true)
	}
}

func wanted(t string, types []string) bool {
	if len(types) == 0 {
		return true
	}
	for _, want := range types {
		if t == want {
			return true
		}
	}
	return false
}

func (c *Consumer) Close() error {
	return c.conn.Close()
}
