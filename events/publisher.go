package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/rabbitmq/amqp091-go"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
	Close() error
}

type RabbitPublisher struct {
	conn     *amqp091.Connection
	exchange string
}

func NewRabbitPublisher(url, exchange string) (*RabbitPublisher, error) {
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

	return &RabbitPublisher{conn: conn, exchange: exchange}, nil
}

func declareExchange(ch *amqp091.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(
		exchange,
		"fanout",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	return nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	return ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Type:         routingKey,
		Body:         payload,
	})
}

func (p *RabbitPublisher) Close() error {
	return p.conn.Close()
}

// NoopPublisher drops every message.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, []byte) error { return nil }
func (NoopPublisher) Close() error                                  { return nil }

// Message is a published message kept by MemoryPublisher.
type Message struct {
	RoutingKey string
	Body       []byte
}

// MemoryPublisher keeps messages in process. Handlers subscribed with
// Subscribe receive every message synchronously.
type MemoryPublisher struct {
	mu       sync.Mutex
	messages []Message
	subs     []func(context.Context, Message)
	failWith error
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// FailWith makes subsequent publishes return err.
func (m *MemoryPublisher) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

func (m *MemoryPublisher) Subscribe(fn func(context.Context, Message)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

func (m *MemoryPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	m.mu.Lock()
	if m.failWith != nil {
		err := m.failWith
		m.mu.Unlock()
		return err
	}
	msg := Message{RoutingKey: routingKey, Body: append([]byte(nil), payload...)}
	m.messages = append(m.messages, msg)
	subs := append([]func(context.Context, Message){}, m.subs...)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(ctx, msg)
	}
	return nil
}

func (m *MemoryPublisher) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.messages...)
}

func (m *MemoryPublisher) Close() error { return nil }
