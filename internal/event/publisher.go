package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// DefaultExchange is the topic exchange quiz events are published to.
const DefaultExchange = "quiz.events"

// Envelope wraps every event payload on the wire.
type Envelope struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload"`
}

// NewEnvelope stamps payload with a ULID and the current UTC time.
func NewEnvelope(eventType string, payload any) Envelope {
	return Envelope{
		ID:         ulid.Make().String(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Publisher sends envelopes to a RabbitMQ topic exchange, using the event type
// as routing key. A Publisher built with an empty URI is disabled and drops
// events.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	enabled  bool
	log      *logrus.Entry
}

func NewPublisher(uri, exchange string) (*Publisher, error) {
	log := logrus.WithField("component", "event_publisher")
	if uri == "" {
		log.Warn("rabbitmq uri is empty, event publishing is disabled")
		return &Publisher{log: log}, nil
	}
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp091.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	log.WithField("exchange", exchange).Info("event publishing enabled")
	return &Publisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		enabled:  true,
		log:      log,
	}, nil
}

// Enabled reports whether events actually reach a broker.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

func (p *Publisher) Publish(ctx context.Context, eventType string, payload any) error {
	if !p.enabled {
		p.log.WithField("event", eventType).Debug("event publishing disabled, skipping")
		return nil
	}

	env := NewEnvelope(eventType, payload)
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(pubCtx, p.exchange, eventType, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    env.ID,
		Timestamp:    env.OccurredAt,
		Type:         eventType,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	p.log.WithFields(logrus.Fields{"event": eventType, "event_id": env.ID}).Debug("event published")
	return nil
}

func (p *Publisher) Close() error {
	if !p.enabled {
		return nil
	}
	if err := p.channel.Close(); err != nil {
		p.log.WithError(err).Warn("error closing rabbitmq channel")
	}
	if err := p.conn.Close(); err != nil {
		return fmt.Errorf("close rabbitmq connection: %w", err)
	}
	return nil
}

// MockPublisher records envelopes in memory.
type MockPublisher struct {
	mu     sync.Mutex
	events []Envelope
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{events: make([]Envelope, 0)}
}

func (m *MockPublisher) Publish(_ context.Context, eventType string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, NewEnvelope(eventType, payload))
	return nil
}

func (m *MockPublisher) Events() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Envelope(nil), m.events...)
}

// Types lists the recorded event types in publish order.
func (m *MockPublisher) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, len(m.events))
	for i, e := range m.events {
		types[i] = e.Type
	}
	return types
}
