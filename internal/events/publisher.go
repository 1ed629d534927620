package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	EventsExchange = "shop.events"
	producerName   = "shop-cart"
)

// Publisher sends cart domain events.
type Publisher interface {
	PublishCartMerged(ctx context.Context, ev CartMerged) error
	Close() error
}

// NoopPublisher drops every event. Used when RabbitMQ is not configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishCartMerged(context.Context, CartMerged) error { return nil }
func (NoopPublisher) Close() error                                        { return nil }

// Dial connects to RabbitMQ.
func Dial(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	return conn, nil
}

// RabbitPublisher publishes JSON events to the shared topic exchange.
type RabbitPublisher struct {
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewRabbitPublisher takes ownership of conn; Close releases it.
func NewRabbitPublisher(conn *amqp.Connection) (*RabbitPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareEventsExchange(ch); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare events exchange: %w", err)
	}

	return &RabbitPublisher{conn: conn, ch: ch}, nil
}

func (p *RabbitPublisher) PublishCartMerged(ctx context.Context, ev CartMerged) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal CartMerged: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.ch.PublishWithContext(ctx,
		EventsExchange,
		CartMergedRoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.EventID,
			Timestamp:    ev.OccurredAt,
			Type:         ev.EventType,
			AppId:        producerName,
			Body:         body,
		},
	)
}

func (p *RabbitPublisher) Close() error {
	chErr := p.ch.Close()
	if err := p.conn.Close(); err != nil {
		return err
	}
	return chErr
}

func declareEventsExchange(ch *amqp.Channel) error {
	return ch.ExchangeDeclare(
		EventsExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
}
