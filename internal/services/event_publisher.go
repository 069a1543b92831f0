package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"sicklecare/internal/crisis"
)

const (
	CrisisExchange   = "sicklecare.events"
	CrisisRoutingKey = "crisis.escalated"
	CrisisQueue      = "sicklecare.crisis"
)

// amqpChannel is the part of *amqp091.Channel the publisher uses
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// EventPublisher emits crisis escalation events on RabbitMQ
type EventPublisher struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel amqpChannel
}

func NewEventPublisher(url string) (*EventPublisher, error) {
	if url == "" {
		return nil, fmt.Errorf("rabbitmq url: %w", ErrNotConfigured)
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		CrisisExchange, // name
		"topic",        // type
		true,           // durable
		false,          // auto-delete
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = channel.QueueDeclare(
		CrisisQueue, // name
		true,        // durable
		false,       // auto-delete
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	err = channel.QueueBind(
		CrisisQueue,      // queue name
		CrisisRoutingKey, // routing key
		CrisisExchange,   // exchange
		false,            // no-wait
		nil,              // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	return &EventPublisher{conn: conn, channel: channel}, nil
}

// PublishCrisis publishes event as persistent JSON
func (p *EventPublisher) PublishCrisis(ctx context.Context, event crisis.Event) error {
	msg, err := crisisPublishing(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.PublishWithContext(ctx, CrisisExchange, CrisisRoutingKey, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish crisis event: %w", err)
	}
	return nil
}

func crisisPublishing(event crisis.Event) (amqp091.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("failed to encode crisis event: %w", err)
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    event.Escalated,
		Type:         CrisisRoutingKey,
		Body:         body,
	}, nil
}

func (p *EventPublisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}
