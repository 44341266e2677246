package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

const exchangeType = "topic"

// RabbitMQPublisher publishes events to a topic exchange using the event type as routing key.
type RabbitMQPublisher struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex
	ch *amqp.Channel
}

// NewRabbitMQPublisher dials url and declares a durable topic exchange.
func NewRabbitMQPublisher(url, exchange string) (*RabbitMQPublisher, error) {
	if url == "" {
		return nil, errors.New("rabbitmq publisher: url is required")
	}
	if exchange == "" {
		return nil, errors.New("rabbitmq publisher: exchange is required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq publisher: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq publisher: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, exchangeType, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq publisher: declare exchange: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq publisher: enable confirms: %w", err)
	}
	return &RabbitMQPublisher{conn: conn, exchange: exchange, ch: ch}, nil
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, msg Message) error {
	headers := amqp.Table{}
	for k, v := range attributes(msg) {
		headers[k] = v
	}
	headers["topic"] = msg.Topic

	p.mu.Lock()
	defer p.mu.Unlock()

	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, msg.EventType, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    msg.CreatedAt,
		Type:         msg.EventType,
		Headers:      headers,
		Body:         msg.Payload,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq publish %s: %w", msg.EventType, err)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("rabbitmq publish %s: %w", msg.EventType, err)
	}
	if !acked {
		return fmt.Errorf("rabbitmq publish %s: broker nacked message", msg.EventType)
	}
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	return p.conn.Close()
}
