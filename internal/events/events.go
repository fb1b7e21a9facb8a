package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/drstein77/groceryweb/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher announces finished imports to other services.
type Publisher interface {
	Publish(ctx context.Context, evt models.ImportEvent) error
	Close() error
}

// Nop is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, models.ImportEvent) error { return nil }

func (Nop) Close() error { return nil }

// AMQPPublisher sends events to a durable queue on the default exchange.
type AMQPPublisher struct {
	mx    sync.Mutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewAMQPPublisher(url, queue string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	return &AMQPPublisher{conn: conn, ch: ch, queue: queue}, nil
}

// Publish is safe for concurrent use; a channel is not.
func (p *AMQPPublisher) Publish(ctx context.Context, evt models.ImportEvent) error {
	msg, err := message(evt)
	if err != nil {
		return err
	}

	p.mx.Lock()
	defer p.mx.Unlock()

	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish import event: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mx.Lock()
	defer p.mx.Unlock()

	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

func message(evt models.ImportEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to encode import event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.ID,
		Timestamp:    evt.At,
		Type:         "products.imported",
		Body:         body,
	}, nil
}
