package broker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publishable is satisfied by *Publisher; components depend on this
// interface instead of the concrete type so unit tests can substitute a
// fake publisher without a real broker connection.
type Publishable interface {
	Publish(ctx context.Context, routingKey string, body []byte, correlationID, messageType string) error
	Close() error
}

// Publisher wraps a single channel dedicated to one task — the consumer
// loop, a workflow task, or a vitals task — so that no two concurrently
// executing tasks ever share a channel, per §4.1/§5.
type Publisher struct {
	conn     *Conn
	ch       *amqp.Channel
	exchange string
}

// NewPublisher opens a fresh channel for exclusive use by the caller.
func (c *Conn) NewPublisher() (*Publisher, error) {
	ch, err := c.Channel()
	if err != nil {
		return nil, err
	}
	return &Publisher{conn: c, ch: ch, exchange: c.cfg.ExchangeName}, nil
}

// Publish sends a persistent, JSON-content-typed message carrying the
// correlation id (incident id, where available) and a logical message type
// name, per §4.1's publish contract.
func (p *Publisher) Publish(ctx context.Context, routingKey string, body []byte, correlationID, messageType string) error {
	pub := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: correlationID,
		Type:          messageType,
		AppId:         "emergency-dispatch-app",
		MessageId:     uuid.NewString(),
		Body:          body,
	}
	err := p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, pub)
	if err != nil {
		// One reconnect-and-retry on a closed channel, per §4.1's failure
		// semantics; persistent failure surfaces to the caller.
		newCh, reopenErr := p.conn.Channel()
		if reopenErr != nil {
			return fmt.Errorf("publish %s: %w (reopen failed: %v)", routingKey, err, reopenErr)
		}
		p.ch = newCh
		if retryErr := p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, pub); retryErr != nil {
			return fmt.Errorf("publish %s after reopen: %w", routingKey, retryErr)
		}
		return nil
	}
	return nil
}

// Close releases the publisher's channel. Callers must call this on task
// exit — the channel is never reused by another task.
func (p *Publisher) Close() error {
	return p.ch.Close()
}
