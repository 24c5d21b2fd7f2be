package broker

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mattw23n/emergency-dispatch-app/pkg/logging"
)

// HandlerResult tells Consume how to acknowledge the delivery that produced
// it, per §4.1's "drop"/"retry"/"ok" handler contract.
type HandlerResult int

const (
	ResultOK HandlerResult = iota
	ResultDrop
	ResultRetry
)

// Handler processes one delivery's body and reports how to ack it.
type Handler func(ctx context.Context, routingKey string, correlationID string, body []byte) HandlerResult

// Consume runs a blocking consumer loop against queue until ctx is
// cancelled or the connection closes. On stream loss it reconnects and
// re-registers the consumer unless the connection is shutting down, per
// §4.1's reconnection policy.
func (c *Conn) Consume(ctx context.Context, queue string, handler Handler) error {
	for {
		if err := c.consumeOnce(ctx, queue, handler); err != nil {
			if c.closing.Load() || ctx.Err() != nil {
				return nil
			}
			c.logger.WithError(err).WithField("queue", queue).Warn("consumer loop lost stream, reconnecting")
			continue
		}
		return nil
	}
}

func (c *Conn) consumeOnce(ctx context.Context, queue string, handler Handler) error {
	ch, err := c.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		return err
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	closeNotify := ch.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr, ok := <-closeNotify:
			if !ok {
				return nil
			}
			return amqpErr
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			result := handler(ctx, d.RoutingKey, d.CorrelationId, d.Body)
			switch result {
			case ResultOK:
				_ = d.Ack(false)
			case ResultDrop:
				_ = d.Nack(false, false)
			case ResultRetry:
				_ = d.Nack(false, true)
			}
		}
	}
}

// logger exposes the component's logger for callers composing health checks
// alongside the connection (kept private to the package otherwise).
func (c *Conn) Logger() logging.Logger {
	return c.logger
}
