// Package broker is the thin adapter over a durable topic exchange
// described in §4.1: connect-with-backoff, topology declaration, persistent
// publish, and manual-ack consumption with bounded prefetch.
//
// The source's own broker clients (one per service, built on pika) are
// reimplemented here once, shared by every cmd/ binary the way the
// teacher's Kafka producer/consumer pair is shared across its services.
package broker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mattw23n/emergency-dispatch-app/pkg/logging"
)

const prefetchCount = 16

// Config names the AMQP endpoint and the exchange every component publishes
// to and consumes from.
type Config struct {
	URL          string // full amqp:// URL; takes precedence over the discrete fields below
	Host         string
	Port         string
	User         string
	Password     string
	VHost        string
	ExchangeName string
	ExchangeType string // "topic"
}

func (c Config) dsn() string {
	if c.URL != "" {
		return c.URL
	}
	vhost := c.VHost
	return fmt.Sprintf("amqp://%s:%s@%s:%s/%s", c.User, c.Password, c.Host, c.Port, vhost)
}

// Conn owns the AMQP connection shared across the process. Every publisher
// and consumer opens its own *amqp.Channel from it — channels are never
// shared across concurrently executing tasks, per §4.1/§5.
type Conn struct {
	cfg       Config
	logger    logging.Logger
	mu        sync.Mutex
	conn      *amqp.Connection
	connected atomic.Bool
	closing   atomic.Bool
}

// Connect retries every 2 seconds until a 60-second budget elapses, then
// returns an error — library-style, leaving the fatal-exit decision to the
// caller (see SPEC_FULL.md §9, open question 3).
func Connect(ctx context.Context, cfg Config, logger logging.Logger) (*Conn, error) {
	c := &Conn{cfg: cfg, logger: logger}

	deadline := time.Now().Add(60 * time.Second)
	var lastErr error
	for {
		conn, err := amqp.Dial(cfg.dsn())
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()
			c.connected.Store(true)
			logger.Info("broker connected")
			go c.watchClose(conn)
			return c, nil
		}
		lastErr = err
		logger.WithError(err).Warn("broker connect failed, retrying")

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("broker connect: budget exhausted: %w", lastErr)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (c *Conn) watchClose(conn *amqp.Connection) {
	notify := conn.NotifyClose(make(chan *amqp.Error, 1))
	err := <-notify
	c.connected.Store(false)
	if c.closing.Load() {
		return
	}
	if err != nil {
		c.logger.WithError(err).Error("broker connection lost")
	}
}

// IsConnected reports whether the underlying connection is currently open,
// for use by the health-check surface.
func (c *Conn) IsConnected() bool {
	return c.connected.Load()
}

// Channel opens a fresh AMQP channel for the caller's exclusive use.
func (c *Conn) Channel() (*amqp.Channel, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("broker: not connected")
	}
	return conn.Channel()
}

// QueueBinding describes one durable queue and the routing-key patterns
// bound to it on the shared exchange.
type QueueBinding struct {
	Name                 string
	RoutingKeys          []string
	SingleActiveConsumer bool // set where per-queue ordering matters, per §4.1
}

// Topology is the exchange plus the queues/bindings a component declares at
// startup. Declaration is idempotent — AMQP no-ops on matching re-declares.
type Topology struct {
	Queues []QueueBinding
}

// Declare creates the shared topic exchange and any queues/bindings this
// component needs, using a throwaway channel.
func (c *Conn) Declare(topology Topology) error {
	ch, err := c.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(
		c.cfg.ExchangeName,
		c.cfg.ExchangeType,
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, q := range topology.Queues {
		args := amqp.Table{}
		if q.SingleActiveConsumer {
			args["x-single-active-consumer"] = true
		}
		if _, err := ch.QueueDeclare(q.Name, true, false, false, false, args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.Name, err)
		}
		for _, rk := range q.RoutingKeys {
			if err := ch.QueueBind(q.Name, rk, c.cfg.ExchangeName, false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", q.Name, rk, err)
			}
		}
	}
	return nil
}

// Close shuts the connection down, unblocking every consumer loop's
// delivery channel.
func (c *Conn) Close() error {
	c.closing.Store(true)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
