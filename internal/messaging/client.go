// Package messaging publishes and consumes the services messages on RabbitMQ.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/userhub/userhub/internal/constants"
)

var (
	// ErrClosed is returned when using a client after Close.
	ErrClosed = errors.New("messaging client closed")

	// ErrPermanent marks handler errors that retrying cannot fix.
	// Messages failing with it are dead-lettered instead of requeued.
	ErrPermanent = errors.New("permanent failure")
)

// Client is a RabbitMQ client shared by the publishers and consumers of a service.
type Client struct {
	cfg   Config
	dial  dialer
	sleep sleeper

	mu    sync.Mutex
	conn  connection
	pubCh channel

	// live mirrors conn for readers that must not wait behind a publish or a reconnection.
	live atomic.Pointer[liveConn]

	closed    chan struct{}
	closeOnce sync.Once

	metrics clientMetrics
}

type liveConn struct {
	conn connection
}

// sleeper waits for d, returning early with an error if ctx is done or closed is closed.
type sleeper func(ctx context.Context, closed <-chan struct{}, d time.Duration) error

type options struct {
	dial     dialer
	sleep    sleeper
	registry prometheus.Registerer
}

// Options represents an optional function to override Client default values.
type Options func(*options)

// WithRegistry registers the client metrics on reg.
func WithRegistry(reg prometheus.Registerer) Options {
	return func(o *options) {
		o.registry = reg
	}
}

// New returns a client for the broker described by cfg. It does not connect.
// Unset configuration values are taken from DefaultConfig.
func New(cfg Config, args ...Options) *Client {
	opts := options{
		dial:     dialAMQP,
		sleep:    sleep,
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &Client{
		cfg:     cfg.withDefaults(),
		dial:    opts.dial,
		sleep:   opts.sleep,
		closed:  make(chan struct{}),
		metrics: newClientMetrics(opts.registry),
	}
}

// Connect connects to the broker and declares the topology, unless already connected.
//
// It makes up to RetryCount attempts, waiting RetryBackoff * 2^attempt after each failure.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) (err error) {
	if c.isClosed() {
		return ErrClosed
	}
	if c.conn != nil && !c.conn.IsClosed() {
		if c.pubCh != nil && !c.pubCh.IsClosed() {
			return nil
		}
		// Only the publishing channel was closed by the broker: the consumers keep the connection.
		if err := c.openPublisherLocked(); err == nil {
			return nil
		}
	}
	c.dropLocked()

	for attempt := range c.cfg.RetryCount {
		if err = c.dialLocked(); err == nil {
			slog.Info("Connected to message broker", "url", c.cfg.Redacted())
			return nil
		}

		if attempt == c.cfg.RetryCount-1 {
			break
		}
		wait := c.cfg.RetryBackoff * time.Duration(1<<attempt)
		slog.Warn("Failed to connect to message broker, retrying", "attempt", attempt+1, "wait", wait, "err", err)
		if err := c.sleep(ctx, c.closed, wait); err != nil {
			return err
		}
	}

	return fmt.Errorf("failed to connect to message broker after %d attempts: %w", c.cfg.RetryCount, err)
}

func (c *Client) dialLocked() error {
	conn, err := c.dial(c.cfg.URL())
	if err != nil {
		return err
	}

	c.conn = conn
	if err := c.openPublisherLocked(); err != nil {
		c.dropLocked()
		return err
	}
	c.live.Store(&liveConn{conn: conn})
	return nil
}

// openPublisherLocked opens the publishing channel on the current connection and declares the topology.
func (c *Client) openPublisherLocked() error {
	c.pubCh = nil

	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	if err := declareTopology(ch); err != nil {
		ch.Close()
		return err
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	c.pubCh = ch
	return nil
}

// dropLocked forgets the current connection, closing it if still open.
func (c *Client) dropLocked() {
	c.live.Store(nil)
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		slog.Debug("Failed to close broker connection", "err", err)
	}
	c.conn = nil
	c.pubCh = nil
}

// Connected reports whether the client currently holds an open connection.
// It does not wait for a publish or a reconnection in progress.
func (c *Client) Connected() bool {
	l := c.live.Load()
	return l != nil && !l.conn.IsClosed()
}

// Ping reports an error when the client is not connected to the broker.
func (c *Client) Ping(_ context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	if !c.Connected() {
		return errors.New("not connected to message broker")
	}
	return nil
}

type identified interface {
	ID() uuid.UUID
}

// Publish sends payload as a persistent JSON message on constants.UserExchange with routingKey.
//
// It connects if needed and returns once the broker confirmed the message. A connection found broken after
// a failure is dropped, so that the next call reconnects. A cancelled ctx or a broker nack leaves it open
// for the consumers sharing it.
func (c *Client) Publish(ctx context.Context, routingKey string, payload any) (err error) {
	defer func() {
		result := "success"
		if err != nil {
			result = "failure"
		}
		c.metrics.published.WithLabelValues(routingKey, result).Inc()
	}()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode message: %v", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	}
	if p, ok := payload.(identified); ok {
		msg.MessageId = p.ID().String()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return err
	}
	if err := c.pubCh.PublishConfirmed(ctx, constants.UserExchange, routingKey, msg); err != nil {
		if c.conn.IsClosed() {
			c.dropLocked()
		}
		return fmt.Errorf("failed to publish message to %q: %w", routingKey, err)
	}

	slog.Debug("Published message", "routing_key", routingKey, "message_id", msg.MessageId)
	return nil
}

// Close stops the consumers and closes the connection. It is safe to call several times.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })

	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked()
	return nil
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// sleep waits for d, returning early with an error if ctx is done or the client is closed.
func sleep(ctx context.Context, closed <-chan struct{}, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-closed:
		return ErrClosed
	}
}
