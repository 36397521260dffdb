package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

// Message is a consumed message.
type Message struct {
	ID          string
	Body        []byte
	Redelivered bool
}

// Handler processes a consumed message.
//
// A nil error acknowledges the message. An error wrapping ErrPermanent dead-letters it. Any other error
// requeues it once, then dead-letters it if it fails again.
type Handler func(ctx context.Context, msg Message) error

var errDeliveriesClosed = errors.New("delivery channel closed")

const (
	consumeBaseBackoff = time.Second
	consumeMaxBackoff  = 30 * time.Second
)

// Consume handles the messages of queue with Workers concurrent handlers.
//
// It blocks until ctx is done, in which case it returns nil, or the client is closed. A lost connection is
// reestablished with a jittered exponential backoff.
func (c *Client) Consume(ctx context.Context, queue string, h Handler) error {
	backoff := consumeBaseBackoff
	for {
		established, err := c.consumeOnce(ctx, queue, h)
		if ctx.Err() != nil {
			slog.Info("Consumer stopped", "queue", queue)
			return nil
		}
		if c.isClosed() {
			return ErrClosed
		}
		if established {
			backoff = consumeBaseBackoff
		}

		// #nosec:G404 We don't need cryptographic randomness.
		wait := time.Duration(rand.Int63n(int64(backoff)))
		slog.Warn("Consumer interrupted, reconnecting", "queue", queue, "wait", wait, "err", err)
		if err := c.sleep(ctx, c.closed, wait); err != nil {
			if errors.Is(err, ErrClosed) {
				return err
			}
			return nil
		}
		backoff = min(backoff*2, consumeMaxBackoff)
	}
}

// consumeOnce runs the workers on a single channel until it closes or ctx is done.
// established reports whether the consumer was registered on the broker.
func (c *Client) consumeOnce(ctx context.Context, queue string, h Handler) (established bool, err error) {
	ch, err := c.openChannel(ctx)
	if err != nil {
		return false, err
	}
	defer ch.Close()

	if err := ch.Qos(c.cfg.Workers, 0, false); err != nil {
		return false, fmt.Errorf("failed to set QoS: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return false, fmt.Errorf("failed to consume from %q: %w", queue, err)
	}
	slog.Info("Consuming messages", "queue", queue, "workers", c.cfg.Workers)

	g, gCtx := errgroup.WithContext(ctx)
	for range c.cfg.Workers {
		g.Go(func() error {
			for {
				select {
				case <-gCtx.Done():
					return nil
				case <-c.closed:
					return ErrClosed
				case d, ok := <-deliveries:
					if !ok {
						return errDeliveriesClosed
					}
					c.handle(gCtx, queue, d, h)
				}
			}
		})
	}
	return true, g.Wait()
}

func (c *Client) openChannel(ctx context.Context) (channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}
	ch, err := c.conn.Channel()
	if err != nil {
		if c.conn.IsClosed() {
			c.dropLocked()
		}
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return ch, nil
}

// handle runs h on d and settles d according to the result.
func (c *Client) handle(ctx context.Context, queue string, d amqp.Delivery, h Handler) {
	log := slog.With("queue", queue, "message_id", d.MessageId)

	start := time.Now()
	err := h(ctx, Message{ID: d.MessageId, Body: d.Body, Redelivered: d.Redelivered})
	c.metrics.handlerDuration.WithLabelValues(queue).Observe(time.Since(start).Seconds())

	var outcome string
	var settleErr error
	switch {
	case err == nil:
		outcome = outcomeAck
		settleErr = d.Ack(false)
		log.Debug("Message processed")
	case errors.Is(err, ErrPermanent):
		outcome = outcomeDeadLetter
		settleErr = d.Reject(false)
		log.Error("Message rejected", "err", err)
	case !d.Redelivered:
		outcome = outcomeRequeue
		settleErr = d.Nack(false, true)
		log.Warn("Message processing failed, requeuing", "err", err)
	default:
		outcome = outcomeDeadLetter
		settleErr = d.Nack(false, false)
		log.Error("Redelivered message processing failed, dead-lettering", "err", err)
	}
	c.metrics.consumed.WithLabelValues(queue, outcome).Inc()

	if settleErr != nil {
		log.Warn("Failed to settle message", "outcome", outcome, "err", settleErr)
	}
}
