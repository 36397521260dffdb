package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// connection is the part of an AMQP connection used by the client.
type connection interface {
	Channel() (channel, error)
	IsClosed() bool
	Close() error
}

// channel is the part of an AMQP channel used by the client.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Confirm(noWait bool) error
	ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	// PublishConfirmed publishes msg and waits for the broker to confirm it.
	PublishConfirmed(ctx context.Context, exchange, key string, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

type dialer func(url string) (connection, error)

type amqpConnection struct {
	*amqp.Connection
}

type amqpChannel struct {
	*amqp.Channel
}

func dialAMQP(url string) (connection, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, err
	}
	return amqpConnection{conn}, nil
}

func (c amqpConnection) Channel() (channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return amqpChannel{ch}, nil
}

func (c amqpChannel) PublishConfirmed(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	confirm, err := c.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
	if err != nil {
		return err
	}
	// Channels not in confirm mode do not return a confirmation.
	if confirm == nil {
		return nil
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("waiting for publisher confirm: %w", err)
	}
	if !acked {
		return errors.New("message was not acknowledged by the broker")
	}
	return nil
}
