package messaging

import (
	"context"
	"time"
)

type (
	Connection = connection
	Channel    = channel
)

// WithDialer replaces the AMQP dialer.
func WithDialer(d func(url string) (Connection, error)) Options {
	return func(o *options) {
		o.dial = d
	}
}

// WithSleeper replaces the wait between connection attempts.
func WithSleeper(f func(ctx context.Context, closed <-chan struct{}, d time.Duration) error) Options {
	return func(o *options) {
		o.sleep = f
	}
}

// Config returns the effective configuration of the client.
func (c *Client) Config() Config {
	return c.cfg
}
