package messaging_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/userhub/userhub/internal/messaging"
)

// fakeBroker hands out fake connections and records what happens on them.
type fakeBroker struct {
	mu sync.Mutex

	dialErrs     int // number of dials failing before the first success
	dials        int
	urls         []string
	conns        []*fakeConn
	publishFails []publishFault // failures of the next publishes, in order

	published []publishing
	consuming chan *fakeChannel
}

type publishFault int

const (
	// faultConnectionLost closes the connection of the publishing channel.
	faultConnectionLost publishFault = iota
	// faultChannelClosed closes the publishing channel only, as a channel exception does.
	faultChannelClosed
	// faultNack makes the broker refuse the message.
	faultNack
	// faultHang never confirms the message, until the publish context is done.
	faultHang
)

type publishing struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{consuming: make(chan *fakeChannel, 10)}
}

func (b *fakeBroker) dial(url string) (messaging.Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.dials++
	b.urls = append(b.urls, url)
	if b.dialErrs > 0 {
		b.dialErrs--
		return nil, errors.New("connection refused")
	}
	c := &fakeConn{broker: b}
	b.conns = append(b.conns, c)
	return c, nil
}

func (b *fakeBroker) dialCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

func (b *fakeBroker) connAt(i int) *fakeConn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conns[i]
}

func (b *fakeBroker) nextPublishFault() (publishFault, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.publishFails) == 0 {
		return 0, false
	}
	f := b.publishFails[0]
	b.publishFails = b.publishFails[1:]
	return f, true
}

func (b *fakeBroker) publishedMessages() []publishing {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]publishing(nil), b.published...)
}

type fakeConn struct {
	broker *fakeBroker

	mu       sync.Mutex
	closed   bool
	channels []*fakeChannel
}

func (c *fakeConn) Channel() (messaging.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, amqp.ErrClosed
	}
	ch := &fakeChannel{
		broker:     c.broker,
		conn:       c,
		exchanges:  make(map[string]string),
		queues:     make(map[string]amqp.Table),
		bindings:   make(map[string]string),
		deliveries: make(chan amqp.Delivery),
	}
	c.channels = append(c.channels, ch)
	return ch, nil
}

func (c *fakeConn) channelAt(i int) *fakeChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[i]
}

func (c *fakeConn) channelCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.channels)
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return amqp.ErrClosed
	}
	c.closed = true
	for _, ch := range c.channels {
		ch.Close()
	}
	return nil
}

type fakeChannel struct {
	broker *fakeBroker
	conn   *fakeConn

	mu        sync.Mutex
	exchanges map[string]string
	queues    map[string]amqp.Table
	bindings  map[string]string // queue -> exchange/key
	confirm   bool
	qos       int
	closed    bool

	deliveries chan amqp.Delivery
	closeOnce  sync.Once
}

func (ch *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.exchanges[name] = kind
	return nil
}

func (ch *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.queues[name] = args
	return amqp.Queue{Name: name}, nil
}

func (ch *fakeChannel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.bindings[name] = exchange + "/" + key
	return nil
}

func (ch *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.qos = prefetchCount
	return nil
}

func (ch *fakeChannel) Confirm(_ bool) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.confirm = true
	return nil
}

func (ch *fakeChannel) ConsumeWithContext(ctx context.Context, _, _ string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	go func() {
		<-ctx.Done()
		ch.closeDeliveries()
	}()
	ch.broker.consuming <- ch
	return ch.deliveries, nil
}

func (ch *fakeChannel) PublishConfirmed(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	if f, ok := ch.broker.nextPublishFault(); ok {
		switch f {
		case faultConnectionLost:
			ch.conn.Close()
			return amqp.ErrClosed
		case faultChannelClosed:
			ch.Close()
			return amqp.ErrClosed
		case faultNack:
			return errors.New("message was not acknowledged by the broker")
		case faultHang:
			<-ctx.Done()
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()
	ch.broker.published = append(ch.broker.published, publishing{exchange: exchange, key: key, msg: msg})
	return nil
}

func (ch *fakeChannel) IsClosed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed
}

func (ch *fakeChannel) Close() error {
	ch.mu.Lock()
	ch.closed = true
	ch.mu.Unlock()
	ch.closeDeliveries()
	return nil
}

func (ch *fakeChannel) closeDeliveries() {
	ch.closeOnce.Do(func() { close(ch.deliveries) })
}

// deliver sends a message to the consumer of the channel.
func (ch *fakeChannel) deliver(t *testing.T, ack *fakeAcknowledger, tag uint64, redelivered bool) {
	t.Helper()
	ch.deliveries <- amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  tag,
		MessageId:    "msg",
		Body:         []byte(`{}`),
		Redelivered:  redelivered,
	}
}

type settlement struct {
	tag     uint64
	action  string
	requeue bool
}

// fakeAcknowledger records how deliveries were settled.
type fakeAcknowledger struct {
	settled chan settlement
}

func newFakeAcknowledger() *fakeAcknowledger {
	return &fakeAcknowledger{settled: make(chan settlement, 10)}
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.settled <- settlement{tag: tag, action: "ack"}
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.settled <- settlement{tag: tag, action: "nack", requeue: requeue}
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	a.settled <- settlement{tag: tag, action: "reject", requeue: requeue}
	return nil
}
