package rabbitmq

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// fakeChannel records every declaration and publish for assertions.
type fakeChannel struct {
	mu sync.Mutex

	exchangeDecls []exchangeDecl
	queueDecls    []queueDecl
	bindings      []bindingDecl
	qosCalls      []qosCall
	published     []publishedMsg

	deliveries chan amqp.Delivery
	closed     bool

	exchangeErr error
	queueErr    error
	bindErr     error
	qosErr      error
	consumeErr  error
	publishErr  error
}

type exchangeDecl struct {
	name, kind          string
	durable, autoDelete bool
}

type queueDecl struct {
	name                           string
	durable, autoDelete, exclusive bool
}

type bindingDecl struct {
	queue, key, exchange string
}

type qosCall struct {
	prefetchCount, prefetchSize int
	global                      bool
}

type publishedMsg struct {
	exchange, key string
	msg           amqp.Publishing
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp.Delivery, 16)}
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exchangeErr != nil {
		return c.exchangeErr
	}
	c.exchangeDecls = append(c.exchangeDecls, exchangeDecl{name, kind, durable, autoDelete})
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queueErr != nil {
		return amqp.Queue{}, c.queueErr
	}
	c.queueDecls = append(c.queueDecls, queueDecl{name, durable, autoDelete, exclusive})
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bindErr != nil {
		return c.bindErr
	}
	c.bindings = append(c.bindings, bindingDecl{name, key, exchange})
	return nil
}

func (c *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.qosErr != nil {
		return c.qosErr
	}
	c.qosCalls = append(c.qosCalls, qosCall{prefetchCount, prefetchSize, global})
	return nil
}

func (c *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.consumeErr != nil {
		return nil, c.consumeErr
	}
	return c.deliveries, nil
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, publishedMsg{exchange, key, msg})
	return nil
}

func (c *fakeChannel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) publishedMessages() []publishedMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]publishedMsg(nil), c.published...)
}

// fakeConnection hands out a fixed channel.
type fakeConnection struct {
	mu         sync.Mutex
	ch         *fakeChannel
	channelErr error
	closed     bool
}

func (c *fakeConnection) Channel() (Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channelErr != nil {
		return nil, c.channelErr
	}
	return c.ch, nil
}

func (c *fakeConnection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// fakeDialer scripts dial outcomes per attempt and counts calls.
type fakeDialer struct {
	mu       sync.Mutex
	attempts int
	// outcomes[i] is the error for attempt i+1; nil dials successfully.
	// Attempts beyond the script succeed.
	outcomes []error
	conns    []*fakeConnection
	// onDial, when set, adjusts each successfully dialed connection.
	onDial func(*fakeConnection)
}

func (d *fakeDialer) dial(url string) (Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	attempt := d.attempts
	d.attempts++
	if attempt < len(d.outcomes) && d.outcomes[attempt] != nil {
		return nil, d.outcomes[attempt]
	}
	conn := &fakeConnection{ch: newFakeChannel()}
	if d.onDial != nil {
		d.onDial(conn)
	}
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) attemptCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}
