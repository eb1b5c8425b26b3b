package rabbitmq

import (
	"context"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher owns a single connection and channel for the publish path.
// The channel object is not safe for unsynchronized concurrent use, so
// the whole check-closed → reinitialize → publish sequence runs under
// one mutex. If the channel was closed by a broker-side error the next
// publish transparently reopens connection, channel, and exchange
// before sending; a failure after that reinitialization surfaces as
// *PublishError with no internal retry.
type Publisher struct {
	connector *Connector
	exchange  ExchangeSpec
	logger    *slog.Logger

	mu     sync.Mutex
	conn   Connection
	ch     Channel
	closed bool
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithPublisherLogger sets the logger.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher creates a publisher bound to one exchange. The channel
// is opened lazily on first publish.
func NewPublisher(connector *Connector, exchange ExchangeSpec, options ...PublisherOption) *Publisher {
	p := &Publisher{
		connector: connector,
		exchange:  exchange,
		logger:    slog.Default(),
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// Publish sends msg to the publisher's exchange under routingKey.
// Ordering across a reconnect is not guaranteed; delivery of the
// message itself is fail-fast and the caller owns retry policy.
func (p *Publisher) Publish(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	if routingKey == "" {
		return &PublishError{
			Exchange:   p.exchange.Name,
			RoutingKey: routingKey,
			Err:        ErrEmptyRoutingKey,
			Timestamp:  time.Now(),
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return &PublishError{
			Exchange:   p.exchange.Name,
			RoutingKey: routingKey,
			Err:        ErrPublisherClosed,
			Timestamp:  time.Now(),
		}
	}

	if err := p.ensureChannel(ctx); err != nil {
		return &PublishError{
			Exchange:   p.exchange.Name,
			RoutingKey: routingKey,
			Err:        err,
			Timestamp:  time.Now(),
		}
	}

	if err := p.ch.PublishWithContext(
		ctx,
		p.exchange.Name,
		routingKey,
		false, // mandatory
		false, // immediate
		msg,
	); err != nil {
		return &PublishError{
			Exchange:   p.exchange.Name,
			RoutingKey: routingKey,
			Err:        err,
			Timestamp:  time.Now(),
		}
	}

	return nil
}

// ensureChannel (re)opens connection, channel, and exchange when the
// current channel is missing or was closed underneath us. Runs with
// the publisher mutex held.
func (p *Publisher) ensureChannel(ctx context.Context) error {
	if p.ch != nil && !p.ch.IsClosed() {
		return nil
	}

	p.releaseLocked()
	p.logger.Info("publisher channel unavailable, reinitializing",
		"exchange", p.exchange.Name,
	)

	conn, err := p.connector.Connect(ctx)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}

	if err := DeclareExchange(ch, p.exchange); err != nil {
		ch.Close()
		conn.Close()
		return err
	}

	p.conn = conn
	p.ch = ch
	return nil
}

// Connected reports whether the publisher currently holds an open
// channel.
func (p *Publisher) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed && p.ch != nil && !p.ch.IsClosed()
}

// Close releases the channel and connection. Further publishes fail
// with ErrPublisherClosed.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.releaseLocked()
	return nil
}

func (p *Publisher) releaseLocked() {
	if p.ch != nil {
		p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}
