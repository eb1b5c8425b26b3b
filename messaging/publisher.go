package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/orderflow/orderflow-go/contracts"
	"github.com/orderflow/orderflow-go/internal/rabbitmq"
)

// EventPublisher is the single write path into the messaging system.
// It serializes an order event to JSON and publishes it persistent to
// the order exchange under a caller-supplied routing key. Safe for
// concurrent use; the underlying channel is serialized internally.
type EventPublisher struct {
	wire   *rabbitmq.Publisher
	logger *slog.Logger
}

// EventPublisherOption configures the EventPublisher.
type EventPublisherOption func(*EventPublisher)

// WithEventPublisherLogger sets the logger.
func WithEventPublisherLogger(logger *slog.Logger) EventPublisherOption {
	return func(p *EventPublisher) {
		p.logger = logger
	}
}

// NewEventPublisher wraps a wire publisher with event serialization.
func NewEventPublisher(wire *rabbitmq.Publisher, options ...EventPublisherOption) *EventPublisher {
	p := &EventPublisher{
		wire:   wire,
		logger: slog.Default(),
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// Publish sends event to the exchange under routingKey. The message is
// marked persistent, content-type application/json, timestamped with
// the publish-time UTC instant. Failures after the wire publisher's
// single reinitialization attempt surface as *rabbitmq.PublishError;
// there is no internal retry.
func (p *EventPublisher) Publish(ctx context.Context, event *contracts.OrderEvent, routingKey string) error {
	if event == nil {
		return fmt.Errorf("messaging: publish: %w", rabbitmq.ErrNilMessage)
	}

	body, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("messaging: marshal event %s: %w", event.EventType, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    uuid.NewString(),
		Type:         event.EventType,
		Body:         body,
	}

	if err := p.wire.Publish(ctx, routingKey, msg); err != nil {
		p.logger.Error("event publish failed",
			"orderId", event.OrderID,
			"eventType", event.EventType,
			"routingKey", routingKey,
			"error", err,
		)
		return err
	}

	p.logger.Info("event published",
		"orderId", event.OrderID,
		"eventType", event.EventType,
		"routingKey", routingKey,
	)
	return nil
}

// Connected reports whether the publish channel is currently open.
func (p *EventPublisher) Connected() bool {
	return p.wire.Connected()
}

// Close releases the underlying channel and connection.
func (p *EventPublisher) Close() error {
	return p.wire.Close()
}
