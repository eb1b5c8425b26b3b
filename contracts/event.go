// Package contracts defines the wire-level types shared by publishers
// and subscribers: the order event envelope and the order snapshot it
// may carry. The JSON shape of these types is the compatibility
// contract with every other service on the exchange.
package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event type names, dot-namespaced to double as topic routing keys.
const (
	EventOrderCreated    = "order.created"
	EventOrderProcessing = "order.processing"
	EventPaymentVerified = "payment.verified"
	EventOrderShipped    = "order.shipped"
	EventOrderDelivered  = "order.delivered"
	EventOrderCancelled  = "order.cancelled"
)

// ErrEmptyEvent indicates a payload that decoded cleanly but carries
// no event identity. Such messages can never become processable.
var ErrEmptyEvent = errors.New("contracts: empty order event")

// OrderEvent is the message published to the order exchange.
// Immutable once published; the wire form is canonical JSON, UTF-8.
type OrderEvent struct {
	OrderID   uuid.UUID `json:"orderId"`
	EventType string    `json:"eventType"`
	Payload   *Order    `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
}

// NewOrderEvent builds an event for the given order and type, stamped
// with the current UTC time.
func NewOrderEvent(orderID uuid.UUID, eventType string, payload *Order, message string) *OrderEvent {
	return &OrderEvent{
		OrderID:   orderID,
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		Message:   message,
	}
}

// Validate rejects events that carry no identity. A zero order id and
// blank event type means the producer sent an empty object.
func (e *OrderEvent) Validate() error {
	if e == nil {
		return ErrEmptyEvent
	}
	if e.OrderID == uuid.Nil && e.EventType == "" {
		return ErrEmptyEvent
	}
	if e.EventType == "" {
		return fmt.Errorf("contracts: order event %s has no event type", e.OrderID)
	}
	return nil
}

// Marshal encodes the event as canonical JSON.
func (e *OrderEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalOrderEvent decodes a wire payload into an OrderEvent. The
// bytes must be valid UTF-8 JSON matching the envelope shape.
func UnmarshalOrderEvent(body []byte) (*OrderEvent, error) {
	var e OrderEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("contracts: unmarshal order event: %w", err)
	}
	return &e, nil
}
