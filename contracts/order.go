package contracts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusCreated         OrderStatus = "Created"
	StatusProcessing      OrderStatus = "Processing"
	StatusPaymentVerified OrderStatus = "PaymentVerified"
	StatusShipped         OrderStatus = "Shipped"
	StatusDelivered       OrderStatus = "Delivered"
	StatusCancelled       OrderStatus = "Cancelled"
)

// happyPath is the monotonic forward progression of an order.
var happyPath = map[OrderStatus]OrderStatus{
	StatusCreated:         StatusProcessing,
	StatusProcessing:      StatusPaymentVerified,
	StatusPaymentVerified: StatusShipped,
	StatusShipped:         StatusDelivered,
}

// Valid reports whether s is one of the known order statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusCreated, StatusProcessing, StatusPaymentVerified,
		StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next follows the
// order lifecycle: one step forward along the happy path, or Cancelled
// from any state before Delivered. The messaging core never enforces
// this; it exists for callers that construct status-change events.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if next == StatusCancelled {
		return s != StatusDelivered && s != StatusCancelled
	}
	return happyPath[s] == next
}

// Order is the snapshot carried as an event payload. It is
// informational only; the messaging core does not interpret it.
type Order struct {
	ID           uuid.UUID       `json:"id"`
	CustomerName string          `json:"customerName"`
	ProductName  string          `json:"productName"`
	Quantity     int             `json:"quantity"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	Status       OrderStatus     `json:"status"`
	CreatedAt    time.Time       `json:"createdAt"`
}
