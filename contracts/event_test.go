package contracts

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderEventRoundTrip(t *testing.T) {
	t.Run("event with payload survives marshal and unmarshal", func(t *testing.T) {
		order := &Order{
			ID:           uuid.MustParse("11111111-1111-1111-1111-111111111111"),
			CustomerName: "Ada Lovelace",
			ProductName:  "Analytical Engine",
			Quantity:     1,
			TotalAmount:  decimal.RequireFromString("1042.50"),
			Status:       StatusCreated,
			CreatedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		}
		event := NewOrderEvent(order.ID, EventOrderCreated, order, "order created")

		body, err := event.Marshal()
		require.NoError(t, err)

		decoded, err := UnmarshalOrderEvent(body)
		require.NoError(t, err)

		assert.Equal(t, event.OrderID, decoded.OrderID)
		assert.Equal(t, event.EventType, decoded.EventType)
		assert.Equal(t, event.Message, decoded.Message)
		assert.True(t, event.Timestamp.Equal(decoded.Timestamp))
		require.NotNil(t, decoded.Payload)
		assert.Equal(t, order.ID, decoded.Payload.ID)
		assert.Equal(t, order.CustomerName, decoded.Payload.CustomerName)
		assert.True(t, order.TotalAmount.Equal(decoded.Payload.TotalAmount))
		assert.Equal(t, order.Status, decoded.Payload.Status)
		assert.True(t, order.CreatedAt.Equal(decoded.Payload.CreatedAt))
	})

	t.Run("event without payload omits it on the wire", func(t *testing.T) {
		event := NewOrderEvent(uuid.New(), EventOrderShipped, nil, "")

		body, err := event.Marshal()
		require.NoError(t, err)
		assert.NotContains(t, string(body), "payload")

		decoded, err := UnmarshalOrderEvent(body)
		require.NoError(t, err)
		assert.Nil(t, decoded.Payload)
	})

	t.Run("malformed bytes fail to unmarshal", func(t *testing.T) {
		_, err := UnmarshalOrderEvent([]byte("this is not json"))
		assert.Error(t, err)
	})
}

func TestOrderEventValidate(t *testing.T) {
	t.Run("nil event is empty", func(t *testing.T) {
		var event *OrderEvent
		assert.ErrorIs(t, event.Validate(), ErrEmptyEvent)
	})

	t.Run("zero event is empty", func(t *testing.T) {
		decoded, err := UnmarshalOrderEvent([]byte("{}"))
		require.NoError(t, err)
		assert.ErrorIs(t, decoded.Validate(), ErrEmptyEvent)
	})

	t.Run("missing event type is invalid", func(t *testing.T) {
		event := &OrderEvent{OrderID: uuid.New()}
		assert.Error(t, event.Validate())
		assert.NotErrorIs(t, event.Validate(), ErrEmptyEvent)
	})

	t.Run("valid event passes", func(t *testing.T) {
		event := NewOrderEvent(uuid.New(), EventOrderCreated, nil, "")
		assert.NoError(t, event.Validate())
	})
}

func TestNewOrderEvent(t *testing.T) {
	before := time.Now().UTC()
	event := NewOrderEvent(uuid.New(), EventPaymentVerified, nil, "verified")
	after := time.Now().UTC()

	assert.Equal(t, EventPaymentVerified, event.EventType)
	assert.Equal(t, "verified", event.Message)
	assert.False(t, event.Timestamp.Before(before))
	assert.False(t, event.Timestamp.After(after))
	assert.Equal(t, time.UTC, event.Timestamp.Location())
}

func TestWireShape(t *testing.T) {
	// Field names are the compatibility contract with other services.
	event := NewOrderEvent(uuid.New(), EventOrderCreated, nil, "hello")
	body, err := json.Marshal(event)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	assert.Contains(t, raw, "orderId")
	assert.Contains(t, raw, "eventType")
	assert.Contains(t, raw, "timestamp")
	assert.Contains(t, raw, "message")
}
