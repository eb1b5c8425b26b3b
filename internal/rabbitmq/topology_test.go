package rabbitmq

import (
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderTopology() Topology {
	return Topology{
		Exchange:      ExchangeSpec{Name: "order_events", Kind: "topic"},
		Queue:         QueueSpec{Name: "order_processing_queue", RoutingKey: "order.created"},
		PrefetchCount: 1,
	}
}

func TestDeclare(t *testing.T) {
	t.Run("declares exchange, queue, binding and qos in order", func(t *testing.T) {
		ch := newFakeChannel()

		require.NoError(t, Declare(ch, orderTopology()))

		require.Len(t, ch.exchangeDecls, 1)
		assert.Equal(t, exchangeDecl{name: "order_events", kind: "topic", durable: true}, ch.exchangeDecls[0])

		require.Len(t, ch.queueDecls, 1)
		assert.Equal(t, queueDecl{name: "order_processing_queue", durable: true}, ch.queueDecls[0])

		require.Len(t, ch.bindings, 1)
		assert.Equal(t, bindingDecl{queue: "order_processing_queue", key: "order.created", exchange: "order_events"}, ch.bindings[0])

		require.Len(t, ch.qosCalls, 1)
		assert.Equal(t, qosCall{prefetchCount: 1}, ch.qosCalls[0])
	})

	t.Run("zero prefetch leaves qos untouched", func(t *testing.T) {
		ch := newFakeChannel()
		top := orderTopology()
		top.PrefetchCount = 0

		require.NoError(t, Declare(ch, top))
		assert.Empty(t, ch.qosCalls)
	})

	t.Run("exchange failure stops the declaration", func(t *testing.T) {
		ch := newFakeChannel()
		ch.exchangeErr = errors.New("channel gone")

		err := Declare(ch, orderTopology())
		var topErr *TopologyError
		require.ErrorAs(t, err, &topErr)
		assert.Equal(t, "exchange", topErr.Component)
		assert.Equal(t, "order_events", topErr.Name)
		assert.Empty(t, ch.queueDecls)
		assert.Empty(t, ch.bindings)
	})

	t.Run("queue failure is reported with the queue name", func(t *testing.T) {
		ch := newFakeChannel()
		ch.queueErr = errors.New("no access")

		err := Declare(ch, orderTopology())
		var topErr *TopologyError
		require.ErrorAs(t, err, &topErr)
		assert.Equal(t, "queue", topErr.Component)
		assert.Equal(t, "order_processing_queue", topErr.Name)
	})

	t.Run("bind failure is reported", func(t *testing.T) {
		ch := newFakeChannel()
		ch.bindErr = errors.New("exchange missing")

		err := Declare(ch, orderTopology())
		var topErr *TopologyError
		require.ErrorAs(t, err, &topErr)
		assert.Equal(t, "binding", topErr.Component)
	})

	t.Run("parameter mismatch surfaces as topology conflict", func(t *testing.T) {
		ch := newFakeChannel()
		ch.exchangeErr = &amqp.Error{Code: amqp.PreconditionFailed, Reason: "PRECONDITION_FAILED - inequivalent arg 'type'"}

		err := Declare(ch, orderTopology())
		assert.ErrorIs(t, err, ErrTopologyConflict)

		var amqpErr *amqp.Error
		assert.ErrorAs(t, err, &amqpErr)
	})

	t.Run("non-conflict amqp errors are not conflicts", func(t *testing.T) {
		ch := newFakeChannel()
		ch.queueErr = &amqp.Error{Code: amqp.AccessRefused, Reason: "ACCESS_REFUSED"}

		err := Declare(ch, orderTopology())
		assert.NotErrorIs(t, err, ErrTopologyConflict)
	})
}

func TestDeclareExchange(t *testing.T) {
	ch := newFakeChannel()
	require.NoError(t, DeclareExchange(ch, ExchangeSpec{Name: "order_events", Kind: "topic"}))
	require.Len(t, ch.exchangeDecls, 1)
	assert.True(t, ch.exchangeDecls[0].durable)
	assert.False(t, ch.exchangeDecls[0].autoDelete)
}
