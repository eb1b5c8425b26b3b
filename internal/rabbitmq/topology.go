package rabbitmq

import (
	"time"
)

// ExchangeSpec declares a durable exchange.
type ExchangeSpec struct {
	Name string
	Kind string // "topic" for the order pipeline
}

// QueueSpec declares a durable queue and its binding pattern.
type QueueSpec struct {
	Name       string
	RoutingKey string
}

// Topology is everything one subscriber needs declared before it can
// consume: its exchange, queue, binding, and channel QoS.
type Topology struct {
	Exchange ExchangeSpec
	Queue    QueueSpec
	// PrefetchCount limits unacknowledged in-flight deliveries on the
	// channel. Zero leaves the broker default in place.
	PrefetchCount int
}

// Declare sets up the topology on the given channel in order:
// exchange, queue, binding, QoS. Declarations are idempotent when the
// parameters match; a parameter mismatch on an existing entity fails
// with ErrTopologyConflict. Any failure is fatal to the caller's
// startup and is returned, not swallowed.
func Declare(ch Channel, t Topology) error {
	if err := ch.ExchangeDeclare(
		t.Exchange.Name,
		t.Exchange.Kind,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return topologyError("exchange", t.Exchange.Name, "declare", err)
	}

	if _, err := ch.QueueDeclare(
		t.Queue.Name,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return topologyError("queue", t.Queue.Name, "declare", err)
	}

	if err := ch.QueueBind(
		t.Queue.Name,
		t.Queue.RoutingKey,
		t.Exchange.Name,
		false, // no-wait
		nil,
	); err != nil {
		return topologyError("binding", t.Queue.Name, "bind", err)
	}

	if t.PrefetchCount > 0 {
		if err := ch.Qos(t.PrefetchCount, 0, false); err != nil {
			return topologyError("qos", t.Queue.Name, "set", err)
		}
	}

	return nil
}

// DeclareExchange declares only the exchange, for the publish path.
func DeclareExchange(ch Channel, ex ExchangeSpec) error {
	if err := ch.ExchangeDeclare(ex.Name, ex.Kind, true, false, false, false, nil); err != nil {
		return topologyError("exchange", ex.Name, "declare", err)
	}
	return nil
}

func topologyError(component, name, op string, err error) error {
	if isConflictError(err) {
		err = joinConflict(err)
	}
	return &TopologyError{
		Component: component,
		Name:      name,
		Op:        op,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// joinConflict tags a PRECONDITION_FAILED with ErrTopologyConflict so
// callers can match it with errors.Is.
func joinConflict(err error) error {
	return &conflictError{err: err}
}

type conflictError struct {
	err error
}

func (e *conflictError) Error() string { return ErrTopologyConflict.Error() + ": " + e.err.Error() }

func (e *conflictError) Is(target error) bool { return target == ErrTopologyConflict }

func (e *conflictError) Unwrap() error { return e.err }
