package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/orderflow/orderflow-go/contracts"
	"github.com/orderflow/orderflow-go/internal/rabbitmq"
)

// State is the lifecycle state of a Subscriber.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateRunning
	StateDraining
	StateStopped
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	case StateFaulted:
		return "faulted"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// ErrAlreadyStarted is returned by Start when the subscriber has left
// the uninitialized state.
var ErrAlreadyStarted = errors.New("messaging: subscriber already started")

// Handler is the business callback invoked for each decoded event.
// A nil return acknowledges the delivery; an error requeues it.
type Handler func(ctx context.Context, event *contracts.OrderEvent) error

// Subscriber is a long-lived background consumer for one queue. It
// owns its connection and channel exclusively, consumes with manual
// acknowledgment, and with prefetch=1 processes at most one delivery
// at a time.
//
// Per delivery: malformed or empty payloads are rejected without
// requeue (they can never become processable); handler failures are
// rejected with requeue; successes are individually acknowledged.
// Startup failures fault the subscriber and propagate to the caller;
// per-message failures never do.
type Subscriber struct {
	name      string
	connector *rabbitmq.Connector
	topology  rabbitmq.Topology
	handler   Handler
	logger    *slog.Logger

	// drainGrace bounds each handler invocation and is the window an
	// in-flight handler gets to finish after cancellation.
	drainGrace time.Duration

	// maxRedeliveries caps requeue attempts per message id; zero keeps
	// the unbounded requeue behavior.
	maxRedeliveries int
	attempts        map[string]int // delivery attempts by message id; run-loop goroutine only

	mu     sync.Mutex
	state  State
	conn   rabbitmq.Connection
	ch     rabbitmq.Channel
	cancel context.CancelFunc
	done   chan struct{}
}

// SubscriberOption configures the Subscriber.
type SubscriberOption func(*Subscriber)

// WithSubscriberLogger sets the logger.
func WithSubscriberLogger(logger *slog.Logger) SubscriberOption {
	return func(s *Subscriber) {
		s.logger = logger
	}
}

// WithDrainGrace sets how long an in-flight handler may run, both
// normally and after shutdown begins.
func WithDrainGrace(grace time.Duration) SubscriberOption {
	return func(s *Subscriber) {
		s.drainGrace = grace
	}
}

// WithMaxRedeliveries rejects a message without requeue after it has
// failed n delivery attempts, instead of requeueing forever. Messages
// without a message id are not capped.
func WithMaxRedeliveries(n int) SubscriberOption {
	return func(s *Subscriber) {
		s.maxRedeliveries = n
	}
}

// NewSubscriber creates a subscriber for one queue and handler. The
// topology carries the already-resolved queue name and routing key.
func NewSubscriber(name string, connector *rabbitmq.Connector, topology rabbitmq.Topology, handler Handler, options ...SubscriberOption) *Subscriber {
	s := &Subscriber{
		name:       name,
		connector:  connector,
		topology:   topology,
		handler:    handler,
		logger:     slog.Default(),
		drainGrace: 30 * time.Second,
		attempts:   make(map[string]int),
		state:      StateUninitialized,
		done:       make(chan struct{}),
	}

	for _, opt := range options {
		opt(s)
	}

	s.logger = s.logger.With("subscriber", name, "queue", topology.Queue.Name)
	return s
}

// State returns the current lifecycle state.
func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start initializes the subscriber (connection, channel, topology,
// consume registration) and spawns the consume loop. Initialization
// failures transition to Faulted and are returned; the subscriber
// cannot run without its topology and the host supervisor owns any
// restart policy.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateUninitialized {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: state %s", ErrAlreadyStarted, state)
	}
	// The cancel func exists before initialization so a concurrent
	// Stop can abort a dial still in its backoff loop.
	loopCtx, cancel := context.WithCancel(ctx)
	s.state = StateInitializing
	s.cancel = cancel
	s.mu.Unlock()

	deliveries, err := s.initialize(loopCtx)
	if err != nil {
		cancel()
		s.fault(err)
		return err
	}

	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()

	go s.run(loopCtx, deliveries)

	s.logger.Info("subscriber running",
		"routingKey", s.topology.Queue.RoutingKey,
		"prefetch", s.topology.PrefetchCount,
	)
	return nil
}

// initialize acquires the connection and channel and declares the
// subscriber's topology. Every partial acquisition is released on
// failure.
func (s *Subscriber) initialize(ctx context.Context) (<-chan amqp.Delivery, error) {
	conn, err := s.connector.Connect(ctx)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("messaging: open channel for %s: %w", s.name, err)
	}

	if err := rabbitmq.Declare(ch, s.topology); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	deliveries, err := ch.Consume(
		s.topology.Queue.Name,
		"",    // broker-generated consumer tag
		false, // manual acknowledgment
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("messaging: start consuming %s: %w", s.topology.Queue.Name, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.ch = ch
	s.mu.Unlock()
	return deliveries, nil
}

// run is the consume loop. It exits on cancellation (clean shutdown)
// or when the broker closes the delivery stream (fault). Channel and
// connection are released on every exit path.
func (s *Subscriber) run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	faulted := false

	defer func() {
		s.mu.Lock()
		s.release()
		if s.cancel != nil {
			s.cancel()
		}
		if faulted {
			s.state = StateFaulted
		} else {
			s.state = StateStopped
		}
		s.mu.Unlock()
		close(s.done)
		s.logger.Info("subscriber stopped", "faulted", faulted)
	}()

	for {
		select {
		case <-ctx.Done():
			s.setState(StateDraining)
			return

		case delivery, ok := <-deliveries:
			if !ok {
				// The broker tore down the consumer. Restart policy
				// belongs to the host supervisor, not this loop.
				s.logger.Error("delivery stream closed by broker")
				faulted = true
				return
			}
			s.handleDelivery(ctx, delivery)
		}
	}
}

// handleDelivery decodes, dispatches, and acknowledges one message.
// Errors here are contained; they never escape the consume loop.
func (s *Subscriber) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	event, err := contracts.UnmarshalOrderEvent(delivery.Body)
	if err == nil {
		err = event.Validate()
	}
	if err != nil {
		// Malformed bytes can never become processable: one attempt,
		// then discard.
		s.logger.Error("discarding undecodable message",
			"messageId", delivery.MessageId,
			"error", err,
		)
		s.reject(delivery, false)
		return
	}

	// The handler gets a context that survives shutdown cancellation
	// so the single in-flight message may finish, bounded by the
	// drain grace.
	handlerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.drainGrace)
	err = s.invokeHandler(handlerCtx, event)
	cancel()

	if err != nil {
		requeue := s.shouldRequeue(delivery)
		s.logger.Warn("handler failed",
			"orderId", event.OrderID,
			"eventType", event.EventType,
			"messageId", delivery.MessageId,
			"requeue", requeue,
			"error", err,
		)
		s.reject(delivery, requeue)
		return
	}

	if delivery.MessageId != "" {
		delete(s.attempts, delivery.MessageId)
	}
	if ackErr := delivery.Ack(false); ackErr != nil {
		s.logger.Error("failed to ack message",
			"messageId", delivery.MessageId,
			"error", ackErr,
		)
		return
	}

	s.logger.Debug("event processed",
		"orderId", event.OrderID,
		"eventType", event.EventType,
	)
}

// invokeHandler contains handler panics so a misbehaving callback is
// treated like any other handler failure.
func (s *Subscriber) invokeHandler(ctx context.Context, event *contracts.OrderEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("messaging: handler panic: %v", r)
		}
	}()
	return s.handler(ctx, event)
}

// shouldRequeue applies the redelivery cap. With no cap configured, or
// no message id to track by, failed messages requeue indefinitely.
func (s *Subscriber) shouldRequeue(delivery amqp.Delivery) bool {
	if s.maxRedeliveries <= 0 || delivery.MessageId == "" {
		return true
	}
	s.attempts[delivery.MessageId]++
	if s.attempts[delivery.MessageId] < s.maxRedeliveries {
		return true
	}
	delete(s.attempts, delivery.MessageId)
	s.logger.Error("redelivery limit reached, discarding message",
		"messageId", delivery.MessageId,
		"maxRedeliveries", s.maxRedeliveries,
	)
	return false
}

func (s *Subscriber) reject(delivery amqp.Delivery, requeue bool) {
	if err := delivery.Nack(false, requeue); err != nil {
		s.logger.Error("failed to nack message",
			"messageId", delivery.MessageId,
			"requeue", requeue,
			"error", err,
		)
	}
}

// Stop drains the consume loop: no new deliveries are accepted, the
// in-flight handler (at most one, given prefetch=1) finishes within
// its grace window, and channel and connection are released. Stop
// returns when the loop has fully stopped or ctx expires.
func (s *Subscriber) Stop(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateUninitialized, StateStopped, StateFaulted:
		s.mu.Unlock()
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("messaging: stop %s: %w", s.name, ctx.Err())
	}
}

// fault records a startup failure. The consume loop never ran, so
// done is closed here to release any waiting Stop.
func (s *Subscriber) fault(err error) {
	s.mu.Lock()
	s.state = StateFaulted
	s.mu.Unlock()
	close(s.done)
	s.logger.Error("subscriber failed to start", "error", err)
}

func (s *Subscriber) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// release closes channel then connection. Callers hold s.mu.
func (s *Subscriber) release() {
	if s.ch != nil {
		s.ch.Close()
		s.ch = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}
