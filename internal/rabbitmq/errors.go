package rabbitmq

import (
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	// Connection errors
	ErrConnectionClosed  = errors.New("rabbitmq: connection is closed")
	ErrConnectionRefused = errors.New("rabbitmq: broker refused connection")

	// Topology errors
	ErrTopologyConflict = errors.New("rabbitmq: declared parameters conflict with existing topology")

	// Publisher errors
	ErrPublisherClosed  = errors.New("rabbitmq: publisher is closed")
	ErrEmptyRoutingKey  = errors.New("rabbitmq: routing key must not be empty")
	ErrNilMessage       = errors.New("rabbitmq: message must not be nil")
)

// ConnectionError is the terminal failure of a dial sequence. It
// carries the last underlying cause and the number of attempts made.
type ConnectionError struct {
	Op        string // operation that failed
	URL       string // sanitized target
	Err       error  // underlying error
	Attempts  int
	Timestamp time.Time
}

func (e *ConnectionError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("rabbitmq connection error: %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("rabbitmq connection error: %s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TopologyError wraps a failed exchange/queue/binding/qos declaration.
type TopologyError struct {
	Component string // "exchange", "queue", "binding", "qos"
	Name      string
	Op        string
	Err       error
	Timestamp time.Time
}

func (e *TopologyError) Error() string {
	return fmt.Sprintf("rabbitmq topology error: failed to %s %s %q: %v",
		e.Op, e.Component, e.Name, e.Err)
}

func (e *TopologyError) Unwrap() error { return e.Err }

// PublishError surfaces a publish that failed even after the channel
// was reinitialized. The caller owns any retry policy.
type PublishError struct {
	Exchange   string
	RoutingKey string
	Err        error
	Timestamp  time.Time
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("rabbitmq publish error: failed to publish to %s/%s: %v",
		e.Exchange, e.RoutingKey, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// isConnectivityError reports whether a dial failure is worth
// retrying. Protocol-level refusals (bad credentials, frame errors)
// arrive as *amqp.Error and are fatal; everything else is taken to be
// an unreachable broker.
func isConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		return false
	}
	return true
}

// isConflictError reports whether an AMQP error is a topology
// parameter mismatch (PRECONDITION_FAILED, code 406).
func isConflictError(err error) bool {
	var amqpErr *amqp.Error
	return errors.As(err, &amqpErr) && amqpErr.Code == amqp.PreconditionFailed
}

// SanitizeURL strips credentials from a dial string before it reaches
// a log line or error message.
func SanitizeURL(url string) string {
	for i := len(url) - 1; i >= 0; i-- {
		if url[i] == '@' {
			return "amqp://***@" + url[i+1:]
		}
	}
	return url
}
