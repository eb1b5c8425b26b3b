package rabbitmq

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/orderflow/orderflow-go/internal/reliability"
)

// Connection retry parameters: an initial dial plus up to five
// retries, with delays doubling from one second (1s, 2s, 4s, 8s, 16s
// between attempts, ~31s of waiting in the worst case).
const (
	dialRetries      = 5
	dialInitialDelay = 1 * time.Second
)

// Connector dials the broker, retrying unreachable-broker failures
// with exponential backoff. Protocol-level failures (bad credentials,
// handshake errors) are fatal on the first attempt.
type Connector struct {
	url    string
	dialer Dialer
	policy reliability.RetryPolicy
	logger *slog.Logger

	mu        sync.RWMutex
	connected bool
}

// ConnectorOption configures the Connector.
type ConnectorOption func(*Connector)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ConnectorOption {
	return func(c *Connector) {
		c.logger = logger
	}
}

// WithDialer replaces the AMQP dialer, for tests.
func WithDialer(dialer Dialer) ConnectorOption {
	return func(c *Connector) {
		c.dialer = dialer
	}
}

// WithRetryPolicy replaces the dial retry policy.
func WithRetryPolicy(policy reliability.RetryPolicy) ConnectorOption {
	return func(c *Connector) {
		c.policy = policy
	}
}

// NewConnector creates a connector for the given AMQP dial string.
func NewConnector(url string, options ...ConnectorOption) *Connector {
	c := &Connector{
		url:    url,
		dialer: defaultDialer,
		policy: reliability.NewExponentialBackoff(dialInitialDelay, 2.0, dialRetries+1),
		logger: slog.Default(),
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

// Connect opens a broker connection. Unreachable-broker failures are
// retried per the policy; after exhausting retries the terminal
// *ConnectionError carries the last underlying cause. The returned
// connection is owned by the caller.
func (c *Connector) Connect(ctx context.Context) (Connection, error) {
	var (
		conn     Connection
		attempts int
		lastErr  error
	)

	err := reliability.Retry(ctx, c.policy, func(attempt int) error {
		attempts = attempt + 1
		c.logger.Info("dialing broker",
			"url", SanitizeURL(c.url),
			"attempt", attempts,
			"maxAttempts", dialRetries+1,
		)

		opened, dialErr := c.dialer(c.url)
		if dialErr != nil {
			lastErr = dialErr
			c.logger.Warn("broker dial failed",
				"url", SanitizeURL(c.url),
				"attempt", attempts,
				"error", dialErr,
			)
			if !isConnectivityError(dialErr) {
				// Auth and protocol failures cannot heal with time.
				return reliability.PermanentError{Err: dialErr}
			}
			return dialErr
		}

		conn = opened
		return nil
	})

	if err != nil {
		c.setConnected(false)
		if ctx.Err() != nil {
			err = ctx.Err()
			lastErr = err
		} else if lastErr == nil {
			lastErr = err
		}
		return nil, &ConnectionError{
			Op:        "connect",
			URL:       SanitizeURL(c.url),
			Err:       lastErr,
			Attempts:  attempts,
			Timestamp: time.Now(),
		}
	}

	c.setConnected(true)
	c.logger.Info("connected to broker",
		"url", SanitizeURL(c.url),
		"attempts", attempts,
	)
	return conn, nil
}

// Connected reports the outcome of the most recent dial sequence.
// Health checks read this; it is not a live probe of the socket.
func (c *Connector) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Connector) setConnected(connected bool) {
	c.mu.Lock()
	c.connected = connected
	c.mu.Unlock()
}
