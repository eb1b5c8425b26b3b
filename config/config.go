// Package config holds the immutable broker settings shared read-only
// by every messaging component, and the per-subscriber queue/binding
// resolution.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// SubscriberID names one of the four logical subscribers. The set is
// closed; resolving an unknown id is a programmer error.
type SubscriberID string

const (
	SubscriberOrderProcessing     SubscriberID = "OrderProcessing"
	SubscriberNotification        SubscriberID = "Notification"
	SubscriberPaymentVerification SubscriberID = "PaymentVerification"
	SubscriberShipping            SubscriberID = "Shipping"
)

// Binding is a subscriber's resolved queue name and routing-key
// pattern. Resolved once at subscriber construction, never mutated.
type Binding struct {
	Queue      string
	RoutingKey string
}

// BrokerSettings configures the AMQP broker and topology. Immutable
// after load; safe to share across goroutines without locking.
type BrokerSettings struct {
	Host         string
	Port         int
	User         string
	Password     string
	ExchangeName string
	ExchangeType string
	Subscribers  map[SubscriberID]Binding
}

// ConfigurationError reports a missing or invalid subscriber binding.
type ConfigurationError struct {
	Subscriber SubscriberID
	Field      string // "queue" or "routing key"; empty for unknown subscriber
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: unknown subscriber %q", e.Subscriber)
	}
	return fmt.Sprintf("config: subscriber %q has no %s configured", e.Subscriber, e.Field)
}

// Default returns the standard order pipeline topology: one topic
// exchange and the four durable subscriber queues.
func Default() BrokerSettings {
	return BrokerSettings{
		Host:         "localhost",
		Port:         5672,
		User:         "guest",
		Password:     "guest",
		ExchangeName: "order_events",
		ExchangeType: "topic",
		Subscribers: map[SubscriberID]Binding{
			SubscriberOrderProcessing:     {Queue: "order_processing_queue", RoutingKey: "order.created"},
			SubscriberNotification:        {Queue: "notification_queue", RoutingKey: "order.*"},
			SubscriberPaymentVerification: {Queue: "payment_verification_queue", RoutingKey: "payment.*"},
			SubscriberShipping:            {Queue: "shipping_queue", RoutingKey: "order.shipped"},
		},
	}
}

// Load reads broker settings from a .env file (if present) and the
// environment, falling back to Default for anything unset.
func Load() (BrokerSettings, error) {
	_ = godotenv.Load() // a missing .env file is not an error

	s := Default()
	if v := os.Getenv("BROKER_HOST"); v != "" {
		s.Host = v
	}
	if v := os.Getenv("BROKER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return BrokerSettings{}, fmt.Errorf("config: invalid BROKER_PORT %q: %w", v, err)
		}
		s.Port = port
	}
	if v := os.Getenv("BROKER_USER"); v != "" {
		s.User = v
	}
	if v := os.Getenv("BROKER_PASSWORD"); v != "" {
		s.Password = v
	}
	if v := os.Getenv("BROKER_EXCHANGE"); v != "" {
		s.ExchangeName = v
	}
	return s, nil
}

// URL renders the AMQP dial string for these settings.
func (s BrokerSettings) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/",
		url.QueryEscape(s.User), url.QueryEscape(s.Password), s.Host, s.Port)
}

// Resolve maps a subscriber identity to its queue and routing key,
// failing fast when either is unset or the identity is unknown.
func (s BrokerSettings) Resolve(id SubscriberID) (Binding, error) {
	b, ok := s.Subscribers[id]
	if !ok {
		return Binding{}, &ConfigurationError{Subscriber: id}
	}
	if b.Queue == "" {
		return Binding{}, &ConfigurationError{Subscriber: id, Field: "queue"}
	}
	if b.RoutingKey == "" {
		return Binding{}, &ConfigurationError{Subscriber: id, Field: "routing key"}
	}
	return b, nil
}
