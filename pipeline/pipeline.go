// Package pipeline wires the four order pipeline subscribers. Each
// subscriber is a configuration record plus a handler closure; the
// generic consume loop in the messaging package does the rest.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/orderflow/orderflow-go/config"
	"github.com/orderflow/orderflow-go/contracts"
	"github.com/orderflow/orderflow-go/internal/rabbitmq"
	"github.com/orderflow/orderflow-go/messaging"
)

// SubscriberSpec pairs a subscriber identity with its handler.
type SubscriberSpec struct {
	ID      config.SubscriberID
	Handler messaging.Handler
}

// Specs returns the four pipeline subscribers. The handlers carry no
// business logic; they log the event and simulate processing time.
func Specs(logger *slog.Logger) []SubscriberSpec {
	return []SubscriberSpec{
		{ID: config.SubscriberOrderProcessing, Handler: simulatedHandler(logger, "order processing", 2*time.Second)},
		{ID: config.SubscriberNotification, Handler: simulatedHandler(logger, "notification", 500*time.Millisecond)},
		{ID: config.SubscriberPaymentVerification, Handler: simulatedHandler(logger, "payment verification", 1*time.Second)},
		{ID: config.SubscriberShipping, Handler: simulatedHandler(logger, "shipping", 1*time.Second)},
	}
}

// simulatedHandler logs the event and sleeps for the given work delay,
// honoring cancellation.
func simulatedHandler(logger *slog.Logger, stage string, delay time.Duration) messaging.Handler {
	return func(ctx context.Context, event *contracts.OrderEvent) error {
		logger.Info("handling event",
			"stage", stage,
			"orderId", event.OrderID,
			"eventType", event.EventType,
			"message", event.Message,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		logger.Info("event handled", "stage", stage, "orderId", event.OrderID)
		return nil
	}
}

// Pipeline owns the four subscribers as independent background
// consumers sharing nothing but the read-only settings.
type Pipeline struct {
	subscribers []*messaging.Subscriber
	logger      *slog.Logger
}

// PipelineOption configures the pipeline.
type PipelineOption func(*options)

type options struct {
	logger         *slog.Logger
	subscriberOpts []messaging.SubscriberOption
}

// WithPipelineLogger sets the logger.
func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(o *options) {
		o.logger = logger
	}
}

// WithSubscriberOptions forwards options to every subscriber.
func WithSubscriberOptions(opts ...messaging.SubscriberOption) PipelineOption {
	return func(o *options) {
		o.subscriberOpts = append(o.subscriberOpts, opts...)
	}
}

// New resolves each subscriber's binding against settings and builds
// the pipeline. An unresolvable binding fails construction; a
// subscriber cannot exist without its queue and routing key.
func New(settings config.BrokerSettings, connector *rabbitmq.Connector, opts ...PipelineOption) (*Pipeline, error) {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	specs := Specs(o.logger)
	subscribers := make([]*messaging.Subscriber, 0, len(specs))
	for _, spec := range specs {
		binding, err := settings.Resolve(spec.ID)
		if err != nil {
			return nil, err
		}

		topology := rabbitmq.Topology{
			Exchange:      rabbitmq.ExchangeSpec{Name: settings.ExchangeName, Kind: settings.ExchangeType},
			Queue:         rabbitmq.QueueSpec{Name: binding.Queue, RoutingKey: binding.RoutingKey},
			PrefetchCount: 1, // strict one-at-a-time processing per consumer
		}

		sub := messaging.NewSubscriber(
			string(spec.ID),
			connector,
			topology,
			spec.Handler,
			append([]messaging.SubscriberOption{messaging.WithSubscriberLogger(o.logger)}, o.subscriberOpts...)...,
		)
		subscribers = append(subscribers, sub)
	}

	return &Pipeline{subscribers: subscribers, logger: o.logger}, nil
}

// Start starts every subscriber. The first startup failure stops the
// already-started subscribers and is returned; partial pipelines do
// not run.
func (p *Pipeline) Start(ctx context.Context) error {
	for i, sub := range p.subscribers {
		if err := sub.Start(ctx); err != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			for _, started := range p.subscribers[:i] {
				if stopErr := started.Stop(stopCtx); stopErr != nil {
					p.logger.Error("failed to unwind subscriber", "error", stopErr)
				}
			}
			return fmt.Errorf("pipeline: start: %w", err)
		}
	}
	return nil
}

// Stop drains all subscribers concurrently.
func (p *Pipeline) Stop(ctx context.Context) error {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		lastErr error
	)

	for _, sub := range p.subscribers {
		wg.Add(1)
		go func(sub *messaging.Subscriber) {
			defer wg.Done()
			if err := sub.Stop(ctx); err != nil {
				mu.Lock()
				lastErr = err
				mu.Unlock()
			}
		}(sub)
	}

	wg.Wait()
	return lastErr
}

// Subscribers exposes the subscribers for state inspection.
func (p *Pipeline) Subscribers() []*messaging.Subscriber {
	return p.subscribers
}
