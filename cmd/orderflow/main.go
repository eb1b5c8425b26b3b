// Command orderflow runs the order pipeline: the HTTP publish surface
// and the four background consumers against one broker.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/orderflow/orderflow-go/config"
	"github.com/orderflow/orderflow-go/health"
	"github.com/orderflow/orderflow-go/internal/rabbitmq"
	"github.com/orderflow/orderflow-go/messaging"
	"github.com/orderflow/orderflow-go/pipeline"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("orderflow exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings, err := config.Load()
	if err != nil {
		return err
	}

	connector := rabbitmq.NewConnector(settings.URL(), rabbitmq.WithLogger(logger))

	exchange := rabbitmq.ExchangeSpec{Name: settings.ExchangeName, Kind: settings.ExchangeType}
	publisher := messaging.NewEventPublisher(
		rabbitmq.NewPublisher(connector, exchange, rabbitmq.WithPublisherLogger(logger)),
		messaging.WithEventPublisherLogger(logger),
	)
	defer publisher.Close()

	consumers, err := pipeline.New(settings, connector, pipeline.WithPipelineLogger(logger))
	if err != nil {
		return err
	}
	if err := consumers.Start(ctx); err != nil {
		return err
	}

	checker := health.NewBrokerChecker("broker", connector)
	api := newAPI(publisher, checker, logger)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Route("/api/orders", func(r chi.Router) {
		r.Post("/", api.createOrder)
		r.Post("/{id}/status", api.changeStatus)
	})
	router.Get("/healthz", api.healthz)

	addr := ":8080"
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		addr = v
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	if err := consumers.Stop(shutdownCtx); err != nil {
		logger.Error("pipeline drain failed", "error", err)
	}
	return nil
}
