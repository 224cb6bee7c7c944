package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/strikerzone/checkout/internal/messaging"
	"github.com/strikerzone/checkout/internal/telemetry"
	"github.com/strikerzone/checkout/internal/worker"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers == "" {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}

	emailServiceURL := os.Getenv("EMAIL_SERVICE_URL")
	if emailServiceURL == "" {
		logger.Error("EMAIL_SERVICE_URL environment variable is required")
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"), "checkout-worker", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	brokers := strings.Split(kafkaBrokers, ",")

	orderConsumer := messaging.NewConsumer(brokers, messaging.TopicOrderUpdated, "notification-worker")
	defer func() { _ = orderConsumer.Close() }()
	paymentConsumer := messaging.NewConsumer(brokers, messaging.TopicPaymentUpdated, "notification-worker")
	defer func() { _ = paymentConsumer.Close() }()

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	handler := worker.NewNotificationHandler(emailServiceURL, httpClient, logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting notification worker", "brokers", brokers)

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error { return orderConsumer.Consume(groupCtx, handler.Handle) })
	group.Go(func() error { return paymentConsumer.Consume(groupCtx, handler.Handle) })

	if err := group.Wait(); err != nil {
		if runCtx.Err() == context.Canceled {
			logger.Info("consumers stopped")
			return
		}
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
