package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/strikerzone/checkout/internal/auth"
	"github.com/strikerzone/checkout/internal/catalog"
	"github.com/strikerzone/checkout/internal/config"
	"github.com/strikerzone/checkout/internal/gateway"
	"github.com/strikerzone/checkout/internal/inventory"
	"github.com/strikerzone/checkout/internal/messaging"
	"github.com/strikerzone/checkout/internal/notify"
	"github.com/strikerzone/checkout/internal/orders"
	"github.com/strikerzone/checkout/internal/payments"
	"github.com/strikerzone/checkout/internal/reconcile"
	"github.com/strikerzone/checkout/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, "checkout", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("checkout", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(15 * time.Second)); err != nil {
		logger.Error("failed to start runtime metrics", "error", err)
		os.Exit(1)
	}

	db, err := telemetry.OpenDB("postgres", cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	var productSource catalog.ProductSource = catalog.NewRepository(db)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = redisClient.Close() }()
		productSource = catalog.NewCachedRepository(productSource, redisClient, 5*time.Minute, logger)
	}

	var orderProducer, paymentProducer *messaging.Producer
	if len(cfg.KafkaBrokers) > 0 {
		orderProducer = messaging.NewProducer(cfg.KafkaBrokers, messaging.TopicOrderUpdated)
		defer func() { _ = orderProducer.Close() }()
		paymentProducer = messaging.NewProducer(cfg.KafkaBrokers, messaging.TopicPaymentUpdated)
		defer func() { _ = paymentProducer.Close() }()
	}

	guard := inventory.NewGuard(db)
	orderRepo := orders.NewRepository(db, productSource, guard)
	paymentRepo := payments.NewRepository(db, orderRepo)

	hub := notify.NewHub(logger)

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	adapters := []gateway.Adapter{
		gateway.NewCOD(),
		gateway.NewFastPay(cfg.FastPayBaseURL, cfg.FastPayAPIKey, httpClient),
		gateway.NewPayMint(cfg.PayMintBaseURL, cfg.PayMintSecret, httpClient),
	}

	var reconciler *reconcile.Reconciler
	if paymentProducer != nil {
		reconciler = reconcile.New(paymentRepo, adapters, hub, paymentProducer, logger)
	} else {
		reconciler = reconcile.New(paymentRepo, adapters, hub, nil, logger)
	}

	orderHandler := newOrderHandler(orderRepo, hub, orderProducer, logger)
	paymentHandler := payments.NewHandler(paymentRepo, orderRepo, reconciler, adapters,
		cfg.Currency, cfg.FrontendURL+"/checkout/result", logger)

	sseHandler := notify.NewSSEHandler(hub,
		func(ctx context.Context, orderID, userID string) (bool, error) {
			order, err := orderRepo.GetByID(ctx, orderID)
			if err != nil {
				return false, err
			}
			return order.UserID == userID, nil
		}, logger)

	api := http.NewServeMux()
	api.HandleFunc("POST /orders", telemetry.WithHTTPRoute(orderHandler.HandleCreate))
	api.HandleFunc("GET /orders", telemetry.WithHTTPRoute(orderHandler.HandleList))
	api.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(orderHandler.HandleGet))
	api.HandleFunc("PATCH /orders/{id}/status", telemetry.WithHTTPRoute(orderHandler.HandleUpdateStatus))
	api.HandleFunc("DELETE /orders/{id}", telemetry.WithHTTPRoute(orderHandler.HandleDelete))

	api.HandleFunc("POST /payments/initiate", telemetry.WithHTTPRoute(paymentHandler.HandleInitiate))
	api.HandleFunc("GET /payments/verify", telemetry.WithHTTPRoute(paymentHandler.HandleVerify))
	api.HandleFunc("GET /payments", telemetry.WithHTTPRoute(paymentHandler.HandleList))
	api.HandleFunc("GET /payments/{id}", telemetry.WithHTTPRoute(paymentHandler.HandleGet))
	api.HandleFunc("POST /payments/{id}/cod/confirm", telemetry.WithHTTPRoute(paymentHandler.HandleConfirmCOD))
	api.HandleFunc("POST /payments/{id}/refund", telemetry.WithHTTPRoute(paymentHandler.HandleRefund))

	api.HandleFunc("GET /events", sseHandler.HandleEvents)

	mux := http.NewServeMux()
	// Provider callbacks arrive server-to-server without user identity.
	mux.HandleFunc("POST /payments/callback/{provider}", telemetry.WithHTTPRoute(paymentHandler.HandleCallback))
	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/", auth.Middleware(api))

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(mux, "checkout",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout: 10 * time.Second,
		// SSE responses stay open; only reads are bounded.
	}

	go func() {
		logger.Info("starting checkout service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

// newOrderHandler keeps the nil-producer case out of the wiring above; a nil
// *messaging.Producer must become a nil interface, not a typed nil.
func newOrderHandler(repo *orders.Repository, hub *notify.Hub, producer *messaging.Producer, logger *slog.Logger) *orders.Handler {
	if producer == nil {
		return orders.NewHandler(repo, hub, nil, logger)
	}
	return orders.NewHandler(repo, hub, producer, logger)
}
