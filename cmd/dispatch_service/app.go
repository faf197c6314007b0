package dispatchservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trip-dispatch/internal/config"
	"trip-dispatch/internal/dispatch"
	"trip-dispatch/internal/dispatch/handler"
	"trip-dispatch/internal/geo"
	"trip-dispatch/internal/locations"
	"trip-dispatch/internal/logger"
	"trip-dispatch/internal/outbox"
	"trip-dispatch/internal/postgres"
	"trip-dispatch/internal/rabbitmq"
	"trip-dispatch/internal/ws"
)

// Run wires the dispatch service and blocks until ctx is cancelled.
func Run(ctx context.Context, maxConcurrent int) error {
	// set up a new logger and context for the dispatch service with a static request ID for startup logs
	logger := logger.New("dispatch-service")
	ctx = logger.WithRequestID(ctx, "startup-001")

	// load a config from file
	cfg, err := config.LoadFromFile("config/config.yaml")
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}

	// set up a Postgres connection pool
	pool, err := postgres.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	// connect to RabbitMQ
	rmq, err := rabbitmq.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}

	// set up the RabbitMQ publisher
	pub := &rabbitmq.MQPublisher{Client: rmq}

	// connect to Redis for the driver proximity index
	locIndex := locations.NewRedisIndex(cfg.Redis.Addr, cfg.Redis.Password)
	if err := locIndex.Ping(ctx); err != nil {
		logger.Error(ctx, "redis_connection_failed", "Failed to connect to Redis", err, nil)
		return err
	}
	defer locIndex.Close()

	// set up the token issuer for start/payment QR payloads
	tokens, err := geo.NewTokenIssuer(cfg.Tokens.SecretKey)
	if err != nil {
		logger.Error(ctx, "token_issuer_failed", "Failed to initialize token issuer", err, nil)
		return err
	}

	// set up the necessary repos
	uow := postgres.NewUnitOfWork(pool)
	tripRepo := postgres.NewTripRepo()
	alertRepo := postgres.NewAlertRepo()
	driverDir := postgres.NewDriverDirectory()
	vehicleRepo := postgres.NewVehicleRepo()
	placeResolver := postgres.NewPlaceResolver()
	outboxRepo := postgres.NewOutboxRepo()

	// set up the websocket hub and its HTTP handler
	hub := ws.NewHub(logger)
	wsHandler := ws.NewHandler(hub, locIndex)

	// feed live sockets from the notifications queue
	hub.StartNotificationConsumer(ctx, rmq)

	// drain the notification outbox in the background
	dispatcher := outbox.NewDispatcher(uow, outboxRepo, pub, logger)
	go dispatcher.Run(ctx)

	// set up the dispatch service
	svc := dispatch.NewService(logger, uow, tripRepo, alertRepo, driverDir, vehicleRepo,
		placeResolver, outboxRepo, locIndex, tokens, pub, dispatch.Options{
			AlertTTL:       cfg.AlertTTL(),
			ScheduleBuffer: cfg.ScheduleBuffer(),
			FenceMeters:    float64(cfg.Dispatch.OriginFenceMeters),
		})

	// set up the HTTP handler and its routes
	mux := http.NewServeMux()
	httpHandler := handler.NewDispatchHTTPHandler(svc, logger, wsHandler)
	httpHandler.RegisterRoutes(mux)

	// concurrency limiter (global), blocks when capacity is full
	limitedHandler := withConcurrencyLimit(maxConcurrent, mux)

	// set up the server configurations
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Services.DispatchServicePort), // listen on the specified port
		Handler:           limitedHandler,                                       // apply the concurrency limiter to the HTTP handler
		ReadHeaderTimeout: 5 * time.Second,                                      // time to read headers
		ReadTimeout:       10 * time.Second,                                     // time to read full request body
		WriteTimeout:      15 * time.Second,                                     // full response write timeout
		IdleTimeout:       60 * time.Second,                                     // keep-alive window
		BaseContext:       func(net.Listener) context.Context { return ctx },    // pass base ctx to all handlers
	}

	// expose Prometheus metrics on a separate port
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Services.MetricsPort),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// log service start
	logger.Info(ctx, "service_started",
		fmt.Sprintf("Dispatch Service started on port %d", cfg.Services.DispatchServicePort),
		map[string]any{"port": cfg.Services.DispatchServicePort, "metrics_port": cfg.Services.MetricsPort, "max_concurrent": maxConcurrent},
	)

	// start both servers in background goroutines
	errCh := make(chan error, 2)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	// wait for context cancellation or server error
	select {
	case <-ctx.Done():
		// graceful HTTP shutdown on context cancel
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info(ctx, "shutdown_started", "Starting graceful shutdown", nil)
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
		if err := metricsSrv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "metrics_shutdown_failed", "Failed to gracefully shut down metrics server", err, nil)
		}
	case err := <-errCh:
		// server returned a terminal error at startup or during run
		if err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": cfg.Services.DispatchServicePort})
			return err
		}
		return nil
	}

	return nil
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// It controls how many HTTP requests can be in-progress at the same time.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}: // acquire
			defer func() { <-sem }() // release
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			// client canceled or server is shutting down
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
