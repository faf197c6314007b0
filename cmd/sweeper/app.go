package sweeper

import (
	"context"
	"fmt"
	"time"

	"trip-dispatch/internal/config"
	"trip-dispatch/internal/dispatch"
	"trip-dispatch/internal/logger"
	"trip-dispatch/internal/postgres"
)

// Run starts the periodic expiry sweep and blocks until ctx is cancelled.
// The interval flag, when positive, overrides the configured one.
func Run(ctx context.Context, interval time.Duration) error {
	logger := logger.New("sweeper")
	ctx = logger.WithRequestID(ctx, "startup-001")

	// load a config from file
	cfg, err := config.LoadFromFile("config/config.yaml")
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}
	if interval <= 0 {
		interval = cfg.SweepInterval()
	}

	// set up a Postgres connection pool
	pool, err := postgres.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	// the sweeper only expires and releases rows, so messaging, proximity
	// and token infrastructure stay unwired
	uow := postgres.NewUnitOfWork(pool)
	svc := dispatch.NewService(logger, uow,
		postgres.NewTripRepo(),
		postgres.NewAlertRepo(),
		postgres.NewDriverDirectory(),
		postgres.NewVehicleRepo(),
		postgres.NewPlaceResolver(),
		postgres.NewOutboxRepo(),
		nil, nil, nil,
		dispatch.Options{
			AlertTTL:       cfg.AlertTTL(),
			ScheduleBuffer: cfg.ScheduleBuffer(),
			FenceMeters:    float64(cfg.Dispatch.OriginFenceMeters),
		})

	logger.Info(ctx, "service_started",
		fmt.Sprintf("Sweeper started, firing every %s", interval),
		map[string]any{"interval": interval.String()},
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "shutdown_started", "Sweeper shutting down", nil)
			return nil
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, interval)
			if _, err := svc.SweepExpired(sweepCtx); err != nil {
				logger.Error(ctx, "sweep_failed", "Expiry sweep failed", err, nil)
			}
			cancel()
		}
	}
}
