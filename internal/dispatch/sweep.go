package dispatch

import (
	"context"

	alertdom "trip-dispatch/internal/domain/alert"
	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/observability"
	"trip-dispatch/internal/ports"
)

// SweepExpired expires every overdue PENDING alert and then releases the
// orphaned trips back to the open pool. The release is a compensating pass,
// not part of the expiry write: a trip briefly looking claimed-but-expired
// is fine because acceptance re-validates expiry anyway. Running the sweep
// twice produces the same state as running it once.
func (service *dispatchService) SweepExpired(ctx context.Context) (ports.SweepResult, error) {
	ctx = service.logger.WithRequestID(ctx, generateCorrelationID())
	now := service.now().UTC()
	started := service.now()

	var expired []*alertdom.Alert
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		expired, err = service.alerts.ExpireStale(txCtx, now)
		return err
	})
	if err != nil {
		service.logger.Error(ctx, "sweep_expire_failed", "Failed to expire stale alerts", err, nil)
		return ports.SweepResult{}, err
	}

	released := 0
	for _, a := range expired {
		err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
			t, err := service.trips.GetByID(txCtx, a.TripID)
			if err != nil {
				return err
			}
			// only a still-PENDING trip whose outstanding offer belongs to
			// the expired alert's driver (or nobody) goes back to the pool
			if t == nil || t.Status != trip.StatusPending {
				return nil
			}
			if t.DriverID != nil && *t.DriverID != a.DriverID {
				return nil
			}

			ok, err := service.trips.Release(txCtx, t.ID, a.DriverID)
			if err != nil {
				return err
			}
			if ok {
				released++
			}
			return nil
		})
		if err != nil {
			service.logger.Error(ctx, "sweep_release_failed", "Failed to release orphaned trip", err, map[string]any{
				"trip_id":  a.TripID,
				"alert_id": a.ID,
			})
		}
	}

	observability.AlertsExpired.Add(float64(len(expired)))
	observability.TripsReleased.Add(float64(released))
	observability.SweepDuration.Observe(service.now().Sub(started).Seconds())

	result := ports.SweepResult{
		AlertsExpired: len(expired),
		TripsReleased: released,
	}
	service.logger.Info(ctx, "sweep_completed", "Expiry sweep finished", map[string]any{
		"alerts_expired": result.AlertsExpired,
		"trips_released": result.TripsReleased,
	})
	return result, nil
}
