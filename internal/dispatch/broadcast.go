package dispatch

import (
	"context"
	"sort"
	"time"

	"trip-dispatch/internal/contracts"
	alertdom "trip-dispatch/internal/domain/alert"
	"trip-dispatch/internal/domain/driver"
	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/observability"
	"trip-dispatch/internal/ports"
)

// Broadcast runs one dispatch round: computes the eligible driver set,
// orders it by proximity to the origin when driver positions are known, and
// creates a time-boxed PENDING alert per driver. Collisions with an already
// open alert for the same (driver, trip) pair are skipped, never fail the
// batch.
func (service *dispatchService) Broadcast(ctx context.Context, in ports.BroadcastInput) (ports.BroadcastResult, error) {
	correlationID := generateCorrelationID()
	ctx = service.logger.WithTripID(service.logger.WithRequestID(ctx, correlationID), in.TripID)
	now := service.now().UTC()

	var (
		result   ports.BroadcastResult
		tripSnap *trip.Trip
		created  []*alertdom.Alert
	)

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		t, err := service.trips.GetByID(txCtx, in.TripID)
		if err != nil {
			return err
		}
		if t == nil {
			return ErrTripNotFound
		}
		if t.Status != trip.StatusPending {
			return ErrTripNoLongerAvailable
		}
		tripSnap = t

		country, err := service.resolveTripCountry(txCtx, t)
		if err != nil {
			return err
		}

		limit := in.Limit
		if limit <= 0 {
			limit = service.opts.BroadcastLimit
		}
		candidates, err := service.drivers.EligibleDrivers(txCtx, ports.EligibleDriversFilter{
			Country:     country,
			VehicleType: in.VehicleType,
			Limit:       limit,
		})
		if err != nil {
			return err
		}

		service.orderByProximity(txCtx, candidates, t.Origin.Latitude, t.Origin.Longitude)

		expiresAt := now.Add(service.opts.AlertTTL)
		for _, c := range candidates {
			a, err := alertdom.New(c.DriverID, t.ID, expiresAt)
			if err != nil {
				return err
			}
			stored, err := service.alerts.Create(txCtx, a)
			if err != nil {
				return err
			}
			created = append(created, stored)
			result.DriverIDs = append(result.DriverIDs, c.DriverID)

			if err := service.queueNotification(txCtx, c.DriverID, "trip_alert",
				"New trip available",
				"A trip near you is waiting for a driver",
				map[string]any{
					"alert_id":   stored.ID,
					"trip_id":    t.ID,
					"expires_at": stored.ExpiresAt.UTC().Format(time.RFC3339),
				}); err != nil {
				return err
			}
		}

		result.TripID = t.ID
		result.AlertsCreated = len(created)
		result.ExpiresAt = expiresAt
		return nil
	})
	if err != nil {
		service.logger.Error(ctx, "broadcast_failed", "Dispatch round failed", err, map[string]any{
			"trip_id": in.TripID,
		})
		return ports.BroadcastResult{}, err
	}

	// post-commit fan-out to the broker; the persisted alerts are the source
	// of truth, a lost message only delays the driver seeing the offer
	for _, a := range created {
		msg := contracts.TripAlertMessage{
			AlertID:    a.ID,
			TripID:     tripSnap.ID,
			TripNumber: tripSnap.TripNumber,
			DriverID:   a.DriverID,
			Origin: contracts.GeoPoint{
				Lat:     tripSnap.Origin.Latitude,
				Lng:     tripSnap.Origin.Longitude,
				Address: tripSnap.Origin.Address,
			},
			Destination: contracts.GeoPoint{
				Lat:     tripSnap.Destination.Latitude,
				Lng:     tripSnap.Destination.Longitude,
				Address: tripSnap.Destination.Address,
			},
			ScheduledAt: tripSnap.ScheduledAt,
			ExpiresAt:   a.ExpiresAt,
			Envelope: contracts.Envelope{
				CorrelationID: correlationID,
				Producer:      "dispatch-service",
				SentAt:        time.Now().UTC(),
			},
		}
		if err := service.publishTripAlert(ctx, msg); err != nil {
			service.logger.Error(ctx, "trip_alert_publish_failed", "Failed to publish trip alert", err, map[string]any{
				"alert_id":  a.ID,
				"driver_id": a.DriverID,
			})
		}
	}

	observability.AlertsBroadcast.Add(float64(result.AlertsCreated))

	service.logger.Info(ctx, "trip_broadcast", "Dispatch round completed", map[string]any{
		"trip_id":        result.TripID,
		"alerts_created": result.AlertsCreated,
		"expires_at":     result.ExpiresAt.UTC().Format(time.RFC3339),
	})
	return result, nil
}

// orderByProximity sorts candidates by distance to the origin using the
// location index; drivers with no recorded position sort last in their
// original order.
func (service *dispatchService) orderByProximity(ctx context.Context, candidates []driver.Candidate, lat, lon float64) {
	if service.locations == nil || len(candidates) < 2 {
		return
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.DriverID
	}

	distances, err := service.locations.Distances(ctx, ids, lat, lon)
	if err != nil {
		service.logger.Error(ctx, "proximity_lookup_failed", "Failed to read driver distances, keeping directory order", err, nil)
		return
	}

	for i := range candidates {
		if d, ok := distances[candidates[i].DriverID]; ok {
			candidates[i].DistanceMeters = d
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		di, dj := candidates[i].DistanceMeters, candidates[j].DistanceMeters
		if di < 0 {
			return false
		}
		if dj < 0 {
			return true
		}
		return di < dj
	})
}
