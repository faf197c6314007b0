package dispatch

import (
	"context"
	"time"

	"trip-dispatch/internal/contracts"
	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/geo"
	"trip-dispatch/internal/ports"
)

// earlyStartWindow is how long before the scheduled instant a start secret
// becomes usable.
const earlyStartWindow = 15 * time.Minute

// Start gates CONFIRMED -> IN_PROGRESS behind the PIN/QR secret, the
// scheduled-time window, and the origin geofence.
func (service *dispatchService) Start(ctx context.Context, in ports.StartInput) (ports.StartResult, error) {
	ctx = service.logger.WithTripID(service.logger.WithRequestID(ctx, generateCorrelationID()), in.TripID)
	now := service.now().UTC()

	var result ports.StartResult

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		t, err := service.trips.GetByID(txCtx, in.TripID)
		if err != nil {
			return err
		}
		if t == nil {
			return ErrTripNotFound
		}
		if t.Status != trip.StatusConfirmed {
			return ErrTripNoLongerAvailable
		}
		if t.DriverID == nil || *t.DriverID != in.DriverID {
			return ErrTripClaimedByOther
		}
		if t.StartPin == nil || *t.StartPin == "" {
			return ErrPinOrQrInvalid
		}

		// a scheduled trip's secret is not usable more than 15 minutes early
		if t.ScheduledAt != nil && now.Before(t.ScheduledAt.Add(-earlyStartWindow)) {
			return ErrTooEarlyForScheduledPin
		}
		if t.StartPinExpiresAt != nil && now.After(*t.StartPinExpiresAt) {
			return ErrPinExpired
		}

		switch {
		case in.QR != "":
			if !service.tokens.ValidateStartToken(in.QR, t.ID, *t.StartPin, geo.StartTokenMaxAge) {
				return ErrPinOrQrInvalid
			}
		case in.Pin != "":
			if in.Pin != *t.StartPin {
				return ErrPinOrQrInvalid
			}
		default:
			return ErrPinOrQrInvalid
		}

		if in.Latitude != nil && in.Longitude != nil {
			dist := geo.DistanceMeters(*in.Latitude, *in.Longitude, t.Origin.Latitude, t.Origin.Longitude)
			if dist > service.opts.FenceMeters {
				return tooFar(ErrTooFarFromOrigin, dist, service.opts.FenceMeters)
			}
		}

		if err := service.trips.Start(txCtx, t.ID, now); err != nil {
			return err
		}

		if err := service.queueNotification(txCtx, t.PassengerID, "trip_started",
			"Trip started",
			"Your driver has started the trip",
			map[string]any{
				"trip_id":     t.ID,
				"trip_number": t.TripNumber,
			}); err != nil {
			return err
		}

		result = ports.StartResult{
			TripID:    t.ID,
			Status:    trip.StatusInProgress.String(),
			StartedAt: now,
		}
		return nil
	})
	if err != nil {
		service.logger.Error(ctx, "trip_start_failed", "Start verification failed", err, map[string]any{
			"trip_id":   in.TripID,
			"driver_id": in.DriverID,
		})
		return ports.StartResult{}, err
	}

	statusMsg := contracts.TripStatusMessage{
		TripID:     result.TripID,
		Status:     result.Status,
		DriverID:   in.DriverID,
		OccurredAt: result.StartedAt,
		Envelope: contracts.Envelope{
			Producer: "dispatch-service",
			SentAt:   time.Now().UTC(),
		},
	}
	if pubErr := service.publishTripStatus(ctx, statusMsg); pubErr != nil {
		service.logger.Error(ctx, "trip_status_publish_failed", "Failed to publish trip status to RabbitMQ", pubErr, map[string]any{
			"trip_id": result.TripID,
		})
	}

	service.logger.Info(ctx, "trip_started", "Trip is now in progress", map[string]any{
		"trip_id":   result.TripID,
		"driver_id": in.DriverID,
	})
	return result, nil
}
