package dispatch

import (
	"context"
	"time"

	"trip-dispatch/internal/contracts"
	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/geo"
	"trip-dispatch/internal/ports"
)

// Complete gates IN_PROGRESS -> COMPLETED behind the destination geofence,
// frees the assigned vehicle, and hands the passenger a payment token for
// the external settlement flow.
func (service *dispatchService) Complete(ctx context.Context, in ports.CompleteInput) (ports.CompleteResult, error) {
	ctx = service.logger.WithTripID(service.logger.WithRequestID(ctx, generateCorrelationID()), in.TripID)
	now := service.now().UTC()

	var result ports.CompleteResult

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		t, err := service.trips.GetByID(txCtx, in.TripID)
		if err != nil {
			return err
		}
		if t == nil {
			return ErrTripNotFound
		}
		if t.Status != trip.StatusInProgress {
			return ErrTripNoLongerAvailable
		}
		if t.DriverID == nil || *t.DriverID != in.DriverID {
			return ErrTripClaimedByOther
		}

		if in.Latitude != nil && in.Longitude != nil {
			dist := geo.DistanceMeters(*in.Latitude, *in.Longitude, t.Destination.Latitude, t.Destination.Longitude)
			if dist > service.opts.FenceMeters {
				return tooFar(ErrTooFarFromDestination, dist, service.opts.FenceMeters)
			}
		}

		if err := service.trips.Complete(txCtx, t.ID, now); err != nil {
			return err
		}

		if t.VehicleID != nil {
			if err := service.vehicles.SetAvailable(txCtx, *t.VehicleID, true); err != nil {
				return err
			}
		}

		data := map[string]any{
			"trip_id":     t.ID,
			"trip_number": t.TripNumber,
		}
		if t.StartPin != nil {
			paymentToken, tokenErr := service.tokens.GeneratePaymentToken(t.ID, *t.StartPin)
			if tokenErr != nil {
				return tokenErr
			}
			data["payment_token"] = paymentToken
		}
		if err := service.queueNotification(txCtx, t.PassengerID, "trip_completed",
			"Trip completed",
			"Your trip has finished",
			data); err != nil {
			return err
		}

		result = ports.CompleteResult{
			TripID:      t.ID,
			Status:      trip.StatusCompleted.String(),
			CompletedAt: now,
		}
		return nil
	})
	if err != nil {
		service.logger.Error(ctx, "trip_complete_failed", "Completion rejected", err, map[string]any{
			"trip_id":   in.TripID,
			"driver_id": in.DriverID,
		})
		return ports.CompleteResult{}, err
	}

	statusMsg := contracts.TripStatusMessage{
		TripID:     result.TripID,
		Status:     result.Status,
		DriverID:   in.DriverID,
		OccurredAt: result.CompletedAt,
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

	service.logger.Info(ctx, "trip_completed", "Trip finished", map[string]any{
		"trip_id":   result.TripID,
		"driver_id": in.DriverID,
	})
	return result, nil
}
