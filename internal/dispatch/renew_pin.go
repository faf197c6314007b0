package dispatch

import (
	"context"
	"time"

	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/geo"
	"trip-dispatch/internal/ports"
)

// RenewPin regenerates the start secrets for a CONFIRMED trip. Passenger
// only; the driver is told about the rotation but never sees the pin, the
// passenger reads it to them at pickup.
func (service *dispatchService) RenewPin(ctx context.Context, in ports.RenewPinInput) (ports.RenewPinResult, error) {
	ctx = service.logger.WithTripID(service.logger.WithRequestID(ctx, generateCorrelationID()), in.TripID)
	now := service.now().UTC()

	var result ports.RenewPinResult

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		t, err := service.trips.GetByID(txCtx, in.TripID)
		if err != nil {
			return err
		}
		// an unknown trip and someone else's trip answer identically
		if t == nil || t.PassengerID != in.PassengerID {
			return ErrTripNotFound
		}
		if t.Status != trip.StatusConfirmed || t.DriverID == nil {
			return ErrTripNoLongerAvailable
		}

		pin := geo.GeneratePin()
		qr, err := service.tokens.GenerateStartToken(t.ID, pin)
		if err != nil {
			return err
		}
		expiresAt := pinExpiry(now, t.ScheduledAt)

		if err := service.trips.SetStartSecrets(txCtx, t.ID, pin, expiresAt, qr); err != nil {
			return err
		}

		if err := service.queueNotification(txCtx, *t.DriverID, "pin_renewed",
			"Trip pin renewed",
			"The passenger regenerated the start pin for your trip",
			map[string]any{
				"trip_id":        t.ID,
				"trip_number":    t.TripNumber,
				"pin_expires_at": expiresAt.UTC().Format(time.RFC3339),
			}); err != nil {
			return err
		}

		result = ports.RenewPinResult{
			TripID:       t.ID,
			Pin:          pin,
			PinExpiresAt: expiresAt,
		}
		return nil
	})
	if err != nil {
		service.logger.Error(ctx, "pin_renew_failed", "Failed to renew start pin", err, map[string]any{
			"trip_id": in.TripID,
		})
		return ports.RenewPinResult{}, err
	}

	service.logger.Info(ctx, "pin_renewed", "Start pin regenerated", map[string]any{
		"trip_id":        result.TripID,
		"pin_expires_at": result.PinExpiresAt.UTC().Format(time.RFC3339),
	})
	return result, nil
}
