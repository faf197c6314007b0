package dispatch

import (
	"context"
	"errors"
	"time"

	"trip-dispatch/internal/contracts"
	alertdom "trip-dispatch/internal/domain/alert"
	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/geo"
	"trip-dispatch/internal/observability"
	"trip-dispatch/internal/ports"

	"github.com/google/uuid"
)

// Accept executes the alert-based acceptance protocol inside a single
// transaction. Every pre-check is a best-effort filter; only the conditional
// claim update's row count decides the race.
func (service *dispatchService) Accept(ctx context.Context, in ports.AcceptInput) (ports.AcceptResult, error) {
	correlationID := generateCorrelationID()
	ctx = service.logger.WithRequestID(ctx, correlationID)
	now := service.now().UTC()

	var (
		result        ports.AcceptResult
		cancelAlertID string
	)

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		a, err := service.alerts.GetOpen(txCtx, in.AlertID, in.DriverID, now)
		if err != nil {
			return err
		}
		if a == nil {
			return service.lostRaceOrStaleAlert(txCtx, in.AlertID, in.DriverID)
		}

		result, err = service.acceptTrip(txCtx, a.TripID, in.DriverID, in.VehicleID, a, now, &cancelAlertID)
		return err
	})

	// a disqualifying fault rolls the transaction back, so the alert
	// cancellation it calls for has to be written separately
	service.cancelAlertAfterRollback(ctx, err, cancelAlertID)

	return service.finishAccept(ctx, result, err, in.DriverID)
}

// AcceptDirect is the alert-less acceptance path: it re-derives the same
// checks against the trip itself and cancels every open alert for the trip
// on success.
func (service *dispatchService) AcceptDirect(ctx context.Context, in ports.DirectAcceptInput) (ports.AcceptResult, error) {
	correlationID := generateCorrelationID()
	ctx = service.logger.WithRequestID(ctx, correlationID)
	now := service.now().UTC()

	var result ports.AcceptResult

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		result, err = service.acceptTrip(txCtx, in.TripID, in.DriverID, in.VehicleID, nil, now, nil)
		return err
	})

	return service.finishAccept(ctx, result, err, in.DriverID)
}

// acceptTrip runs steps 2-9 of the acceptance protocol. When a is non-nil
// the disqualifying faults that terminate the offer record the alert id in
// cancelAlertID so the caller can close it after rollback; busy and
// schedule faults leave the alert open since the driver may legitimately
// retry once their situation changes.
func (service *dispatchService) acceptTrip(
	txCtx context.Context,
	tripID, driverID string,
	vehicleID *string,
	a *alertdom.Alert,
	now time.Time,
	cancelAlertID *string,
) (ports.AcceptResult, error) {
	var zero ports.AcceptResult

	markCancel := func() {
		if a != nil && cancelAlertID != nil {
			*cancelAlertID = a.ID
		}
	}

	t, err := service.trips.GetByID(txCtx, tripID)
	if err != nil {
		return zero, err
	}
	if t == nil {
		markCancel()
		return zero, ErrTripNotFound
	}
	if t.Status != trip.StatusPending {
		markCancel()
		return zero, ErrTripNoLongerAvailable
	}
	if t.DriverID != nil && *t.DriverID != driverID {
		markCancel()
		return zero, ErrTripClaimedByOther
	}

	elig, err := service.drivers.GetEligibility(txCtx, driverID)
	if err != nil {
		return zero, err
	}
	if !elig.CanDrive() {
		markCancel()
		return zero, ErrDriverIneligible
	}

	tripCountry, err := service.resolveTripCountry(txCtx, t)
	if err != nil {
		return zero, err
	}
	if tripCountry != "" && elig.Country != "" && tripCountry != elig.Country {
		markCancel()
		return zero, ErrCountryMismatch
	}

	// busy check: an in-progress trip, or a confirmed immediate one, blocks
	// outright; confirmed scheduled trips fall through to the schedule scan
	// which reports the colliding trip instead
	active, err := service.trips.ActiveForDriver(txCtx, driverID, t.ID)
	if err != nil {
		return zero, err
	}
	if active != nil && (active.Status == trip.StatusInProgress || active.ScheduledAt == nil) {
		return zero, ErrDriverAlreadyBusy
	}

	// the held set covers PENDING offers and CONFIRMED commitments, which
	// includes any scheduled trip that passed the busy check above
	held, err := service.trips.HeldByDriver(txCtx, driverID, t.ID)
	if err != nil {
		return zero, err
	}
	if conflictID := findScheduleConflict(t, held, now, service.opts.ScheduleBuffer); conflictID != "" {
		return zero, scheduleConflict(conflictID)
	}

	if vehicleID != nil {
		v, err := service.vehicles.Get(txCtx, *vehicleID)
		if err != nil {
			return zero, err
		}
		if v == nil || v.DriverID != driverID || !v.Approved || !v.Available {
			return zero, ErrVehicleInvalid
		}
	}

	// generate the start secrets up front; the claim stamps them on the trip
	// row in the same conditional update
	pin := geo.GeneratePin()
	qr, err := service.tokens.GenerateStartToken(t.ID, pin)
	if err != nil {
		return zero, err
	}
	expiresAt := pinExpiry(now, t.ScheduledAt)

	claimed, err := service.trips.Claim(txCtx, ports.TripClaim{
		TripID:       t.ID,
		DriverID:     driverID,
		VehicleID:    vehicleID,
		StartPin:     pin,
		PinExpiresAt: expiresAt,
		StartQR:      qr,
		AcceptedAt:   now,
	})
	if err != nil {
		return zero, err
	}
	if !claimed {
		markCancel()
		return zero, ErrTripClaimedByOther
	}

	winningAlertID := uuid.Nil.String()
	if a != nil {
		winningAlertID = a.ID
		if err := service.alerts.MarkAccepted(txCtx, a.ID, now); err != nil {
			return zero, err
		}
	}
	if _, err := service.alerts.CancelSiblings(txCtx, t.ID, winningAlertID); err != nil {
		return zero, err
	}

	if vehicleID != nil {
		if err := service.vehicles.SetAvailable(txCtx, *vehicleID, false); err != nil {
			return zero, err
		}
	}

	if err := service.queueNotification(txCtx, t.PassengerID, "trip_confirmed",
		"Driver assigned",
		"A driver accepted your trip",
		map[string]any{
			"trip_id":     t.ID,
			"trip_number": t.TripNumber,
			"driver_id":   driverID,
			"pin":         pin,
		}); err != nil {
		return zero, err
	}

	return ports.AcceptResult{
		TripID:       t.ID,
		TripNumber:   t.TripNumber,
		Status:       trip.StatusConfirmed.String(),
		DriverID:     driverID,
		AcceptedAt:   now,
		PinExpiresAt: expiresAt,
	}, nil
}

// lostRaceOrStaleAlert decides what a driver whose open-alert lookup came
// back empty should hear. The winner's commit cancels the sibling alerts,
// so a cancelled alert on a trip that went to another driver reports the
// lost race rather than a stale offer.
func (service *dispatchService) lostRaceOrStaleAlert(txCtx context.Context, alertID, driverID string) error {
	a, err := service.alerts.GetByID(txCtx, alertID)
	if err != nil {
		return err
	}
	if a == nil || a.DriverID != driverID || a.Status != alertdom.StatusCancelled {
		return ErrAlertNotFoundOrExpired
	}

	t, err := service.trips.GetByID(txCtx, a.TripID)
	if err != nil {
		return err
	}
	if t != nil && t.DriverID != nil && *t.DriverID != driverID {
		return ErrTripClaimedByOther
	}
	return ErrAlertNotFoundOrExpired
}

// cancelAlertAfterRollback closes the offer a disqualifying fault asked to
// terminate. Idempotent: the repo only touches still-PENDING rows.
func (service *dispatchService) cancelAlertAfterRollback(ctx context.Context, acceptErr error, alertID string) {
	if acceptErr == nil || alertID == "" {
		return
	}
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		return service.alerts.Cancel(txCtx, alertID)
	})
	if err != nil {
		service.logger.Error(ctx, "alert_cancel_failed", "Failed to cancel disqualified alert", err, map[string]any{
			"alert_id": alertID,
		})
	}
}

// finishAccept records metrics, logs, and publishes the confirmation.
func (service *dispatchService) finishAccept(ctx context.Context, result ports.AcceptResult, err error, driverID string) (ports.AcceptResult, error) {
	if err != nil {
		if errors.Is(err, ErrTripClaimedByOther) {
			observability.AcceptsLost.Inc()
		}
		service.logger.Error(ctx, "trip_accept_failed", "Acceptance rejected", err, map[string]any{
			"driver_id": driverID,
		})
		return ports.AcceptResult{}, err
	}

	observability.AcceptsWon.Inc()

	ctx = service.logger.WithTripID(ctx, result.TripID)
	statusMsg := contracts.TripStatusMessage{
		TripID:     result.TripID,
		TripNumber: result.TripNumber,
		Status:     result.Status,
		DriverID:   result.DriverID,
		OccurredAt: result.AcceptedAt,
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

	service.logger.Info(ctx, "trip_accepted", "Trip confirmed for driver", map[string]any{
		"trip_id":     result.TripID,
		"trip_number": result.TripNumber,
		"driver_id":   result.DriverID,
	})
	return result, nil
}
