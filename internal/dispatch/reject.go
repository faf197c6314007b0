package dispatch

import (
	"context"

	alertdom "trip-dispatch/internal/domain/alert"
	"trip-dispatch/internal/ports"
)

// Reject marks the driver's alert REJECTED. Informational only: the trip
// stays open for every other driver through their own alerts or future
// dispatch rounds.
func (service *dispatchService) Reject(ctx context.Context, in ports.RejectInput) (ports.RejectResult, error) {
	ctx = service.logger.WithRequestID(ctx, generateCorrelationID())
	now := service.now().UTC()

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		a, err := service.alerts.GetOpen(txCtx, in.AlertID, in.DriverID, now)
		if err != nil {
			return err
		}
		if a == nil {
			return ErrAlertNotFoundOrExpired
		}
		return service.alerts.MarkRejected(txCtx, a.ID, in.Reason, now)
	})
	if err != nil {
		service.logger.Error(ctx, "alert_reject_failed", "Failed to reject alert", err, map[string]any{
			"alert_id":  in.AlertID,
			"driver_id": in.DriverID,
		})
		return ports.RejectResult{}, err
	}

	service.logger.Info(ctx, "alert_rejected", "Driver declined the offer", map[string]any{
		"alert_id":  in.AlertID,
		"driver_id": in.DriverID,
	})
	return ports.RejectResult{
		AlertID: in.AlertID,
		Status:  alertdom.StatusRejected.String(),
	}, nil
}
