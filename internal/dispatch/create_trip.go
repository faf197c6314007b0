package dispatch

import (
	"context"
	"fmt"
	"time"

	"trip-dispatch/internal/contracts"
	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/ports"
)

// CreateTrip registers a new PENDING trip ready for dispatch.
func (service *dispatchService) CreateTrip(ctx context.Context, in ports.CreateTripInput) (ports.CreateTripResult, error) {
	var (
		tripID        string
		tripNumber    = generateTripNumber()
		correlationID = generateCorrelationID()
	)
	ctx = service.logger.WithRequestID(ctx, correlationID)

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		t, err := trip.NewTrip(
			tripNumber,
			in.PassengerID,
			trip.Place{
				PlaceID:   in.Origin.PlaceID,
				Address:   in.Origin.Address,
				Latitude:  in.Origin.Latitude,
				Longitude: in.Origin.Longitude,
			},
			trip.Place{
				PlaceID:   in.Destination.PlaceID,
				Address:   in.Destination.Address,
				Latitude:  in.Destination.Latitude,
				Longitude: in.Destination.Longitude,
			},
			in.ScheduledAt,
			in.DurationMinutes,
		)
		if err != nil {
			return err
		}
		t.ReturnScheduledAt = in.ReturnScheduledAt

		if err := service.trips.Create(txCtx, t); err != nil {
			return err
		}
		tripID = t.ID
		return nil
	})
	if err != nil {
		service.logger.Error(ctx, "trip_create_failed", "Failed to create trip", err, map[string]any{
			"passenger_id": in.PassengerID,
			"trip_number":  tripNumber,
		})
		return ports.CreateTripResult{}, err
	}

	// announce the new trip; broadcast rounds are triggered separately
	statusMsg := contracts.TripStatusMessage{
		TripID:     tripID,
		TripNumber: tripNumber,
		Status:     trip.StatusPending.String(),
		OccurredAt: time.Now().UTC(),
		Envelope: contracts.Envelope{
			CorrelationID: correlationID,
			Producer:      "dispatch-service",
			SentAt:        time.Now().UTC(),
		},
	}
	if err := service.publishTripStatus(ctx, statusMsg); err != nil {
		service.logger.Error(ctx, "trip_status_publish_failed", "Failed to publish trip status to RabbitMQ", err, map[string]any{
			"trip_id": tripID,
		})
	}

	service.logger.Info(service.logger.WithTripID(ctx, tripID), "trip_created", fmt.Sprintf("Trip %s created", tripNumber), map[string]any{
		"trip_id":      tripID,
		"trip_number":  tripNumber,
		"passenger_id": in.PassengerID,
	})

	return ports.CreateTripResult{
		TripID:     tripID,
		TripNumber: tripNumber,
		Status:     trip.StatusPending.String(),
	}, nil
}
