package contracts

import "time"

// TripStatusMessage announces a trip state change to interested consumers.
// Routing key: "trip.status.{status}" on ExchangeTripTopic.
type TripStatusMessage struct {
	TripID     string    `json:"trip_id"`
	TripNumber string    `json:"trip_number"`
	Status     string    `json:"status"`
	DriverID   string    `json:"driver_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Envelope
}
