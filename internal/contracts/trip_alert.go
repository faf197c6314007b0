package contracts

import "time"

// TripAlertMessage is published once per alerted driver during a broadcast.
// Routing key: "trip.alert.{driver_id}" on ExchangeTripTopic.
type TripAlertMessage struct {
	AlertID     string     `json:"alert_id"`
	TripID      string     `json:"trip_id"`
	TripNumber  string     `json:"trip_number"`
	DriverID    string     `json:"driver_id"`
	Origin      GeoPoint   `json:"origin"`
	Destination GeoPoint   `json:"destination"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Envelope
}
