package ports

import (
	"context"
	"time"
)

// ----- DTOs for the Dispatch Service -----

// PlaceInput is one endpoint of a requested trip.
type PlaceInput struct {
	PlaceID   *string
	Address   string
	Latitude  float64
	Longitude float64
}

// CreateTripInput registers a new PENDING trip ready for dispatch.
type CreateTripInput struct {
	PassengerID       string
	Origin            PlaceInput
	Destination       PlaceInput
	ScheduledAt       *time.Time // nil means "immediate"
	ReturnScheduledAt *time.Time // round trips only
	DurationMinutes   int
}

// CreateTripResult identifies the created trip.
type CreateTripResult struct {
	TripID     string `json:"trip_id"`
	TripNumber string `json:"trip_number"`
	Status     string `json:"status"` // "PENDING"
}

// BroadcastInput selects the trip to offer and optional candidate filters.
type BroadcastInput struct {
	TripID      string
	VehicleType string // preferred type; empty = any
	Limit       int    // max drivers per dispatch round; 0 = default
}

// BroadcastResult summarizes one dispatch round.
type BroadcastResult struct {
	TripID        string    `json:"trip_id"`
	AlertsCreated int       `json:"alerts_created"`
	DriverIDs     []string  `json:"driver_ids"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// AcceptInput is the alert-based acceptance request.
type AcceptInput struct {
	AlertID   string
	DriverID  string
	VehicleID *string
}

// DirectAcceptInput is the alert-less acceptance request.
type DirectAcceptInput struct {
	TripID    string
	DriverID  string
	VehicleID *string
}

// AcceptResult is returned by a winning acceptance.
type AcceptResult struct {
	TripID       string    `json:"trip_id"`
	TripNumber   string    `json:"trip_number"`
	Status       string    `json:"status"` // "CONFIRMED"
	DriverID     string    `json:"driver_id"`
	AcceptedAt   time.Time `json:"accepted_at"`
	PinExpiresAt time.Time `json:"pin_expires_at"`
}

// RejectInput declines one alert; the trip stays open for everyone else.
type RejectInput struct {
	AlertID  string
	DriverID string
	Reason   *string
}

// RejectResult acknowledges the rejection.
type RejectResult struct {
	AlertID string `json:"alert_id"`
	Status  string `json:"status"` // "REJECTED"
}

// StartInput gates CONFIRMED -> IN_PROGRESS. Exactly one of Pin or QR must
// be supplied; coordinates are optional (no geofence check when absent).
type StartInput struct {
	TripID    string
	DriverID  string
	Pin       string
	QR        string
	Latitude  *float64
	Longitude *float64
}

// StartResult is returned when the trip begins.
type StartResult struct {
	TripID    string    `json:"trip_id"`
	Status    string    `json:"status"` // "IN_PROGRESS"
	StartedAt time.Time `json:"started_at"`
}

// CompleteInput gates IN_PROGRESS -> COMPLETED.
type CompleteInput struct {
	TripID    string
	DriverID  string
	Latitude  *float64
	Longitude *float64
}

// CompleteResult is returned when the trip finishes.
type CompleteResult struct {
	TripID      string    `json:"trip_id"`
	Status      string    `json:"status"` // "COMPLETED"
	CompletedAt time.Time `json:"completed_at"`
}

// RenewPinInput regenerates the start secrets (passenger-only operation).
type RenewPinInput struct {
	TripID      string
	PassengerID string
}

// RenewPinResult carries the fresh pin back to the passenger surface.
type RenewPinResult struct {
	TripID       string    `json:"trip_id"`
	Pin          string    `json:"pin"`
	PinExpiresAt time.Time `json:"pin_expires_at"`
}

// SweepResult reports one expiry pass.
type SweepResult struct {
	AlertsExpired int `json:"alerts_expired"`
	TripsReleased int `json:"trips_released"`
}

// ----- Dispatch Service Interface -----

// DispatchService exposes the boundary of the dispatch and acceptance
// engine. Every operation runs its own transaction; callers get either a
// success payload or a typed fault.
type DispatchService interface {
	CreateTrip(ctx context.Context, in CreateTripInput) (CreateTripResult, error)
	Broadcast(ctx context.Context, in BroadcastInput) (BroadcastResult, error)
	Accept(ctx context.Context, in AcceptInput) (AcceptResult, error)
	AcceptDirect(ctx context.Context, in DirectAcceptInput) (AcceptResult, error)
	Reject(ctx context.Context, in RejectInput) (RejectResult, error)
	Start(ctx context.Context, in StartInput) (StartResult, error)
	Complete(ctx context.Context, in CompleteInput) (CompleteResult, error)
	RenewPin(ctx context.Context, in RenewPinInput) (RenewPinResult, error)
	SweepExpired(ctx context.Context) (SweepResult, error)
}
