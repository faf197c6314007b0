package trip

import (
	"errors"
	"strings"
	"time"
)

// Place is a pickup or dropoff location. Country codes are resolved through
// the place reference, not stored here.
type Place struct {
	PlaceID   *string
	Address   string
	Latitude  float64
	Longitude float64
}

// Trip is the domain entity corresponding to the `trips` table.
type Trip struct {
	// Identity & audit
	ID         string
	TripNumber string
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Actors
	PassengerID string
	DriverID    *string // nil until accepted; a value on a PENDING trip is an outstanding offer, not a commitment
	VehicleID   *string

	// Core state
	Status Status

	// Scheduling
	ScheduledAt        *time.Time // nil means "immediate"
	ReturnScheduledAt  *time.Time // round trips only
	DurationMinutes    int
	AcceptanceDeadline *time.Time

	// Acceptance timestamps
	DriverRequestedAt *time.Time
	DriverAcceptedAt  *time.Time
	DriverRejectedAt  *time.Time

	// Start verification
	StartPin          *string
	StartPinExpiresAt *time.Time
	StartQR           *string

	// Lifecycle timestamps
	StartedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time

	CancellationReason *string

	// Endpoints
	Origin      Place
	Destination Place
}

var (
	ErrPassengerRequired       = errors.New("passenger id is required")
	ErrTripNumberRequired      = errors.New("trip number is required")
	ErrInvalidStatusTransition = errors.New("invalid trip status transition")
	ErrDriverRequired          = errors.New("driver id is required")
	ErrNoDriverAssigned        = errors.New("no driver assigned")
	ErrStartPinMissing         = errors.New("trip has no start pin")
)

// NewTrip creates a new trip in PENDING state.
func NewTrip(tripNumber, passengerID string, origin, destination Place, scheduledAt *time.Time, durationMinutes int) (*Trip, error) {
	if tripNumber = strings.TrimSpace(tripNumber); tripNumber == "" {
		return nil, ErrTripNumberRequired
	}
	if passengerID = strings.TrimSpace(passengerID); passengerID == "" {
		return nil, ErrPassengerRequired
	}
	if durationMinutes < 1 {
		durationMinutes = 1
	}

	now := time.Now().UTC()
	return &Trip{
		TripNumber:      tripNumber,
		CreatedAt:       now,
		UpdatedAt:       now,
		PassengerID:     passengerID,
		Status:          StatusPending,
		ScheduledAt:     scheduledAt,
		DurationMinutes: durationMinutes,
		Origin:          origin,
		Destination:     destination,
	}, nil
}

// EffectiveStart is the instant the trip occupies the driver from: the
// scheduled time, or "now" for immediate trips.
func (t *Trip) EffectiveStart(now time.Time) time.Time {
	if t.ScheduledAt != nil {
		return *t.ScheduledAt
	}
	return now
}

// Window returns the full time window the trip occupies, extended to the
// return leg for round trips.
func (t *Trip) Window(now time.Time) (start, end time.Time) {
	start = t.EffectiveStart(now)
	end = start.Add(time.Duration(t.DurationMinutes) * time.Minute)
	if t.ReturnScheduledAt != nil && t.ReturnScheduledAt.After(end) {
		end = t.ReturnScheduledAt.Add(time.Duration(t.DurationMinutes) * time.Minute)
	}
	return start, end
}

// Confirm binds the winning driver and moves PENDING -> CONFIRMED.
func (t *Trip) Confirm(driverID string, vehicleID *string) error {
	if driverID == "" {
		return ErrDriverRequired
	}
	if !t.Status.CanTransitionTo(StatusConfirmed) {
		return ErrInvalidStatusTransition
	}

	now := time.Now().UTC()
	t.DriverID = &driverID
	t.VehicleID = vehicleID
	t.DriverAcceptedAt = &now
	t.setStatus(StatusConfirmed)
	return nil
}

// Start transitions CONFIRMED -> IN_PROGRESS. A start pin must have been
// issued beforehand.
func (t *Trip) Start() error {
	if t.DriverID == nil || *t.DriverID == "" {
		return ErrNoDriverAssigned
	}
	if t.StartPin == nil || *t.StartPin == "" {
		return ErrStartPinMissing
	}
	if !t.Status.CanTransitionTo(StatusInProgress) {
		return ErrInvalidStatusTransition
	}

	now := time.Now().UTC()
	t.StartedAt = &now
	t.setStatus(StatusInProgress)
	return nil
}

// Complete transitions IN_PROGRESS -> COMPLETED.
func (t *Trip) Complete() error {
	if !t.Status.CanTransitionTo(StatusCompleted) {
		return ErrInvalidStatusTransition
	}

	now := time.Now().UTC()
	t.CompletedAt = &now
	t.setStatus(StatusCompleted)
	return nil
}

// Release clears the outstanding offer and returns the trip to the open
// pool. Used by the expiry sweeper and reassignment paths.
func (t *Trip) Release() error {
	if t.Status != StatusPending && !t.Status.CanTransitionTo(StatusPending) {
		return ErrInvalidStatusTransition
	}

	t.DriverID = nil
	t.DriverRequestedAt = nil
	t.AcceptanceDeadline = nil
	t.setStatus(StatusPending)
	return nil
}

// Cancel transitions to CANCELLED (if not terminal).
func (t *Trip) Cancel(reason string) error {
	if t.Status.Terminal() || t.Status == StatusCompleted {
		return ErrInvalidStatusTransition
	}

	now := time.Now().UTC()
	t.CancelledAt = &now
	if rs := strings.TrimSpace(reason); rs != "" {
		t.CancellationReason = &rs
	}
	t.setStatus(StatusCancelled)
	return nil
}

// ----- internal helpers -----

func (t *Trip) setStatus(status Status) {
	t.Status = status
	t.touch()
}

func (t *Trip) touch() {
	t.UpdatedAt = time.Now().UTC()
}
