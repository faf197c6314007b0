package ports

import (
	"context"
	"time"

	"trip-dispatch/internal/domain/alert"
	"trip-dispatch/internal/domain/driver"
	"trip-dispatch/internal/domain/trip"
)

// UnitOfWork interface is used to manage transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TripClaim carries everything the conditional acceptance update stamps on
// the trip row in one statement.
type TripClaim struct {
	TripID       string
	DriverID     string
	VehicleID    *string
	StartPin     string
	PinExpiresAt time.Time
	StartQR      string
	AcceptedAt   time.Time
}

// TripRepository defines the methods for managing trip data.
type TripRepository interface {
	Create(ctx context.Context, t *trip.Trip) error
	GetByID(ctx context.Context, id string) (*trip.Trip, error)

	// Claim executes the single atomicity anchor of the acceptance protocol:
	//
	//   UPDATE trips SET driver_id, vehicle_id, status='CONFIRMED', ...
	//   WHERE id = $trip AND status = 'PENDING'
	//     AND (driver_id IS NULL OR driver_id = $driver)
	//
	// It reports claimed=false when the affected-row count is zero, meaning a
	// concurrent acceptance won the race.
	Claim(ctx context.Context, claim TripClaim) (claimed bool, err error)

	// ActiveForDriver returns the driver's current CONFIRMED or IN_PROGRESS
	// trip, excluding excludeTripID; nil when the driver is free.
	ActiveForDriver(ctx context.Context, driverID, excludeTripID string) (*trip.Trip, error)

	// HeldByDriver lists the driver's other PENDING and CONFIRMED trips for
	// schedule-conflict scanning.
	HeldByDriver(ctx context.Context, driverID, excludeTripID string) ([]*trip.Trip, error)

	Start(ctx context.Context, tripID string, startedAt time.Time) error
	Complete(ctx context.Context, tripID string, completedAt time.Time) error

	// Release clears the outstanding offer (driver_id, driver_requested_at,
	// acceptance_deadline) from a still-PENDING trip. The driverID guard
	// keeps a sweeper from clobbering a newer offer; reports whether a row
	// was touched.
	Release(ctx context.Context, tripID, driverID string) (bool, error)

	// SetStartSecrets overwrites pin/QR on PIN renewal.
	SetStartSecrets(ctx context.Context, tripID, pin string, pinExpiresAt time.Time, qr string) error
}

// AlertRepository defines the methods for managing driver alert data. It is
// the only owner of `driver_alerts` rows.
type AlertRepository interface {
	// Create inserts a PENDING alert. Idempotent: when an open alert for the
	// same (driver, trip) pair already exists it is returned unchanged.
	Create(ctx context.Context, a *alert.Alert) (*alert.Alert, error)

	// GetOpen loads the alert only when it matches the driver and is still
	// PENDING and unexpired at now; nil otherwise.
	GetOpen(ctx context.Context, alertID, driverID string, now time.Time) (*alert.Alert, error)

	GetByID(ctx context.Context, alertID string) (*alert.Alert, error)
	ListForTrip(ctx context.Context, tripID string) ([]*alert.Alert, error)

	MarkAccepted(ctx context.Context, alertID string, at time.Time) error
	MarkRejected(ctx context.Context, alertID string, reason *string, at time.Time) error
	Cancel(ctx context.Context, alertID string) error

	// CancelSiblings cancels every other PENDING alert for the trip and
	// returns how many rows were touched.
	CancelSiblings(ctx context.Context, tripID, winningAlertID string) (int, error)

	// ExpireStale marks every PENDING alert with expires_at < now as EXPIRED
	// and returns the affected alerts for the release compensation.
	ExpireStale(ctx context.Context, now time.Time) ([]*alert.Alert, error)
}

// EligibleDriversFilter narrows the dispatch candidate query.
type EligibleDriversFilter struct {
	Country     string // empty = any
	VehicleType string // empty = any
	Limit       int
}

// DriverDirectory is the role/identity lookup collaborator. Snapshots are
// always read fresh; implementations must not cache across calls.
type DriverDirectory interface {
	GetEligibility(ctx context.Context, driverID string) (driver.Eligibility, error)

	// EligibleDrivers returns active DRIVER-role holders with at least one
	// available approved vehicle and no CONFIRMED/IN_PROGRESS trip.
	EligibleDrivers(ctx context.Context, f EligibleDriversFilter) ([]driver.Candidate, error)
}

// Vehicle is the minimal external-entity view the acceptance path validates.
type Vehicle struct {
	ID        string
	DriverID  string
	Approved  bool
	Available bool
}

// VehicleRepository toggles vehicle availability as a side effect of
// acceptance and completion. The full vehicle lifecycle lives elsewhere.
type VehicleRepository interface {
	Get(ctx context.Context, vehicleID string) (*Vehicle, error)
	SetAvailable(ctx context.Context, vehicleID string, available bool) error
}

// PlaceResolver resolves a place reference to an ISO country code. Empty
// string means unknown.
type PlaceResolver interface {
	ResolveCountry(ctx context.Context, placeID string) (string, error)
}

// Notification is one queued side-effect message for a user.
type Notification struct {
	UserID   string         `json:"user_id"`
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Data     map[string]any `json:"data,omitempty"`
	Priority string         `json:"priority,omitempty"`
}

// Notifier delivers a notification. Fire-and-forget from the core's point of
// view: failures are logged by the dispatcher, never propagated into the
// operation that queued the message.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// OutboxRepository persists pending notifications in the same transaction as
// the state change that caused them.
type OutboxRepository interface {
	Append(ctx context.Context, n Notification) error
	PendingBatch(ctx context.Context, limit int) ([]OutboxEntry, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, reason string) error
}

// OutboxEntry is a persisted notification command awaiting delivery.
type OutboxEntry struct {
	ID           string
	Notification Notification
	CreatedAt    time.Time
	Attempts     int
}

// LocationIndex is the last-known driver position store used to order
// broadcast candidates by proximity.
type LocationIndex interface {
	Update(ctx context.Context, driverID string, lat, lon float64) error

	// Distances returns meters from each known driver to the given point.
	// Drivers with no recorded position are absent from the result.
	Distances(ctx context.Context, driverIDs []string, lat, lon float64) (map[string]float64, error)
}
