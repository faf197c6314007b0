package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// TripRepo persists trips using pgx and plain SQL.
type TripRepo struct{}

// NewTripRepo constructs a new TripRepo.
func NewTripRepo() ports.TripRepository {
	return &TripRepo{}
}

const tripColumns = `
	id, trip_number, passenger_id, driver_id, vehicle_id, status,
	scheduled_at, return_scheduled_at, duration_minutes, acceptance_deadline,
	driver_requested_at, driver_accepted_at, driver_rejected_at,
	start_pin, start_pin_expires_at, start_qr,
	started_at, completed_at, cancelled_at, cancellation_reason,
	origin_place_id, origin_address, origin_lat, origin_lon,
	destination_place_id, destination_address, destination_lat, destination_lon,
	created_at, updated_at`

// Create inserts a new trip row and writes an initial TRIP_REQUESTED event.
func (repo *TripRepo) Create(ctx context.Context, t *trip.Trip) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	// insert only the columns we actually have values for at creation time
	err = tx.QueryRow(ctx, `
		INSERT INTO trips (
			trip_number, passenger_id, status,
			scheduled_at, return_scheduled_at, duration_minutes,
			origin_place_id, origin_address, origin_lat, origin_lon,
			destination_place_id, destination_address, destination_lat, destination_lon
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at
	`,
		t.TripNumber,
		t.PassengerID,
		t.Status.String(), // typically "PENDING"
		t.ScheduledAt,
		t.ReturnScheduledAt,
		t.DurationMinutes,
		t.Origin.PlaceID, t.Origin.Address, t.Origin.Latitude, t.Origin.Longitude,
		t.Destination.PlaceID, t.Destination.Address, t.Destination.Latitude, t.Destination.Longitude,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return err
	}

	return insertTripEvent(ctx, tx, t.ID, "TRIP_REQUESTED", map[string]any{
		"new_status":   t.Status.String(),
		"scheduled_at": t.ScheduledAt,
	})
}

// GetByID fetches a trip by primary key (uuid).
func (repo *TripRepo) GetByID(ctx context.Context, id string) (*trip.Trip, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, id)
	out, err := scanTrip(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

// Claim is the conditional acceptance update. The WHERE clause is the whole
// point: only a PENDING trip with no binding driver (or an outstanding offer
// to this very driver) can be claimed, and the affected-row count decides
// the race.
func (repo *TripRepo) Claim(ctx context.Context, claim ports.TripClaim) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE trips
		SET driver_id = $1,
		    vehicle_id = COALESCE($2, vehicle_id),
		    status = 'CONFIRMED',
		    driver_accepted_at = $3,
		    start_pin = $4,
		    start_pin_expires_at = $5,
		    start_qr = $6,
		    updated_at = now()
		WHERE id = $7
		  AND status = 'PENDING'
		  AND (driver_id IS NULL OR driver_id = $1)
	`, claim.DriverID, claim.VehicleID, claim.AcceptedAt,
		claim.StartPin, claim.PinExpiresAt, claim.StartQR, claim.TripID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	// insert TRIP_CONFIRMED event
	eventData := map[string]any{
		"old_status":  "PENDING",
		"new_status":  "CONFIRMED",
		"driver_id":   claim.DriverID,
		"accepted_at": claim.AcceptedAt.UTC().Format(time.RFC3339),
	}
	if claim.VehicleID != nil {
		eventData["vehicle_id"] = *claim.VehicleID
	}
	if err := insertTripEvent(ctx, tx, claim.TripID, "TRIP_CONFIRMED", eventData); err != nil {
		return false, err
	}

	return true, nil
}

// ActiveForDriver fetches the driver's current CONFIRMED or IN_PROGRESS trip.
func (repo *TripRepo) ActiveForDriver(ctx context.Context, driverID, excludeTripID string) (*trip.Trip, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		SELECT `+tripColumns+`
		FROM trips
		WHERE driver_id = $1
		  AND id <> $2
		  AND status IN ('CONFIRMED', 'IN_PROGRESS')
		ORDER BY created_at DESC
		LIMIT 1
	`, driverID, excludeTripID)

	out, err := scanTrip(row)
	if err != nil {
		// no active trip found
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return out, nil
}

// HeldByDriver lists the driver's other PENDING and CONFIRMED trips for
// schedule-conflict scanning.
func (repo *TripRepo) HeldByDriver(ctx context.Context, driverID, excludeTripID string) ([]*trip.Trip, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+tripColumns+`
		FROM trips
		WHERE driver_id = $1
		  AND id <> $2
		  AND status IN ('PENDING', 'CONFIRMED')
		ORDER BY created_at
	`, driverID, excludeTripID)
	if err != nil {
		return nil, fmt.Errorf("query trips held by driver: %w", err)
	}
	defer rows.Close()

	var trips []*trip.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return trips, nil
}

// Start stamps started_at and moves the trip to IN_PROGRESS.
func (repo *TripRepo) Start(ctx context.Context, tripID string, startedAt time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	// lock the row and read current status to enforce transitions
	var current string
	err = tx.QueryRow(ctx, `
		SELECT status FROM trips WHERE id = $1 FOR UPDATE
	`, tripID).Scan(&current)
	if err != nil {
		return err
	}

	// idempotent success
	if current == trip.StatusInProgress.String() {
		return nil
	}
	if current != trip.StatusConfirmed.String() {
		return errors.New("start is only allowed from CONFIRMED")
	}

	_, err = tx.Exec(ctx, `
		UPDATE trips
		SET status = 'IN_PROGRESS',
		    started_at = $1,
		    updated_at = now()
		WHERE id = $2
	`, startedAt, tripID)
	if err != nil {
		return err
	}

	return insertTripEvent(ctx, tx, tripID, "TRIP_STARTED", map[string]any{
		"old_status": current,
		"new_status": "IN_PROGRESS",
		"started_at": startedAt.UTC().Format(time.RFC3339),
	})
}

// Complete stamps completed_at and moves the trip to COMPLETED.
func (repo *TripRepo) Complete(ctx context.Context, tripID string, completedAt time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	var current string
	err = tx.QueryRow(ctx, `
		SELECT status FROM trips WHERE id = $1 FOR UPDATE
	`, tripID).Scan(&current)
	if err != nil {
		return err
	}

	// idempotent success
	if current == trip.StatusCompleted.String() {
		return nil
	}
	if current != trip.StatusInProgress.String() {
		return errors.New("complete is only allowed from IN_PROGRESS")
	}

	_, err = tx.Exec(ctx, `
		UPDATE trips
		SET status = 'COMPLETED',
		    completed_at = $1,
		    updated_at = now()
		WHERE id = $2
	`, completedAt, tripID)
	if err != nil {
		return err
	}

	return insertTripEvent(ctx, tx, tripID, "TRIP_COMPLETED", map[string]any{
		"old_status":   current,
		"new_status":   "COMPLETED",
		"completed_at": completedAt.UTC().Format(time.RFC3339),
	})
}

// Release clears the outstanding offer from a still-PENDING trip. The
// driver_id guard keeps a stale sweep from clobbering a newer offer.
func (repo *TripRepo) Release(ctx context.Context, tripID, driverID string) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE trips
		SET driver_id = NULL,
		    driver_requested_at = NULL,
		    acceptance_deadline = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'PENDING'
		  AND (driver_id IS NULL OR driver_id = $2)
	`, tripID, driverID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err := insertTripEvent(ctx, tx, tripID, "TRIP_RELEASED", map[string]any{
		"released_driver_id": driverID,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// SetStartSecrets overwrites pin/QR on renewal. Only a CONFIRMED trip with a
// driver can have its secrets rotated.
func (repo *TripRepo) SetStartSecrets(ctx context.Context, tripID, pin string, pinExpiresAt time.Time, qr string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE trips
		SET start_pin = $1,
		    start_pin_expires_at = $2,
		    start_qr = $3,
		    updated_at = now()
		WHERE id = $4
		  AND status = 'CONFIRMED'
		  AND driver_id IS NOT NULL
	`, pin, pinExpiresAt, qr, tripID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("pin renewal requires a CONFIRMED trip with a driver")
	}

	return insertTripEvent(ctx, tx, tripID, "PIN_RENEWED", map[string]any{
		"pin_expires_at": pinExpiresAt.UTC().Format(time.RFC3339),
	})
}

// --- helpers ---

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrip(row rowScanner) (*trip.Trip, error) {
	var out trip.Trip
	var status string

	err := row.Scan(
		&out.ID, &out.TripNumber, &out.PassengerID, &out.DriverID, &out.VehicleID, &status,
		&out.ScheduledAt, &out.ReturnScheduledAt, &out.DurationMinutes, &out.AcceptanceDeadline,
		&out.DriverRequestedAt, &out.DriverAcceptedAt, &out.DriverRejectedAt,
		&out.StartPin, &out.StartPinExpiresAt, &out.StartQR,
		&out.StartedAt, &out.CompletedAt, &out.CancelledAt, &out.CancellationReason,
		&out.Origin.PlaceID, &out.Origin.Address, &out.Origin.Latitude, &out.Origin.Longitude,
		&out.Destination.PlaceID, &out.Destination.Address, &out.Destination.Latitude, &out.Destination.Longitude,
		&out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	out.Status = trip.Status(status)
	return &out, nil
}

// insertTripEvent writes a row into trip_events with encoded event_data.
func insertTripEvent(ctx context.Context, tx pgx.Tx, tripID, eventType string, eventData any) error {
	body, err := json.Marshal(eventData)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO trip_events (trip_id, event_type, event_data)
		VALUES ($1, $2, $3::jsonb)
	`, tripID, eventType, string(body))
	return err
}
