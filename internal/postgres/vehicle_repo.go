package postgres

import (
	"context"
	"errors"

	"trip-dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// VehicleRepo toggles availability on externally-owned vehicle rows.
type VehicleRepo struct{}

// NewVehicleRepo constructs a new VehicleRepo.
func NewVehicleRepo() ports.VehicleRepository {
	return &VehicleRepo{}
}

// Get returns the acceptance-relevant view of one vehicle; nil when absent.
func (repo *VehicleRepo) Get(ctx context.Context, vehicleID string) (*ports.Vehicle, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var out ports.Vehicle
	err = tx.QueryRow(ctx, `
		SELECT id, driver_id, approved, is_available
		FROM vehicles
		WHERE id = $1
	`, vehicleID).Scan(&out.ID, &out.DriverID, &out.Approved, &out.Available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// SetAvailable flips the availability flag (idempotent).
func (repo *VehicleRepo) SetAvailable(ctx context.Context, vehicleID string, available bool) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE vehicles
		SET is_available = $1,
		    updated_at = now()
		WHERE id = $2
	`, available, vehicleID)
	return err
}
