package postgres

import (
	"context"
	"errors"
	"fmt"

	"trip-dispatch/internal/domain/driver"
	"trip-dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// DriverDirectory reads driver eligibility from the users/roles/vehicles
// tables. The primary role column and the additional-roles table are an
// implementation detail of the identity schema; callers only ever see the
// merged role set.
type DriverDirectory struct{}

// NewDriverDirectory constructs a new DriverDirectory.
func NewDriverDirectory() ports.DriverDirectory {
	return &DriverDirectory{}
}

// GetEligibility reads a fresh snapshot for one driver. Never cached: the
// acceptance decision depends on it being current.
func (dir *DriverDirectory) GetEligibility(ctx context.Context, driverID string) (driver.Eligibility, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return driver.Eligibility{}, err
	}

	var out driver.Eligibility
	var roleNames []string

	// merge the primary role with any additional-role grants
	err = tx.QueryRow(ctx, `
		SELECT u.id, u.active, COALESCE(u.country, ''),
		       array_remove(array_append(array_agg(DISTINCT ur.role), u.primary_role), NULL)
		FROM users u
		LEFT JOIN user_roles ur ON ur.user_id = u.id
		WHERE u.id = $1
		GROUP BY u.id, u.active, u.country, u.primary_role
	`, driverID).Scan(&out.DriverID, &out.Active, &out.Country, &roleNames)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// unknown user: an empty snapshot fails every eligibility gate
			return driver.Eligibility{DriverID: driverID}, nil
		}
		return driver.Eligibility{}, fmt.Errorf("query driver eligibility: %w", err)
	}

	for _, name := range roleNames {
		if role, ok := driver.ParseRole(name); ok {
			out.Roles = append(out.Roles, role)
		}
	}
	return out, nil
}

// EligibleDrivers returns the dispatch candidate set: active drivers holding
// the DRIVER role, with at least one available approved vehicle, not
// currently bound to a CONFIRMED or IN_PROGRESS trip.
func (dir *DriverDirectory) EligibleDrivers(ctx context.Context, f ports.EligibleDriversFilter) ([]driver.Candidate, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := tx.Query(ctx, `
		SELECT u.id, COALESCE(u.country, ''), COALESCE(v.vehicle_type, '')
		FROM users u
		JOIN LATERAL (
			SELECT vehicle_type
			FROM vehicles
			WHERE driver_id = u.id
			  AND is_available
			  AND approved
			  AND ($2 = '' OR vehicle_type = $2)
			LIMIT 1
		) v ON TRUE
		WHERE u.active
		  AND (u.primary_role = 'DRIVER'
		       OR EXISTS (SELECT 1 FROM user_roles ur WHERE ur.user_id = u.id AND ur.role = 'DRIVER'))
		  AND ($1 = '' OR u.country = $1)
		  AND NOT EXISTS (
			SELECT 1 FROM trips t
			WHERE t.driver_id = u.id
			  AND t.status IN ('CONFIRMED', 'IN_PROGRESS')
		  )
		LIMIT $3
	`, f.Country, f.VehicleType, limit)
	if err != nil {
		return nil, fmt.Errorf("query eligible drivers: %w", err)
	}
	defer rows.Close()

	var candidates []driver.Candidate
	for rows.Next() {
		c := driver.Candidate{DistanceMeters: -1}
		if err := rows.Scan(&c.DriverID, &c.Country, &c.VehicleType); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return candidates, nil
}
