package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trip-dispatch/internal/domain/alert"
	"trip-dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// AlertRepo is the sole owner of `driver_alerts` rows.
type AlertRepo struct{}

// NewAlertRepo constructs a new AlertRepo.
func NewAlertRepo() ports.AlertRepository {
	return &AlertRepo{}
}

const alertColumns = `
	id, driver_id, trip_id, status, expires_at,
	viewed_at, accepted_at, rejected_at, reason,
	created_at, updated_at`

// Create inserts a PENDING alert. A partial unique index on
// (driver_id, trip_id) WHERE status = 'PENDING' backs the idempotency: on a
// collision the existing open alert is returned unchanged.
func (repo *AlertRepo) Create(ctx context.Context, a *alert.Alert) (*alert.Alert, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO driver_alerts (driver_id, trip_id, status, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, a.DriverID, a.TripID, a.Status.String(), a.ExpiresAt).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err == nil {
		return a, nil
	}

	// unique violation: an open alert for this (driver, trip) already exists
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		existing, lookupErr := repo.openForPair(ctx, a.DriverID, a.TripID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing != nil {
			return existing, nil
		}
	}
	return nil, err
}

// GetOpen loads the alert only when it matches the driver and is still
// PENDING and unexpired at now. Plain read, no row lock: the conditional
// trip claim decides the race and every close is status-guarded, while
// locking here (alert, then trip) would cycle against a winner cancelling
// siblings (trip, then alerts).
func (repo *AlertRepo) GetOpen(ctx context.Context, alertID, driverID string, now time.Time) (*alert.Alert, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		SELECT `+alertColumns+`
		FROM driver_alerts
		WHERE id = $1
		  AND driver_id = $2
		  AND status = 'PENDING'
		  AND expires_at > $3
	`, alertID, driverID, now)

	out, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

// GetByID fetches an alert regardless of state.
func (repo *AlertRepo) GetByID(ctx context.Context, alertID string) (*alert.Alert, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `SELECT `+alertColumns+` FROM driver_alerts WHERE id = $1`, alertID)
	out, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

// ListForTrip returns every alert ever issued for a trip, newest first.
func (repo *AlertRepo) ListForTrip(ctx context.Context, tripID string) ([]*alert.Alert, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+alertColumns+`
		FROM driver_alerts
		WHERE trip_id = $1
		ORDER BY created_at DESC
	`, tripID)
	if err != nil {
		return nil, fmt.Errorf("query alerts for trip: %w", err)
	}
	defer rows.Close()

	var alerts []*alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return alerts, nil
}

// MarkAccepted moves a PENDING alert to ACCEPTED.
func (repo *AlertRepo) MarkAccepted(ctx context.Context, alertID string, at time.Time) error {
	return repo.close(ctx, alertID, alert.StatusAccepted, "accepted_at", &at, nil)
}

// MarkRejected moves a PENDING alert to REJECTED with an optional reason.
func (repo *AlertRepo) MarkRejected(ctx context.Context, alertID string, reason *string, at time.Time) error {
	return repo.close(ctx, alertID, alert.StatusRejected, "rejected_at", &at, reason)
}

// Cancel moves a PENDING alert to CANCELLED. Closing an already-terminal
// alert is a no-op: whichever write got there first wins.
func (repo *AlertRepo) Cancel(ctx context.Context, alertID string) error {
	return repo.close(ctx, alertID, alert.StatusCancelled, "", nil, nil)
}

// CancelSiblings cancels every other PENDING alert for the trip.
func (repo *AlertRepo) CancelSiblings(ctx context.Context, tripID, winningAlertID string) (int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE driver_alerts
		SET status = 'CANCELLED',
		    updated_at = now()
		WHERE trip_id = $1
		  AND id <> $2
		  AND status = 'PENDING'
	`, tripID, winningAlertID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ExpireStale marks every overdue PENDING alert EXPIRED and returns the
// affected rows so the sweeper can release the orphaned trips.
func (repo *AlertRepo) ExpireStale(ctx context.Context, now time.Time) ([]*alert.Alert, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		UPDATE driver_alerts
		SET status = 'EXPIRED',
		    updated_at = now()
		WHERE status = 'PENDING'
		  AND expires_at <= $1
		RETURNING `+alertColumns, now)
	if err != nil {
		return nil, fmt.Errorf("expire stale alerts: %w", err)
	}
	defer rows.Close()

	var expired []*alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired alert: %w", err)
		}
		expired = append(expired, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return expired, nil
}

// --- helpers ---

// close transitions a PENDING alert to a terminal status, optionally
// stamping a timeline column and a reason. Terminal states never reopen, so
// the status guard makes every close idempotent under racing writers.
func (repo *AlertRepo) close(ctx context.Context, alertID string, status alert.Status, stampColumn string, at *time.Time, reason *string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE driver_alerts
		SET status = $1,
		    reason = COALESCE($2, reason),
		    updated_at = now()`
	args := []any{status.String(), reason}
	if stampColumn != "" && at != nil {
		query += `, ` + stampColumn + ` = $3 WHERE id = $4 AND status = 'PENDING'`
		args = append(args, *at, alertID)
	} else {
		query += ` WHERE id = $3 AND status = 'PENDING'`
		args = append(args, alertID)
	}

	_, err = tx.Exec(ctx, query, args...)
	return err
}

// openForPair finds the unexpired PENDING alert for (driver, trip), if any.
func (repo *AlertRepo) openForPair(ctx context.Context, driverID, tripID string) (*alert.Alert, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		SELECT `+alertColumns+`
		FROM driver_alerts
		WHERE driver_id = $1
		  AND trip_id = $2
		  AND status = 'PENDING'
		  AND expires_at > now()
		LIMIT 1
	`, driverID, tripID)

	out, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

func scanAlert(row rowScanner) (*alert.Alert, error) {
	var out alert.Alert
	var status string

	err := row.Scan(
		&out.ID, &out.DriverID, &out.TripID, &status, &out.ExpiresAt,
		&out.ViewedAt, &out.AcceptedAt, &out.RejectedAt, &out.Reason,
		&out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	out.Status = alert.Status(status)
	return &out, nil
}
