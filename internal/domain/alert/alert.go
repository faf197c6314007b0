// Package alert holds the driver alert entity: a time-boxed offer of one
// trip to one driver.
package alert

import (
	"errors"
	"strings"
	"time"
)

// Status is an alert status as stored in the `driver_alerts` table.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAccepted  Status = "ACCEPTED"
	StatusRejected  Status = "REJECTED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

// DefaultTTL is how long a broadcast alert stays open for acceptance.
const DefaultTTL = time.Minute

var (
	ErrInvalidStatus  = errors.New("invalid alert status")
	ErrTerminal       = errors.New("alert is already in a terminal state")
	ErrDriverRequired = errors.New("driver id is required")
	ErrTripRequired   = errors.New("trip id is required")
)

// ParseStatus normalizes and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed alert statuses.
func (status Status) Valid() bool {
	switch status {
	case StatusPending, StatusAccepted, StatusRejected, StatusExpired, StatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// Terminal indicates the alert can never be reopened. Every status except
// PENDING is terminal.
func (status Status) Terminal() bool {
	return status != StatusPending
}

// Alert is the domain entity corresponding to the `driver_alerts` table.
type Alert struct {
	ID        string
	DriverID  string
	TripID    string
	Status    Status
	ExpiresAt time.Time

	ViewedAt   *time.Time
	AcceptedAt *time.Time
	RejectedAt *time.Time

	// Optional metadata, e.g. a driver-supplied rejection reason.
	Reason *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a PENDING alert offering tripID to driverID until expiresAt.
func New(driverID, tripID string, expiresAt time.Time) (*Alert, error) {
	if driverID = strings.TrimSpace(driverID); driverID == "" {
		return nil, ErrDriverRequired
	}
	if tripID = strings.TrimSpace(tripID); tripID == "" {
		return nil, ErrTripRequired
	}

	now := time.Now().UTC()
	return &Alert{
		DriverID:  driverID,
		TripID:    tripID,
		Status:    StatusPending,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Expired reports whether the offer window has elapsed at the given instant.
func (a *Alert) Expired(now time.Time) bool {
	return !a.ExpiresAt.After(now)
}

// Open reports whether the alert can still be accepted at the given instant.
func (a *Alert) Open(now time.Time) bool {
	return a.Status == StatusPending && !a.Expired(now)
}
