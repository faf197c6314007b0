package trip

import (
	"errors"
	"strings"
)

// Status is a trip status as stored in the `trips` table.
type Status string

const (
	StatusPending        Status = "PENDING"
	StatusConfirmed      Status = "CONFIRMED"
	StatusInProgress     Status = "IN_PROGRESS"
	StatusCompleted      Status = "COMPLETED"
	StatusPendingPayment Status = "PENDING_PAYMENT"
	StatusCancelled      Status = "CANCELLED"
)

var ErrInvalidStatus = errors.New("invalid trip status")

// ParseStatus normalizes (uppercases+trims) and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed trip status constants.
func (status Status) Valid() bool {
	switch status {
	case StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted, StatusPendingPayment, StatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// CanTransitionTo specifies if the status can transition to the next status.
func (status Status) CanTransitionTo(next Status) bool {
	switch status {
	case StatusPending:
		return next == StatusConfirmed || next == StatusCancelled

	case StatusConfirmed:
		// back to PENDING happens when an acceptance expires and the trip is
		// released for the next dispatch round
		return next == StatusInProgress || next == StatusPending || next == StatusCancelled

	case StatusInProgress:
		return next == StatusCompleted

	case StatusCompleted:
		// external settlement may park the trip until payment clears
		return next == StatusPendingPayment

	case StatusPendingPayment, StatusCancelled:
		return false

	default:
		return false
	}
}

// Active indicates the trip binds a driver right now.
func (status Status) Active() bool {
	return status == StatusConfirmed || status == StatusInProgress
}

// Terminal indicates if the status is in a terminal state.
func (status Status) Terminal() bool {
	return status == StatusCancelled || status == StatusPendingPayment
}
