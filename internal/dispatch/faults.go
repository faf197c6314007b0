package dispatch

import (
	"errors"
	"fmt"
)

// The full fault taxonomy of the acceptance and lifecycle protocols. All of
// these are expected, recoverable conditions returned to the caller; none
// trigger retries inside the engine.
var (
	ErrAlertNotFoundOrExpired  = errors.New("alert not found, not yours, or expired")
	ErrTripNotFound            = errors.New("trip not found")
	ErrTripNoLongerAvailable   = errors.New("trip is no longer available")
	ErrTripClaimedByOther      = errors.New("trip was claimed by another driver")
	ErrDriverIneligible        = errors.New("driver is not active or lacks the DRIVER role")
	ErrCountryMismatch         = errors.New("driver country does not match trip country")
	ErrDriverAlreadyBusy       = errors.New("driver already has an active trip")
	ErrScheduleConflict        = errors.New("trip window conflicts with another trip held by the driver")
	ErrVehicleInvalid          = errors.New("vehicle is unknown, not approved, unavailable, or not the driver's")
	ErrPinOrQrInvalid          = errors.New("start pin or qr code is invalid")
	ErrPinExpired              = errors.New("start pin has expired")
	ErrTooEarlyForScheduledPin = errors.New("start pin is not valid yet for a scheduled trip")
	ErrTooFarFromOrigin        = errors.New("driver is too far from the trip origin")
	ErrTooFarFromDestination   = errors.New("driver is too far from the trip destination")
)

// scheduleConflict wraps ErrScheduleConflict naming the colliding trip.
func scheduleConflict(conflictingTripID string) error {
	return fmt.Errorf("%w: conflicts with trip %s", ErrScheduleConflict, conflictingTripID)
}

// tooFar wraps a geofence fault reporting the actual distance.
func tooFar(base error, distanceMeters, toleranceMeters float64) error {
	return fmt.Errorf("%w: %.0fm away, tolerance %.0fm", base, distanceMeters, toleranceMeters)
}
