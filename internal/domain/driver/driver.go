// Package driver holds the driver-side views the dispatch engine works
// with. The engine never owns driver records; it reads a fresh eligibility
// snapshot on every decision.
package driver

import "strings"

// Role is a role a user may hold, either as the primary role or via an
// additional-role grant.
type Role string

const (
	RoleDriver    Role = "DRIVER"
	RolePassenger Role = "PASSENGER"
	RoleAdmin     Role = "ADMIN"
)

// ParseRole normalizes and validates a role string.
func ParseRole(in string) (Role, bool) {
	role := Role(strings.ToUpper(strings.TrimSpace(in)))
	switch role {
	case RoleDriver, RolePassenger, RoleAdmin:
		return role, true
	default:
		return "", false
	}
}

// String returns the string representation of the Role.
func (role Role) String() string {
	return string(role)
}

// Eligibility is a non-persisted snapshot of everything the acceptance
// protocol needs to know about a driver. Computed fresh on every dispatch or
// acceptance decision; caching it across calls reintroduces the
// double-booking bug the conditional claim exists to prevent.
type Eligibility struct {
	DriverID string
	Active   bool
	Country  string
	Roles    []Role
}

// HasRole reports whether the snapshot includes the given role.
func (e Eligibility) HasRole(role Role) bool {
	for _, r := range e.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// CanDrive is the baseline gate for any acceptance: an active account
// holding the DRIVER role.
func (e Eligibility) CanDrive() bool {
	return e.Active && e.HasRole(RoleDriver)
}

// Candidate is one eligible driver produced by the dispatch planner,
// optionally carrying the distance from the driver's last known position to
// the trip origin (meters, negative when unknown).
type Candidate struct {
	DriverID       string
	Country        string
	VehicleType    string
	DistanceMeters float64
}
