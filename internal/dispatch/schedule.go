package dispatch

import (
	"time"

	"trip-dispatch/internal/domain/trip"
)

// windowsCollide reports whether two trip windows overlap or sit closer than
// buffer to each other on either side.
func windowsCollide(aStart, aEnd, bStart, bEnd time.Time, buffer time.Duration) bool {
	return aStart.Before(bEnd.Add(buffer)) && bStart.Before(aEnd.Add(buffer))
}

// findScheduleConflict scans the driver's other held trips for a window
// colliding with the candidate's. It returns the colliding trip's id, or ""
// when the schedule is clear. PENDING trips with an outstanding offer count
// too: accepting around a pending offer is how double-bookings sneak in.
func findScheduleConflict(candidate *trip.Trip, held []*trip.Trip, now time.Time, buffer time.Duration) string {
	cStart, cEnd := candidate.Window(now)

	for _, other := range held {
		if other.ID == candidate.ID {
			continue
		}
		oStart, oEnd := other.Window(now)
		if windowsCollide(cStart, cEnd, oStart, oEnd, buffer) {
			return other.ID
		}
	}
	return ""
}
