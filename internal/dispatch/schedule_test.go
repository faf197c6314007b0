package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	alertdom "trip-dispatch/internal/domain/alert"
	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/ports"
)

func TestWindowsCollide(t *testing.T) {
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	buffer := 30 * time.Minute
	at := func(m int) time.Time { return base.Add(time.Duration(m) * time.Minute) }

	cases := []struct {
		name                       string
		aStart, aEnd, bStart, bEnd time.Time
		want                       bool
	}{
		{"overlapping", at(0), at(30), at(15), at(45), true},
		{"contained", at(0), at(60), at(10), at(20), true},
		{"touching without gap", at(0), at(30), at(30), at(60), true},
		{"gap smaller than buffer", at(0), at(30), at(59), at(89), true},
		{"gap equal to buffer", at(0), at(30), at(60), at(90), false},
		{"gap larger than buffer", at(0), at(30), at(120), at(150), false},
		{"before with buffer gap", at(120), at(150), at(0), at(30), false},
		{"before too close", at(45), at(75), at(0), at(30), true},
	}
	for _, tc := range cases {
		if got := windowsCollide(tc.aStart, tc.aEnd, tc.bStart, tc.bEnd, buffer); got != tc.want {
			t.Errorf("%s: windowsCollide = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestFindScheduleConflictSkipsSelf(t *testing.T) {
	candidate := &trip.Trip{ID: "trip-1", ScheduledAt: timePtr(testNow.Add(time.Hour)), DurationMinutes: 30}
	held := []*trip.Trip{{ID: "trip-1", ScheduledAt: timePtr(testNow.Add(time.Hour)), DurationMinutes: 30}}

	if id := findScheduleConflict(candidate, held, testNow, 30*time.Minute); id != "" {
		t.Fatalf("candidate must not conflict with itself, got %q", id)
	}
}

func TestFindScheduleConflictRoundTripWindow(t *testing.T) {
	// outbound 10:00-10:30, return leg pushes the end to 14:00-14:30
	candidate := &trip.Trip{
		ID:                "trip-1",
		ScheduledAt:       timePtr(testNow.Add(-2 * time.Hour)),
		ReturnScheduledAt: timePtr(testNow.Add(2 * time.Hour)),
		DurationMinutes:   30,
	}
	// sits between the legs, still blocked by the extended window
	other := &trip.Trip{ID: "trip-2", ScheduledAt: timePtr(testNow), DurationMinutes: 30}

	if id := findScheduleConflict(candidate, []*trip.Trip{other}, testNow, 30*time.Minute); id != "trip-2" {
		t.Fatalf("expected conflict with trip-2, got %q", id)
	}
}

func TestAcceptScheduleConflictNamesCollidingTrip(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	seedDriver(store, "d1", "")

	// the driver already committed to a scheduled trip at 14:00
	heldTrip := seedPendingTrip(store, "trip-held", "p2")
	heldTrip.Status = trip.StatusConfirmed
	heldTrip.DriverID = strPtr("d1")
	heldTrip.ScheduledAt = timePtr(testNow.Add(2 * time.Hour))

	// the candidate starts 15 minutes into the held window
	candidate := seedPendingTrip(store, "trip-new", "p1")
	candidate.ScheduledAt = timePtr(testNow.Add(2*time.Hour + 15*time.Minute))
	seedOpenAlert(store, "alert-1", "d1", "trip-new")

	_, err := svc.Accept(ctx, ports.AcceptInput{AlertID: "alert-1", DriverID: "d1"})
	if !errors.Is(err, ErrScheduleConflict) {
		t.Fatalf("expected ErrScheduleConflict, got %v", err)
	}
	if !strings.Contains(err.Error(), "trip-held") {
		t.Fatalf("conflict error must name the colliding trip: %v", err)
	}
	if store.alerts["alert-1"].Status != alertdom.StatusPending {
		t.Fatalf("schedule fault must leave the alert open, got %s", store.alerts["alert-1"].Status)
	}
}

func TestAcceptScheduledTripsClearOfEachOther(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	seedDriver(store, "d1", "")

	heldTrip := seedPendingTrip(store, "trip-held", "p2")
	heldTrip.Status = trip.StatusConfirmed
	heldTrip.DriverID = strPtr("d1")
	heldTrip.ScheduledAt = timePtr(testNow.Add(2 * time.Hour))

	// 30 min duration + 30 min buffer: anything from +3h on is clear
	candidate := seedPendingTrip(store, "trip-new", "p1")
	candidate.ScheduledAt = timePtr(testNow.Add(3 * time.Hour))
	seedOpenAlert(store, "alert-1", "d1", "trip-new")

	res, err := svc.Accept(ctx, ports.AcceptInput{AlertID: "alert-1", DriverID: "d1"})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if res.Status != trip.StatusConfirmed.String() {
		t.Fatalf("expected CONFIRMED, got %s", res.Status)
	}
}

func TestAcceptImmediateConflictsWithPendingOffer(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	seedDriver(store, "d1", "")

	// a pending offer occupying "now" counts against the schedule too
	offered := seedPendingTrip(store, "trip-offered", "p2")
	offered.DriverID = strPtr("d1")

	candidate := seedPendingTrip(store, "trip-new", "p1")
	seedOpenAlert(store, "alert-1", "d1", candidate.ID)

	_, err := svc.Accept(ctx, ports.AcceptInput{AlertID: "alert-1", DriverID: "d1"})
	if !errors.Is(err, ErrScheduleConflict) {
		t.Fatalf("expected ErrScheduleConflict, got %v", err)
	}
	if !strings.Contains(err.Error(), "trip-offered") {
		t.Fatalf("conflict error must name the colliding trip: %v", err)
	}
}

func TestPinExpiryLaterOf(t *testing.T) {
	now := testNow

	if got := pinExpiry(now, nil); !got.Equal(now.Add(2 * time.Hour)) {
		t.Fatalf("immediate: got %v, want now+2h", got)
	}

	soon := now.Add(30 * time.Minute)
	if got := pinExpiry(now, &soon); !got.Equal(now.Add(2 * time.Hour)) {
		t.Fatalf("near-term scheduled: got %v, want now+2h", got)
	}

	far := now.Add(6 * time.Hour)
	if got := pinExpiry(now, &far); !got.Equal(far.Add(time.Hour)) {
		t.Fatalf("far scheduled: got %v, want scheduled+1h", got)
	}
}
