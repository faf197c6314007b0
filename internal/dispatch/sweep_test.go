package dispatch

import (
	"context"
	"testing"
	"time"

	alertdom "trip-dispatch/internal/domain/alert"
	"trip-dispatch/internal/domain/trip"
)

func TestSweepExpiresAndReleases(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	// expired offer with the driver stamped on the still-PENDING trip
	offered := seedPendingTrip(store, "trip-1", "p1")
	offered.DriverID = strPtr("d1")
	stale := seedOpenAlert(store, "alert-1", "d1", "trip-1")
	stale.ExpiresAt = testNow.Add(-time.Second)

	// fresh alert on another trip must survive the sweep
	seedPendingTrip(store, "trip-2", "p2")
	seedOpenAlert(store, "alert-2", "d2", "trip-2")

	res, err := svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.AlertsExpired != 1 {
		t.Fatalf("alerts expired = %d, want 1", res.AlertsExpired)
	}
	if res.TripsReleased != 1 {
		t.Fatalf("trips released = %d, want 1", res.TripsReleased)
	}

	if store.alerts["alert-1"].Status != alertdom.StatusExpired {
		t.Fatalf("stale alert status = %s", store.alerts["alert-1"].Status)
	}
	if store.alerts["alert-2"].Status != alertdom.StatusPending {
		t.Fatalf("fresh alert must stay open, got %s", store.alerts["alert-2"].Status)
	}

	released := store.trips["trip-1"]
	if released.Status != trip.StatusPending || released.DriverID != nil {
		t.Fatalf("trip not released: status=%s driver=%v", released.Status, released.DriverID)
	}
}

func TestSweepIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	offered := seedPendingTrip(store, "trip-1", "p1")
	offered.DriverID = strPtr("d1")
	stale := seedOpenAlert(store, "alert-1", "d1", "trip-1")
	stale.ExpiresAt = testNow.Add(-time.Second)

	if _, err := svc.SweepExpired(ctx); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	res, err := svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if res.AlertsExpired != 0 || res.TripsReleased != 0 {
		t.Fatalf("second sweep must be a no-op, got %+v", res)
	}
}

func TestSweepLeavesConfirmedTripsAlone(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	// the trip was claimed through another alert before this one expired
	claimed := seedPendingTrip(store, "trip-1", "p1")
	claimed.Status = trip.StatusConfirmed
	claimed.DriverID = strPtr("d2")
	stale := seedOpenAlert(store, "alert-1", "d1", "trip-1")
	stale.ExpiresAt = testNow.Add(-time.Second)

	res, err := svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.AlertsExpired != 1 {
		t.Fatalf("alerts expired = %d, want 1", res.AlertsExpired)
	}
	if res.TripsReleased != 0 {
		t.Fatalf("a claimed trip must never be released, got %d", res.TripsReleased)
	}
	if store.trips["trip-1"].Status != trip.StatusConfirmed {
		t.Fatalf("claimed trip was touched by the sweep")
	}
}

func TestSweepSkipsOfferFromAnotherDriver(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	// trip re-offered to d2 after d1's alert went stale
	offered := seedPendingTrip(store, "trip-1", "p1")
	offered.DriverID = strPtr("d2")
	stale := seedOpenAlert(store, "alert-1", "d1", "trip-1")
	stale.ExpiresAt = testNow.Add(-time.Second)

	res, err := svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.TripsReleased != 0 {
		t.Fatalf("newer offer must not be clobbered, got %d releases", res.TripsReleased)
	}
	if store.trips["trip-1"].DriverID == nil || *store.trips["trip-1"].DriverID != "d2" {
		t.Fatalf("newer offer was cleared")
	}
}

func TestSweepReleasesOfferlessTrip(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	// offer fields already cleared while the alert is still open
	seedPendingTrip(store, "trip-1", "p1")
	stale := seedOpenAlert(store, "alert-1", "d1", "trip-1")
	stale.ExpiresAt = testNow.Add(-time.Second)

	res, err := svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.AlertsExpired != 1 || res.TripsReleased != 1 {
		t.Fatalf("sweep result = %+v, want 1 expired and 1 released", res)
	}
	tr := store.trips["trip-1"]
	if tr.Status != trip.StatusPending || tr.DriverID != nil {
		t.Fatalf("trip must stay open to new offers: status=%s", tr.Status)
	}
	if store.alerts["alert-1"].Status != alertdom.StatusExpired {
		t.Fatalf("alert status = %s, want EXPIRED", store.alerts["alert-1"].Status)
	}
}
