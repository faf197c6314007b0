package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	alertdom "trip-dispatch/internal/domain/alert"
	"trip-dispatch/internal/domain/driver"
	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/ports"
)

func TestBroadcastCreatesAlertsOrderedByProximity(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	seedPendingTrip(store, "trip-1", "p1")
	store.candidates = []driver.Candidate{
		{DriverID: "d-far"},
		{DriverID: "d-near"},
		{DriverID: "d-unknown"},
	}
	store.distances["d-far"] = 4200
	store.distances["d-near"] = 350

	res, err := svc.Broadcast(ctx, ports.BroadcastInput{TripID: "trip-1"})
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if res.AlertsCreated != 3 {
		t.Fatalf("alerts created = %d, want 3", res.AlertsCreated)
	}
	want := []string{"d-near", "d-far", "d-unknown"}
	for i, id := range want {
		if res.DriverIDs[i] != id {
			t.Fatalf("driver order = %v, want %v", res.DriverIDs, want)
		}
	}
	if !res.ExpiresAt.Equal(testNow.Add(alertdom.DefaultTTL)) {
		t.Fatalf("expires at = %v, want now+%s", res.ExpiresAt, alertdom.DefaultTTL)
	}

	open := 0
	for _, a := range store.alerts {
		if a.TripID == "trip-1" && a.Status == alertdom.StatusPending {
			open++
			if !a.ExpiresAt.Equal(res.ExpiresAt) {
				t.Fatalf("alert %s expiry %v != round expiry %v", a.ID, a.ExpiresAt, res.ExpiresAt)
			}
		}
	}
	if open != 3 {
		t.Fatalf("open alerts = %d, want 3", open)
	}

	if len(store.outbox) != 3 {
		t.Fatalf("expected one queued notification per driver, got %d", len(store.outbox))
	}
	for _, n := range store.outbox {
		if n.Type != "trip_alert" {
			t.Fatalf("unexpected notification type %s", n.Type)
		}
	}
}

func TestBroadcastSkipsExistingOpenAlert(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	seedPendingTrip(store, "trip-1", "p1")
	existing := seedOpenAlert(store, "alert-1", "d1", "trip-1")
	existing.ExpiresAt = testNow.Add(30 * time.Second)
	wantExpiry := existing.ExpiresAt
	store.candidates = []driver.Candidate{{DriverID: "d1"}, {DriverID: "d2"}}

	res, err := svc.Broadcast(ctx, ports.BroadcastInput{TripID: "trip-1"})
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	// the collision is skipped, never fails the batch
	if res.AlertsCreated != 2 {
		t.Fatalf("alerts created = %d, want 2", res.AlertsCreated)
	}
	if len(store.alerts) != 2 {
		t.Fatalf("expected 2 stored alerts (no duplicate), got %d", len(store.alerts))
	}
	if !store.alerts["alert-1"].ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("existing alert must be returned unchanged")
	}
}

func TestBroadcastFiltersByCountry(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	tr := seedPendingTrip(store, "trip-1", "p1")
	tr.Origin.PlaceID = strPtr("place-ast")
	store.countries["place-ast"] = "KZ"
	store.candidates = []driver.Candidate{
		{DriverID: "d-kz", Country: "KZ"},
		{DriverID: "d-de", Country: "DE"},
	}

	res, err := svc.Broadcast(ctx, ports.BroadcastInput{TripID: "trip-1"})
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if res.AlertsCreated != 1 || res.DriverIDs[0] != "d-kz" {
		t.Fatalf("expected only the in-country driver, got %v", res.DriverIDs)
	}
}

func TestBroadcastHonorsLimit(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	seedPendingTrip(store, "trip-1", "p1")
	store.candidates = []driver.Candidate{
		{DriverID: "d1"}, {DriverID: "d2"}, {DriverID: "d3"},
	}

	res, err := svc.Broadcast(ctx, ports.BroadcastInput{TripID: "trip-1", Limit: 2})
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if res.AlertsCreated != 2 {
		t.Fatalf("alerts created = %d, want 2", res.AlertsCreated)
	}
}

func TestBroadcastNonPendingTrip(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	tr := seedPendingTrip(store, "trip-1", "p1")
	tr.Status = trip.StatusConfirmed

	if _, err := svc.Broadcast(ctx, ports.BroadcastInput{TripID: "trip-1"}); !errors.Is(err, ErrTripNoLongerAvailable) {
		t.Fatalf("expected ErrTripNoLongerAvailable, got %v", err)
	}
	if _, err := svc.Broadcast(ctx, ports.BroadcastInput{TripID: "missing"}); !errors.Is(err, ErrTripNotFound) {
		t.Fatalf("expected ErrTripNotFound, got %v", err)
	}
}
