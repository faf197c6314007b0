// Concurrency tests for the acceptance protocol (run with -race).
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	alertdom "trip-dispatch/internal/domain/alert"
	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/ports"
)

func TestConcurrentAcceptSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	const drivers = 8
	seedPendingTrip(store, "trip-1", "p1")
	for i := 0; i < drivers; i++ {
		id := fmt.Sprintf("d%d", i)
		seedDriver(store, id, "")
		seedOpenAlert(store, "alert-"+id, id, "trip-1")
	}

	var wg sync.WaitGroup
	errs := make(chan error, drivers)

	for i := 0; i < drivers; i++ {
		id := fmt.Sprintf("d%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Accept(ctx, ports.AcceptInput{AlertID: "alert-" + id, DriverID: id})
			errs <- err
		}()
	}

	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		if !errors.Is(err, ErrTripNoLongerAvailable) && !errors.Is(err, ErrTripClaimedByOther) {
			t.Fatalf("unexpected loser error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", wins)
	}

	tr := store.trips["trip-1"]
	if tr.Status != trip.StatusConfirmed || tr.DriverID == nil {
		t.Fatalf("trip not confirmed to a single driver: status=%s", tr.Status)
	}

	accepted, open := 0, 0
	for _, a := range store.alerts {
		switch a.Status {
		case alertdom.StatusAccepted:
			accepted++
			if a.DriverID != *tr.DriverID {
				t.Fatalf("accepted alert %s does not belong to the winner %s", a.ID, *tr.DriverID)
			}
		case alertdom.StatusPending:
			open++
		}
	}
	if accepted != 1 {
		t.Fatalf("expected exactly 1 accepted alert, got %d", accepted)
	}
	if open != 0 {
		t.Fatalf("expected no alert left open, got %d", open)
	}
}

func TestConcurrentDirectAcceptSameTrip(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	seedPendingTrip(store, "trip-1", "p1")
	seedDriver(store, "d1", "")
	seedDriver(store, "d2", "")

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	for _, id := range []string{"d1", "d2"} {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AcceptDirect(ctx, ports.DirectAcceptInput{TripID: "trip-1", DriverID: id})
			errs <- err
		}()
	}

	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		if !errors.Is(err, ErrTripNoLongerAvailable) && !errors.Is(err, ErrTripClaimedByOther) {
			t.Fatalf("unexpected loser error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", wins)
	}
}

func TestConcurrentAcceptVsSweep(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	seedDriver(store, "d1", "")
	tr := seedPendingTrip(store, "trip-1", "p1")
	tr.DriverID = strPtr("d1") // outstanding offer, not a commitment
	a := seedOpenAlert(store, "alert-1", "d1", "trip-1")
	a.ExpiresAt = testNow // expired exactly now

	var wg sync.WaitGroup
	var acceptErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, acceptErr = svc.Accept(ctx, ports.AcceptInput{AlertID: "alert-1", DriverID: "d1"})
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := svc.SweepExpired(ctx); err != nil {
			t.Errorf("sweep: %v", err)
		}
	}()

	wg.Wait()

	// the expiry boundary is closed: an alert expiring at this exact instant
	// is gone for acceptance and stale for the sweep, whichever runs first
	if !errors.Is(acceptErr, ErrAlertNotFoundOrExpired) {
		t.Fatalf("unexpected accept error: %v", acceptErr)
	}
	final := store.trips["trip-1"]
	if final.Status != trip.StatusPending || final.DriverID != nil {
		t.Fatalf("released trip in unexpected state: status=%s driver=%v", final.Status, final.DriverID)
	}
	if store.alerts["alert-1"].Status != alertdom.StatusExpired {
		t.Fatalf("alert status = %s, want EXPIRED", store.alerts["alert-1"].Status)
	}
}
