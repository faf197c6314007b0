package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/geo"
	"trip-dispatch/internal/ports"
)

// confirmTrip stamps a trip the way a winning acceptance would.
func confirmTrip(t *trip.Trip, driverID, pin string) {
	issuer, _ := geo.NewTokenIssuer(testSecret)
	qr, _ := issuer.GenerateStartToken(t.ID, pin)

	t.Status = trip.StatusConfirmed
	t.DriverID = &driverID
	t.StartPin = &pin
	t.StartQR = &qr
	t.StartPinExpiresAt = timePtr(testNow.Add(2 * time.Hour))
}

func TestStartWithPin(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	tr := seedPendingTrip(store, "trip-1", "p1")
	confirmTrip(tr, "d1", "1234")

	res, err := svc.Start(ctx, ports.StartInput{TripID: "trip-1", DriverID: "d1", Pin: "1234"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.Status != trip.StatusInProgress.String() {
		t.Fatalf("status = %s", res.Status)
	}
	if store.trips["trip-1"].Status != trip.StatusInProgress {
		t.Fatalf("trip not in progress")
	}

	if len(store.outbox) != 1 || store.outbox[0].Type != "trip_started" || store.outbox[0].UserID != "p1" {
		t.Fatalf("expected a trip_started notification for the passenger, got %+v", store.outbox)
	}
}

func TestStartWithQr(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	tr := seedPendingTrip(store, "trip-1", "p1")
	confirmTrip(tr, "d1", "1234")

	res, err := svc.Start(ctx, ports.StartInput{TripID: "trip-1", DriverID: "d1", QR: *tr.StartQR})
	if err != nil {
		t.Fatalf("start with qr: %v", err)
	}
	if res.Status != trip.StatusInProgress.String() {
		t.Fatalf("status = %s", res.Status)
	}
}

func TestStartWrongSecret(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	tr := seedPendingTrip(store, "trip-1", "p1")
	confirmTrip(tr, "d1", "1234")

	cases := []ports.StartInput{
		{TripID: "trip-1", DriverID: "d1", Pin: "9999"},
		{TripID: "trip-1", DriverID: "d1", QR: "not-a-token"},
		{TripID: "trip-1", DriverID: "d1"}, // neither supplied
	}
	for i, in := range cases {
		if _, err := svc.Start(ctx, in); !errors.Is(err, ErrPinOrQrInvalid) {
			t.Fatalf("case %d: expected ErrPinOrQrInvalid, got %v", i, err)
		}
	}
	if store.trips["trip-1"].Status != trip.StatusConfirmed {
		t.Fatalf("failed starts must not change the trip")
	}
}

func TestStartQrForOtherTripRejected(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	a := seedPendingTrip(store, "trip-1", "p1")
	confirmTrip(a, "d1", "1234")
	b := seedPendingTrip(store, "trip-2", "p2")
	confirmTrip(b, "d1", "1234")

	// same driver, same pin, but a QR minted for the other trip
	_, err := svc.Start(ctx, ports.StartInput{TripID: "trip-1", DriverID: "d1", QR: *b.StartQR})
	if !errors.Is(err, ErrPinOrQrInvalid) {
		t.Fatalf("expected ErrPinOrQrInvalid, got %v", err)
	}
}

func TestStartPinExpired(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	tr := seedPendingTrip(store, "trip-1", "p1")
	confirmTrip(tr, "d1", "1234")
	tr.StartPinExpiresAt = timePtr(testNow.Add(-time.Minute))

	_, err := svc.Start(ctx, ports.StartInput{TripID: "trip-1", DriverID: "d1", Pin: "1234"})
	if !errors.Is(err, ErrPinExpired) {
		t.Fatalf("expected ErrPinExpired, got %v", err)
	}
}

func TestStartScheduledEarlyWindow(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	tr := seedPendingTrip(store, "trip-1", "p1")
	confirmTrip(tr, "d1", "1234")
	tr.ScheduledAt = timePtr(testNow.Add(time.Hour))

	_, err := svc.Start(ctx, ports.StartInput{TripID: "trip-1", DriverID: "d1", Pin: "1234"})
	if !errors.Is(err, ErrTooEarlyForScheduledPin) {
		t.Fatalf("expected ErrTooEarlyForScheduledPin, got %v", err)
	}

	// inside the 15-minute window the secret becomes usable
	tr.ScheduledAt = timePtr(testNow.Add(10 * time.Minute))
	if _, err := svc.Start(ctx, ports.StartInput{TripID: "trip-1", DriverID: "d1", Pin: "1234"}); err != nil {
		t.Fatalf("start inside early window: %v", err)
	}
}

func TestStartGeofence(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	tr := seedPendingTrip(store, "trip-1", "p1")
	confirmTrip(tr, "d1", "1234")

	// roughly 550m north of the origin
	farLat, farLon := tr.Origin.Latitude+0.005, tr.Origin.Longitude
	_, err := svc.Start(ctx, ports.StartInput{
		TripID: "trip-1", DriverID: "d1", Pin: "1234",
		Latitude: &farLat, Longitude: &farLon,
	})
	if !errors.Is(err, ErrTooFarFromOrigin) {
		t.Fatalf("expected ErrTooFarFromOrigin, got %v", err)
	}

	// roughly 55m away passes the 100m fence
	nearLat, nearLon := tr.Origin.Latitude+0.0005, tr.Origin.Longitude
	if _, err := svc.Start(ctx, ports.StartInput{
		TripID: "trip-1", DriverID: "d1", Pin: "1234",
		Latitude: &nearLat, Longitude: &nearLon,
	}); err != nil {
		t.Fatalf("start inside fence: %v", err)
	}
}

func TestStartWrongDriver(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	tr := seedPendingTrip(store, "trip-1", "p1")
	confirmTrip(tr, "d1", "1234")

	_, err := svc.Start(ctx, ports.StartInput{TripID: "trip-1", DriverID: "d2", Pin: "1234"})
	if !errors.Is(err, ErrTripClaimedByOther) {
		t.Fatalf("expected ErrTripClaimedByOther, got %v", err)
	}
}

func TestStartWrongStatus(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	seedPendingTrip(store, "trip-1", "p1")

	_, err := svc.Start(ctx, ports.StartInput{TripID: "trip-1", DriverID: "d1", Pin: "1234"})
	if !errors.Is(err, ErrTripNoLongerAvailable) {
		t.Fatalf("expected ErrTripNoLongerAvailable, got %v", err)
	}
}
