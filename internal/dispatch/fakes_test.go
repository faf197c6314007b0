package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	alertdom "trip-dispatch/internal/domain/alert"
	"trip-dispatch/internal/domain/driver"
	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/geo"
	"trip-dispatch/internal/logger"
	"trip-dispatch/internal/ports"
)

// memStore backs every fake repo with one mutex so that fakeUOW.WithinTx
// serializes whole transactions, the way the database serializes the
// conditional claim update.
type memStore struct {
	mu sync.Mutex

	trips      map[string]*trip.Trip
	alerts     map[string]*alertdom.Alert
	vehicles   map[string]*ports.Vehicle
	elig       map[string]driver.Eligibility
	candidates []driver.Candidate
	countries  map[string]string
	distances  map[string]float64
	outbox     []ports.Notification

	tripSeq  int
	alertSeq int
}

func newMemStore() *memStore {
	return &memStore{
		trips:     make(map[string]*trip.Trip),
		alerts:    make(map[string]*alertdom.Alert),
		vehicles:  make(map[string]*ports.Vehicle),
		elig:      make(map[string]driver.Eligibility),
		countries: make(map[string]string),
		distances: make(map[string]float64),
	}
}

// ----- unit of work -----

type fakeUOW struct{ store *memStore }

func (u *fakeUOW) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	return fn(ctx)
}

// ----- trips -----

type fakeTrips struct{ store *memStore }

func (r *fakeTrips) Create(_ context.Context, t *trip.Trip) error {
	r.store.tripSeq++
	t.ID = fmt.Sprintf("trip-%04d", r.store.tripSeq)
	cp := *t
	r.store.trips[t.ID] = &cp
	return nil
}

func (r *fakeTrips) GetByID(_ context.Context, id string) (*trip.Trip, error) {
	t, ok := r.store.trips[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTrips) Claim(_ context.Context, claim ports.TripClaim) (bool, error) {
	t, ok := r.store.trips[claim.TripID]
	if !ok || t.Status != trip.StatusPending {
		return false, nil
	}
	if t.DriverID != nil && *t.DriverID != claim.DriverID {
		return false, nil
	}

	d := claim.DriverID
	t.DriverID = &d
	t.VehicleID = claim.VehicleID
	t.StartPin = &claim.StartPin
	t.StartPinExpiresAt = &claim.PinExpiresAt
	t.StartQR = &claim.StartQR
	t.DriverAcceptedAt = &claim.AcceptedAt
	t.Status = trip.StatusConfirmed
	return true, nil
}

func (r *fakeTrips) ActiveForDriver(_ context.Context, driverID, excludeTripID string) (*trip.Trip, error) {
	for _, t := range r.store.trips {
		if t.ID == excludeTripID || t.DriverID == nil || *t.DriverID != driverID {
			continue
		}
		if t.Status.Active() {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeTrips) HeldByDriver(_ context.Context, driverID, excludeTripID string) ([]*trip.Trip, error) {
	var held []*trip.Trip
	for _, t := range r.store.trips {
		if t.ID == excludeTripID || t.DriverID == nil || *t.DriverID != driverID {
			continue
		}
		if t.Status == trip.StatusPending || t.Status == trip.StatusConfirmed {
			cp := *t
			held = append(held, &cp)
		}
	}
	return held, nil
}

func (r *fakeTrips) Start(_ context.Context, tripID string, startedAt time.Time) error {
	t := r.store.trips[tripID]
	t.Status = trip.StatusInProgress
	t.StartedAt = &startedAt
	return nil
}

func (r *fakeTrips) Complete(_ context.Context, tripID string, completedAt time.Time) error {
	t := r.store.trips[tripID]
	t.Status = trip.StatusCompleted
	t.CompletedAt = &completedAt
	return nil
}

func (r *fakeTrips) Release(_ context.Context, tripID, driverID string) (bool, error) {
	t, ok := r.store.trips[tripID]
	if !ok || t.Status != trip.StatusPending {
		return false, nil
	}
	if t.DriverID != nil && *t.DriverID != driverID {
		return false, nil
	}
	t.DriverID = nil
	t.DriverRequestedAt = nil
	t.AcceptanceDeadline = nil
	return true, nil
}

func (r *fakeTrips) SetStartSecrets(_ context.Context, tripID, pin string, pinExpiresAt time.Time, qr string) error {
	t := r.store.trips[tripID]
	t.StartPin = &pin
	t.StartPinExpiresAt = &pinExpiresAt
	t.StartQR = &qr
	return nil
}

// ----- alerts -----

type fakeAlerts struct{ store *memStore }

func (r *fakeAlerts) Create(_ context.Context, a *alertdom.Alert) (*alertdom.Alert, error) {
	for _, existing := range r.store.alerts {
		if existing.DriverID == a.DriverID && existing.TripID == a.TripID && existing.Status == alertdom.StatusPending {
			cp := *existing
			return &cp, nil
		}
	}
	r.store.alertSeq++
	a.ID = fmt.Sprintf("alert-%04d", r.store.alertSeq)
	cp := *a
	r.store.alerts[a.ID] = &cp
	out := cp
	return &out, nil
}

func (r *fakeAlerts) GetOpen(_ context.Context, alertID, driverID string, now time.Time) (*alertdom.Alert, error) {
	a, ok := r.store.alerts[alertID]
	if !ok || a.DriverID != driverID || !a.Open(now) {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAlerts) GetByID(_ context.Context, alertID string) (*alertdom.Alert, error) {
	a, ok := r.store.alerts[alertID]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAlerts) ListForTrip(_ context.Context, tripID string) ([]*alertdom.Alert, error) {
	var out []*alertdom.Alert
	for _, a := range r.store.alerts {
		if a.TripID == tripID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeAlerts) MarkAccepted(_ context.Context, alertID string, at time.Time) error {
	a := r.store.alerts[alertID]
	a.Status = alertdom.StatusAccepted
	a.AcceptedAt = &at
	return nil
}

func (r *fakeAlerts) MarkRejected(_ context.Context, alertID string, reason *string, at time.Time) error {
	a := r.store.alerts[alertID]
	a.Status = alertdom.StatusRejected
	a.RejectedAt = &at
	a.Reason = reason
	return nil
}

func (r *fakeAlerts) Cancel(_ context.Context, alertID string) error {
	a, ok := r.store.alerts[alertID]
	if ok && a.Status == alertdom.StatusPending {
		a.Status = alertdom.StatusCancelled
	}
	return nil
}

func (r *fakeAlerts) CancelSiblings(_ context.Context, tripID, winningAlertID string) (int, error) {
	n := 0
	for _, a := range r.store.alerts {
		if a.TripID == tripID && a.ID != winningAlertID && a.Status == alertdom.StatusPending {
			a.Status = alertdom.StatusCancelled
			n++
		}
	}
	return n, nil
}

func (r *fakeAlerts) ExpireStale(_ context.Context, now time.Time) ([]*alertdom.Alert, error) {
	var out []*alertdom.Alert
	for _, a := range r.store.alerts {
		if a.Status == alertdom.StatusPending && a.Expired(now) {
			a.Status = alertdom.StatusExpired
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ----- drivers -----

type fakeDrivers struct{ store *memStore }

func (r *fakeDrivers) GetEligibility(_ context.Context, driverID string) (driver.Eligibility, error) {
	return r.store.elig[driverID], nil
}

func (r *fakeDrivers) EligibleDrivers(_ context.Context, f ports.EligibleDriversFilter) ([]driver.Candidate, error) {
	var out []driver.Candidate
	for _, c := range r.store.candidates {
		if f.Country != "" && c.Country != f.Country {
			continue
		}
		if f.VehicleType != "" && c.VehicleType != f.VehicleType {
			continue
		}
		c.DistanceMeters = -1
		out = append(out, c)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// ----- vehicles -----

type fakeVehicles struct{ store *memStore }

func (r *fakeVehicles) Get(_ context.Context, vehicleID string) (*ports.Vehicle, error) {
	v, ok := r.store.vehicles[vehicleID]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (r *fakeVehicles) SetAvailable(_ context.Context, vehicleID string, available bool) error {
	if v, ok := r.store.vehicles[vehicleID]; ok {
		v.Available = available
	}
	return nil
}

// ----- places -----

type fakePlaces struct{ store *memStore }

func (r *fakePlaces) ResolveCountry(_ context.Context, placeID string) (string, error) {
	return r.store.countries[placeID], nil
}

// ----- outbox -----

type fakeOutbox struct{ store *memStore }

func (r *fakeOutbox) Append(_ context.Context, n ports.Notification) error {
	r.store.outbox = append(r.store.outbox, n)
	return nil
}

func (r *fakeOutbox) PendingBatch(_ context.Context, _ int) ([]ports.OutboxEntry, error) {
	return nil, nil
}

func (r *fakeOutbox) MarkSent(_ context.Context, _ string, _ time.Time) error { return nil }

func (r *fakeOutbox) MarkFailed(_ context.Context, _, _ string) error { return nil }

// ----- locations -----

type fakeLocations struct{ store *memStore }

func (r *fakeLocations) Update(_ context.Context, driverID string, _, _ float64) error {
	r.store.distances[driverID] = 0
	return nil
}

func (r *fakeLocations) Distances(_ context.Context, driverIDs []string, _, _ float64) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, id := range driverIDs {
		if d, ok := r.store.distances[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

// ----- wiring helpers -----

const testSecret = "test-signing-secret"

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, store *memStore) *dispatchService {
	t.Helper()

	tokens, err := geo.NewTokenIssuer(testSecret)
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}

	svc := NewService(
		logger.New("dispatch-test"),
		&fakeUOW{store: store},
		&fakeTrips{store: store},
		&fakeAlerts{store: store},
		&fakeDrivers{store: store},
		&fakeVehicles{store: store},
		&fakePlaces{store: store},
		&fakeOutbox{store: store},
		&fakeLocations{store: store},
		tokens,
		nil,
		Options{},
	)
	ds := svc.(*dispatchService)
	ds.now = func() time.Time { return testNow }
	return ds
}

func seedDriver(store *memStore, driverID, country string) {
	store.elig[driverID] = driver.Eligibility{
		DriverID: driverID,
		Active:   true,
		Country:  country,
		Roles:    []driver.Role{driver.RoleDriver},
	}
}

func seedPendingTrip(store *memStore, id, passengerID string) *trip.Trip {
	t := &trip.Trip{
		ID:          id,
		TripNumber:  "TRIP_" + strings.ToUpper(id),
		PassengerID: passengerID,
		Status:      trip.StatusPending,
		Origin:      trip.Place{Address: "origin", Latitude: 40.7580, Longitude: -73.9855},
		Destination: trip.Place{Address: "destination", Latitude: 40.7484, Longitude: -73.9857},

		DurationMinutes: 30,
		CreatedAt:       testNow,
		UpdatedAt:       testNow,
	}
	store.trips[id] = t
	return t
}

func seedOpenAlert(store *memStore, id, driverID, tripID string) *alertdom.Alert {
	a := &alertdom.Alert{
		ID:        id,
		DriverID:  driverID,
		TripID:    tripID,
		Status:    alertdom.StatusPending,
		ExpiresAt: testNow.Add(time.Minute),
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
	store.alerts[id] = a
	return a
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }
