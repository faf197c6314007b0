package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"trip-dispatch/internal/ports"
)

// --- Request DTOs (HTTP boundary) ---

type placeRequest struct {
	PlaceID   *string `json:"place_id,omitempty"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type createTripRequest struct {
	PassengerID       string       `json:"passenger_id"`
	Origin            placeRequest `json:"origin"`
	Destination       placeRequest `json:"destination"`
	ScheduledAt       *time.Time   `json:"scheduled_at,omitempty"`
	ReturnScheduledAt *time.Time   `json:"return_scheduled_at,omitempty"`
	DurationMinutes   int          `json:"duration_minutes"`
}

type broadcastRequest struct {
	VehicleType string `json:"vehicle_type,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

type startTripRequest struct {
	DriverID  string   `json:"driver_id"`
	Pin       string   `json:"pin,omitempty"`
	QR        string   `json:"qr,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

type completeTripRequest struct {
	DriverID  string   `json:"driver_id"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

type renewPinRequest struct {
	PassengerID string `json:"passenger_id"`
}

// decodeJSON enforces content type, size limit, and strict field matching.
func (handler *DispatchHTTPHandler) decodeJSON(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		handler.httpError(ctx, w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MiB
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			handler.httpError(ctx, w, http.StatusRequestEntityTooLarge, "request body too large", err)
			return false
		}
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
		return false
	}
	return true
}

// pathTripID validates the trip_id path segment.
func (handler *DispatchHTTPHandler) pathTripID(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	tripID := strings.TrimSpace(r.PathValue("trip_id"))
	if tripID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "trip_id is required", errors.New("missing trip_id"))
		return "", false
	}
	return tripID, true
}

// ----- Handler: POST /trips -----

func (handler *DispatchHTTPHandler) handleCreateTrip(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req createTripRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}

	if strings.TrimSpace(req.PassengerID) == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "passenger_id is required", nil)
		return
	}

	in := ports.CreateTripInput{
		PassengerID: strings.TrimSpace(req.PassengerID),
		Origin: ports.PlaceInput{
			PlaceID:   req.Origin.PlaceID,
			Address:   strings.TrimSpace(req.Origin.Address),
			Latitude:  req.Origin.Latitude,
			Longitude: req.Origin.Longitude,
		},
		Destination: ports.PlaceInput{
			PlaceID:   req.Destination.PlaceID,
			Address:   strings.TrimSpace(req.Destination.Address),
			Latitude:  req.Destination.Latitude,
			Longitude: req.Destination.Longitude,
		},
		ScheduledAt:       req.ScheduledAt,
		ReturnScheduledAt: req.ReturnScheduledAt,
		DurationMinutes:   req.DurationMinutes,
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.CreateTrip(ctxWithTimeout, in)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusCreated, res)
}

// ----- Handler: POST /trips/{trip_id}/broadcast -----

func (handler *DispatchHTTPHandler) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	tripID, ok := handler.pathTripID(ctx, w, r)
	if !ok {
		return
	}
	ctx = handler.logger.WithTripID(ctx, tripID)

	var req broadcastRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := handler.svc.Broadcast(ctxWithTimeout, ports.BroadcastInput{
		TripID:      tripID,
		VehicleType: req.VehicleType,
		Limit:       req.Limit,
	})
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

// ----- Handler: POST /trips/{trip_id}/start -----

func (handler *DispatchHTTPHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	tripID, ok := handler.pathTripID(ctx, w, r)
	if !ok {
		return
	}
	ctx = handler.logger.WithTripID(ctx, tripID)

	var req startTripRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.DriverID) == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "driver_id is required", nil)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.Start(ctxWithTimeout, ports.StartInput{
		TripID:    tripID,
		DriverID:  strings.TrimSpace(req.DriverID),
		Pin:       strings.TrimSpace(req.Pin),
		QR:        strings.TrimSpace(req.QR),
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

// ----- Handler: POST /trips/{trip_id}/complete -----

func (handler *DispatchHTTPHandler) handleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	tripID, ok := handler.pathTripID(ctx, w, r)
	if !ok {
		return
	}
	ctx = handler.logger.WithTripID(ctx, tripID)

	var req completeTripRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.DriverID) == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "driver_id is required", nil)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.Complete(ctxWithTimeout, ports.CompleteInput{
		TripID:    tripID,
		DriverID:  strings.TrimSpace(req.DriverID),
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

// ----- Handler: POST /trips/{trip_id}/renew-pin -----

func (handler *DispatchHTTPHandler) handleRenewPin(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	tripID, ok := handler.pathTripID(ctx, w, r)
	if !ok {
		return
	}
	ctx = handler.logger.WithTripID(ctx, tripID)

	var req renewPinRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.PassengerID) == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "passenger_id is required", nil)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.RenewPin(ctxWithTimeout, ports.RenewPinInput{
		TripID:      tripID,
		PassengerID: strings.TrimSpace(req.PassengerID),
	})
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}
