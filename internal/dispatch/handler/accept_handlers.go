package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"trip-dispatch/internal/ports"
)

// --- Request DTOs (HTTP boundary) ---

type acceptRequest struct {
	DriverID  string  `json:"driver_id"`
	VehicleID *string `json:"vehicle_id,omitempty"`
}

type rejectRequest struct {
	DriverID string  `json:"driver_id"`
	Reason   *string `json:"reason,omitempty"`
}

// pathAlertID validates the alert_id path segment.
func (handler *DispatchHTTPHandler) pathAlertID(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	alertID := strings.TrimSpace(r.PathValue("alert_id"))
	if alertID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "alert_id is required", errors.New("missing alert_id"))
		return "", false
	}
	return alertID, true
}

// ----- Handler: POST /alerts/{alert_id}/accept -----

func (handler *DispatchHTTPHandler) handleAccept(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	alertID, ok := handler.pathAlertID(ctx, w, r)
	if !ok {
		return
	}

	var req acceptRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.DriverID) == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "driver_id is required", nil)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.Accept(ctxWithTimeout, ports.AcceptInput{
		AlertID:   alertID,
		DriverID:  strings.TrimSpace(req.DriverID),
		VehicleID: req.VehicleID,
	})
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

// ----- Handler: POST /alerts/{alert_id}/reject -----

func (handler *DispatchHTTPHandler) handleReject(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	alertID, ok := handler.pathAlertID(ctx, w, r)
	if !ok {
		return
	}

	var req rejectRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.DriverID) == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "driver_id is required", nil)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.Reject(ctxWithTimeout, ports.RejectInput{
		AlertID:  alertID,
		DriverID: strings.TrimSpace(req.DriverID),
		Reason:   req.Reason,
	})
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

// ----- Handler: POST /trips/{trip_id}/accept (direct, alert-less) -----

func (handler *DispatchHTTPHandler) handleAcceptDirect(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	tripID, ok := handler.pathTripID(ctx, w, r)
	if !ok {
		return
	}
	ctx = handler.logger.WithTripID(ctx, tripID)

	var req acceptRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.DriverID) == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "driver_id is required", nil)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.AcceptDirect(ctxWithTimeout, ports.DirectAcceptInput{
		TripID:    tripID,
		DriverID:  strings.TrimSpace(req.DriverID),
		VehicleID: req.VehicleID,
	})
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}
