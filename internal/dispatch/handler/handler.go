// Package handler adapts HTTP requests to the dispatch service boundary.
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trip-dispatch/internal/dispatch"
	"trip-dispatch/internal/logger"
	"trip-dispatch/internal/observability"
	"trip-dispatch/internal/ports"
	"trip-dispatch/internal/ws"
)

// DispatchHTTPHandler adapts HTTP requests to the DispatchService.
type DispatchHTTPHandler struct {
	svc    ports.DispatchService
	logger *logger.Logger
	ws     *ws.Handler
}

// NewDispatchHTTPHandler wires an HTTP handler around the DispatchService.
func NewDispatchHTTPHandler(svc ports.DispatchService, log *logger.Logger, wsHandler *ws.Handler) *DispatchHTTPHandler {
	return &DispatchHTTPHandler{svc: svc, logger: log, ws: wsHandler}
}

// RegisterRoutes mounts dispatch endpoints on the provided mux.
func (handler *DispatchHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /trips", handler.instrument("/trips", handler.handleCreateTrip))
	mux.HandleFunc("POST /trips/{trip_id}/broadcast", handler.instrument("/trips/broadcast", handler.handleBroadcast))
	mux.HandleFunc("POST /trips/{trip_id}/accept", handler.instrument("/trips/accept", handler.handleAcceptDirect))
	mux.HandleFunc("POST /trips/{trip_id}/start", handler.instrument("/trips/start", handler.handleStart))
	mux.HandleFunc("POST /trips/{trip_id}/complete", handler.instrument("/trips/complete", handler.handleComplete))
	mux.HandleFunc("POST /trips/{trip_id}/renew-pin", handler.instrument("/trips/renew-pin", handler.handleRenewPin))
	mux.HandleFunc("POST /alerts/{alert_id}/accept", handler.instrument("/alerts/accept", handler.handleAccept))
	mux.HandleFunc("POST /alerts/{alert_id}/reject", handler.instrument("/alerts/reject", handler.handleReject))
	mux.HandleFunc("POST /sweep", handler.instrument("/sweep", handler.handleSweep))

	mux.HandleFunc("GET /ws/driver/{driver_id}", handler.ws.ConnectDriver)
	mux.HandleFunc("GET /ws/passenger/{passenger_id}", handler.ws.ConnectPassenger)

	mux.HandleFunc("GET /health", handler.handleHealth)
}

func (handler *DispatchHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	handler.jsonResponse(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSweep triggers one expiry pass; normally the sweeper binary does
// this on an interval, the endpoint exists for operations.
func (handler *DispatchHTTPHandler) handleSweep(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	res, err := handler.svc.SweepExpired(ctxWithTimeout)
	if err != nil {
		handler.httpError(ctxWithTimeout, w, http.StatusInternalServerError, "sweep failed", err)
		return
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

// ----- general helpers -----

// statusWriter captures the response code for the metrics middleware.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// instrument records request counts and latency per logical path.
func (handler *DispatchHTTPHandler) instrument(path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()

		next(sw, r)

		status := strconv.Itoa(sw.status)
		observability.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		observability.HTTPRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(started).Seconds())
	}
}

// jsonResponse encodes to a buffer first so we can control status on failure.
func (handler *DispatchHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	var buf []byte
	var err error

	if data != nil {
		buf, err = json.Marshal(data)
		if err != nil {
			handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	} else {
		buf = []byte("{}")
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// httpError sends a JSON error response with a message.
func (handler *DispatchHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	}
	handler.logger.Error(ctx, action, msg, err, nil)

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// faultStatus maps the dispatch fault taxonomy onto HTTP statuses. Unknown
// errors are treated as internal.
func faultStatus(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrAlertNotFoundOrExpired),
		errors.Is(err, dispatch.ErrTripNotFound):
		return http.StatusNotFound
	case errors.Is(err, dispatch.ErrTripClaimedByOther),
		errors.Is(err, dispatch.ErrTripNoLongerAvailable),
		errors.Is(err, dispatch.ErrDriverAlreadyBusy),
		errors.Is(err, dispatch.ErrScheduleConflict):
		return http.StatusConflict
	case errors.Is(err, dispatch.ErrDriverIneligible),
		errors.Is(err, dispatch.ErrCountryMismatch):
		return http.StatusForbidden
	case errors.Is(err, dispatch.ErrVehicleInvalid),
		errors.Is(err, dispatch.ErrPinOrQrInvalid),
		errors.Is(err, dispatch.ErrPinExpired),
		errors.Is(err, dispatch.ErrTooEarlyForScheduledPin),
		errors.Is(err, dispatch.ErrTooFarFromOrigin),
		errors.Is(err, dispatch.ErrTooFarFromDestination):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// serviceError translates a service failure into an HTTP response.
func (handler *DispatchHTTPHandler) serviceError(ctx context.Context, w http.ResponseWriter, err error) {
	status := faultStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	handler.httpError(ctx, w, status, msg, err)
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *DispatchHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		reqID = randID()
	}
	return handler.logger.WithRequestID(ctx, reqID)
}

// randID generates a random 24-char hex string suitable for request IDs.
func randID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
