package dispatch

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"trip-dispatch/internal/contracts"
	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/ports"
)

// generateTripNumber returns an ID like: TRIP_YYYYMMDD_HHMMSS_XXX
// where XXX is a monotonic millisecond fragment to reduce collisions.
func generateTripNumber() string {
	now := time.Now().UTC()
	return fmt.Sprintf("TRIP_%04d%02d%02d_%02d%02d%02d_%03d",
		now.Year(), int(now.Month()), now.Day(),
		now.Hour(), now.Minute(), now.Second(),
		now.Nanosecond()/1e6, // ms
	)
}

// generateCorrelationID creates a simple correlation ID for tracing requests.
func generateCorrelationID() string {
	var b [3]byte // 6 hex chars
	_, _ = rand.Read(b[:])
	ts := time.Now().UTC().Format("20060102T150405")
	return "req_" + ts + "_" + hex.EncodeToString(b[:])
}

// resolveTripCountry resolves the trip's country from the origin place,
// falling back to the destination. Empty means unknown, which disables the
// country gate.
func (service *dispatchService) resolveTripCountry(ctx context.Context, t *trip.Trip) (string, error) {
	if t.Origin.PlaceID != nil {
		country, err := service.places.ResolveCountry(ctx, *t.Origin.PlaceID)
		if err != nil {
			return "", err
		}
		if country != "" {
			return country, nil
		}
	}
	if t.Destination.PlaceID != nil {
		return service.places.ResolveCountry(ctx, *t.Destination.PlaceID)
	}
	return "", nil
}

// pinExpiry is the later of (now + 2h) and (scheduled + 1h), so scheduled
// trips far in the future keep a usable pin through their start window.
func pinExpiry(now time.Time, scheduledAt *time.Time) time.Time {
	expiry := now.Add(2 * time.Hour)
	if scheduledAt != nil {
		if byScheduled := scheduledAt.Add(time.Hour); byScheduled.After(expiry) {
			expiry = byScheduled
		}
	}
	return expiry
}

// queueNotification appends to the outbox inside the caller's transaction.
// The failure to queue is a storage failure and does roll the operation
// back; delivery failures later do not.
func (service *dispatchService) queueNotification(txCtx context.Context, userID, kind, title, message string, data map[string]any) error {
	return service.outbox.Append(txCtx, ports.Notification{
		UserID:  userID,
		Type:    kind,
		Title:   title,
		Message: message,
		Data:    data,
	})
}

// publishTripStatus sends a trip status update to the trip topic exchange
// using routing key trip.status.{status}, e.g., trip.status.confirmed.
// Post-commit and best effort; the caller logs failures.
func (service *dispatchService) publishTripStatus(ctx context.Context, msg contracts.TripStatusMessage) error {
	if service.pub == nil {
		// messaging is unwired in sweeper-only deployments
		return nil
	}
	routingKey := contracts.RouteTripStatusPrefix + strings.ToLower(msg.Status)

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := service.pub.Publish(contracts.ExchangeTripTopic, routingKey, body); err != nil {
		return err
	}

	service.logger.Info(ctx, "trip_status_published", "Published trip status to RabbitMQ", map[string]any{
		"routing_key": routingKey,
	})
	return nil
}

// publishTripAlert sends one broadcast alert to the trip topic exchange
// using routing key trip.alert.{driverId}.
func (service *dispatchService) publishTripAlert(ctx context.Context, msg contracts.TripAlertMessage) error {
	if service.pub == nil {
		return nil
	}
	routingKey := contracts.RouteTripAlertPrefix + msg.DriverID

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return service.pub.Publish(contracts.ExchangeTripTopic, routingKey, body)
}
