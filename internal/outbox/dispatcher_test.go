package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"trip-dispatch/internal/contracts"
	"trip-dispatch/internal/logger"
	"trip-dispatch/internal/ports"
)

type passTx struct{}

func (passTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memOutbox struct {
	entries []ports.OutboxEntry
	sent    map[string]bool
	failed  map[string]string
	seq     int
}

func newMemOutbox() *memOutbox {
	return &memOutbox{sent: make(map[string]bool), failed: make(map[string]string)}
}

func (r *memOutbox) Append(_ context.Context, n ports.Notification) error {
	r.seq++
	r.entries = append(r.entries, ports.OutboxEntry{
		ID:           fmt.Sprintf("out-%d", r.seq),
		Notification: n,
		CreatedAt:    time.Now().UTC(),
	})
	return nil
}

func (r *memOutbox) PendingBatch(_ context.Context, limit int) ([]ports.OutboxEntry, error) {
	var out []ports.OutboxEntry
	for _, e := range r.entries {
		if r.sent[e.ID] {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memOutbox) MarkSent(_ context.Context, id string, _ time.Time) error {
	r.sent[id] = true
	return nil
}

func (r *memOutbox) MarkFailed(_ context.Context, id, reason string) error {
	r.failed[id] = reason
	return nil
}

type recordingPub struct {
	published []struct {
		exchange, key string
		body          []byte
	}
	err error
}

func (p *recordingPub) Publish(exchange, routingKey string, body []byte) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, struct {
		exchange, key string
		body          []byte
	}{exchange, routingKey, body})
	return nil
}

func TestDrainOnceDeliversAndMarksSent(t *testing.T) {
	ctx := context.Background()
	repo := newMemOutbox()
	pub := &recordingPub{}
	d := NewDispatcher(passTx{}, repo, pub, logger.New("outbox-test"))

	_ = repo.Append(ctx, ports.Notification{UserID: "d1", Type: "trip_alert", Title: "New trip available"})
	_ = repo.Append(ctx, ports.Notification{UserID: "p1", Type: "trip_confirmed", Title: "Driver assigned"})

	sent, err := d.DrainOnce(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if sent != 2 {
		t.Fatalf("sent = %d, want 2", sent)
	}
	if len(pub.published) != 2 {
		t.Fatalf("published = %d, want 2", len(pub.published))
	}

	first := pub.published[0]
	if first.exchange != contracts.ExchangeNotificationTopic {
		t.Fatalf("exchange = %s", first.exchange)
	}
	if first.key != contracts.RouteNotificationPrefix+"d1" {
		t.Fatalf("routing key = %s", first.key)
	}
	var msg contracts.NotificationMessage
	if err := json.Unmarshal(first.body, &msg); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if msg.UserID != "d1" || msg.Type != "trip_alert" || msg.CorrelationID == "" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	if !repo.sent["out-1"] || !repo.sent["out-2"] {
		t.Fatalf("entries not marked sent: %+v", repo.sent)
	}

	// a second pass finds nothing left
	sent, err = d.DrainOnce(ctx)
	if err != nil || sent != 0 {
		t.Fatalf("second drain sent=%d err=%v, want 0 and nil", sent, err)
	}
}

func TestDrainOnceRecordsFailuresAndRetries(t *testing.T) {
	ctx := context.Background()
	repo := newMemOutbox()
	pub := &recordingPub{err: errors.New("broker down")}
	d := NewDispatcher(passTx{}, repo, pub, logger.New("outbox-test"))

	_ = repo.Append(ctx, ports.Notification{UserID: "p1", Type: "trip_started"})

	sent, err := d.DrainOnce(ctx)
	if err != nil {
		t.Fatalf("a delivery failure must not fail the pass: %v", err)
	}
	if sent != 0 {
		t.Fatalf("sent = %d, want 0", sent)
	}
	if repo.failed["out-1"] == "" {
		t.Fatalf("failure not recorded")
	}
	if repo.sent["out-1"] {
		t.Fatalf("failed entry must stay pending")
	}

	// broker recovers, the entry goes out on the next pass
	pub.err = nil
	sent, err = d.DrainOnce(ctx)
	if err != nil || sent != 1 {
		t.Fatalf("recovery drain sent=%d err=%v, want 1 and nil", sent, err)
	}
}
