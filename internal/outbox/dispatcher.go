// Package outbox drains notification commands persisted alongside trip
// state changes and delivers them to the broker. Live socket delivery
// happens on the consuming side of the notifications queue.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"trip-dispatch/internal/contracts"
	"trip-dispatch/internal/logger"
	"trip-dispatch/internal/ports"

	"github.com/google/uuid"
)

const (
	defaultInterval  = time.Second
	defaultBatchSize = 50
	producerName     = "dispatch-service"
)

// Publisher is the broker-side delivery surface, satisfied by
// rabbitmq.MQPublisher.
type Publisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// Dispatcher periodically drains the outbox. Delivery failures are recorded
// and retried on the next pass, never surfaced to the operation that queued
// the message.
type Dispatcher struct {
	uow    ports.UnitOfWork
	repo   ports.OutboxRepository
	pub    Publisher
	logger *logger.Logger

	interval time.Duration
	batch    int
}

// NewDispatcher wires the dispatcher with default interval and batch size.
func NewDispatcher(uow ports.UnitOfWork, repo ports.OutboxRepository, pub Publisher, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		uow:      uow,
		repo:     repo,
		pub:      pub,
		logger:   log,
		interval: defaultInterval,
		batch:    defaultBatchSize,
	}
}

// Run drains on a fixed interval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.DrainOnce(ctx); err != nil {
				d.logger.Error(ctx, "outbox_drain_failed", "Outbox drain pass failed", err, nil)
			}
		}
	}
}

// DrainOnce delivers one locked batch and returns how many entries were sent.
func (d *Dispatcher) DrainOnce(ctx context.Context) (int, error) {
	sent := 0
	err := d.uow.WithinTx(ctx, func(txCtx context.Context) error {
		entries, err := d.repo.PendingBatch(txCtx, d.batch)
		if err != nil {
			return fmt.Errorf("load pending batch: %w", err)
		}

		for _, entry := range entries {
			if err := d.deliver(txCtx, entry.Notification); err != nil {
				d.logger.Error(txCtx, "notification_delivery_failed", "Failed to deliver notification", err, map[string]any{
					"outbox_id": entry.ID,
					"user_id":   entry.Notification.UserID,
					"attempts":  entry.Attempts,
				})
				if markErr := d.repo.MarkFailed(txCtx, entry.ID, err.Error()); markErr != nil {
					return markErr
				}
				continue
			}

			if err := d.repo.MarkSent(txCtx, entry.ID, time.Now().UTC()); err != nil {
				return err
			}
			sent++
		}
		return nil
	})
	return sent, err
}

// deliver publishes the durable queue copy.
func (d *Dispatcher) deliver(_ context.Context, n ports.Notification) error {
	msg := contracts.NotificationMessage{
		UserID:   n.UserID,
		Type:     n.Type,
		Title:    n.Title,
		Message:  n.Message,
		Data:     n.Data,
		Priority: n.Priority,
		Envelope: contracts.Envelope{
			CorrelationID: uuid.NewString(),
			Producer:      producerName,
			SentAt:        time.Now().UTC(),
		},
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification message: %w", err)
	}

	routingKey := contracts.RouteNotificationPrefix + n.UserID
	if err := d.pub.Publish(contracts.ExchangeNotificationTopic, routingKey, body); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
