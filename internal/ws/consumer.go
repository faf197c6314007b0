package ws

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"

	"trip-dispatch/internal/contracts"
	"trip-dispatch/internal/ports"
	"trip-dispatch/internal/rabbitmq"
)

// StartNotificationConsumer starts consuming the notifications queue in the
// background and pushes each message to the owning user's live socket.
// Messages for users without an open socket on this instance are acked and
// dropped; the outbox already recorded them as sent once the broker took
// the durable copy.
func (h *Hub) StartNotificationConsumer(ctx context.Context, client *rabbitmq.Client) {
	go func() {
		err := client.Consume(ctx, contracts.QueueNotifications, "dispatch-ws-push", 25,
			func(ctx context.Context, d amqp.Delivery) error {
				var msg contracts.NotificationMessage
				if err := json.Unmarshal(d.Body, &msg); err != nil {
					h.logger.Error(ctx, "mq_message_parse_failed", "Failed to parse notification message", err,
						map[string]any{"routing_key": d.RoutingKey})
					return err
				}

				_ = h.Notify(ctx, ports.Notification{
					UserID:   msg.UserID,
					Type:     msg.Type,
					Title:    msg.Title,
					Message:  msg.Message,
					Data:     msg.Data,
					Priority: msg.Priority,
				})
				return nil
			})
		if err != nil && ctx.Err() == nil {
			h.logger.Error(ctx, "notification_consumer_stopped", "Notification consumer terminated", err, nil)
		}
	}()
}
