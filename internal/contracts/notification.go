package contracts

// NotificationMessage is a user-facing push drained from the outbox.
// Routing key: "notification.{user_id}" on ExchangeNotificationTopic.
type NotificationMessage struct {
	UserID   string         `json:"user_id"`
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Data     map[string]any `json:"data,omitempty"`
	Priority string         `json:"priority,omitempty"`
	Envelope
}
