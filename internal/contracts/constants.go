package contracts

// Exchanges
const (
	ExchangeTripTopic         = "trip_topic"
	ExchangeNotificationTopic = "notification_topic"
)

// Queues
const (
	QueueTripAlerts    = "trip_alerts"
	QueueTripStatus    = "trip_status"
	QueueNotifications = "notifications"
)

// Routing patterns
const (
	RouteTripAlertPrefix    = "trip.alert."   // {driver_id}
	RouteTripStatusPrefix   = "trip.status."  // {status}
	RouteNotificationPrefix = "notification." // {user_id}
)
