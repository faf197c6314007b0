package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AlertsBroadcast = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_dispatch", Name: "alerts_broadcast_total", Help: "Driver alerts created by broadcasts"})
	AlertsExpired   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_dispatch", Name: "alerts_expired_total", Help: "Alerts expired by the sweeper"})
	AcceptsWon      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_dispatch", Name: "accepts_won_total", Help: "Acceptances that claimed the trip"})
	AcceptsLost     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_dispatch", Name: "accepts_lost_total", Help: "Acceptances that lost the claim race"})
	TripsReleased   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_dispatch", Name: "trips_released_total", Help: "Orphaned pending trips released by the sweeper"})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "trip_dispatch",
		Name:      "sweep_duration_seconds",
		Help:      "Expiry sweep latency distribution",
		Buckets:   prometheus.DefBuckets,
	})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "trip_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trip_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
