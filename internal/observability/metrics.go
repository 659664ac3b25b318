package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mechanic_dispatch"

var (
	BookingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "booking_transitions_total", Help: "Booking operations by op and result kind"},
		[]string{"op", "result"},
	)
	NearbyLatency   = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "nearby_query_seconds", Help: "Nearby mechanic query latency"})
	MechanicsOnline = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "mechanics_online", Help: "Mechanics with a position and available=true"})
	RatingsTotal    = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ratings_total", Help: "Ratings recorded by rater role"},
		[]string{"role"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "notifications_total", Help: "Notification publish attempts by outcome"},
		[]string{"outcome"},
	)
	NotificationStreams = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "notification_streams", Help: "Open notification streams"})

	LocationPublishErrors = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "location_publish_errors_total", Help: "Failed location publishes to kafka"})
	EventPublishErrors    = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "event_publish_errors_total", Help: "Failed booking event publishes to kafka"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
