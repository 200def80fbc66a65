// File: internal/infra/metrics/notifications.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		notificationsTotal,
		notificationDuration,
		providerCallDuration,
		eventsPublishedTotal,
	)
}

var (
	// outcome: applied|declined|duplicate|no_op|ignored|rejected|malformed|retry|failed
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Inbound payment notifications by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	notificationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_duration_seconds",
			Help:    "End-to-end handling time of inbound payment notifications.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider"},
	)

	// Server-to-server calls made by adapters (status lookup, capture, create order).
	// result: ok|error|timeout
	providerCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_call_duration_seconds",
			Help:    "Duration of outbound provider API calls.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider", "call", "result"},
	)

	// result: ok|error|dropped
	eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_events_published_total",
			Help: "Subscription events handed to the message broker.",
		},
		[]string{"result"},
	)
)

func ObserveNotification(provider, outcome string, d time.Duration) {
	notificationsTotal.WithLabelValues(norm(provider), norm(outcome)).Inc()
	notificationDuration.WithLabelValues(norm(provider)).Observe(d.Seconds())
}

func ObserveProviderCall(provider, call, result string, d time.Duration) {
	providerCallDuration.WithLabelValues(norm(provider), norm(call), norm(result)).Observe(d.Seconds())
}

func IncEventPublished(result string) {
	eventsPublishedTotal.WithLabelValues(norm(result)).Inc()
}
