// Package metrics exposes the Prometheus collectors shared across
// components, grounded on the teacher's ws/metrics.go.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ConnectionsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "realtime",
		Name:      "connections_active",
		Help:      "Currently connected WebSocket clients by endpoint.",
	}, []string{"endpoint"})

	ConnectionsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "realtime",
		Name:      "connections_rejected_total",
		Help:      "Upgrade attempts rejected by endpoint.",
	}, []string{"endpoint"})

	FramesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "realtime",
		Name:      "frames_received_total",
		Help:      "Inbound text frames by endpoint.",
	}, []string{"endpoint"})

	FramesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "realtime",
		Name:      "frames_sent_total",
		Help:      "Outbound text frames written to clients.",
	})

	FramesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "realtime",
		Name:      "frames_dropped_total",
		Help:      "Non-durable broadcasts dropped for backpressure, by topic namespace.",
	}, []string{"topic"})

	SubscriptionsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "realtime",
		Name:      "subscriptions_active",
		Help:      "Active subscriptions by topic namespace.",
	}, []string{"topic"})

	NotificationsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "realtime",
		Name:      "notifications_delivered_total",
		Help:      "Outbox entries handed to a connected recipient.",
	})

	RateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "realtime",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter, by kind (message, chat).",
	}, []string{"kind"})

	BridgeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "realtime",
		Name:      "bridge_errors_total",
		Help:      "ServiceBridge source failures that led to a restart attempt, by source (kafka, nats).",
	}, []string{"source"})
)

// Register adds every collector to the given registerer. Called once
// from cmd/realtimed/main.go against prometheus.DefaultRegisterer.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		ConnectionsActive,
		ConnectionsRejected,
		FramesReceived,
		FramesSent,
		FramesDropped,
		SubscriptionsActive,
		NotificationsDelivered,
		RateLimited,
		BridgeErrors,
	)
}
