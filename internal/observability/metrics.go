package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PushEventsTotal counts push-channel events processed by type.
	PushEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flatmate_push_events_total",
		Help: "Total number of push-channel events processed by type",
	}, []string{"event_type"})

	// PushEventsSkipped counts push payloads rejected before merge.
	PushEventsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flatmate_push_events_skipped_total",
		Help: "Total number of malformed push payloads skipped",
	}, []string{"reason"})

	// ConnectionsTotal counts push connection lifecycle transitions.
	ConnectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flatmate_push_connections_total",
		Help: "Total push connection transitions by kind (connect, reconnect, release)",
	}, []string{"kind"})

	// OptimisticSendsTotal counts optimistic sends by outcome.
	OptimisticSendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flatmate_optimistic_sends_total",
		Help: "Total optimistic message sends by outcome (accepted, rejected, failed)",
	}, []string{"outcome"})

	// UnreadMessages is the gauge of the current session's unread count.
	UnreadMessages = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flatmate_unread_messages",
		Help: "Current unread message count for the active session",
	})

	// WebSocketConnectionsTotal is the gauge of active server-side WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flatmate_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flatmate_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})
)
