// Package observability provides metrics and tracing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DatabaseQueryLatency records repository latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "giftdesk_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// WebSocketRoomConnections is the gauge of connections per room.
	WebSocketRoomConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "giftdesk_websocket_room_connections",
		Help: "Number of WebSocket connections per room",
	}, []string{"room"})

	// WebSocketEventsTotal counts events delivered to sockets by type.
	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftdesk_websocket_events_total",
		Help: "Total WebSocket events by type",
	}, []string{"event_type"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftdesk_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// RequestsCreated counts approval requests submitted by kind.
	RequestsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftdesk_requests_created_total",
		Help: "Total approval requests created",
	}, []string{"kind"})

	// RequestsResolved counts terminal transitions by kind and resulting status.
	RequestsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftdesk_requests_resolved_total",
		Help: "Total approval requests that left the pending state",
	}, []string{"kind", "status"})

	// ResolveConflicts counts transitions that lost the race to another decision.
	ResolveConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftdesk_resolve_conflicts_total",
		Help: "Total transitions refused because the request was no longer pending",
	}, []string{"kind"})

	// BroadcastFailures counts notification deliveries that failed after commit.
	BroadcastFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftdesk_broadcast_failures_total",
		Help: "Total room broadcasts that could not be delivered",
	}, []string{"room"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}

// RoomLabel collapses per-request member rooms into one metric series.
func RoomLabel(room string) string {
	if len(room) > 8 && room[:8] == "request:" {
		return "request"
	}
	return room
}
