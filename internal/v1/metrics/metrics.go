package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the signaling server.
//
// Naming convention: namespace_subsystem_name
// - namespace: signaling (application-level grouping)
// - subsystem: websocket, room, relay, ratelimit, store (feature-level grouping)
// - name: specific metric (connections_active, frames_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, participants)
// - Counter: Cumulative events (frames relayed, docs updated, errors)
// - Histogram: Latency distributions (processing time)

var (
	// ActiveConnections tracks the current number of active WebSocket connections (Gauge - current state)
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "signaling",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of active rooms (Gauge - current state)
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "signaling",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomParticipants tracks the number of members in each room (GaugeVec with room_id label)
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "signaling",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of members in each room",
	}, []string{"room_id"})

	// WebsocketEvents tracks the total number of WebSocket events processed (CounterVec - cumulative)
	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signaling",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total WebSocket events processed",
	}, []string{"event_type", "status"})

	// MessageProcessingDuration tracks the time spent processing WebSocket messages (HistogramVec)
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "signaling",
		Subsystem: "websocket",
		Name:      "message_processing_seconds",
		Help:      "Time spent processing WebSocket messages",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"event_type"})

	// RelayFrames tracks relayed signaling frames by type and delivery mode (CounterVec)
	RelayFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signaling",
		Subsystem: "relay",
		Name:      "frames_total",
		Help:      "Total signaling frames relayed, by frame type and delivery mode",
	}, []string{"frame_type", "mode"})

	// DocUpdates tracks shared document update outcomes (CounterVec)
	DocUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signaling",
		Subsystem: "room",
		Name:      "doc_updates_total",
		Help:      "Total shared document updates, by outcome",
	}, []string{"status"})

	// HeartbeatTerminations counts connections terminated by the heartbeat supervisor (Counter)
	HeartbeatTerminations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "signaling",
		Subsystem: "websocket",
		Name:      "heartbeat_terminations_total",
		Help:      "Total connections terminated after missing too many pongs",
	})

	// DroppedFrames counts outbound frames dropped because a client's send buffer was full (CounterVec)
	DroppedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signaling",
		Subsystem: "websocket",
		Name:      "dropped_frames_total",
		Help:      "Total outbound frames dropped, by reason",
	}, []string{"reason"})

	// RateLimitRejections counts rate limiter rejections by scope (CounterVec)
	RateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signaling",
		Subsystem: "ratelimit",
		Name:      "rejections_total",
		Help:      "Total rate limiter rejections, by scope",
	}, []string{"scope"})

	// RedisOperationsTotal tracks limiter store operations against Redis (CounterVec)
	RedisOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signaling",
		Subsystem: "store",
		Name:      "redis_operations_total",
		Help:      "Total Redis limiter store operations, by operation and status",
	}, []string{"operation", "status"})

	// CircuitBreakerState exposes the limiter store breaker state (Gauge: 0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "signaling",
		Subsystem: "store",
		Name:      "circuit_breaker_state",
		Help:      "Limiter store circuit breaker state (0=closed, 1=half-open, 2=open)",
	})
)

func IncConnection() {
	ActiveConnections.Inc()
}

func DecConnection() {
	ActiveConnections.Dec()
}
