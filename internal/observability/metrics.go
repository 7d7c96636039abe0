package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RelationshipTransitions counts applied friend-graph operations.
	RelationshipTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kinship_relationship_transitions_total",
		Help: "Friend-graph operations by operation and resulting status",
	}, []string{"operation", "status"})

	// MessagesSent counts appended direct messages.
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kinship_messages_sent_total",
		Help: "Total number of direct messages appended to the log",
	})

	// MessagesMarkedRead counts read-flag transitions.
	MessagesMarkedRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kinship_messages_marked_read_total",
		Help: "Total number of messages flipped from unread to read",
	})

	// ReactionChanges counts reaction set/clear operations.
	ReactionChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kinship_reaction_changes_total",
		Help: "Reaction operations by kind",
	}, []string{"kind"})

	// StoreLatency records record store latency by collection and operation.
	StoreLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kinship_store_latency_seconds",
		Help:    "Record store operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"collection", "operation"})

	// StoreErrors counts record store failures.
	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kinship_store_errors_total",
		Help: "Record store failures by collection and operation",
	}, []string{"collection", "operation"})

	// RedisErrors counts Redis errors by command.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kinship_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})

	// LockWait records how long callers waited for an entity lock.
	LockWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kinship_lock_wait_seconds",
		Help:    "Time spent acquiring entity locks",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
	}, []string{"backend"})

	// WebSocketConnections is the gauge of open realtime connections.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kinship_websocket_connections",
		Help: "Number of open WebSocket connections",
	})

	// WebSocketDroppedMessages counts outbound frames dropped for slow or closed clients.
	WebSocketDroppedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kinship_websocket_dropped_messages_total",
		Help: "Outbound websocket messages dropped by reason",
	}, []string{"reason"})

	// RealtimeEvents counts published realtime events by type.
	RealtimeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kinship_realtime_events_total",
		Help: "Realtime events published by type",
	}, []string{"type"})
)

// TrackStore returns a function that records store latency when called (e.g. defer).
func TrackStore(collection, operation string) func() {
	start := time.Now()
	return func() {
		StoreLatency.WithLabelValues(collection, operation).Observe(time.Since(start).Seconds())
	}
}
