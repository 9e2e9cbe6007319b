// Package metrics defines the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Redis Store Metrics
var (
	// StoreOpsTotal tracks total store operations by operation type and status
	StoreOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operations_total",
			Help: "Total store operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// StoreOpDuration tracks store operation latency in seconds
	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Store operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// RedisConnectionErrors tracks Redis connection errors
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total Redis connection errors",
		},
	)

	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)

	// EventPublishFailures tracks change events that could not be published
	// after the committed state change
	EventPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "event_publish_failures_total",
			Help: "Total change events that failed to publish after retries",
		},
	)
)

// Vote Processing Metrics
var (
	// VotesTotal tracks vote attempts by result
	VotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "votes_total",
			Help: "Total vote attempts by result (accepted/poll_not_found/poll_closed/unknown_option/error)",
		},
		[]string{"result"},
	)

	// VoteDuration tracks vote processing latency
	VoteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vote_duration_seconds",
			Help:    "Vote processing duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		},
	)

	// PollsCreatedTotal tracks polls created
	PollsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "polls_created_total",
			Help: "Total polls created",
		},
	)

	// PollsClosedTotal tracks polls closed
	PollsClosedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "polls_closed_total",
			Help: "Total polls closed",
		},
	)

	// PollsDeletedTotal tracks polls deleted
	PollsDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "polls_deleted_total",
			Help: "Total polls deleted",
		},
	)
)

// Registry and WebSocket Metrics
var (
	// WebSocketConnectionsCurrent tracks current active WebSocket connections
	WebSocketConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_current",
			Help: "Current number of active WebSocket connections",
		},
	)

	// WebSocketConnectionsTotal tracks total WebSocket connection attempts by result
	WebSocketConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "Total WebSocket connection attempts by result (accepted/rejected)",
		},
		[]string{"result"},
	)

	// WebSocketConnectionDuration tracks WebSocket connection lifetime
	WebSocketConnectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_connection_duration_seconds",
			Help:    "WebSocket connection duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600},
		},
	)

	// WebSocketMessageSendDuration tracks WebSocket message send duration
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "WebSocket message send duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
		},
	)

	// WebSocketPingFailures tracks WebSocket ping failures
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total WebSocket ping failures (client not responding)",
		},
	)

	// RegistrySubscriptionsCurrent tracks connections currently subscribed to a poll
	RegistrySubscriptionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "registry_subscriptions_current",
			Help: "Current number of poll subscriptions across all connections",
		},
	)

	// RegistrySlowClientsEvicted tracks slow clients evicted due to full buffers
	RegistrySlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "registry_slow_clients_evicted_total",
			Help: "Total slow WebSocket clients evicted due to buffer full",
		},
	)

	// RegistryCommandChannelDepth tracks current registry command channel depth
	RegistryCommandChannelDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "registry_command_channel_depth",
			Help: "Current registry command channel depth",
		},
	)

	// RegistryPanicsTotal tracks registry actor panic recoveries
	RegistryPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "registry_panics_total",
			Help: "Total registry panic recoveries",
		},
	)
)

// Broadcast Metrics
var (
	// BroadcastsTotal tracks fan-outs performed by event kind
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcasts_total",
			Help: "Total broadcast fan-outs by event kind",
		},
		[]string{"kind"},
	)

	// BroadcastFanoutSize tracks how many connections each broadcast reached
	BroadcastFanoutSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "broadcast_fanout_size",
			Help:    "Number of connections reached per broadcast",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// BroadcastStaleDropped tracks events skipped because a connection had
	// already seen a newer sequence
	BroadcastStaleDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_stale_dropped_total",
			Help: "Total per-connection deliveries skipped as stale by sequence check",
		},
	)
)

// Event Bridge Metrics
var (
	// BridgeMessagesTotal tracks pub/sub messages processed by status
	BridgeMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_messages_total",
			Help: "Total pub/sub messages processed by status (dispatched/decode_error)",
		},
		[]string{"status"},
	)

	// BridgeMessageLatency tracks time from pub/sub receive to WebSocket fan-out
	BridgeMessageLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bridge_message_latency_seconds",
			Help:    "Latency from pub/sub message receive to WebSocket fan-out",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
		},
	)

	// BridgeReconnectionsTotal tracks pub/sub reconnection attempts
	BridgeReconnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_reconnections_total",
			Help: "Total pub/sub reconnection attempts after disconnect",
		},
	)

	// BridgeSubscriptionActive tracks whether the pub/sub subscription is active (1) or disconnected (0)
	BridgeSubscriptionActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_subscription_active",
			Help: "1 if pub/sub subscription is active, 0 if disconnected",
		},
	)
)

// Instance Coordination Metrics
var (
	// InstancesActive tracks server instances with a heartbeat inside the liveness window
	InstancesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "instances_active",
			Help: "Number of server instances with a recent heartbeat",
		},
	)
)

// Build Information Metrics
var (
	// BuildInfo is a gauge that always returns 1, with build metadata as labels
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build information with version, commit, build_time, and go_version labels (value is always 1)",
		},
		[]string{"version", "commit", "build_time", "go_version"},
	)
)

// HTTP Request Metrics
// Note: http_requests_total{method, path, status} and
// http_request_duration_seconds{method, path} are provided by the
// echoprometheus middleware.
