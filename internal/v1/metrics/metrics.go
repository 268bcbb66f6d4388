package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the Quill game backend
// Declared in one package to keep naming consistent and avoid coupling
// between packages.
//
// Naming convention: namespace_subsystem_name
// - namespace: quill (application-level grouping)
// - subsystem: websocket, room, game, bus, redis (feature-level grouping)
// - name: specific metric (connections_active, events_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, members)
// - Counter: Cumulative events (messages processed, turns played)
// - Histogram: Latency distributions (processing time)

var (
	// ActiveWebSocketConnections tracks the current number of active WebSocket connections (Gauge - current state)
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quill",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of rooms with a live game loop (Gauge - current state)
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quill",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of rooms with a running game loop",
	})

	// RoomMembers tracks the number of members in each room (GaugeVec with room_id label - current state per room)
	RoomMembers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "quill",
		Subsystem: "room",
		Name:      "members_count",
		Help:      "Number of members in each room",
	}, []string{"room_id"})

	// WebsocketEvents tracks the total number of WebSocket events processed (CounterVec - cumulative)
	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quill",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total WebSocket events processed",
	}, []string{"event_type", "status"})

	// MessageProcessingDuration tracks the time spent processing WebSocket messages (HistogramVec - latency distribution)
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quill",
		Subsystem: "websocket",
		Name:      "message_processing_seconds",
		Help:      "Time spent processing WebSocket messages",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"event_type"})

	// EventsPublished tracks the total number of events published to room channels (Counter - cumulative)
	EventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quill",
		Subsystem: "bus",
		Name:      "events_published_total",
		Help:      "Total events published to room pub/sub channels",
	})

	// TurnsPlayed tracks the total number of drawing turns started (Counter - cumulative)
	TurnsPlayed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quill",
		Subsystem: "game",
		Name:      "turns_total",
		Help:      "Total drawing turns started",
	})

	// GamesCompleted tracks the total number of games that reached the ended state (Counter - cumulative)
	GamesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quill",
		Subsystem: "game",
		Name:      "games_completed_total",
		Help:      "Total games that ran to completion",
	})

	// CorrectGuesses tracks the total number of correct guesses across all rooms (Counter - cumulative)
	CorrectGuesses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quill",
		Subsystem: "game",
		Name:      "correct_guesses_total",
		Help:      "Total correct guesses",
	})

	// CircuitBreakerState reports breaker state per backing service (0=closed 1=open 2=half-open)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "quill",
		Subsystem: "redis",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	// CircuitBreakerFailures counts requests rejected by an open breaker (CounterVec - cumulative)
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quill",
		Subsystem: "redis",
		Name:      "circuit_breaker_failures_total",
		Help:      "Requests rejected while the circuit breaker was open",
	}, []string{"service"})

	// RateLimitRequests counts requests examined by the rate limiter (CounterVec - cumulative)
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quill",
		Subsystem: "ratelimit",
		Name:      "requests_total",
		Help:      "Requests examined by the rate limiter",
	}, []string{"path"})

	// RateLimitExceeded counts requests rejected by the rate limiter (CounterVec - cumulative)
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quill",
		Subsystem: "ratelimit",
		Name:      "exceeded_total",
		Help:      "Requests rejected for exceeding a rate limit",
	}, []string{"path", "scope"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
