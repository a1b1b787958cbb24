package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "turntaking_active_sessions",
		Help: "Number of active tutoring sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turntaking_sessions_total",
		Help: "Total number of sessions handled",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "turntaking_session_duration_seconds",
		Help:    "Duration of tutoring sessions in seconds",
		Buckets: []float64{10, 30, 60, 120, 300, 600, 1800, 3600},
	})

	// Turn-taking state machine metrics
	stateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turntaking_state_transitions_total",
		Help: "Total state machine transitions",
	}, []string{"from", "to"})

	bargeIns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turntaking_barge_ins_total",
		Help: "Total number of detected barge-ins",
	})

	vadEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turntaking_vad_events_total",
		Help: "Total speech boundary events by type and profile",
	}, []string{"event", "profile"})

	// Speculative completion metrics
	speculativeOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turntaking_speculative_outcomes_total",
		Help: "Speculative cache outcomes on response retrieval",
	}, []string{"outcome"}) // outcome: "exact", "fuzzy", "stale", "empty"

	completionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "turntaking_completion_latency_seconds",
		Help:    "Latency of the blocking response retrieval path in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	completionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turntaking_completion_requests_total",
		Help: "Total completion service requests",
	}, []string{"kind", "status"}) // kind: "speculative" or "final"

	// Avatar dispatch metrics
	avatarRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turntaking_avatar_requests_total",
		Help: "Total avatar speak/interrupt requests",
	}, []string{"op", "status"})

	// Audio metrics
	audioBytesForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turntaking_audio_bytes_forwarded_total",
		Help: "Total audio bytes forwarded to the transcription service",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turntaking_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "turntaking_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turntaking_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// Metrics tracks metrics for a single session
type Metrics struct {
	sessionID string
	startTime time.Time
	respStart time.Time
	mu        sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *Metrics {
	return &Metrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a session
func (m *Metrics) RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a session
func (m *Metrics) RecordSessionEnd() {
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordStateTransition records one state machine edge being taken
func (m *Metrics) RecordStateTransition(from, to string) {
	stateTransitions.WithLabelValues(from, to).Inc()
}

// RecordBargeIn records a detected barge-in
func (m *Metrics) RecordBargeIn() {
	bargeIns.Inc()
}

// RecordVADEvent records a speech boundary event
func (m *Metrics) RecordVADEvent(event, profile string) {
	vadEvents.WithLabelValues(event, profile).Inc()
}

// RecordSpeculativeOutcome records how the blocking retrieval path was served
func (m *Metrics) RecordSpeculativeOutcome(outcome string) {
	speculativeOutcomes.WithLabelValues(outcome).Inc()
}

// RecordResponseStart marks the beginning of the blocking retrieval path
func (m *Metrics) RecordResponseStart() {
	m.mu.Lock()
	m.respStart = time.Now()
	m.mu.Unlock()
}

// RecordResponseEnd observes retrieval latency
func (m *Metrics) RecordResponseEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.respStart.IsZero() {
		completionLatency.Observe(time.Since(m.respStart).Seconds())
		m.respStart = time.Time{}
	}
}

// RecordAudioBytesForwarded records audio bytes sent to transcription
func (m *Metrics) RecordAudioBytesForwarded(n int64) {
	audioBytesForwarded.Add(float64(n))
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordCompletionRequest records a completion service call
func RecordCompletionRequest(kind string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	completionRequests.WithLabelValues(kind, status).Inc()
}

// RecordAvatarRequest records an avatar speak/interrupt call
func RecordAvatarRequest(op string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	avatarRequests.WithLabelValues(op, status).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
