package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Call while the breaker is rejecting requests.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState is the operating mode of a circuit breaker.
type CircuitState int

const (
	StateClosed   CircuitState = iota // normal operation
	StateOpen                         // failing fast, requests rejected
	StateHalfOpen                     // probing whether the service recovered
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// halfOpenProbes is how many trial requests a half-open breaker admits, and
// how many must succeed before it closes again.
const halfOpenProbes = 3

// CircuitBreaker fails fast against an external service that keeps erroring,
// instead of piling blocked calls onto the real-time audio path.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu           sync.RWMutex
	state        CircuitState
	failures     int
	probes       int
	probeHits    int
	lastFailTime time.Time
}

// NewCircuitBreaker creates a closed breaker that opens after maxFailures
// consecutive failures and probes again after resetTimeout.
func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
	}
}

// Call runs fn under breaker protection: if the breaker is open the call is
// rejected immediately with ErrCircuitOpen, otherwise fn's result is
// recorded and returned.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.RecordResult(err == nil)
	return err
}

// RecordResult feeds an externally observed outcome into the breaker, for
// callers that cannot route the operation through Call.
func (cb *CircuitBreaker) RecordResult(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		switch cb.state {
		case StateClosed:
			cb.failures = 0
		case StateHalfOpen:
			cb.probeHits++
			if cb.probeHits >= halfOpenProbes {
				cb.state = StateClosed
				cb.failures = 0
				cb.probes = 0
				cb.probeHits = 0
			}
		}
		return
	}

	cb.lastFailTime = time.Now()
	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.maxFailures {
			cb.state = StateOpen
		}
	case StateHalfOpen:
		// One failed probe reopens the circuit.
		cb.state = StateOpen
		cb.probes = 0
		cb.probeHits = 0
	}
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.lastFailTime) >= cb.resetTimeout {
			cb.state = StateHalfOpen
			cb.probes = 1
			cb.probeHits = 0
			return true
		}
		return false
	case StateHalfOpen:
		if cb.probes < halfOpenProbes {
			cb.probes++
			return true
		}
		return false
	}
	return false
}

// GetState returns the current state.
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}
