package livesource

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without contacting the node while the breaker
// is open.
var ErrCircuitOpen = errors.New("live node circuit breaker open")

const (
	stateClosed   = "closed"
	stateOpen     = "open"
	stateHalfOpen = "half-open"
)

// CircuitBreaker stops calls to a failing node for resetTimeout after
// failureThreshold consecutive failures. A threshold of 0 disables it.
type CircuitBreaker struct {
	mu               sync.Mutex
	failureThreshold int
	resetTimeout     time.Duration
	lastFailureTime  time.Time
	failureCount     int
	state            string
	now              func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		state:            stateClosed,
		now:              time.Now,
	}
}

// Allow checks if the circuit breaker allows the operation
func (cb *CircuitBreaker) Allow() bool {
	if cb == nil || cb.failureThreshold <= 0 {
		return true
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case stateOpen:
		if cb.now().Sub(cb.lastFailureTime) > cb.resetTimeout {
			cb.state = stateHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess records a successful operation
func (cb *CircuitBreaker) RecordSuccess() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = stateClosed
	cb.failureCount = 0
}

// RecordFailure records a failed operation
func (cb *CircuitBreaker) RecordFailure() {
	if cb == nil || cb.failureThreshold <= 0 {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = cb.now()

	if cb.state == stateHalfOpen || cb.failureCount >= cb.failureThreshold {
		cb.state = stateOpen
	}
}

// State returns "closed", "open" or "half-open".
func (cb *CircuitBreaker) State() string {
	if cb == nil {
		return stateClosed
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
