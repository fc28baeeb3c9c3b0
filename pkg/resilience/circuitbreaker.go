package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CircuitBreaker implements the three-state circuit breaker described by
// CircuitBreakerConfig: Closed allows calls through while counting
// failures, Open fails fast until Timeout elapses, Half-Open lets every
// call through (with no limit on their number) and closes again after
// SuccessThreshold consecutive successes.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu        sync.Mutex
	state     State
	failures  int64
	successes int64
	openedAt  time.Time
}

// NewCircuitBreaker builds a CircuitBreaker in the Closed state.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

var errCircuitOpen = fmt.Errorf("circuit breaker open")

// Execute runs fn if the circuit allows it, recording the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn Executor) error {
	if !cb.allow() {
		return errCircuitOpen
	}

	err := fn(ctx)
	cb.record(err == nil)
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.openedAt) < cb.cfg.Timeout {
			return false
		}
		cb.transition(StateHalfOpen)
		cb.successes = 0
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.successes++
			if cb.successes >= cb.cfg.SuccessThreshold {
				cb.transition(StateClosed)
			}
		}
		return
	}

	if cb.state == StateHalfOpen {
		cb.transition(StateOpen)
		cb.openedAt = time.Now()
		return
	}

	cb.failures++
	if cb.failures >= cb.cfg.FailureThreshold {
		cb.transition(StateOpen)
		cb.openedAt = time.Now()
	}
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// State reports the breaker's current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
