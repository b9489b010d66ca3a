package cloud

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nimbusops/fleetroll/internal/logging"
	"github.com/nimbusops/fleetroll/pkg/metrics"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejecting
// calls without attempting them.
var ErrCircuitOpen = errors.New("cloud: circuit breaker is open")

// CircuitState is the state of a CircuitBreaker.
type CircuitState string

const (
	StateClosed   CircuitState = "closed"
	StateOpen     CircuitState = "open"
	StateHalfOpen CircuitState = "half-open"
)

// CircuitBreakerConfig configures CircuitBreaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive successes required to
	// close from half-open.
	SuccessThreshold int
	// Timeout is how long to stay open before probing with a half-open call.
	Timeout time.Duration

	// OnStateChange, if set, is invoked after every completed state
	// transition (e.g. to drive an audit trail). Never invoked for a
	// no-op transition (from == to).
	OnStateChange func(adapter string, from, to CircuitState)
	// OnCall, if set, is invoked after each attempted Do call with the
	// call's outcome. Never invoked when Allow rejects the call outright.
	OnCall func(ctx context.Context, adapter, op string, err error)
}

// DefaultCircuitBreakerConfig returns sane defaults for wrapping a cloud
// provider API: open after 5 consecutive failures, require 2 consecutive
// successes to fully recover, wait 30s before probing again.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// CircuitBreaker wraps cloud adapter calls so that a run of failures against
// one provider API (e.g. a throttled region) fails fast instead of retrying
// into every subsequent poll's deadline budget.
type CircuitBreaker struct {
	config CircuitBreakerConfig
	logger *zap.Logger
	// name labels this breaker's metric series, e.g. "ec2", "ecs".
	name string

	mu               sync.Mutex
	state            CircuitState
	failureCount     int
	successCount     int
	lastStateChange  time.Time
	halfOpenInFlight bool
}

// NewCircuitBreaker creates a closed CircuitBreaker. name labels the
// adapter it guards for metrics purposes (e.g. "ec2", "ecs", "asg"). A nil
// logger is replaced with zap.NewNop().
func NewCircuitBreaker(config CircuitBreakerConfig, logger *zap.Logger, name string) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitBreaker{
		config:          config,
		logger:          logger,
		name:            name,
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
}

// Allow reports whether a call may proceed, transitioning Open->HalfOpen
// once the timeout has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.lastStateChange) >= cb.config.Timeout {
			cb.transition(StateHalfOpen)
			cb.halfOpenInFlight = true
			return true
		}
		return false
	case StateHalfOpen:
		if cb.halfOpenInFlight {
			return false
		}
		cb.halfOpenInFlight = true
		return true
	default:
		return true
	}
}

// RecordResult updates breaker state based on the outcome of a call
// permitted by Allow.
func (cb *CircuitBreaker) RecordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.halfOpenInFlight = false

	if err == nil {
		cb.failureCount = 0
		if cb.state == StateHalfOpen {
			cb.successCount++
			if cb.successCount >= cb.config.SuccessThreshold {
				cb.transition(StateClosed)
			}
		}
		return
	}

	cb.successCount = 0
	cb.failureCount++
	if cb.state == StateHalfOpen {
		cb.transition(StateOpen)
		return
	}
	if cb.state == StateClosed && cb.failureCount >= cb.config.FailureThreshold {
		cb.transition(StateOpen)
	}
}

// Do executes fn, labeled op for metrics and logging, if the breaker
// allows it, recording the outcome.
func (cb *CircuitBreaker) Do(ctx context.Context, op string, fn func() error) error {
	if !cb.Allow() {
		metrics.CloudAPIRequests.WithLabelValues(cb.name, op, "rejected").Inc()
		return ErrCircuitOpen
	}

	logging.LogCloudCall(cb.logger, cb.name, op)
	err := fn()
	cb.RecordResult(err)

	status := "success"
	if err != nil {
		status = "failure"
		logging.LogCloudError(cb.logger, cb.name, op, err)
	}
	metrics.CloudAPIRequests.WithLabelValues(cb.name, op, status).Inc()

	if cb.config.OnCall != nil {
		cb.config.OnCall(ctx, cb.name, op, err)
	}
	return err
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.lastStateChange = time.Now()
	cb.failureCount = 0
	cb.successCount = 0
	if from != to {
		if cb.logger != nil {
			cb.logger.Info("circuit breaker state change",
				zap.String("adapter", cb.name),
				zap.String("from", string(from)),
				zap.String("to", string(to)),
			)
		}
		metrics.CircuitBreakerTransitionsTotal.WithLabelValues(cb.name, string(to)).Inc()
		if cb.config.OnStateChange != nil {
			cb.config.OnStateChange(cb.name, from, to)
		}
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
