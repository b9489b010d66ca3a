package cloud

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Hour}, nil, "test")

	ctx := context.Background()
	failing := errors.New("boom")
	for i := 0; i < 3; i++ {
		err := cb.Do(ctx, "op", func() error { return failing })
		require.Equal(t, failing, err)
	}
	require.Equal(t, StateOpen, cb.State())

	err := cb.Do(ctx, "op", func() error { return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Millisecond}, nil, "test")

	require.Equal(t, ErrCircuitOpen, errAfterOpen(cb))
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(15 * time.Millisecond)
	require.True(t, cb.Allow(), "breaker should probe once after timeout")
	cb.RecordResult(nil)
	require.Equal(t, StateHalfOpen, cb.State())

	require.True(t, cb.Allow())
	cb.RecordResult(nil)
	require.Equal(t, StateClosed, cb.State())
}

func errAfterOpen(cb *CircuitBreaker) error {
	ctx := context.Background()
	_ = cb.Do(ctx, "op", func() error { return errors.New("boom") })
	return cb.Do(ctx, "op", func() error { return nil })
}
