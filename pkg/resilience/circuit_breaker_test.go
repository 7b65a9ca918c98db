package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Dushime20/urutibiz-backend-sub011/pkg/errors"
)

func newTestBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	return NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: threshold,
		Cooldown:         cooldown,
	}, nil)
}

func TestCircuitBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	cb := newTestBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		require.NoError(t, cb.Allow())
		cb.RecordFailure()
	}
	assert.Equal(t, CircuitBreakerClosed, cb.State())

	require.NoError(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, CircuitBreakerOpen, cb.State())
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := newTestBreaker(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	assert.Equal(t, CircuitBreakerClosed, cb.State())
}

func TestCircuitBreakerFailsFastWhileOpen(t *testing.T) {
	cb := newTestBreaker(1, time.Minute)
	cb.RecordFailure()
	require.Equal(t, CircuitBreakerOpen, cb.State())

	calls := 0
	err := cb.Execute(func() error {
		calls++
		return nil
	})

	assert.True(t, errors.Is(err, apperrors.ErrCircuitOpen))
	assert.Zero(t, calls, "no call may be attempted during cooldown")
}

func TestCircuitBreakerHalfOpenAfterCooldown(t *testing.T) {
	cb := newTestBreaker(1, 10*time.Millisecond)
	cb.RecordFailure()
	require.Equal(t, CircuitBreakerOpen, cb.State())

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, cb.Allow())
	assert.Equal(t, CircuitBreakerHalfOpen, cb.State())

	// Only one trial is admitted while it is in flight.
	assert.True(t, errors.Is(cb.Allow(), apperrors.ErrCircuitOpen))

	cb.RecordSuccess()
	assert.Equal(t, CircuitBreakerClosed, cb.State())
}

func TestCircuitBreakerFailedTrialReopens(t *testing.T) {
	cb := newTestBreaker(1, 10*time.Millisecond)
	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, cb.Allow())
	cb.RecordFailure()

	assert.Equal(t, CircuitBreakerOpen, cb.State())
	assert.True(t, errors.Is(cb.Allow(), apperrors.ErrCircuitOpen), "fresh cooldown applies")
}

func TestTryHalfOpen(t *testing.T) {
	cb := newTestBreaker(1, time.Hour)

	assert.False(t, cb.TryHalfOpen(), "closed breaker is left alone")

	cb.RecordFailure()
	require.Equal(t, CircuitBreakerOpen, cb.State())

	assert.True(t, cb.TryHalfOpen())
	assert.Equal(t, CircuitBreakerHalfOpen, cb.State())

	// The nudge skips the cooldown entirely.
	require.NoError(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, CircuitBreakerClosed, cb.State())
}

func TestExecuteRecordsOutcome(t *testing.T) {
	cb := newTestBreaker(2, time.Minute)

	boom := errors.New("boom")
	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, CircuitBreakerClosed, cb.State())
}
