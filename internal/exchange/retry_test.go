package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// TestRetrySucceedsAfterTransientFailures keeps retrying retryable errors.
func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		if attempts < 3 {
			return NewConnectivityError("flaky")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

// TestRetryStopsOnNonRetryable returns a terminal error immediately.
func TestRetryStopsOnNonRetryable(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		return NewRejectionError("bad order")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, IsRejection(err))
}

// TestRetryBudgetExhausted wraps the last error after all attempts fail.
func TestRetryBudgetExhausted(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		return NewConnectivityError("down")
	})

	require.Error(t, err)
	assert.Equal(t, 4, attempts) // initial try plus three retries
	assert.Contains(t, err.Error(), "retry budget exhausted")

	// The wrapped cause stays inspectable.
	var exchangeErr *ExchangeError
	assert.True(t, errors.As(err, &exchangeErr))
}

// TestRetryHonorsContextCancellation stops waiting when ctx is done.
func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- Retry(ctx, RetryConfig{
			MaxRetries:    5,
			InitialDelay:  time.Hour,
			MaxDelay:      time.Hour,
			BackoffFactor: 1.0,
		}, func() error {
			attempts++
			return NewConnectivityError("down")
		})
	}()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}
