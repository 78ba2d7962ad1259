package reliability

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/scoutd/internal/config"
)

func testExecutor(t *testing.T) *Executor {
	t.Helper()
	return NewExecutor(config.ReliabilityConfig{
		Timeout:          config.Duration(time.Second),
		MaxRetries:       2,
		BaseDelay:        config.Duration(time.Millisecond),
		FailureThreshold: 3,
		ResetTimeout:     config.Duration(time.Minute),
	}, zap.NewNop())
}

func TestExecutorSuccessFirstAttempt(t *testing.T) {
	e := testExecutor(t)

	var calls atomic.Int32
	result, err := e.Call(context.Background(), "anthropic", func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "ok", nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExecutorRetriesTemporary(t *testing.T) {
	e := testExecutor(t)

	var calls atomic.Int32
	result, err := e.Call(context.Background(), "anthropic", func(ctx context.Context) (string, error) {
		if calls.Add(1) < 3 {
			return "", Temporary(errors.New("503 upstream hiccup"))
		}
		return "recovered", nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, int32(3), calls.Load(), "two retries after the first attempt")
}

func TestExecutorExhaustsRetries(t *testing.T) {
	e := testExecutor(t)

	var calls atomic.Int32
	_, err := e.Call(context.Background(), "anthropic", func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "", Temporary(errors.New("503"))
	}, nil)

	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Contains(t, err.Error(), "failed after 3 attempts")
}

func TestExecutorNoRetryOnPermanent(t *testing.T) {
	e := testExecutor(t)

	var calls atomic.Int32
	_, err := e.Call(context.Background(), "anthropic", func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "", Permanent(errors.New("401 invalid api key"))
	}, nil)

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "permanent failures must not be retried")
}

func TestExecutorNoRetryOnQuota(t *testing.T) {
	e := testExecutor(t)

	var calls atomic.Int32
	_, err := e.Call(context.Background(), "openai", func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "", Quota(ErrQuotaExceeded)
	}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, int32(1), calls.Load(), "quota failures must not be retried")
}

func TestExecutorTimeoutClassifiedTemporary(t *testing.T) {
	e := NewExecutor(config.ReliabilityConfig{
		Timeout:          config.Duration(10 * time.Millisecond),
		MaxRetries:       1,
		BaseDelay:        config.Duration(time.Millisecond),
		FailureThreshold: 5,
		ResetTimeout:     config.Duration(time.Minute),
	}, zap.NewNop())

	var calls atomic.Int32
	_, err := e.Call(context.Background(), "anthropic", func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-ctx.Done()
		return "", ctx.Err()
	}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, int32(2), calls.Load(), "timeouts are temporary and retried")
}

func TestExecutorOpensCircuit(t *testing.T) {
	e := testExecutor(t)

	// Three consecutive permanent failures trip the breaker.
	for i := 0; i < 3; i++ {
		_, err := e.Call(context.Background(), "anthropic", func(ctx context.Context) (string, error) {
			return "", Permanent(errors.New("boom"))
		}, nil)
		require.Error(t, err)
	}
	assert.Equal(t, StateOpen, e.Breaker("anthropic").State())

	// The next call fails fast without invoking the operation.
	var calls atomic.Int32
	start := time.Now()
	_, err := e.Call(context.Background(), "anthropic", func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "ok", nil
	}, nil)

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(0), calls.Load())
	assert.Less(t, time.Since(start), 5*time.Millisecond)
}

func TestExecutorBreakersIndependent(t *testing.T) {
	e := testExecutor(t)

	for i := 0; i < 3; i++ {
		_, _ = e.Call(context.Background(), "anthropic", func(ctx context.Context) (string, error) {
			return "", Permanent(errors.New("boom"))
		}, nil)
	}
	require.Equal(t, StateOpen, e.Breaker("anthropic").State())

	// A different provider is unaffected.
	result, err := e.Call(context.Background(), "openai", func(ctx context.Context) (string, error) {
		return "ok", nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestExecutorCallOptionsOverride(t *testing.T) {
	e := testExecutor(t)

	var calls atomic.Int32
	_, err := e.Call(context.Background(), "anthropic", func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "", Temporary(errors.New("503"))
	}, &CallOptions{MaxRetries: -1})

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "negative MaxRetries disables retries")
}

func TestExecutorContextCancelDuringBackoff(t *testing.T) {
	e := NewExecutor(config.ReliabilityConfig{
		Timeout:          config.Duration(time.Second),
		MaxRetries:       2,
		BaseDelay:        config.Duration(10 * time.Second),
		FailureThreshold: 10,
		ResetTimeout:     config.Duration(time.Minute),
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := e.Call(ctx, "anthropic", func(ctx context.Context) (string, error) {
		return "", Temporary(errors.New("503"))
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
}
