package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/scoutd/internal/config"
	"github.com/fyrsmithlabs/scoutd/internal/reliability"
)

// stubReasoner scripts a provider for failover tests.
type stubReasoner struct {
	name  string
	reply string
	err   error
	calls int
}

func (s *stubReasoner) Name() string { return s.name }

func (s *stubReasoner) Complete(ctx context.Context, prompt string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func testFailoverExecutor() *reliability.Executor {
	return reliability.NewExecutor(config.ReliabilityConfig{
		Timeout:          config.Duration(time.Second),
		MaxRetries:       1,
		BaseDelay:        config.Duration(time.Millisecond),
		FailureThreshold: 3,
		ResetTimeout:     config.Duration(time.Minute),
	}, zap.NewNop())
}

func TestNewFailover(t *testing.T) {
	t.Run("requires at least one reasoner", func(t *testing.T) {
		_, err := NewFailover(nil, testFailoverExecutor(), zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("requires executor", func(t *testing.T) {
		_, err := NewFailover([]Reasoner{&stubReasoner{name: "a"}}, nil, zap.NewNop())
		assert.Error(t, err)
	})
}

func TestFailoverFirstProviderWins(t *testing.T) {
	primary := &stubReasoner{name: "anthropic", reply: "[]"}
	secondary := &stubReasoner{name: "openai", reply: "[]"}

	f, err := NewFailover([]Reasoner{primary, secondary}, testFailoverExecutor(), zap.NewNop())
	require.NoError(t, err)

	reply, err := f.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "[]", reply)
	assert.Equal(t, 1, primary.calls)
	assert.Zero(t, secondary.calls, "secondary must not be consulted on success")
}

func TestFailoverAdvancesOnQuota(t *testing.T) {
	primary := &stubReasoner{name: "anthropic", err: reliability.Quota(reliability.ErrQuotaExceeded)}
	secondary := &stubReasoner{name: "openai", reply: "fallback"}

	f, err := NewFailover([]Reasoner{primary, secondary}, testFailoverExecutor(), zap.NewNop())
	require.NoError(t, err)

	reply, err := f.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "fallback", reply)
	assert.Equal(t, 1, primary.calls, "quota failures are not retried")
}

func TestFailoverAdvancesOnExhaustedRetries(t *testing.T) {
	primary := &stubReasoner{name: "anthropic", err: reliability.Temporary(errors.New("503"))}
	secondary := &stubReasoner{name: "openai", reply: "fallback"}

	f, err := NewFailover([]Reasoner{primary, secondary}, testFailoverExecutor(), zap.NewNop())
	require.NoError(t, err)

	reply, err := f.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "fallback", reply)
	assert.Equal(t, 2, primary.calls, "temporary failures burn their retries first")
}

func TestFailoverAdvancesOnOpenCircuit(t *testing.T) {
	executor := testFailoverExecutor()
	primary := &stubReasoner{name: "anthropic", err: reliability.Permanent(errors.New("boom"))}
	secondary := &stubReasoner{name: "openai", reply: "fallback"}

	f, err := NewFailover([]Reasoner{primary, secondary}, executor, zap.NewNop())
	require.NoError(t, err)

	// Trip the primary's breaker.
	for i := 0; i < 3; i++ {
		_, _ = f.Complete(context.Background(), "prompt")
	}
	require.Equal(t, reliability.StateOpen, executor.Breaker("anthropic").State())
	primaryCalls := primary.calls

	reply, err := f.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "fallback", reply)
	assert.Equal(t, primaryCalls, primary.calls, "open circuit skips the provider entirely")
}

func TestFailoverAllProvidersFail(t *testing.T) {
	primary := &stubReasoner{name: "anthropic", err: reliability.Permanent(errors.New("invalid key"))}
	secondary := &stubReasoner{name: "openai", err: reliability.Quota(reliability.ErrQuotaExceeded)}

	f, err := NewFailover([]Reasoner{primary, secondary}, testFailoverExecutor(), zap.NewNop())
	require.NoError(t, err)

	_, err = f.Complete(context.Background(), "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all providers failed")
	assert.ErrorIs(t, err, reliability.ErrQuotaExceeded)
}
