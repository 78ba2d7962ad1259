package reliability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/scoutd/internal/config"
)

// Operation is a cancellable provider call. Implementations must honor
// ctx so a timed-out call does not keep running unobserved.
type Operation func(ctx context.Context) (string, error)

// CallOptions overrides the executor defaults for a single call.
type CallOptions struct {
	// Timeout bounds the call. Zero uses the configured default.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	// Negative means zero retries; zero uses the configured default.
	MaxRetries int
}

// Executor races every call against a timeout, retries temporary
// failures with exponential backoff, and guards each provider with its
// own circuit breaker.
type Executor struct {
	cfg    config.ReliabilityConfig
	logger *zap.Logger

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewExecutor creates an executor from config.
func NewExecutor(cfg config.ReliabilityConfig, logger *zap.Logger) *Executor {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*Breaker),
	}
}

// Breaker returns the breaker for a provider, creating it lazily.
func (e *Executor) Breaker(provider string) *Breaker {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.breakers[provider]
	if !ok {
		b = NewBreaker(e.cfg.FailureThreshold, e.cfg.ResetTimeout.Duration())
		e.breakers[provider] = b
	}
	return b
}

// Call runs op against the named provider under the full protection
// policy: breaker check, per-attempt timeout, and retry with backoff
// for temporary failures. Quota and permanent failures are never
// retried. The final failure is wrapped with the attempt count.
func (e *Executor) Call(ctx context.Context, provider string, op Operation, opts *CallOptions) (string, error) {
	timeout := e.cfg.Timeout.Duration()
	maxRetries := e.cfg.MaxRetries
	if opts != nil {
		if opts.Timeout > 0 {
			timeout = opts.Timeout
		}
		if opts.MaxRetries != 0 {
			maxRetries = max(opts.MaxRetries, 0)
		}
	}

	breaker := e.Breaker(provider)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := e.cfg.BaseDelay.Duration() * (1 << (attempt - 1))
			callRetries.WithLabelValues(provider).Inc()
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		if err := breaker.Allow(); err != nil {
			breakerState.WithLabelValues(provider).Set(float64(breaker.State()))
			callsTotal.WithLabelValues(provider, "circuit_open").Inc()
			return "", fmt.Errorf("%s: %w", provider, err)
		}

		result, err := e.attempt(ctx, timeout, op)
		if err == nil {
			breaker.RecordSuccess()
			breakerState.WithLabelValues(provider).Set(float64(breaker.State()))
			callsTotal.WithLabelValues(provider, "success").Inc()
			if attempt > 0 {
				e.logger.Info("provider call recovered after retries",
					zap.String("provider", provider),
					zap.Int("attempts", attempt+1))
			}
			return result, nil
		}

		lastErr = err
		class := Classify(err)
		breaker.RecordFailure()
		breakerState.WithLabelValues(provider).Set(float64(breaker.State()))
		callsTotal.WithLabelValues(provider, class.String()).Inc()

		e.logger.Warn("provider call failed",
			zap.String("provider", provider),
			zap.String("class", class.String()),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if class != ClassTemporary {
			return "", err
		}
	}

	return "", attemptError(maxRetries+1, lastErr)
}

// attempt runs op once under a timeout. The child context is cancelled
// on return so a hung operation is abandoned, not leaked.
func (e *Executor) attempt(ctx context.Context, timeout time.Duration, op Operation) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := op(callCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", Temporary(fmt.Errorf("%w after %s", ErrTimeout, timeout))
		}
		return "", err
	}
	return result, nil
}
