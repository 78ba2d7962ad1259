package provider

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/scoutd/internal/reliability"
)

// Failover walks a list of reasoners in order through the reliability
// executor, so an open circuit or exhausted quota on one provider does
// not disable reasoning entirely.
type Failover struct {
	reasoners []Reasoner
	executor  *reliability.Executor
	logger    *zap.Logger
}

// NewFailover creates a failover reasoner. At least one underlying
// reasoner is required; two or more are recommended.
func NewFailover(reasoners []Reasoner, executor *reliability.Executor, logger *zap.Logger) (*Failover, error) {
	if len(reasoners) == 0 {
		return nil, fmt.Errorf("at least one reasoner is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("executor cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Failover{
		reasoners: reasoners,
		executor:  executor,
		logger:    logger,
	}, nil
}

// Name identifies the composite for logging.
func (f *Failover) Name() string { return "failover" }

// Complete tries each provider in order under the reliability policy.
// It advances to the next provider on circuit-open and quota failures
// and on exhausted retries; the last error is returned when every
// provider fails.
func (f *Failover) Complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for _, r := range f.reasoners {
		op := func(ctx context.Context) (string, error) {
			return r.Complete(ctx, prompt)
		}
		result, err := f.executor.Call(ctx, r.Name(), op, nil)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(err, reliability.ErrCircuitOpen) {
			f.logger.Debug("provider circuit open, failing over",
				zap.String("provider", r.Name()))
			continue
		}
		if reliability.Classify(err) == reliability.ClassQuota {
			f.logger.Warn("provider quota exhausted, failing over",
				zap.String("provider", r.Name()))
			continue
		}
		// Temporary failures already burned their retries inside the
		// executor; try the next provider rather than giving up.
	}
	return "", fmt.Errorf("all providers failed: %w", lastErr)
}

var _ Reasoner = (*Failover)(nil)
