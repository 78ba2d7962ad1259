// Package provider implements AI reasoning provider clients.
//
// Each client makes a single cancellable HTTP call and classifies
// failures for the reliability layer; retry, timeout, and circuit
// breaking are owned by internal/reliability, never duplicated here.
package provider

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/scoutd/internal/config"
)

// Default provider settings.
const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicModel   = "claude-3-5-haiku-20241022"
	defaultOpenAIBaseURL    = "https://api.openai.com"
	defaultOpenAIModel      = "gpt-4o-mini"
	defaultMaxTokens        = 1024
	defaultHTTPTimeout      = 60 * time.Second
)

// Rate limiter defaults: 50 requests per minute for both APIs.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

// Reasoner is a text-in/text-out reasoning call.
type Reasoner interface {
	// Name identifies the provider for breaker and metrics scoping.
	Name() string

	// Complete generates a completion for the prompt. Must honor ctx.
	Complete(ctx context.Context, prompt string) (string, error)
}

// New creates a Reasoner from provider config.
func New(cfg config.ProviderConfig) (Reasoner, error) {
	switch cfg.Name {
	case "anthropic":
		return newAnthropicClient(cfg)
	case "openai":
		return newOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
}

// newLimiter builds the shared per-client rate limiter.
func newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst)
}
