package learning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/scoutd/internal/config"
	"github.com/fyrsmithlabs/scoutd/internal/provider"
	"github.com/fyrsmithlabs/scoutd/internal/reliability"
)

// scriptedReasoner returns a fixed reply or error.
type scriptedReasoner struct {
	reply string
	err   error
	calls int
}

func (s *scriptedReasoner) Name() string { return "scripted" }

func (s *scriptedReasoner) Complete(ctx context.Context, prompt string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func testInteraction(rating int, reasoning string) *Interaction {
	return NewInteraction("session-1", "user-1", "profile-1",
		Feedback{Rating: rating, Reasoning: reasoning, Method: MethodExplicit})
}

func TestExtractorAIPath(t *testing.T) {
	reasoner := &scriptedReasoner{
		reply: `[{"type":"industry_preference","value":"SaaS","confidence":0.95}]`,
	}
	e := NewExtractor(reasoner, 0.6, zap.NewNop())

	patterns := e.Extract(context.Background(),
		testInteraction(5, "Excellent candidate, strong SaaS and technical leadership background"),
		&Profile{ID: "profile-1", Industry: "SaaS"})

	require.Len(t, patterns, 1)
	assert.Equal(t, PatternIndustryPreference, patterns[0].Type)
	assert.Equal(t, "SaaS", patterns[0].Data.Industry)
	// 0.75 base * 1.1 quality * 0.95 ai
	assert.InDelta(t, 0.75*1.1*0.95, patterns[0].Confidence, 1e-9)
	assert.Equal(t, "profile-1", patterns[0].SourceProfileID)
	assert.NotEmpty(t, patterns[0].SourceInteractionID)
	assert.Equal(t, 1, reasoner.calls)
}

func TestExtractorFallsBackOnProviderError(t *testing.T) {
	reasoner := &scriptedReasoner{err: errors.New("all providers failed")}
	e := NewExtractor(reasoner, 0.6, zap.NewNop())

	patterns := e.Extract(context.Background(),
		testInteraction(5, "Excellent candidate, strong industry background"),
		&Profile{ID: "profile-1", Industry: "SaaS"})

	// Heuristics still learn from the rating polarity.
	require.NotEmpty(t, patterns)
	types := make(map[PatternType]bool)
	for _, p := range patterns {
		types[p.Type] = true
	}
	assert.True(t, types[PatternIndustryPreference])
}

func TestExtractorFallsBackOnUnparseableReply(t *testing.T) {
	reasoner := &scriptedReasoner{reply: "I cannot help with that."}
	e := NewExtractor(reasoner, 0.6, zap.NewNop())

	patterns := e.Extract(context.Background(),
		testInteraction(5, "Excellent candidate, strong industry background"),
		&Profile{ID: "profile-1", Industry: "SaaS"})

	assert.NotEmpty(t, patterns)
}

// hangingReasoner never replies; it blocks until the caller's
// context expires.
type hangingReasoner struct {
	name string
}

func (h *hangingReasoner) Name() string { return h.name }

func (h *hangingReasoner) Complete(ctx context.Context, prompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestExtractorBudgetBoundsHangingProviders(t *testing.T) {
	// Two unresponsive providers behind the full retry and failover
	// stack. Without the extraction budget each would burn its
	// per-attempt timeouts and backoffs in sequence; with it, the
	// whole chain is cut off and heuristics take over.
	exec := reliability.NewExecutor(config.ReliabilityConfig{
		Timeout:    config.Duration(5 * time.Second),
		MaxRetries: 2,
		BaseDelay:  config.Duration(time.Second),
	}, zap.NewNop())
	chain, err := provider.NewFailover([]provider.Reasoner{
		&hangingReasoner{name: "primary"},
		&hangingReasoner{name: "secondary"},
	}, exec, zap.NewNop())
	require.NoError(t, err)

	e := NewExtractor(chain, 0.6, zap.NewNop(),
		WithExtractionBudget(50*time.Millisecond))

	start := time.Now()
	patterns := e.Extract(context.Background(),
		testInteraction(5, "Excellent candidate, strong industry background"),
		&Profile{ID: "profile-1", Industry: "SaaS"})
	elapsed := time.Since(start)

	assert.Less(t, elapsed, time.Second,
		"extraction must return shortly after the budget, not after the full retry chain")
	require.NotEmpty(t, patterns, "heuristics still apply after the budget expires")
	assert.Equal(t, PatternIndustryPreference, patterns[0].Type)
}

func TestExtractorNilReasonerUsesHeuristics(t *testing.T) {
	e := NewExtractor(nil, 0.6, zap.NewNop())

	t.Run("positive feedback yields preference", func(t *testing.T) {
		patterns := e.Extract(context.Background(),
			testInteraction(5, "Excellent candidate, strong industry background"),
			&Profile{ID: "profile-1", Industry: "SaaS"})
		require.NotEmpty(t, patterns)
		assert.Equal(t, PatternIndustryPreference, patterns[0].Type)
	})

	t.Run("negative feedback yields avoidance", func(t *testing.T) {
		patterns := e.Extract(context.Background(),
			testInteraction(1, "Poor fit, wrong industry entirely for this search"),
			&Profile{ID: "profile-1", Industry: "Crypto"})
		require.NotEmpty(t, patterns)
		assert.Equal(t, PatternIndustryAvoidance, patterns[0].Type)
	})

	t.Run("neutral rating yields nothing", func(t *testing.T) {
		patterns := e.Extract(context.Background(),
			testInteraction(3, "Not sure about this industry match yet"),
			&Profile{ID: "profile-1", Industry: "SaaS"})
		assert.Empty(t, patterns)
	})
}

func TestExtractorRatingOnlyFeedback(t *testing.T) {
	// Empty reasoning skips the AI path entirely; the heuristic
	// industry cue survives with a dampened confidence.
	reasoner := &scriptedReasoner{reply: `[]`}
	e := NewExtractor(reasoner, 0.6, zap.NewNop())

	patterns := e.Extract(context.Background(),
		testInteraction(5, ""),
		&Profile{ID: "profile-1", Industry: "SaaS"})

	assert.Zero(t, reasoner.calls, "no reasoning text means no provider call")
	require.Len(t, patterns, 1)
	assert.Equal(t, PatternIndustryPreference, patterns[0].Type)
	assert.InDelta(t, 0.75*0.8, patterns[0].Confidence, 1e-9)
}

func TestExtractorDropsInvalidCueTypes(t *testing.T) {
	reasoner := &scriptedReasoner{
		reply: `[
			{"type":"industry_preference","value":"SaaS","confidence":0.95},
			{"type":"favorite_color","value":"blue","confidence":0.99}
		]`,
	}
	e := NewExtractor(reasoner, 0.6, zap.NewNop())

	patterns := e.Extract(context.Background(),
		testInteraction(5, "Excellent candidate, strong SaaS and technical leadership background"),
		&Profile{ID: "profile-1", Industry: "SaaS"})

	require.Len(t, patterns, 1)
	assert.Equal(t, PatternIndustryPreference, patterns[0].Type)
}

func TestExtractorDedupesCandidates(t *testing.T) {
	reasoner := &scriptedReasoner{
		reply: `[
			{"type":"industry_preference","value":"SaaS","confidence":0.9},
			{"type":"industry_preference","value":"SaaS","confidence":0.8}
		]`,
	}
	e := NewExtractor(reasoner, 0.6, zap.NewNop())

	patterns := e.Extract(context.Background(),
		testInteraction(5, "Excellent candidate, strong SaaS and technical leadership background"),
		&Profile{ID: "profile-1", Industry: "SaaS"})

	assert.Len(t, patterns, 1, "one pattern per type and payload per interaction")
}

func TestExtractorConfidenceFloor(t *testing.T) {
	reasoner := &scriptedReasoner{
		reply: `[{"type":"industry_preference","value":"SaaS","confidence":0.3}]`,
	}
	e := NewExtractor(reasoner, 0.6, zap.NewNop())

	patterns := e.Extract(context.Background(),
		testInteraction(5, "Excellent candidate, strong SaaS and technical leadership background"),
		&Profile{ID: "profile-1", Industry: "SaaS"})

	assert.Empty(t, patterns, "0.825 * 0.3 is far below the retention floor")
}

func TestExtractorNilInputs(t *testing.T) {
	e := NewExtractor(nil, 0.6, zap.NewNop())
	assert.Nil(t, e.Extract(context.Background(), nil, &Profile{}))
	assert.Nil(t, e.Extract(context.Background(), testInteraction(5, "x"), nil))
}
