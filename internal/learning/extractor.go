package learning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/scoutd/internal/provider"
)

// maxReasoningLength bounds the free-text input handed to a provider.
const maxReasoningLength = 10000

// defaultExtractionBudget bounds the whole AI extraction attempt,
// retries and failover included.
const defaultExtractionBudget = 30 * time.Second

// Extractor turns one feedback interaction into candidate patterns.
//
// When a reasoner is configured, free-text reasoning is analyzed by the
// AI provider (through the reliability layer). Any provider failure
// degrades to the deterministic keyword pass; feedback is never lost to
// provider unavailability. The extractor mutates no shared state.
type Extractor struct {
	reasoner provider.Reasoner
	logger   *zap.Logger

	// minConfidence is the retention floor for emitted patterns.
	minConfidence float64

	// budget is the hard wall-clock bound on the AI path. A slow or
	// hanging provider chain falls back to heuristics at this bound
	// instead of burning every retry on every provider.
	budget time.Duration
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithExtractionBudget overrides the default 30-second AI-path bound.
// Non-positive values keep the default.
func WithExtractionBudget(d time.Duration) ExtractorOption {
	return func(e *Extractor) {
		if d > 0 {
			e.budget = d
		}
	}
}

// NewExtractor creates an extractor. reasoner may be nil, in which case
// only the deterministic pass runs.
func NewExtractor(reasoner provider.Reasoner, minConfidence float64, logger *zap.Logger, opts ...ExtractorOption) *Extractor {
	if minConfidence <= 0 {
		minConfidence = MinPatternConfidence
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Extractor{
		reasoner:      reasoner,
		minConfidence: minConfidence,
		logger:        logger,
		budget:        defaultExtractionBudget,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract produces zero or more patterns from an interaction and the
// profile it refers to. Patterns below the confidence floor are
// dropped. The returned slice is the only side effect.
func (e *Extractor) Extract(ctx context.Context, interaction *Interaction, profile *Profile) []*SessionPattern {
	if interaction == nil || profile == nil {
		return nil
	}

	candidates := e.aiExtract(ctx, interaction.Feedback, profile)
	if candidates == nil {
		candidates = heuristicExtract(interaction.Feedback, profile)
	}

	patterns := make([]*SessionPattern, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		// One pattern per (type, payload) pair per interaction
		dedupeKey := string(c.t) + "|" + c.data.Industry + c.data.Role + c.data.CompanySize + c.data.ExperienceLevel + c.data.Signal
		if seen[dedupeKey] {
			continue
		}
		seen[dedupeKey] = true

		confidence := PatternConfidence(c.t, interaction.Feedback.Reasoning, c.aiConfidence)
		if confidence < e.minConfidence {
			continue
		}

		p, err := NewSessionPattern(c.t, c.data, confidence, interaction.ProfileID, interaction.ID)
		if err != nil {
			e.logger.Warn("dropping invalid pattern candidate",
				zap.String("type", string(c.t)),
				zap.Error(err))
			continue
		}
		patterns = append(patterns, p)
	}
	return patterns
}

// aiExtract asks the reasoner for structured cues. Returns nil when the
// AI path is unavailable or fails, signalling the caller to fall back.
func (e *Extractor) aiExtract(ctx context.Context, fb Feedback, profile *Profile) []candidate {
	if e.reasoner == nil || strings.TrimSpace(fb.Reasoning) == "" {
		return nil
	}

	// One overall deadline for the provider chain. The reliability
	// layer's per-attempt contexts and backoff waits derive from this
	// one, so expiry cuts through retries and failover alike.
	ctx, cancel := context.WithTimeout(ctx, e.budget)
	defer cancel()

	reply, err := e.reasoner.Complete(ctx, buildCuePrompt(fb, profile))
	if err != nil {
		e.logger.Warn("AI cue extraction failed, using heuristic fallback",
			zap.Error(err))
		return nil
	}

	cues, err := provider.ParseCues(reply)
	if err != nil {
		e.logger.Warn("unparseable provider reply, using heuristic fallback",
			zap.Error(err))
		return nil
	}

	candidates := make([]candidate, 0, len(cues))
	for _, cue := range cues {
		c, ok := cueToCandidate(cue, profile)
		if !ok {
			continue
		}
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		// The provider answered but found nothing usable; the
		// deterministic pass may still catch sentiment cues.
		return nil
	}
	return candidates
}

// cueToCandidate maps a transport cue onto a typed candidate, anchoring
// the payload to the profile's attributes.
func cueToCandidate(cue provider.Cue, profile *Profile) (candidate, bool) {
	t := PatternType(cue.Type)
	if !t.Valid() {
		return candidate{}, false
	}

	var data PatternData
	switch t {
	case PatternIndustryPreference, PatternIndustryAvoidance:
		data.Industry = cue.Value
	case PatternRolePreference:
		data.Role = cue.Value
	case PatternCompanySizePreference:
		data.CompanySize = cue.Value
	case PatternExperiencePreference:
		data.ExperienceLevel = cue.Value
	case PatternSuccessIndicator, PatternFailureIndicator:
		data.Signal = cue.Value
	}

	return candidate{t: t, data: data, aiConfidence: cue.Confidence}, true
}

// buildCuePrompt assembles the extraction prompt from the feedback and
// the profile attributes the cues must anchor to.
func buildCuePrompt(fb Feedback, profile *Profile) string {
	var b strings.Builder
	b.WriteString("Extract recruiter preference cues from this feedback on a candidate profile.\n\n")
	b.WriteString("Profile attributes:\n")
	fmt.Fprintf(&b, "- industry: %s\n", profile.Industry)
	fmt.Fprintf(&b, "- role: %s\n", profile.Role)
	fmt.Fprintf(&b, "- company_size: %s\n", profile.CompanySize)
	fmt.Fprintf(&b, "- seniority: %s\n", profile.Seniority)
	fmt.Fprintf(&b, "- experience_years: %d\n\n", profile.ExperienceYears)
	fmt.Fprintf(&b, "Rating: %d/5\n", fb.Rating)

	reasoning := fb.Reasoning
	if len(reasoning) > maxReasoningLength {
		reasoning = reasoning[:maxReasoningLength]
	}
	fmt.Fprintf(&b, "Feedback: %s\n\n", reasoning)

	b.WriteString("Reply with ONLY a JSON array of cue objects:\n")
	b.WriteString(`[{"type":"industry_preference","value":"Software","confidence":0.8}]` + "\n")
	b.WriteString("Allowed types: industry_preference, industry_avoidance, role_preference, ")
	b.WriteString("company_size_preference, experience_preference, success_indicator, failure_indicator.\n")
	b.WriteString("Values must come from the profile attributes or the feedback text. ")
	b.WriteString("Confidence is your extraction certainty in [0,1]. Reply [] if no cues exist.")
	return b.String()
}
