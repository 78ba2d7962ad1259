package learning

import "strings"

// Every confidence formula and tuning constant in the subsystem lives
// in this file. The magnitudes are the source system's hand-tuned
// defaults; treat them as policy knobs, not derived truth.

const (
	// MinPatternConfidence is the retention floor: weaker patterns are
	// dropped before reaching the session store.
	MinPatternConfidence = 0.6

	// WarmStartConfidence is the floor for durable patterns seeded into
	// a fresh session.
	WarmStartConfidence = 0.7

	// PromotionConfidence is the floor for promoting session patterns
	// into durable storage at session close.
	PromotionConfidence = 0.8

	// MaxPatternDelta caps the signed confidence contribution of any
	// single applied pattern.
	MaxPatternDelta = 0.20

	// MaterialityThreshold is the minimum absolute total delta that
	// propagates into the relevance score.
	MaterialityThreshold = 0.1

	// RelevancePropagation is the fraction of a material confidence
	// delta carried into the relevance score.
	RelevancePropagation = 0.8
)

// Per-type match weights for pattern application. An applied pattern
// contributes weight * pattern confidence, capped at MaxPatternDelta.
const (
	industryMatchWeight   = 0.15
	roleMatchWeight       = 0.12
	companySizeWeight     = 0.10
	experienceMatchWeight = 0.10
	indicatorWeight       = 0.08
)

// Base cue confidences for the extractor, by pattern type.
var baseCueConfidence = map[PatternType]float64{
	PatternIndustryPreference:    0.75,
	PatternIndustryAvoidance:     0.75,
	PatternRolePreference:        0.72,
	PatternCompanySizePreference: 0.68,
	PatternExperiencePreference:  0.70,
	PatternSuccessIndicator:      0.70,
	PatternFailureIndicator:      0.70,
}

// domainKeywords are terms whose presence marks feedback as substantive
// for the quality multiplier.
var domainKeywords = []string{
	"industry", "experience", "background", "leadership", "technical",
	"senior", "junior", "startup", "enterprise", "saas", "sales",
	"engineering", "role", "company", "skills", "growth", "founder",
}

// PatternConfidence combines the extractor's three factors:
// base confidence for the cue type, a feedback-quality multiplier, and
// the AI extraction confidence (1.0 on the heuristic path).
func PatternConfidence(t PatternType, feedbackText string, aiConfidence float64) float64 {
	base, ok := baseCueConfidence[t]
	if !ok {
		base = 0.6
	}
	if aiConfidence <= 0 || aiConfidence > 1 {
		aiConfidence = 1.0
	}
	return clamp01(base * qualityMultiplier(feedbackText) * aiConfidence)
}

// qualityMultiplier scores feedback substance from text length and
// domain keyword presence. Range: [0.8, 1.2].
func qualityMultiplier(text string) float64 {
	m := 1.0

	switch n := len(strings.TrimSpace(text)); {
	case n == 0:
		return 0.8 // rating-only feedback carries less signal
	case n < 20:
		m = 0.9
	case n > 80:
		m = 1.1
	}

	lower := strings.ToLower(text)
	for _, kw := range domainKeywords {
		if strings.Contains(lower, kw) {
			m += 0.1
			break
		}
	}

	if m > 1.2 {
		m = 1.2
	}
	return m
}

// patternDelta computes the signed confidence delta for one applicable
// pattern: positive for preference/affinity matches, negative for
// avoidance/failure matches, magnitude proportional to the pattern's
// own confidence and capped at MaxPatternDelta.
func patternDelta(p *SessionPattern) float64 {
	var weight float64
	positive := true

	switch p.Type {
	case PatternIndustryPreference:
		weight = industryMatchWeight
	case PatternIndustryAvoidance:
		weight = industryMatchWeight
		positive = false
	case PatternRolePreference:
		weight = roleMatchWeight
	case PatternCompanySizePreference:
		weight = companySizeWeight
	case PatternExperiencePreference:
		weight = experienceMatchWeight
	case PatternSuccessIndicator:
		weight = indicatorWeight
	case PatternFailureIndicator:
		weight = indicatorWeight
		positive = false
	}

	delta := weight * p.Confidence
	if delta > MaxPatternDelta {
		delta = MaxPatternDelta
	}
	if !positive {
		delta = -delta
	}
	return delta
}

// LearningConfidence is the durable profile's confidence formula:
//
//	min(0.95, 0.6*data_quantity + 0.4*quality)
//	data_quantity = min(1, (sessions+feedback)/50)
//	quality       = min(1, contact_rate*2)
//
// It is a pure function of the counters; callers recompute, never
// increment.
func LearningConfidence(totalSessions, feedbackInteractions, successfulContacts int) float64 {
	quantity := float64(totalSessions+feedbackInteractions) / 50.0
	if quantity > 1 {
		quantity = 1
	}

	var contactRate float64
	if totalSessions > 0 {
		contactRate = float64(successfulContacts) / float64(totalSessions)
	}
	quality := contactRate * 2
	if quality > 1 {
		quality = 1
	}

	confidence := 0.6*quantity + 0.4*quality
	if confidence > 0.95 {
		confidence = 0.95
	}
	return confidence
}

// Effectiveness classifies the session's mean confidence boost.
func Effectiveness(meanBoost float64) string {
	switch {
	case meanBoost > 0.1:
		return "high"
	case meanBoost > 0.05:
		return "medium"
	default:
		return "low"
	}
}

// clamp01 bounds v to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// mean returns the arithmetic mean of vs, or 0 for an empty slice.
func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}
