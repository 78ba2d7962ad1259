package learning

import (
	"fmt"
	"strings"
)

// Engine applies session patterns to a baseline analysis. It is pure
// computation: no clock, no storage, no locks. The session store owns
// recording the outcome.
type Engine struct{}

// NewEngine returns a pattern application engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Apply evaluates every pattern against the profile and folds the
// applicable ones into the baseline analysis.
//
// Fail-open: a nil profile or out-of-range baseline returns the
// baseline untouched with an empty impact rather than an error. A
// degraded analysis is still a usable analysis.
func (e *Engine) Apply(patterns []*SessionPattern, profile *Profile, baseline *Analysis) (*Analysis, Impact, []Application) {
	if baseline == nil {
		baseline = &Analysis{}
	}
	enhanced := *baseline
	impact := Impact{
		BaselineConfidence: baseline.Confidence,
		EnhancedConfidence: baseline.Confidence,
	}

	if profile == nil || baseline.Confidence < 0 || baseline.Confidence > 1 {
		return &enhanced, impact, nil
	}

	var (
		total float64
		apps  []Application
	)
	for _, p := range patterns {
		impact.PatternsEvaluated++
		reason, ok := applicable(p, profile)
		if !ok {
			continue
		}
		delta := patternDelta(p)
		total += delta
		apps = append(apps, Application{
			PatternID:   p.ID,
			PatternType: p.Type,
			Delta:       delta,
			Reason:      reason,
		})
	}

	enhanced.Confidence = clamp01(baseline.Confidence + total)
	// Material confidence shifts carry a damped fraction into the
	// ranking score; noise below the threshold does not.
	if total > MaterialityThreshold || total < -MaterialityThreshold {
		enhanced.Relevance = clamp01(baseline.Relevance + RelevancePropagation*total)
	}

	impact.EnhancedConfidence = enhanced.Confidence
	impact.TotalDelta = enhanced.Confidence - baseline.Confidence
	impact.ApplicationsApplied = len(apps)
	return &enhanced, impact, apps
}

// applicable reports whether a pattern bears on a profile, and if so
// why. Attribute patterns require the profile to carry a matching
// non-empty attribute; indicators apply to any profile since they
// capture outcome signals rather than attributes.
func applicable(p *SessionPattern, profile *Profile) (string, bool) {
	switch p.Type {
	case PatternIndustryPreference:
		if fieldMatch(p.Data.Industry, profile.Industry) {
			return fmt.Sprintf("industry preference match: %s", profile.Industry), true
		}
	case PatternIndustryAvoidance:
		if fieldMatch(p.Data.Industry, profile.Industry) {
			return fmt.Sprintf("industry avoidance match: %s", profile.Industry), true
		}
	case PatternRolePreference:
		if fieldMatch(p.Data.Role, profile.Role) {
			return fmt.Sprintf("role preference match: %s", profile.Role), true
		}
	case PatternCompanySizePreference:
		if fieldMatch(p.Data.CompanySize, profile.CompanySize) {
			return fmt.Sprintf("company size preference match: %s", profile.CompanySize), true
		}
	case PatternExperiencePreference:
		if fieldMatch(p.Data.ExperienceLevel, profile.Seniority) {
			return fmt.Sprintf("experience preference match: %s", profile.Seniority), true
		}
	case PatternSuccessIndicator:
		if p.Data.Signal != "" {
			return fmt.Sprintf("success indicator: %s", p.Data.Signal), true
		}
	case PatternFailureIndicator:
		if p.Data.Signal != "" {
			return fmt.Sprintf("failure indicator: %s", p.Data.Signal), true
		}
	}
	return "", false
}

// fieldMatch is a case-insensitive equality test that treats an empty
// value on either side as no match.
func fieldMatch(patternValue, profileValue string) bool {
	if patternValue == "" || profileValue == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(patternValue), strings.TrimSpace(profileValue))
}
