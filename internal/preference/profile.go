package preference

import (
	"strings"
	"time"

	"github.com/fyrsmithlabs/scoutd/internal/learning"
)

// Profile is a user's durable preference state, accumulated across
// sessions. Weights are signed: positive marks affinity, negative
// avoidance. LearningConfidence is always recomputed from the
// counters, never incremented.
type Profile struct {
	UserID string `json:"user_id"`

	// Signed preference weights keyed by normalized attribute value.
	IndustryWeights    map[string]float64 `json:"industry_weights"`
	RoleWeights        map[string]float64 `json:"role_weights"`
	CompanySizeWeights map[string]float64 `json:"company_size_weights"`
	ExperienceWeights  map[string]float64 `json:"experience_weights"`

	// Outcome signal tallies keyed by signal text.
	SuccessSignals map[string]int `json:"success_signals"`
	FailureSignals map[string]int `json:"failure_signals"`

	// TimingPatterns tallies feedback activity by daypart
	// (morning/afternoon/evening/night).
	TimingPatterns map[string]int `json:"timing_patterns"`

	// Counters feeding the learning-confidence formula.
	TotalSessions        int `json:"total_sessions"`
	FeedbackInteractions int `json:"feedback_interactions"`
	SuccessfulContacts   int `json:"successful_contacts"`

	LearningConfidence float64 `json:"learning_confidence"`

	// PatternVersion increments on every mutation. Monotonic for the
	// lifetime of the profile; a reset zeroes the data but keeps
	// bumping the version so staleness checks stay valid.
	PatternVersion int `json:"pattern_version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// newProfile returns an empty profile for a user.
func newProfile(userID string, now time.Time) *Profile {
	return &Profile{
		UserID:             userID,
		IndustryWeights:    make(map[string]float64),
		RoleWeights:        make(map[string]float64),
		CompanySizeWeights: make(map[string]float64),
		ExperienceWeights:  make(map[string]float64),
		SuccessSignals:     make(map[string]int),
		FailureSignals:     make(map[string]int),
		TimingPatterns:     make(map[string]int),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// ensureMaps recreates any map nil'd by deserialization of an older
// snapshot.
func (p *Profile) ensureMaps() {
	if p.IndustryWeights == nil {
		p.IndustryWeights = make(map[string]float64)
	}
	if p.RoleWeights == nil {
		p.RoleWeights = make(map[string]float64)
	}
	if p.CompanySizeWeights == nil {
		p.CompanySizeWeights = make(map[string]float64)
	}
	if p.ExperienceWeights == nil {
		p.ExperienceWeights = make(map[string]float64)
	}
	if p.SuccessSignals == nil {
		p.SuccessSignals = make(map[string]int)
	}
	if p.FailureSignals == nil {
		p.FailureSignals = make(map[string]int)
	}
	if p.TimingPatterns == nil {
		p.TimingPatterns = make(map[string]int)
	}
}

// recompute refreshes the derived fields after a mutation.
func (p *Profile) recompute(now time.Time) {
	p.LearningConfidence = learning.LearningConfidence(
		p.TotalSessions, p.FeedbackInteractions, p.SuccessfulContacts)
	p.PatternVersion++
	p.UpdatedAt = now
}

// absorb folds one promoted pattern into the profile's weights. The
// pattern's confidence scales its contribution.
func (p *Profile) absorb(sp *learning.SessionPattern) {
	switch sp.Type {
	case learning.PatternIndustryPreference:
		addWeight(p.IndustryWeights, sp.Data.Industry, sp.Confidence)
	case learning.PatternIndustryAvoidance:
		addWeight(p.IndustryWeights, sp.Data.Industry, -sp.Confidence)
	case learning.PatternRolePreference:
		addWeight(p.RoleWeights, sp.Data.Role, sp.Confidence)
	case learning.PatternCompanySizePreference:
		addWeight(p.CompanySizeWeights, sp.Data.CompanySize, sp.Confidence)
	case learning.PatternExperiencePreference:
		addWeight(p.ExperienceWeights, sp.Data.ExperienceLevel, sp.Confidence)
	case learning.PatternSuccessIndicator:
		if key := normalize(sp.Data.Signal); key != "" {
			p.SuccessSignals[key]++
		}
	case learning.PatternFailureIndicator:
		if key := normalize(sp.Data.Signal); key != "" {
			p.FailureSignals[key]++
		}
	}
}

// reset zeroes all learned data, keeping identity and the version
// counter.
func (p *Profile) reset(now time.Time) {
	p.IndustryWeights = make(map[string]float64)
	p.RoleWeights = make(map[string]float64)
	p.CompanySizeWeights = make(map[string]float64)
	p.ExperienceWeights = make(map[string]float64)
	p.SuccessSignals = make(map[string]int)
	p.FailureSignals = make(map[string]int)
	p.TimingPatterns = make(map[string]int)
	p.TotalSessions = 0
	p.FeedbackInteractions = 0
	p.SuccessfulContacts = 0
	p.LearningConfidence = 0
	p.recompute(now)
}

func addWeight(m map[string]float64, key string, delta float64) {
	k := normalize(key)
	if k == "" {
		return
	}
	m[k] += delta
}

// normalize lowercases and trims an attribute value for use as a map
// key.
func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// daypart buckets a timestamp for the timing tally.
func daypart(t time.Time) string {
	switch h := t.Hour(); {
	case h < 6:
		return "night"
	case h < 12:
		return "morning"
	case h < 18:
		return "afternoon"
	default:
		return "evening"
	}
}
