// Package learning implements session-scoped pattern learning: it turns
// reviewer feedback on one candidate profile into confidence-scored
// preference patterns and applies them to the next profile analyzed in
// the same session.
package learning

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors for learning operations.
var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrMalformedFeedback = errors.New("malformed feedback")
	ErrEmptySessionID    = errors.New("session ID cannot be empty")
	ErrEmptyUserID       = errors.New("user ID cannot be empty")
	ErrEmptyProfileID    = errors.New("profile ID cannot be empty")
	ErrInvalidConfidence = errors.New("confidence must be between 0.0 and 1.0")
)

// PatternType is the closed set of preference hypotheses the extractor
// can emit.
type PatternType string

const (
	PatternIndustryPreference     PatternType = "industry_preference"
	PatternIndustryAvoidance      PatternType = "industry_avoidance"
	PatternRolePreference         PatternType = "role_preference"
	PatternCompanySizePreference  PatternType = "company_size_preference"
	PatternExperiencePreference   PatternType = "experience_preference"
	PatternSuccessIndicator       PatternType = "success_indicator"
	PatternFailureIndicator       PatternType = "failure_indicator"
)

// Valid reports whether t is a known pattern type.
func (t PatternType) Valid() bool {
	switch t {
	case PatternIndustryPreference, PatternIndustryAvoidance,
		PatternRolePreference, PatternCompanySizePreference,
		PatternExperiencePreference, PatternSuccessIndicator,
		PatternFailureIndicator:
		return true
	}
	return false
}

// PatternData is the type-specific payload of a pattern. Exactly the
// fields relevant to the pattern's type are set.
type PatternData struct {
	Industry        string `json:"industry,omitempty"`
	Role            string `json:"role,omitempty"`
	CompanySize     string `json:"company_size,omitempty"`
	ExperienceLevel string `json:"experience_level,omitempty"`

	// Signal carries the matched text for success/failure indicators.
	Signal string `json:"signal,omitempty"`
}

// SessionPattern is one confidence-scored preference hypothesis.
//
// Patterns are immutable once created: confidence is never mutated in
// place. A revision produces a new pattern or is discarded.
type SessionPattern struct {
	// ID is unique within the session (UUID).
	ID string `json:"id"`

	// Type classifies the hypothesis.
	Type PatternType `json:"pattern_type"`

	// Data is the type-specific payload.
	Data PatternData `json:"pattern_data"`

	// Confidence is the hypothesis reliability in [0,1]. Patterns below
	// the retention threshold never enter the session store.
	Confidence float64 `json:"confidence_score"`

	// SourceProfileID is the profile the feedback referred to.
	SourceProfileID string `json:"source_profile_id"`

	// SourceInteractionID links back to the feedback interaction.
	SourceInteractionID string `json:"source_interaction_id"`

	// CreatedAt is when the pattern was discovered.
	CreatedAt time.Time `json:"created_at"`
}

// NewSessionPattern creates a pattern with a generated ID.
func NewSessionPattern(t PatternType, data PatternData, confidence float64, profileID, interactionID string) (*SessionPattern, error) {
	if !t.Valid() {
		return nil, errors.New("unknown pattern type")
	}
	if confidence < 0 || confidence > 1 {
		return nil, ErrInvalidConfidence
	}
	return &SessionPattern{
		ID:                  uuid.New().String(),
		Type:                t,
		Data:                data,
		Confidence:          confidence,
		SourceProfileID:     profileID,
		SourceInteractionID: interactionID,
		CreatedAt:           time.Now(),
	}, nil
}

// Profile is a candidate profile snapshot as delivered by the upstream
// fetcher. Consumed, never owned.
type Profile struct {
	ID              string `json:"id"`
	Industry        string `json:"industry,omitempty"`
	Role            string `json:"role,omitempty"`
	CompanySize     string `json:"company_size,omitempty"`
	ExperienceYears int    `json:"experience_years,omitempty"`
	Location        string `json:"location,omitempty"`
	Seniority       string `json:"seniority,omitempty"`
	RecentText      string `json:"recent_text,omitempty"`
}

// Analysis is a scored assessment of one profile.
type Analysis struct {
	ProfileID string `json:"profile_id"`

	// Confidence is the certainty of the assessment in [0,1].
	Confidence float64 `json:"confidence_score"`

	// Relevance is the ranking score in [0,1].
	Relevance float64 `json:"relevance_score"`

	Summary string `json:"summary,omitempty"`
}

// CollectionMethod tags how feedback was gathered.
type CollectionMethod string

const (
	MethodExplicit CollectionMethod = "explicit"
	MethodImplicit CollectionMethod = "implicit"
)

// Feedback is the reviewer's input on one profile.
type Feedback struct {
	// Rating is the reviewer's 1-5 assessment. Required.
	Rating int `json:"rating" validate:"required,min=1,max=5"`

	// Reasoning is optional free-text explanation.
	Reasoning string `json:"reasoning,omitempty" validate:"max=10000"`

	// Method tags the collection path. Defaults to explicit.
	Method CollectionMethod `json:"method,omitempty" validate:"omitempty,oneof=explicit implicit"`
}

// Positive reports whether the rating expresses approval.
func (f Feedback) Positive() bool { return f.Rating >= 4 }

// Negative reports whether the rating expresses rejection.
func (f Feedback) Negative() bool { return f.Rating <= 2 }

// Interaction is one feedback event bound to its session and profile.
// Append-only input to the extractor.
type Interaction struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	ProfileID string    `json:"profile_id"`
	Feedback  Feedback  `json:"feedback"`
	CreatedAt time.Time `json:"created_at"`
}

// NewInteraction creates an interaction with a generated ID.
func NewInteraction(sessionID, userID, profileID string, fb Feedback) *Interaction {
	return &Interaction{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		UserID:    userID,
		ProfileID: profileID,
		Feedback:  fb,
		CreatedAt: time.Now(),
	}
}

// ProfileRecord is the per-profile audit entry kept in session state:
// the analysis served and the feedback (if any) that followed it.
type ProfileRecord struct {
	ProfileID   string       `json:"profile_id"`
	Analysis    *Analysis    `json:"analysis,omitempty"`
	Interaction *Interaction `json:"interaction,omitempty"`
	RecordedAt  time.Time    `json:"recorded_at"`
}

// Metrics are the session's learning counters.
//
// PatternsDiscovered and PatternsApplied are monotonic within a
// session's lifetime.
type Metrics struct {
	PatternsDiscovered   int       `json:"patterns_discovered"`
	PatternsApplied      int       `json:"patterns_applied"`
	ConfidenceBoosts     []float64 `json:"confidence_boosts"`
	AccuracyImprovements []float64 `json:"accuracy_improvements"`
}

// SessionMetrics is the derived summary exposed to callers.
type SessionMetrics struct {
	SessionID             string    `json:"session_id"`
	UserID                string    `json:"user_id"`
	PatternsDiscovered    int       `json:"patterns_discovered"`
	PatternsApplied       int       `json:"patterns_applied"`
	ActivePatterns        int       `json:"active_patterns"`
	MeanConfidenceBoost   float64   `json:"mean_confidence_boost"`
	LearningEffectiveness string    `json:"learning_effectiveness"`
	LastUpdated           time.Time `json:"last_updated"`
}

// SessionState is the full in-memory state of one session.
type SessionState struct {
	SessionID   string                     `json:"session_id"`
	UserID      string                     `json:"user_id"`
	CreatedAt   time.Time                  `json:"created_at"`
	LastUpdated time.Time                  `json:"last_updated"`
	Patterns    map[string]*SessionPattern `json:"patterns"`
	Profiles    map[string]*ProfileRecord  `json:"profile_analyses"`
	Metrics     Metrics                    `json:"learning_metrics"`
}

// Application records one pattern applied to an analysis, with its
// reason string for explainability.
type Application struct {
	PatternID   string      `json:"pattern_id"`
	PatternType PatternType `json:"pattern_type"`
	Delta       float64     `json:"delta"`
	Reason      string      `json:"reason"`
}

// Impact summarizes the learning effect on a single analysis.
type Impact struct {
	BaselineConfidence float64 `json:"baseline_confidence"`
	EnhancedConfidence float64 `json:"enhanced_confidence"`
	TotalDelta         float64 `json:"total_delta"`
	PatternsEvaluated  int     `json:"patterns_evaluated"`
	ApplicationsApplied int    `json:"applications_applied"`
}
