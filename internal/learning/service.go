package learning

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// DurableLearner receives the session-to-durable handoffs: per-feedback
// counter updates and end-of-session pattern promotion. Implemented by
// the preference service.
type DurableLearner interface {
	// NoteFeedback folds one feedback interaction into the user's
	// durable profile counters.
	NoteFeedback(ctx context.Context, userID string, interaction *Interaction) error

	// PromoteSessionPatterns persists the qualifying patterns at
	// session close and returns how many were promoted.
	PromoteSessionPatterns(ctx context.Context, userID string, patterns []*SessionPattern) (int, error)
}

// Service is the learning facade the transport layer talks to. It owns
// the feedback-to-pattern and pattern-to-analysis flows; session state
// lives in the SessionStore, durable state behind the DurableLearner.
type Service struct {
	store     *SessionStore
	extractor *Extractor
	engine    *Engine
	durable   DurableLearner
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewService wires the learning facade. durable may be nil, which
// disables promotion and durable counters (useful in tests).
func NewService(store *SessionStore, extractor *Extractor, durable DurableLearner, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("session store cannot be nil")
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		extractor: extractor,
		engine:    NewEngine(),
		durable:   durable,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
	}, nil
}

// FeedbackRequest carries one reviewer feedback submission.
type FeedbackRequest struct {
	SessionID string   `json:"session_id" validate:"required"`
	UserID    string   `json:"user_id" validate:"required"`
	ProfileID string   `json:"profile_id" validate:"required"`
	Profile   *Profile `json:"profile,omitempty"`
	Feedback  Feedback `json:"feedback" validate:"required"`
}

// FeedbackResult reports what the feedback taught the session.
type FeedbackResult struct {
	SessionID         string            `json:"session_id"`
	InteractionID     string            `json:"interaction_id"`
	PatternsExtracted int               `json:"patterns_extracted"`
	Patterns          []*SessionPattern `json:"patterns,omitempty"`

	// ConfidenceImpact estimates the total scoring delta the new
	// patterns would contribute to a fully matching profile.
	ConfidenceImpact float64 `json:"confidence_impact"`
}

// SubmitFeedback validates, records, and learns from one feedback
// event. The session is created on first contact; AI extraction
// failures degrade to heuristics inside the extractor, so feedback is
// never rejected for provider unavailability.
func (s *Service) SubmitFeedback(ctx context.Context, req *FeedbackRequest) (*FeedbackResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFeedback, err)
	}
	if req.Feedback.Method == "" {
		req.Feedback.Method = MethodExplicit
	}

	if err := s.store.Init(ctx, req.SessionID, req.UserID); err != nil {
		return nil, err
	}

	interaction := NewInteraction(req.SessionID, req.UserID, req.ProfileID, req.Feedback)
	if err := s.store.RecordFeedback(ctx, req.SessionID, interaction); err != nil {
		return nil, err
	}

	patterns := s.extractor.Extract(ctx, interaction, req.Profile)
	if len(patterns) > 0 {
		if err := s.store.RecordPatterns(ctx, req.SessionID, patterns); err != nil {
			return nil, err
		}
	}

	if s.durable != nil {
		if err := s.durable.NoteFeedback(ctx, req.UserID, interaction); err != nil {
			s.logger.Warn("durable feedback counter update failed",
				zap.String("user_id", req.UserID),
				zap.Error(err))
		}
	}

	var impact float64
	for _, p := range patterns {
		impact += patternDelta(p)
	}

	s.logger.Info("feedback processed",
		zap.String("session_id", req.SessionID),
		zap.String("profile_id", req.ProfileID),
		zap.Int("rating", req.Feedback.Rating),
		zap.Int("patterns_extracted", len(patterns)))

	return &FeedbackResult{
		SessionID:         req.SessionID,
		InteractionID:     interaction.ID,
		PatternsExtracted: len(patterns),
		Patterns:          patterns,
		ConfidenceImpact:  impact,
	}, nil
}

// AnalyzeRequest asks for a pattern-enhanced analysis of one profile.
type AnalyzeRequest struct {
	SessionID string    `json:"session_id" validate:"required"`
	UserID    string    `json:"user_id" validate:"required"`
	Profile   *Profile  `json:"profile" validate:"required"`
	Baseline  *Analysis `json:"baseline" validate:"required"`
}

// AnalyzeResult is the enhanced analysis plus its explanation.
type AnalyzeResult struct {
	Analysis     *Analysis     `json:"analysis"`
	Impact       Impact        `json:"impact"`
	Applications []Application `json:"applications,omitempty"`
}

// AnalyzeProfile applies the session's patterns to a baseline
// analysis. An unknown session is created transparently (warm-started
// when durable patterns exist) rather than rejected: the first
// analysis of a fresh session is a legitimate call.
func (s *Service) AnalyzeProfile(ctx context.Context, req *AnalyzeRequest) (*AnalyzeResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid analyze request: %w", err)
	}

	if err := s.store.Init(ctx, req.SessionID, req.UserID); err != nil {
		return nil, err
	}

	patterns, err := s.store.Patterns(req.SessionID)
	if err != nil {
		return nil, err
	}

	enhanced, impact, apps := s.engine.Apply(patterns, req.Profile, req.Baseline)
	enhanced.ProfileID = req.Profile.ID

	if err := s.store.RecordProfileAnalysis(ctx, req.SessionID, req.Profile.ID, enhanced); err != nil {
		return nil, err
	}
	if len(apps) > 0 {
		if err := s.store.RecordApplication(ctx, req.SessionID, impact, apps); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("profile analyzed",
		zap.String("session_id", req.SessionID),
		zap.String("profile_id", req.Profile.ID),
		zap.Int("patterns_evaluated", impact.PatternsEvaluated),
		zap.Int("patterns_applied", impact.ApplicationsApplied),
		zap.Float64("total_delta", impact.TotalDelta))

	return &AnalyzeResult{
		Analysis:     enhanced,
		Impact:       impact,
		Applications: apps,
	}, nil
}

// SessionMetrics reports a session's learning counters.
func (s *Service) SessionMetrics(ctx context.Context, sessionID string) (*SessionMetrics, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}
	return s.store.Metrics(sessionID)
}

// CloseResult reports the outcome of a session close.
type CloseResult struct {
	SessionID         string `json:"session_id"`
	PatternsPromoted  int    `json:"patterns_promoted"`
	PatternsDiscarded int    `json:"patterns_discarded"`
}

// CloseSession promotes the session's qualifying patterns to durable
// storage, then evicts the session. Patterns below the promotion
// threshold are discarded with the session.
//
// Promotion runs before eviction: if it fails, the session and its
// snapshot stay intact and the close returns an error so the caller
// can retry without losing patterns.
func (s *Service) CloseSession(ctx context.Context, sessionID string) (*CloseResult, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}

	userID, err := s.store.UserID(sessionID)
	if err != nil {
		return nil, err
	}

	patterns, err := s.store.Patterns(sessionID)
	if err != nil {
		return nil, err
	}

	promoted := 0
	if s.durable != nil {
		promoted, err = s.durable.PromoteSessionPatterns(ctx, userID, patterns)
		if err != nil {
			s.logger.Warn("pattern promotion failed, session kept for retry",
				zap.String("session_id", sessionID),
				zap.String("user_id", userID),
				zap.Int("patterns_pending", len(patterns)),
				zap.Error(err))
			return nil, fmt.Errorf("promoting patterns for session %s: %w", sessionID, err)
		}
	}

	if _, err := s.store.Evict(ctx, sessionID); err != nil {
		return nil, err
	}

	s.logger.Info("session closed",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
		zap.Int("patterns_promoted", promoted),
		zap.Int("patterns_discarded", len(patterns)-promoted))

	return &CloseResult{
		SessionID:         sessionID,
		PatternsPromoted:  promoted,
		PatternsDiscarded: len(patterns) - promoted,
	}, nil
}

// ExpireIdleSessions closes every session idle past the store's window,
// through the same promote-then-evict path as an explicit close, so
// expiry never strands qualifying patterns or resurrects discarded
// ones. Returns the number of sessions closed.
func (s *Service) ExpireIdleSessions(ctx context.Context) int {
	expired := 0
	for _, id := range s.store.IdleSessions() {
		if _, err := s.CloseSession(ctx, id); err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				continue // closed concurrently
			}
			s.logger.Warn("idle session close failed",
				zap.String("session_id", id),
				zap.Error(err))
			continue
		}
		expired++
		s.logger.Info("idle session expired",
			zap.String("session_id", id))
	}
	return expired
}
