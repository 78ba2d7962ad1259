package preference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/scoutd/internal/learning"
	"github.com/fyrsmithlabs/scoutd/internal/storage"
)

const (
	// lockStripes bounds per-user lock memory. Two users may share a
	// stripe; correctness only needs same-user serialization.
	lockStripes = 64

	// Durable writes are retried because losing a promotion loses
	// cross-session learning, not just a cache entry.
	writeAttempts  = 3
	writeBaseDelay = 100 * time.Millisecond
)

// Service manages durable per-user preference profiles and the
// long-lived pattern store backing session warm starts.
//
// It implements learning.WarmStartSource and learning.DurableLearner.
type Service struct {
	store  storage.Store
	logger *zap.Logger
	now    func() time.Time

	// promotionFloor gates session-close promotion.
	promotionFloor float64

	stripes [lockStripes]sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithClock injects a clock. For tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPromotionFloor overrides the confidence floor for session-close
// promotion. Non-positive values keep the default.
func WithPromotionFloor(floor float64) Option {
	return func(s *Service) {
		if floor > 0 {
			s.promotionFloor = floor
		}
	}
}

// NewService creates a preference service on the given durable store.
func NewService(store storage.Store, logger *zap.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:          store,
		logger:         logger,
		now:            time.Now,
		promotionFloor: learning.PromotionConfidence,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) lock(userID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &s.stripes[h.Sum32()%lockStripes]
}

// GetOrCreate loads a user's profile, creating an empty one on first
// contact. The created profile is not persisted until it first learns
// something.
func (s *Service) GetOrCreate(ctx context.Context, userID string) (*Profile, error) {
	if userID == "" {
		return nil, learning.ErrEmptyUserID
	}

	mu := s.lock(userID)
	mu.Lock()
	defer mu.Unlock()

	return s.load(ctx, userID)
}

// load fetches or initializes a profile. Callers hold the user lock.
func (s *Service) load(ctx context.Context, userID string) (*Profile, error) {
	rec, err := s.store.Get(ctx, storage.NamespaceProfiles, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return newProfile(userID, s.now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", userID, err)
	}

	var p Profile
	if err := json.Unmarshal(rec.Value, &p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", userID, err)
	}
	p.ensureMaps()
	return &p, nil
}

// save persists a profile with retries. Callers hold the user lock.
func (s *Service) save(ctx context.Context, p *Profile) error {
	value, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", p.UserID, err)
	}
	return s.writeWithRetry(ctx, &storage.Record{
		Namespace: storage.NamespaceProfiles,
		ID:        p.UserID,
		Value:     value,
	})
}

func (s *Service) writeWithRetry(ctx context.Context, rec *storage.Record) error {
	var err error
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		if err = s.store.Upsert(ctx, rec); err == nil {
			return nil
		}
		if attempt < writeAttempts {
			delay := writeBaseDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("durable write %s/%s failed after %d attempts: %w",
		rec.Namespace, rec.ID, writeAttempts, err)
}

// NoteFeedback bumps the user's feedback counter. Part of the
// learning.DurableLearner contract.
func (s *Service) NoteFeedback(ctx context.Context, userID string, interaction *learning.Interaction) error {
	if userID == "" {
		return learning.ErrEmptyUserID
	}

	mu := s.lock(userID)
	mu.Lock()
	defer mu.Unlock()

	p, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	p.FeedbackInteractions++
	at := s.now()
	if interaction != nil && !interaction.CreatedAt.IsZero() {
		at = interaction.CreatedAt
	}
	p.TimingPatterns[daypart(at)]++
	p.recompute(s.now())
	return s.save(ctx, p)
}

// RecordOutcome registers a successful contact for the user. This is
// the only path that increments SuccessfulContacts.
func (s *Service) RecordOutcome(ctx context.Context, userID, profileID string) error {
	if userID == "" {
		return learning.ErrEmptyUserID
	}
	if profileID == "" {
		return learning.ErrEmptyProfileID
	}

	mu := s.lock(userID)
	mu.Lock()
	defer mu.Unlock()

	p, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	p.SuccessfulContacts++
	p.recompute(s.now())

	s.logger.Info("contact outcome recorded",
		zap.String("user_id", userID),
		zap.String("profile_id", profileID),
		zap.Float64("learning_confidence", p.LearningConfidence))
	return s.save(ctx, p)
}

// PromoteSessionPatterns persists the qualifying session patterns
// durably and folds them into the user's profile. Patterns below the
// promotion threshold are ignored. A pattern matching an existing
// durable one by type and payload replaces it only when more
// confident. Part of the learning.DurableLearner contract.
func (s *Service) PromoteSessionPatterns(ctx context.Context, userID string, patterns []*learning.SessionPattern) (int, error) {
	if userID == "" {
		return 0, learning.ErrEmptyUserID
	}

	mu := s.lock(userID)
	mu.Lock()
	defer mu.Unlock()

	p, err := s.load(ctx, userID)
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, sp := range patterns {
		if sp.Confidence < s.promotionFloor {
			continue
		}
		if err := s.upsertDurablePattern(ctx, userID, sp); err != nil {
			// Recoverable data loss: the session learned it, the next
			// session will not inherit it.
			s.logger.Warn("pattern promotion write failed",
				zap.String("user_id", userID),
				zap.String("pattern_type", string(sp.Type)),
				zap.Error(err))
			continue
		}
		p.absorb(sp)
		promoted++
	}

	p.TotalSessions++
	p.recompute(s.now())
	if err := s.save(ctx, p); err != nil {
		return promoted, err
	}

	s.logger.Info("session patterns promoted",
		zap.String("user_id", userID),
		zap.Int("promoted", promoted),
		zap.Int("offered", len(patterns)),
		zap.Int("pattern_version", p.PatternVersion))
	return promoted, nil
}

// upsertDurablePattern writes one pattern keyed by its semantic
// identity, keeping the higher-confidence copy on collision.
func (s *Service) upsertDurablePattern(ctx context.Context, userID string, sp *learning.SessionPattern) error {
	id := durablePatternID(userID, sp)

	if existing, err := s.store.Get(ctx, storage.NamespacePatterns, id); err == nil {
		var cur learning.SessionPattern
		if json.Unmarshal(existing.Value, &cur) == nil && cur.Confidence >= sp.Confidence {
			return nil
		}
	}

	value, err := json.Marshal(sp)
	if err != nil {
		return fmt.Errorf("encode pattern: %w", err)
	}
	return s.writeWithRetry(ctx, &storage.Record{
		Namespace: storage.NamespacePatterns,
		ID:        id,
		Value:     value,
	})
}

// durablePatternID keys a pattern by owner and semantic identity so
// re-learning the same preference overwrites instead of accumulating.
func durablePatternID(userID string, sp *learning.SessionPattern) string {
	var payload string
	switch sp.Type {
	case learning.PatternIndustryPreference, learning.PatternIndustryAvoidance:
		payload = normalize(sp.Data.Industry)
	case learning.PatternRolePreference:
		payload = normalize(sp.Data.Role)
	case learning.PatternCompanySizePreference:
		payload = normalize(sp.Data.CompanySize)
	case learning.PatternExperiencePreference:
		payload = normalize(sp.Data.ExperienceLevel)
	default:
		payload = normalize(sp.Data.Signal)
	}
	return fmt.Sprintf("%s/%s:%s", userID, sp.Type, payload)
}

// DurablePatterns returns the user's stored patterns at or above
// minConfidence, strongest first. Part of the
// learning.WarmStartSource contract.
func (s *Service) DurablePatterns(ctx context.Context, userID string, minConfidence float64) ([]*learning.SessionPattern, error) {
	if userID == "" {
		return nil, learning.ErrEmptyUserID
	}

	recs, err := s.store.Query(ctx, storage.NamespacePatterns, userID+"/")
	if err != nil {
		return nil, fmt.Errorf("query patterns for %s: %w", userID, err)
	}

	out := make([]*learning.SessionPattern, 0, len(recs))
	for _, rec := range recs {
		var sp learning.SessionPattern
		if err := json.Unmarshal(rec.Value, &sp); err != nil {
			s.logger.Warn("corrupt durable pattern skipped",
				zap.String("record_id", rec.ID),
				zap.Error(err))
			continue
		}
		if sp.Confidence < minConfidence {
			continue
		}
		out = append(out, &sp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdateFromBehavior folds observed patterns into the profile outside
// the session-close path. With forceRefresh the weights are rebuilt
// from the durable pattern store before the new patterns are applied,
// discarding drift from decayed or deleted patterns.
func (s *Service) UpdateFromBehavior(ctx context.Context, userID string, patterns []*learning.SessionPattern, forceRefresh bool) (*Profile, error) {
	if userID == "" {
		return nil, learning.ErrEmptyUserID
	}

	mu := s.lock(userID)
	mu.Lock()
	defer mu.Unlock()

	p, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	if forceRefresh {
		durable, err := s.queryAllPatterns(ctx, userID)
		if err != nil {
			return nil, err
		}
		p.IndustryWeights = make(map[string]float64)
		p.RoleWeights = make(map[string]float64)
		p.CompanySizeWeights = make(map[string]float64)
		p.ExperienceWeights = make(map[string]float64)
		p.SuccessSignals = make(map[string]int)
		p.FailureSignals = make(map[string]int)
		for _, sp := range durable {
			p.absorb(sp)
		}
	}

	for _, sp := range patterns {
		p.absorb(sp)
	}
	p.recompute(s.now())
	if err := s.save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) queryAllPatterns(ctx context.Context, userID string) ([]*learning.SessionPattern, error) {
	recs, err := s.store.Query(ctx, storage.NamespacePatterns, userID+"/")
	if err != nil {
		return nil, fmt.Errorf("query patterns for %s: %w", userID, err)
	}
	out := make([]*learning.SessionPattern, 0, len(recs))
	for _, rec := range recs {
		var sp learning.SessionPattern
		if err := json.Unmarshal(rec.Value, &sp); err != nil {
			continue
		}
		out = append(out, &sp)
	}
	return out, nil
}

// ResetUser erases all learned state for a user: the profile's weights
// and counters, and every durable pattern. The pattern version keeps
// counting forward.
func (s *Service) ResetUser(ctx context.Context, userID string) error {
	if userID == "" {
		return learning.ErrEmptyUserID
	}

	mu := s.lock(userID)
	mu.Lock()
	defer mu.Unlock()

	recs, err := s.store.Query(ctx, storage.NamespacePatterns, userID+"/")
	if err != nil {
		return fmt.Errorf("query patterns for %s: %w", userID, err)
	}
	for _, rec := range recs {
		if err := s.store.Delete(ctx, storage.NamespacePatterns, rec.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("delete pattern %s: %w", rec.ID, err)
		}
	}

	p, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	p.reset(s.now())
	if err := s.save(ctx, p); err != nil {
		return err
	}

	s.logger.Info("user learning state reset",
		zap.String("user_id", userID),
		zap.Int("patterns_deleted", len(recs)))
	return nil
}

// WeightedValue is one ranked preference entry.
type WeightedValue struct {
	Value  string  `json:"value"`
	Weight float64 `json:"weight"`
}

// LearningInsight is one human-readable, non-binding suggestion derived
// from the durable profile.
type LearningInsight struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Insights is the read-model summary of a user's accumulated learning.
type Insights struct {
	UserID               string  `json:"user_id"`
	LearningConfidence   float64 `json:"learning_confidence"`
	PatternVersion       int     `json:"pattern_version"`
	TotalSessions        int     `json:"total_sessions"`
	FeedbackInteractions int     `json:"feedback_interactions"`
	SuccessfulContacts   int     `json:"successful_contacts"`
	DurablePatterns      int     `json:"durable_patterns"`

	PreferredIndustries []WeightedValue `json:"preferred_industries,omitempty"`
	AvoidedIndustries   []WeightedValue `json:"avoided_industries,omitempty"`
	PreferredRoles      []WeightedValue `json:"preferred_roles,omitempty"`
	PreferredSizes      []WeightedValue `json:"preferred_company_sizes,omitempty"`

	Suggestions []LearningInsight `json:"suggestions,omitempty"`
}

// insightsTopN bounds each ranked list in the insights payload.
const insightsTopN = 5

// Insights summarizes what the system has learned about a user.
func (s *Service) Insights(ctx context.Context, userID string) (*Insights, error) {
	if userID == "" {
		return nil, learning.ErrEmptyUserID
	}

	mu := s.lock(userID)
	mu.Lock()
	defer mu.Unlock()

	p, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	recs, err := s.store.Query(ctx, storage.NamespacePatterns, userID+"/")
	if err != nil {
		return nil, fmt.Errorf("query patterns for %s: %w", userID, err)
	}

	out := &Insights{
		UserID:               userID,
		LearningConfidence:   p.LearningConfidence,
		PatternVersion:       p.PatternVersion,
		TotalSessions:        p.TotalSessions,
		FeedbackInteractions: p.FeedbackInteractions,
		SuccessfulContacts:   p.SuccessfulContacts,
		DurablePatterns:      len(recs),
		PreferredIndustries:  topWeights(p.IndustryWeights, insightsTopN, true),
		AvoidedIndustries:    topWeights(p.IndustryWeights, insightsTopN, false),
		PreferredRoles:       topWeights(p.RoleWeights, insightsTopN, true),
		PreferredSizes:       topWeights(p.CompanySizeWeights, insightsTopN, true),
	}
	out.Suggestions = suggestFrom(p, out)
	return out, nil
}

// lowContactRate is the contact-rate floor below which the suggestions
// recommend revisiting the sourcing criteria.
const lowContactRate = 0.3

// suggestFrom derives non-binding, human-readable suggestions from the
// durable profile. Purely advisory: nothing downstream acts on these.
func suggestFrom(p *Profile, in *Insights) []LearningInsight {
	var out []LearningInsight

	if p.TotalSessions >= 5 {
		rate := float64(p.SuccessfulContacts) / float64(p.TotalSessions)
		if rate < lowContactRate {
			out = append(out, LearningInsight{
				Kind: "contact_rate",
				Message: fmt.Sprintf("contact rate is %.0f%%, below the %.0f%% target; consider adjusting sourcing criteria",
					rate*100, lowContactRate*100),
			})
		}
	}

	if p.FeedbackInteractions < 10 {
		out = append(out, LearningInsight{
			Kind:    "data_volume",
			Message: "limited feedback so far; rating more profiles will sharpen scoring",
		})
	}

	if len(in.PreferredIndustries) > 0 {
		top := in.PreferredIndustries[0]
		out = append(out, LearningInsight{
			Kind:    "industry_focus",
			Message: fmt.Sprintf("strongest industry signal is %q (weight %.2f); candidates there have scored best", top.Value, top.Weight),
		})
	}

	if len(in.AvoidedIndustries) > 0 {
		out = append(out, LearningInsight{
			Kind:    "industry_avoidance",
			Message: fmt.Sprintf("%q consistently drew negative feedback; current scoring penalizes it", in.AvoidedIndustries[0].Value),
		})
	}

	if part, n, total := dominantDaypart(p.TimingPatterns); total >= 5 && n*2 > total {
		out = append(out, LearningInsight{
			Kind:    "timing",
			Message: fmt.Sprintf("most review activity lands in the %s; batching sourcing runs before then keeps the queue fresh", part),
		})
	}

	return out
}

// dominantDaypart returns the busiest daypart, its count, and the
// total tally.
func dominantDaypart(m map[string]int) (string, int, int) {
	var best string
	var bestN, total int
	for part, n := range m {
		total += n
		if n > bestN || (n == bestN && part < best) {
			best, bestN = part, n
		}
	}
	return best, bestN, total
}

// topWeights ranks map entries by magnitude, keeping only the positive
// or negative side.
func topWeights(m map[string]float64, n int, positive bool) []WeightedValue {
	out := make([]WeightedValue, 0, len(m))
	for k, w := range m {
		if positive && w > 0 {
			out = append(out, WeightedValue{Value: k, Weight: w})
		} else if !positive && w < 0 {
			out = append(out, WeightedValue{Value: k, Weight: w})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		wi, wj := out[i].Weight, out[j].Weight
		if !positive {
			wi, wj = -wi, -wj
		}
		if wi != wj {
			return wi > wj
		}
		return out[i].Value < out[j].Value
	})
	if len(out) > n {
		out = out[:n]
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Compile-time checks for the learning contracts.
var (
	_ learning.WarmStartSource = (*Service)(nil)
	_ learning.DurableLearner  = (*Service)(nil)
)
