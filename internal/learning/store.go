package learning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/scoutd/internal/storage"
)

// WarmStartSource supplies a user's durable high-confidence patterns
// for seeding new sessions. Implemented by the preference service.
type WarmStartSource interface {
	DurablePatterns(ctx context.Context, userID string, minConfidence float64) ([]*SessionPattern, error)
}

// SessionStore holds the in-memory learning state of every active
// session.
//
// Concurrency: sessions are independently locked so two requests for
// the same session serialize while unrelated sessions never contend.
// The store-level lock only guards the session map itself.
//
// Persistence is best-effort: a failed snapshot write is logged and
// learning continues in memory for the rest of the session.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry

	durable    storage.Store
	warm       WarmStartSource
	logger     *zap.Logger
	idleWindow time.Duration

	// warmConfidence is the floor for warm-start seeding.
	warmConfidence float64

	// minConfidence is the retention floor enforced on writes.
	minConfidence float64

	// now is injectable for expiry tests.
	now func() time.Time
}

// sessionEntry pairs one session's state with its own lock.
type sessionEntry struct {
	mu    sync.Mutex
	state *SessionState
}

// SessionStoreOption configures a SessionStore.
type SessionStoreOption func(*SessionStore)

// WithIdleWindow overrides the default 120-minute idle window.
func WithIdleWindow(d time.Duration) SessionStoreOption {
	return func(s *SessionStore) { s.idleWindow = d }
}

// WithClock injects a clock. For tests.
func WithClock(now func() time.Time) SessionStoreOption {
	return func(s *SessionStore) { s.now = now }
}

// WithWarmStartSource sets the durable-pattern source for new sessions.
func WithWarmStartSource(w WarmStartSource) SessionStoreOption {
	return func(s *SessionStore) { s.warm = w }
}

// WithConfidenceFloors overrides the retention and warm-start floors.
// Non-positive values keep the defaults.
func WithConfidenceFloors(min, warm float64) SessionStoreOption {
	return func(s *SessionStore) {
		if min > 0 {
			s.minConfidence = min
		}
		if warm > 0 {
			s.warmConfidence = warm
		}
	}
}

// NewSessionStore creates a session store. durable may be a MemoryStore
// in tests; it must not be nil.
func NewSessionStore(durable storage.Store, logger *zap.Logger, opts ...SessionStoreOption) (*SessionStore, error) {
	if durable == nil {
		return nil, fmt.Errorf("durable store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SessionStore{
		sessions:       make(map[string]*sessionEntry),
		durable:        durable,
		logger:         logger,
		idleWindow:     120 * time.Minute,
		warmConfidence: WarmStartConfidence,
		minConfidence:  MinPatternConfidence,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Init creates or revives a session. Idempotent: a second call for an
// active session is a no-op, so warm-start patterns are never seeded
// twice.
//
// Order of precedence: live session > persisted snapshot > fresh
// session warm-started from the user's durable patterns.
func (s *SessionStore) Init(ctx context.Context, sessionID, userID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	if userID == "" {
		return ErrEmptyUserID
	}

	s.mu.RLock()
	_, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return nil
	}

	s.mu.Lock()
	if _, ok := s.sessions[sessionID]; ok {
		s.mu.Unlock()
		return nil
	}
	entry := &sessionEntry{}
	entry.mu.Lock() // hold until the state is populated
	s.sessions[sessionID] = entry
	s.mu.Unlock()
	defer entry.mu.Unlock()

	if state := s.restoreSnapshot(ctx, sessionID); state != nil {
		state.LastUpdated = s.now()
		entry.state = state
		s.logger.Info("session restored from snapshot",
			zap.String("session_id", sessionID),
			zap.Int("patterns", len(state.Patterns)))
		return nil
	}

	now := s.now()
	state := &SessionState{
		SessionID:   sessionID,
		UserID:      userID,
		CreatedAt:   now,
		LastUpdated: now,
		Patterns:    make(map[string]*SessionPattern),
		Profiles:    make(map[string]*ProfileRecord),
	}

	if s.warm != nil {
		seeds, err := s.warm.DurablePatterns(ctx, userID, s.warmConfidence)
		if err != nil {
			s.logger.Warn("warm start unavailable, starting cold",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
		for _, p := range seeds {
			state.Patterns[p.ID] = p
		}
		if len(seeds) > 0 {
			s.logger.Info("session warm-started from durable patterns",
				zap.String("session_id", sessionID),
				zap.Int("patterns", len(seeds)))
		}
	}

	entry.state = state
	s.persist(ctx, state)
	return nil
}

// Exists reports whether a session is resident.
func (s *SessionStore) Exists(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[sessionID]
	return ok
}

// entry fetches a session entry or ErrSessionNotFound.
func (s *SessionStore) entry(sessionID string) (*sessionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return e, nil
}

// RecordPatterns appends patterns to the session, bumps
// patterns_discovered, and persists a snapshot best-effort. Patterns
// below the retention floor are rejected here as a final guard.
func (s *SessionStore) RecordPatterns(ctx context.Context, sessionID string, patterns []*SessionPattern) error {
	e, err := s.entry(sessionID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, p := range patterns {
		if p.Confidence < s.minConfidence {
			continue
		}
		e.state.Patterns[p.ID] = p
		e.state.Metrics.PatternsDiscovered++
	}
	e.state.LastUpdated = s.now()
	s.persist(ctx, e.state)
	return nil
}

// RecordProfileAnalysis stores the analysis served for a profile.
func (s *SessionStore) RecordProfileAnalysis(ctx context.Context, sessionID, profileID string, analysis *Analysis) error {
	e, err := s.entry(sessionID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rec := e.state.Profiles[profileID]
	if rec == nil {
		rec = &ProfileRecord{ProfileID: profileID}
		e.state.Profiles[profileID] = rec
	}
	rec.Analysis = analysis
	rec.RecordedAt = s.now()
	e.state.LastUpdated = s.now()
	s.persist(ctx, e.state)
	return nil
}

// RecordFeedback links a feedback interaction to its profile record
// for auditing.
func (s *SessionStore) RecordFeedback(ctx context.Context, sessionID string, interaction *Interaction) error {
	e, err := s.entry(sessionID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rec := e.state.Profiles[interaction.ProfileID]
	if rec == nil {
		rec = &ProfileRecord{ProfileID: interaction.ProfileID}
		e.state.Profiles[interaction.ProfileID] = rec
	}
	rec.Interaction = interaction
	rec.RecordedAt = s.now()
	e.state.LastUpdated = s.now()
	s.persist(ctx, e.state)
	return nil
}

// RecordApplication folds an application result into the session's
// metrics.
func (s *SessionStore) RecordApplication(ctx context.Context, sessionID string, impact Impact, apps []Application) error {
	e, err := s.entry(sessionID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.Metrics.PatternsApplied += len(apps)
	e.state.Metrics.ConfidenceBoosts = append(e.state.Metrics.ConfidenceBoosts, impact.TotalDelta)
	if improvement := impact.EnhancedConfidence - impact.BaselineConfidence; improvement > 0 {
		e.state.Metrics.AccuracyImprovements = append(e.state.Metrics.AccuracyImprovements, improvement)
	}
	e.state.LastUpdated = s.now()
	s.persist(ctx, e.state)
	return nil
}

// Patterns returns the session's current patterns ordered by
// descending confidence. The slice and its elements are copies.
func (s *SessionStore) Patterns(sessionID string) ([]*SessionPattern, error) {
	e, err := s.entry(sessionID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*SessionPattern, 0, len(e.state.Patterns))
	for _, p := range e.state.Patterns {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UserID returns the owning user of a session.
func (s *SessionStore) UserID(sessionID string) (string, error) {
	e, err := s.entry(sessionID)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.UserID, nil
}

// Metrics derives the session's metrics summary.
func (s *SessionStore) Metrics(sessionID string) (*SessionMetrics, error) {
	e, err := s.entry(sessionID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	meanBoost := mean(e.state.Metrics.ConfidenceBoosts)
	return &SessionMetrics{
		SessionID:             e.state.SessionID,
		UserID:                e.state.UserID,
		PatternsDiscovered:    e.state.Metrics.PatternsDiscovered,
		PatternsApplied:       e.state.Metrics.PatternsApplied,
		ActivePatterns:        len(e.state.Patterns),
		MeanConfidenceBoost:   meanBoost,
		LearningEffectiveness: Effectiveness(meanBoost),
		LastUpdated:           e.state.LastUpdated,
	}, nil
}

// Evict removes a session from memory and deletes its snapshot.
// The session's current patterns are returned so the caller can
// promote them first.
func (s *SessionStore) Evict(ctx context.Context, sessionID string) ([]*SessionPattern, error) {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	patterns := make([]*SessionPattern, 0, len(e.state.Patterns))
	for _, p := range e.state.Patterns {
		cp := *p
		patterns = append(patterns, &cp)
	}

	if err := s.durable.Delete(ctx, storage.NamespaceSessions, sessionID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("failed to delete session snapshot",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
	return patterns, nil
}

// IdleSessions returns the ids of sessions untouched for longer than
// the idle window. Sessions with an in-flight mutation are skipped and
// caught by the next sweep. Only the map's read lock is taken, so a
// sweep never stalls unrelated session operations.
func (s *SessionStore) IdleSessions() []string {
	cutoff := s.now().Add(-s.idleWindow)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var idle []string
	for id, e := range s.sessions {
		if !e.mu.TryLock() {
			continue // actively being written; next sweep will see it
		}
		stale := e.state.LastUpdated.Before(cutoff)
		e.mu.Unlock()

		if stale {
			idle = append(idle, id)
		}
	}
	return idle
}

// ActiveSessions returns the number of resident sessions.
func (s *SessionStore) ActiveSessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// persist writes a best-effort snapshot. Callers hold the entry lock.
func (s *SessionStore) persist(ctx context.Context, state *SessionState) {
	value, err := json.Marshal(state)
	if err != nil {
		s.logger.Warn("failed to marshal session snapshot",
			zap.String("session_id", state.SessionID),
			zap.Error(err))
		return
	}
	rec := &storage.Record{
		Namespace: storage.NamespaceSessions,
		ID:        state.SessionID,
		Value:     value,
	}
	if err := s.durable.Upsert(ctx, rec); err != nil {
		// Learning continues in memory; only durability is degraded.
		s.logger.Warn("session snapshot write failed",
			zap.String("session_id", state.SessionID),
			zap.Error(err))
	}
}

// restoreSnapshot loads a persisted session if one exists.
func (s *SessionStore) restoreSnapshot(ctx context.Context, sessionID string) *SessionState {
	rec, err := s.durable.Get(ctx, storage.NamespaceSessions, sessionID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("session snapshot read failed",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
		return nil
	}

	var state SessionState
	if err := json.Unmarshal(rec.Value, &state); err != nil {
		s.logger.Warn("corrupt session snapshot ignored",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return nil
	}
	if state.Patterns == nil {
		state.Patterns = make(map[string]*SessionPattern)
	}
	if state.Profiles == nil {
		state.Profiles = make(map[string]*ProfileRecord)
	}
	return &state
}
