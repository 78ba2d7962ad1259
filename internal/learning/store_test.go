package learning

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/scoutd/internal/storage"
)

// fixedWarmStart serves a static pattern set for any user.
type fixedWarmStart struct {
	patterns []*SessionPattern
	calls    int
}

func (f *fixedWarmStart) DurablePatterns(ctx context.Context, userID string, minConfidence float64) ([]*SessionPattern, error) {
	f.calls++
	var out []*SessionPattern
	for _, p := range f.patterns {
		if p.Confidence >= minConfidence {
			out = append(out, p)
		}
	}
	return out, nil
}

func newTestStore(t *testing.T, opts ...SessionStoreOption) (*SessionStore, *storage.MemoryStore) {
	t.Helper()
	mem := storage.NewMemoryStore()
	s, err := NewSessionStore(mem, zap.NewNop(), opts...)
	require.NoError(t, err)
	return s, mem
}

func TestSessionStoreInit(t *testing.T) {
	ctx := context.Background()

	t.Run("validates ids", func(t *testing.T) {
		s, _ := newTestStore(t)
		assert.ErrorIs(t, s.Init(ctx, "", "u1"), ErrEmptySessionID)
		assert.ErrorIs(t, s.Init(ctx, "s1", ""), ErrEmptyUserID)
	})

	t.Run("creates fresh session", func(t *testing.T) {
		s, _ := newTestStore(t)
		require.NoError(t, s.Init(ctx, "s1", "u1"))
		assert.True(t, s.Exists("s1"))
		assert.Equal(t, 1, s.ActiveSessions())
	})

	t.Run("idempotent", func(t *testing.T) {
		warm := &fixedWarmStart{patterns: []*SessionPattern{
			mkPattern(t, PatternIndustryPreference, PatternData{Industry: "SaaS"}, 0.85),
		}}
		s, _ := newTestStore(t, WithWarmStartSource(warm))

		require.NoError(t, s.Init(ctx, "s1", "u1"))
		require.NoError(t, s.Init(ctx, "s1", "u1"))
		require.NoError(t, s.Init(ctx, "s1", "u1"))

		assert.Equal(t, 1, warm.calls, "warm start runs once per session")
		patterns, err := s.Patterns("s1")
		require.NoError(t, err)
		assert.Len(t, patterns, 1, "no duplicate warm-start patterns")
	})
}

func TestSessionStoreWarmStart(t *testing.T) {
	ctx := context.Background()
	warm := &fixedWarmStart{patterns: []*SessionPattern{
		mkPattern(t, PatternIndustryPreference, PatternData{Industry: "SaaS"}, 0.85),
		mkPattern(t, PatternRolePreference, PatternData{Role: "CTO"}, 0.65),
	}}
	s, _ := newTestStore(t, WithWarmStartSource(warm))

	require.NoError(t, s.Init(ctx, "s1", "u1"))

	patterns, err := s.Patterns("s1")
	require.NoError(t, err)
	require.Len(t, patterns, 1, "patterns under the warm-start floor stay durable-only")
	assert.Equal(t, PatternIndustryPreference, patterns[0].Type)

	// Warm-started patterns do not count as session discoveries.
	m, err := s.Metrics("s1")
	require.NoError(t, err)
	assert.Zero(t, m.PatternsDiscovered)
	assert.Equal(t, 1, m.ActivePatterns)
}

func TestSessionStoreRecordPatterns(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.Init(ctx, "s1", "u1"))

	t.Run("unknown session", func(t *testing.T) {
		err := s.RecordPatterns(ctx, "nope", nil)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("appends and counts", func(t *testing.T) {
		batch1 := []*SessionPattern{
			mkPattern(t, PatternIndustryPreference, PatternData{Industry: "SaaS"}, 0.82),
		}
		batch2 := []*SessionPattern{
			mkPattern(t, PatternRolePreference, PatternData{Role: "CTO"}, 0.75),
			mkPattern(t, PatternSuccessIndicator, PatternData{Signal: "strong"}, 0.70),
		}
		require.NoError(t, s.RecordPatterns(ctx, "s1", batch1))
		require.NoError(t, s.RecordPatterns(ctx, "s1", batch2))

		m, err := s.Metrics("s1")
		require.NoError(t, err)
		assert.Equal(t, 3, m.PatternsDiscovered, "discovery counter is monotonic across batches")
		assert.Equal(t, 3, m.ActivePatterns)
	})

	t.Run("rejects below floor", func(t *testing.T) {
		weak := &SessionPattern{ID: "weak", Type: PatternSuccessIndicator, Confidence: 0.4}
		require.NoError(t, s.RecordPatterns(ctx, "s1", []*SessionPattern{weak}))

		m, err := s.Metrics("s1")
		require.NoError(t, err)
		assert.Equal(t, 3, m.PatternsDiscovered)
	})

	t.Run("ordered by descending confidence", func(t *testing.T) {
		patterns, err := s.Patterns("s1")
		require.NoError(t, err)
		require.Len(t, patterns, 3)
		for i := 1; i < len(patterns); i++ {
			assert.GreaterOrEqual(t, patterns[i-1].Confidence, patterns[i].Confidence)
		}
	})
}

func TestSessionStorePersistsSnapshots(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)
	require.NoError(t, s.Init(ctx, "s1", "u1"))
	require.NoError(t, s.RecordPatterns(ctx, "s1", []*SessionPattern{
		mkPattern(t, PatternIndustryPreference, PatternData{Industry: "SaaS"}, 0.82),
	}))

	rec, err := mem.Get(ctx, storage.NamespaceSessions, "s1")
	require.NoError(t, err)

	var state SessionState
	require.NoError(t, json.Unmarshal(rec.Value, &state))
	assert.Equal(t, "u1", state.UserID)
	assert.Len(t, state.Patterns, 1)
	assert.Equal(t, 1, state.Metrics.PatternsDiscovered)
}

func TestSessionStoreRestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()

	first, err := NewSessionStore(mem, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, first.Init(ctx, "s1", "u1"))
	require.NoError(t, first.RecordPatterns(ctx, "s1", []*SessionPattern{
		mkPattern(t, PatternIndustryPreference, PatternData{Industry: "SaaS"}, 0.82),
	}))

	// A new store instance (daemon restart) revives the session from
	// its snapshot instead of warm-starting fresh.
	second, err := NewSessionStore(mem, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, second.Init(ctx, "s1", "u1"))

	patterns, err := second.Patterns("s1")
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "SaaS", patterns[0].Data.Industry)

	m, err := second.Metrics("s1")
	require.NoError(t, err)
	assert.Equal(t, 1, m.PatternsDiscovered)
}

func TestSessionStoreSurvivesStorageOutage(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)
	require.NoError(t, s.Init(ctx, "s1", "u1"))

	mem.SetFailing(true)

	// In-memory learning keeps working while persistence is down.
	require.NoError(t, s.RecordPatterns(ctx, "s1", []*SessionPattern{
		mkPattern(t, PatternIndustryPreference, PatternData{Industry: "SaaS"}, 0.82),
	}))
	patterns, err := s.Patterns("s1")
	require.NoError(t, err)
	assert.Len(t, patterns, 1)

	m, err := s.Metrics("s1")
	require.NoError(t, err)
	assert.Equal(t, 1, m.PatternsDiscovered)
}

func TestSessionStoreRecordApplication(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.Init(ctx, "s1", "u1"))

	apps := []Application{{PatternID: "p1", PatternType: PatternIndustryPreference, Delta: 0.12}}
	impact := Impact{BaselineConfidence: 0.5, EnhancedConfidence: 0.62, TotalDelta: 0.12, PatternsEvaluated: 1, ApplicationsApplied: 1}
	require.NoError(t, s.RecordApplication(ctx, "s1", impact, apps))
	require.NoError(t, s.RecordApplication(ctx, "s1", impact, apps))

	m, err := s.Metrics("s1")
	require.NoError(t, err)
	assert.Equal(t, 2, m.PatternsApplied)
	assert.InDelta(t, 0.12, m.MeanConfidenceBoost, 1e-9)
	assert.Equal(t, "high", m.LearningEffectiveness)
}

func TestSessionStoreMetricsEffectiveness(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.Init(ctx, "s1", "u1"))

	m, err := s.Metrics("s1")
	require.NoError(t, err)
	assert.Equal(t, "low", m.LearningEffectiveness, "no boosts yet")

	impact := Impact{BaselineConfidence: 0.5, EnhancedConfidence: 0.58, TotalDelta: 0.08, ApplicationsApplied: 1}
	require.NoError(t, s.RecordApplication(ctx, "s1", impact, []Application{{PatternID: "p"}}))

	m, err = s.Metrics("s1")
	require.NoError(t, err)
	assert.Equal(t, "medium", m.LearningEffectiveness)
}

func TestSessionStoreEvict(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)
	require.NoError(t, s.Init(ctx, "s1", "u1"))
	require.NoError(t, s.RecordPatterns(ctx, "s1", []*SessionPattern{
		mkPattern(t, PatternIndustryPreference, PatternData{Industry: "SaaS"}, 0.82),
	}))

	patterns, err := s.Evict(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, patterns, 1)
	assert.False(t, s.Exists("s1"))

	_, err = mem.Get(ctx, storage.NamespaceSessions, "s1")
	assert.ErrorIs(t, err, storage.ErrNotFound, "snapshot removed with the session")

	_, err = s.Evict(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionStoreIdleSessions(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := func() time.Time { return now }

	s, _ := newTestStore(t, WithIdleWindow(2*time.Hour), WithClock(clock))
	require.NoError(t, s.Init(ctx, "idle", "u1"))
	require.NoError(t, s.Init(ctx, "busy", "u1"))

	// The busy session is touched inside the window.
	now = now.Add(90 * time.Minute)
	require.NoError(t, s.RecordPatterns(ctx, "busy", []*SessionPattern{
		mkPattern(t, PatternIndustryPreference, PatternData{Industry: "SaaS"}, 0.82),
	}))

	now = now.Add(31 * time.Minute) // idle is now 121m old, busy 31m
	assert.Equal(t, []string{"idle"}, s.IdleSessions())

	// Scanning does not evict; eviction is the caller's decision.
	assert.True(t, s.Exists("idle"))

	_, err := s.Evict(ctx, "idle")
	require.NoError(t, err)
	assert.Empty(t, s.IdleSessions(), "nothing left past the window")
}

func TestSessionStoreUserID(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.Init(ctx, "s1", "u42"))

	userID, err := s.UserID("s1")
	require.NoError(t, err)
	assert.Equal(t, "u42", userID)

	_, err = s.UserID("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionStorePatternsReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.Init(ctx, "s1", "u1"))
	require.NoError(t, s.RecordPatterns(ctx, "s1", []*SessionPattern{
		mkPattern(t, PatternIndustryPreference, PatternData{Industry: "SaaS"}, 0.82),
	}))

	patterns, err := s.Patterns("s1")
	require.NoError(t, err)
	patterns[0].Confidence = 0.1

	again, err := s.Patterns("s1")
	require.NoError(t, err)
	assert.InDelta(t, 0.82, again[0].Confidence, 1e-9, "callers cannot mutate stored patterns")
}
