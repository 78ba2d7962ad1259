package learning

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/scoutd/internal/storage"
)

// sweepClock is a mutable clock safe to share with the sweep goroutine.
type sweepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *sweepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *sweepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newSweepService(t *testing.T, store *SessionStore) *Service {
	t.Helper()
	svc, err := NewService(store, NewExtractor(nil, 0.6, zap.NewNop()), nil, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestSweeperEvictsIdleSessions(t *testing.T) {
	clock := &sweepClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}

	store, err := NewSessionStore(storage.NewMemoryStore(), zap.NewNop(),
		WithClock(clock.Now),
		WithIdleWindow(time.Hour))
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background(), "sess-idle", "user-1"))
	require.Equal(t, 1, store.ActiveSessions())

	sweeper := NewSweeper(newSweepService(t, store), 10*time.Millisecond, zap.NewNop())
	sweeper.Start()
	defer sweeper.Stop()

	// Still within the idle window, the session must survive sweeps.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, store.ActiveSessions())

	clock.Advance(2 * time.Hour)

	assert.Eventually(t, func() bool {
		return store.ActiveSessions() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestSweeperStartStop(t *testing.T) {
	store, err := NewSessionStore(storage.NewMemoryStore(), zap.NewNop())
	require.NoError(t, err)

	sweeper := NewSweeper(newSweepService(t, store), 10*time.Millisecond, zap.NewNop())

	t.Run("stop before start is a no-op", func(t *testing.T) {
		sweeper.Stop()
	})

	t.Run("double start is a no-op", func(t *testing.T) {
		sweeper.Start()
		sweeper.Start()
		sweeper.Stop()
	})

	t.Run("restart after stop", func(t *testing.T) {
		sweeper.Start()
		sweeper.Stop()
		sweeper.Start()
		sweeper.Stop()
	})
}

func TestNewSweeperDefaultInterval(t *testing.T) {
	store, err := NewSessionStore(storage.NewMemoryStore(), zap.NewNop())
	require.NoError(t, err)

	sweeper := NewSweeper(newSweepService(t, store), 0, zap.NewNop())
	assert.Equal(t, 5*time.Minute, sweeper.interval)
}
