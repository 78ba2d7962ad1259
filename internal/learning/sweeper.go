package learning

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically closes idle sessions through the learning
// service, so expiry promotes qualifying patterns exactly like an
// explicit close.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSweeper creates a sweeper. A non-positive interval falls back to
// five minutes.
func NewSweeper(svc *Service, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		svc:      svc,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the sweep loop. Calling Start on a running sweeper is
// a no-op.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.run(s.stopCh, s.doneCh)
	s.logger.Info("session sweeper started",
		zap.Duration("interval", s.interval))
}

// Stop halts the sweep loop and waits for the in-flight sweep, if any,
// to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	<-done
	s.logger.Info("session sweeper stopped")
}

func (s *Sweeper) run(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if n := s.svc.ExpireIdleSessions(context.Background()); n > 0 {
				s.logger.Info("idle sessions closed",
					zap.Int("count", n),
					zap.Int("active", s.svc.store.ActiveSessions()))
			}
		}
	}
}
