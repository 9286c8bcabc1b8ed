package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ExpiryTarget expires overdue reservations and reports how many it expired.
type ExpiryTarget interface {
	AutoCancelLateReservations(ctx context.Context) (int, error)
}

// Sweeper runs the reservation expiry pass periodically. The pass is idempotent,
// so several replicas may run it against the same store.
type Sweeper struct {
	target   ExpiryTarget
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper builds sweeper.
func NewSweeper(target ExpiryTarget, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{target: target, interval: interval, logger: logger}
}

// Start sweeps once immediately, then on every tick until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("reservation sweeper started", zap.Duration("interval", s.interval))
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reservation sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single pass. Failures are logged; the next tick retries.
func (s *Sweeper) RunOnce(ctx context.Context) {
	started := time.Now()
	n, err := s.target.AutoCancelLateReservations(ctx)
	if err != nil {
		s.logger.Error("reservation sweep failed", zap.Int("expired", n), zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("reservation sweep finished", zap.Int("expired", n), zap.Duration("took", time.Since(started)))
	}
}
