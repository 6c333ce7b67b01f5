package recovery

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically removes expired tokens.
type Sweeper struct {
	store    TokenStore
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewSweeper returns a Sweeper. A non-positive interval defaults to one minute.
func NewSweeper(store TokenStore, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger.With(zap.String("component", "recovery-sweeper")),
		now:      time.Now,
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep and returns the number of removed tokens.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	removed, err := s.store.Sweep(ctx, s.now())
	if err != nil {
		s.logger.Warn("sweep reset tokens", zap.Error(err))
		return 0
	}
	if removed > 0 {
		s.logger.Debug("expired reset tokens removed", zap.Int("removed", removed))
	}
	return removed
}
