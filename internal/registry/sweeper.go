package registry

import (
	"context"
	"time"

	"github.com/park285/xiangqi-server/internal/obslog"
	"go.uber.org/zap"
)

// WaitingSweeper deletes rooms that waited too long for players.
type WaitingSweeper interface {
	SweepWaiting(ctx context.Context) ([]string, error)
}

// Sweeper is the periodic scheduler for clock expiry, idle eviction and the
// waiting-room timeout.
type Sweeper struct {
	Registry    *Registry
	Waiting     WaitingSweeper
	Interval    time.Duration
	IdleTimeout time.Duration
}

// Run sweeps every Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs one pass.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	s.Registry.ExpireClocks()
	if s.IdleTimeout > 0 {
		if ids := s.Registry.Sweep(s.IdleTimeout); len(ids) > 0 {
			obslog.L().Info("sweep_idle", zap.Strings("room_ids", ids))
		}
	}
	if s.Waiting == nil {
		return
	}
	ids, err := s.Waiting.SweepWaiting(ctx)
	if err != nil {
		obslog.L().Warn("sweep_waiting_error", zap.Error(err))
	}
	for _, id := range ids {
		s.Registry.Evict(id, "waiting_timeout")
	}
}
