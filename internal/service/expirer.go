package service

import (
	"context"
	"time"

	"github.com/Anilsharma012/vastralaya4-sub000/internal/storage"
	"go.uber.org/zap"
)

// Expirer periodically sweeps stale pending referrals into the expired
// terminal state. Pure state transition: no money moves on expiry. The
// sweep races convert safely; whichever transition lands first wins and
// the other observes a terminal status and no-ops.
type Expirer struct {
	store    storage.ReferralStorage
	interval time.Duration
	logger   *zap.Logger
}

func NewExpirer(store storage.ReferralStorage, interval time.Duration, logger *zap.Logger) *Expirer {
	return &Expirer{store: store, interval: interval, logger: logger}
}

func (e *Expirer) Run(ctx context.Context) {
	sweepTick := time.NewTicker(e.interval)
	defer sweepTick.Stop()
	for {
		select {
		case <-sweepTick.C:
			e.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (e *Expirer) sweep(ctx context.Context) {
	swept, err := e.store.ExpireStale(ctx, time.Now())
	if err != nil {
		e.logger.Error("expire referrals error", zap.Error(err))
		return
	}
	if swept > 0 {
		e.logger.Info("expired stale referrals", zap.Int64("count", swept))
	}
}
