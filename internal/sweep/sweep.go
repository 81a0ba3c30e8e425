// Package sweep purges messages past the retention horizon on a cron
// schedule. Receipts and reactions disappear with them through the
// schema's FK cascades.
package sweep

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"github.com/negi-jagdish/village-im/internal/metrics"
)

type purger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type Options struct {
	Cron    string // e.g. "0 2 * * *"
	Horizon time.Duration
	Logger  *zap.Logger
}

type Sweeper struct {
	store   purger
	opts    Options
	running atomic.Bool
	now     func() time.Time
}

func New(store purger, opts Options) (*Sweeper, error) {
	if !gronx.New().IsValid(opts.Cron) {
		return nil, errors.New("invalid retention cron expression: " + opts.Cron)
	}
	if opts.Horizon <= 0 {
		opts.Horizon = 3 * 24 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Sweeper{store: store, opts: opts, now: time.Now}, nil
}

// Run blocks until ctx is cancelled, firing Sweep at each cron tick.
// A failed sweep is logged; the scheduler keeps ticking.
func (s *Sweeper) Run(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(s.opts.Cron, s.now(), false)
		if err != nil {
			s.opts.Logger.Error("compute next tick", zap.Error(err))
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one purge pass. At most one pass runs at a time; a tick
// arriving mid-pass is skipped rather than queued.
func (s *Sweeper) Sweep(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.opts.Logger.Warn("sweep still running, skipping tick")
		return
	}
	defer s.running.Store(false)

	metrics.SweepRuns.Inc()
	cutoff := s.now().Add(-s.opts.Horizon)
	purged, err := s.store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		s.opts.Logger.Error("sweep failed", zap.Time("cutoff", cutoff), zap.Error(err))
		return
	}
	metrics.SweepPurged.Add(float64(purged))
	s.opts.Logger.Info("sweep done", zap.Time("cutoff", cutoff), zap.Int64("purged", purged))
}
