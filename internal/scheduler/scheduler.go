// Package scheduler drives the periodic check-in tick.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
)

// TickFunc runs one scheduling pass for the given wall-clock time.
type TickFunc func(ctx context.Context, now time.Time) error

// Options configures a Scheduler.
type Options struct {
	// Interval between ticks; defaults to one minute
	Interval time.Duration

	// Align delays the first periodic tick to the next Interval boundary
	Align bool

	// Now defaults to time.Now
	Now func() time.Time
}

// Scheduler calls a TickFunc every Interval until its context is canceled.
// Ticks never overlap: a slow tick delays the next one and missed ticks are dropped.
type Scheduler struct {
	tick     TickFunc
	interval time.Duration
	align    bool
	now      func() time.Time
	logger   *zap.Logger
}

// New creates a Scheduler.
func New(tick TickFunc, opts Options, logger *zap.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		tick:     tick,
		interval: opts.Interval,
		align:    opts.Align,
		now:      opts.Now,
		logger:   logger.With(zap.String("component", "scheduler")),
	}
}

// Run ticks once immediately, then every interval. It returns when ctx is
// canceled, after any in-flight tick finishes.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval), zap.Bool("align", s.align))
	defer s.logger.Info("scheduler stopped")

	s.runTick(ctx, s.now())

	if s.align {
		wait := s.untilBoundary(s.now())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		s.runTick(ctx, s.now())
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.runTick(ctx, s.now())
		}
	}
}

// untilBoundary returns the wait until the next multiple of interval.
func (s *Scheduler) untilBoundary(now time.Time) time.Duration {
	next := now.Truncate(s.interval).Add(s.interval)
	return next.Sub(now)
}

// runTick calls the tick, logging errors and recovering panics so the loop survives.
func (s *Scheduler) runTick(ctx context.Context, now time.Time) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	err := s.safeTick(ctx, now)
	elapsed := time.Since(start)

	if err != nil {
		s.logger.Error("tick failed", zap.Time("at", now), zap.Duration("elapsed", elapsed), zap.Error(err))
		return
	}
	if elapsed > s.interval {
		s.logger.Warn("tick overran interval", zap.Time("at", now), zap.Duration("elapsed", elapsed))
	}
}

func (s *Scheduler) safeTick(ctx context.Context, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
			s.logger.Error("tick panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
	}()
	return s.tick(ctx, now)
}
