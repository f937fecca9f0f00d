package ops

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/nudge/internal/db"
	"github.com/hpungsan/nudge/internal/habit"
)

// TickOutput counts what one scheduler tick did.
type TickOutput struct {
	At         time.Time   `json:"at"`
	Candidates int         `json:"candidates"`
	Due        int         `json:"due"`
	Sent       int64       `json:"sent"`
	Skipped    int64       `json:"skipped"`
	Failed     int64       `json:"failed"`
	FollowUps  SweepOutput `json:"follow_ups"`
}

// Tick dispatches every eligible habit due at now, then sweeps due follow-ups.
// Due habits are dispatched in parallel up to DispatchConcurrency; one habit's
// failure is logged and does not stop the others.
func (s *Service) Tick(ctx context.Context, now time.Time) (*TickOutput, error) {
	candidates, err := db.ListCandidates(ctx, s.db)
	if err != nil {
		return nil, err
	}

	out := &TickOutput{At: now.UTC(), Candidates: len(candidates)}
	var sent, skipped, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.cfg.DispatchConcurrency, 1))
	for i := range candidates {
		c := &candidates[i]
		if !habit.IsEligible(&c.Habit, &c.User) || !habit.IsDue(&c.Habit, now) {
			continue
		}
		out.Due++
		g.Go(func() error {
			res, err := s.Dispatch(gctx, &c.Habit, &c.User, now)
			switch {
			case err != nil:
				failed.Add(1)
				s.logger.Error("dispatch failed", zap.String("habit_id", c.Habit.ID), zap.Error(err))
			case res.Skipped:
				skipped.Add(1)
			default:
				sent.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	out.Sent = sent.Load()
	out.Skipped = skipped.Load()
	out.Failed = failed.Load()

	sweep, err := s.SweepFollowUps(ctx, now)
	if sweep != nil {
		out.FollowUps = *sweep
	}
	if err != nil {
		return out, err
	}

	if out.Due > 0 || sweep.Sent > 0 {
		s.logger.Info("tick complete",
			zap.Int("due", out.Due),
			zap.Int64("sent", out.Sent),
			zap.Int64("failed", out.Failed),
			zap.Int("follow_ups", sweep.Sent))
	}
	return out, nil
}
