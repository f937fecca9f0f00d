package ops

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/nudge/internal/compose"
	"github.com/hpungsan/nudge/internal/db"
	"github.com/hpungsan/nudge/internal/errors"
	"github.com/hpungsan/nudge/internal/habit"
)

// SweepOutput counts what a follow-up sweep did.
type SweepOutput struct {
	Sent       int `json:"sent"`
	Suppressed int `json:"suppressed"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// SweepFollowUps sends the follow-up for every reminder whose follow-up is due,
// whether or not it has been answered. An answered reminder gets the softer
// acknowledgement, or nothing when SuppressAnsweredFollowUps is set.
// The pending state lives on the reminder row, so follow-ups survive restarts.
// A follow-up does not close its reminder.
func (s *Service) SweepFollowUps(ctx context.Context, now time.Time) (*SweepOutput, error) {
	due, err := db.DueFollowUps(ctx, s.db, now.Unix())
	if err != nil {
		return nil, err
	}

	out := &SweepOutput{}
	for i := range due {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		r := &due[i]
		sent, err := s.followUp(ctx, r, now)
		switch {
		case err != nil:
			out.Failed++
			s.logger.Error("follow-up failed",
				zap.String("reminder_id", r.ID),
				zap.String("habit_id", r.HabitID),
				zap.Error(err))
		case sent == followUpSent:
			out.Sent++
		case sent == followUpSuppressed:
			out.Suppressed++
		default:
			out.Skipped++
		}
	}
	return out, nil
}

type followUpResult int

const (
	followUpSkipped followUpResult = iota
	followUpSuppressed
	followUpSent
)

func (s *Service) followUp(ctx context.Context, r *habit.Reminder, now time.Time) (followUpResult, error) {
	logger := s.logger.With(zap.String("reminder_id", r.ID), zap.String("habit_id", r.HabitID))

	h, err := db.GetHabit(ctx, s.db, r.HabitID)
	if err != nil {
		return followUpSkipped, err
	}
	u, err := db.GetUser(ctx, s.db, r.UserID)
	if err != nil {
		return followUpSkipped, err
	}

	answered := r.Status == habit.StatusResponded
	if _, err := db.GetCompletion(ctx, s.db, h.ID, habit.Day(now)); err == nil {
		answered = true
	} else if !errors.Is(err, errors.ErrNotFound) {
		return followUpSkipped, err
	}

	// Claim the follow-up before sending so concurrent sweeps cannot both send it.
	claimed, err := db.MarkFollowUpSent(ctx, s.db, r.ID, now.Unix())
	if err != nil {
		return followUpSkipped, err
	}
	if !claimed {
		return followUpSkipped, nil
	}

	if !habit.IsEligible(h, u) {
		logger.Info("habit no longer eligible, follow-up dropped")
		return followUpSkipped, nil
	}
	if answered && s.cfg.SuppressAnsweredFollowUps {
		logger.Debug("already answered, follow-up suppressed")
		return followUpSuppressed, nil
	}

	stats, err := s.loadStats(ctx, s.db, h.ID, now)
	if err != nil {
		return followUpSkipped, err
	}
	history, err := db.RecentEntries(ctx, s.db, h.ID, HistoryLen)
	if err != nil {
		return followUpSkipped, err
	}

	message := s.composer.Compose(ctx, compose.Request{
		Habit:         h,
		User:          u,
		Stats:         stats,
		History:       history,
		FollowUp:      true,
		AnsweredToday: answered,
		Now:           now,
	})

	err = db.AppendEntry(ctx, s.db, &habit.ConversationEntry{
		HabitID:   h.ID,
		UserID:    u.ID,
		Role:      habit.RoleAssistant,
		Message:   message,
		Timestamp: now.Unix(),
		Context:   map[string]any{"type": "follow_up", "stats": stats},
	})
	if err != nil {
		return followUpSkipped, err
	}

	sid, err := s.gateway.Send(ctx, r.PhoneNumber, message)
	if err != nil {
		return followUpSkipped, err
	}

	if err := s.storeFollowUpInsight(ctx, s.db, r, message, now); err != nil {
		return followUpSkipped, err
	}
	logger.Info("follow-up sent", zap.String("sid", sid), zap.Bool("answered_today", answered))
	return followUpSent, nil
}
