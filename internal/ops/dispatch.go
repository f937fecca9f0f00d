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

// DispatchOutput describes one dispatch attempt.
type DispatchOutput struct {
	HabitID    string `json:"habit_id"`
	ReminderID string `json:"reminder_id,omitempty"`
	SID        string `json:"sid,omitempty"`
	Message    string `json:"message,omitempty"`

	// Skipped is set when a reminder for the habit already went out this minute
	Skipped bool `json:"skipped,omitempty"`
}

// Dispatch sends a check-in for a due habit and opens a reminder for it.
// A second call within the same UTC minute is a no-op, so a restart mid-minute
// does not double-send.
func (s *Service) Dispatch(ctx context.Context, h *habit.Habit, u *habit.User, now time.Time) (*DispatchOutput, error) {
	return s.dispatch(ctx, h, u, now, true)
}

// RemindInput contains parameters for a manual reminder.
type RemindInput struct {
	HabitID string `json:"habit_id"`
}

// Remind sends a check-in for a habit right away, ignoring its schedule.
// The habit must still be eligible.
func (s *Service) Remind(ctx context.Context, input RemindInput) (*DispatchOutput, error) {
	if input.HabitID == "" {
		return nil, errors.NewInvalidRequest("habit_id is required")
	}
	h, err := db.GetHabit(ctx, s.db, input.HabitID)
	if err != nil {
		return nil, err
	}
	u, err := db.GetUser(ctx, s.db, h.UserID)
	if err != nil {
		return nil, err
	}
	if !habit.IsEligible(h, u) {
		return nil, errors.NewInvalidRequest("habit is not eligible for reminders")
	}
	return s.dispatch(ctx, h, u, s.now(), false)
}

func (s *Service) dispatch(ctx context.Context, h *habit.Habit, u *habit.User, now time.Time, guard bool) (*DispatchOutput, error) {
	out := &DispatchOutput{HabitID: h.ID}
	logger := s.logger.With(zap.String("habit_id", h.ID), zap.String("user_id", u.ID))

	if guard {
		minuteStart := now.UTC().Truncate(time.Minute).Unix()
		sent, err := db.DispatchedSince(ctx, s.db, h.ID, minuteStart)
		if err != nil {
			return nil, err
		}
		if sent {
			logger.Debug("already dispatched this minute")
			out.Skipped = true
			return out, nil
		}
	}

	stats, err := s.loadStats(ctx, s.db, h.ID, now)
	if err != nil {
		return nil, err
	}
	history, err := db.RecentEntries(ctx, s.db, h.ID, HistoryLen)
	if err != nil {
		return nil, err
	}

	message := s.composer.Compose(ctx, compose.Request{
		Habit:   h,
		User:    u,
		Stats:   stats,
		History: history,
		Now:     now,
	})

	err = db.AppendEntry(ctx, s.db, &habit.ConversationEntry{
		HabitID:   h.ID,
		UserID:    u.ID,
		Role:      habit.RoleAssistant,
		Message:   message,
		Timestamp: now.Unix(),
		Context:   map[string]any{"type": "reminder", "stats": stats},
	})
	if err != nil {
		return nil, err
	}

	sid, err := s.gateway.Send(ctx, u.PhoneNumber, message)
	if err != nil {
		logger.Error("send check-in failed", zap.Error(err))
		return nil, err
	}

	reminder := &habit.Reminder{
		HabitID:       h.ID,
		UserID:        u.ID,
		PhoneNumber:   u.PhoneNumber,
		DispatchedAt:  now.Unix(),
		Status:        habit.StatusSent,
		Response:      habit.ResponseNone,
		FollowUpDueAt: now.Add(s.cfg.FollowUpDelay()).Unix(),
	}
	err = s.db.InTx(ctx, func(tx *db.Tx) error {
		closed, err := db.TimeOutSent(ctx, tx, h.ID)
		if err != nil {
			return err
		}
		if closed > 0 {
			logger.Info("timed out unanswered reminders", zap.Int64("count", closed))
		}
		if err := db.InsertReminder(ctx, tx, reminder); err != nil {
			return err
		}
		return db.SetOpenReminder(ctx, tx, u.ID, reminder.ID)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("check-in sent", zap.String("reminder_id", reminder.ID), zap.String("sid", sid))
	out.ReminderID = reminder.ID
	out.SID = sid
	out.Message = message
	return out, nil
}
