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

// HandleInbound answers an inbound SMS. It always returns text for the sender;
// internal failures are logged and answered with a generic acknowledgement.
func (s *Service) HandleInbound(ctx context.Context, from, body string) string {
	reply, err := s.handleInbound(ctx, from, body)
	if err != nil {
		s.logger.Error("inbound handling failed", zap.String("from", from), zap.Error(err))
		return compose.GenericReplyFallback
	}
	return reply
}

func (s *Service) handleInbound(ctx context.Context, from, body string) (string, error) {
	now := s.now()
	phone := habit.NormalizePhone(from)

	u, err := db.GetUserByPhone(ctx, s.db, phone)
	if errors.Is(err, errors.ErrNotFound) {
		return UnknownUserReply, nil
	}
	if err != nil {
		return "", err
	}

	reminder, h, err := s.correlate(ctx, u)
	if err != nil {
		return "", err
	}
	if h == nil {
		return NoActiveHabitReply, nil
	}
	logger := s.logger.With(zap.String("habit_id", h.ID), zap.String("user_id", u.ID))

	reply := habit.ClassifyReply(body)
	if reply.IsCompletion {
		if err := s.closeWithAnswer(ctx, u, h, reminder, reply, body, now); err != nil {
			return "", err
		}
		logger.Info("check-in answered", zap.Bool("completed", reply.Completed))
	}

	// History is read before the new message is logged; the reply prompt appends it.
	history, err := db.RecentEntries(ctx, s.db, h.ID, HistoryLen)
	if err != nil {
		return "", err
	}
	err = db.AppendEntry(ctx, s.db, &habit.ConversationEntry{
		HabitID:   h.ID,
		UserID:    u.ID,
		Role:      habit.RoleUser,
		Message:   body,
		Timestamp: now.Unix(),
		Context:   map[string]any{"isCompletion": reply.IsCompletion, "completed": reply.Completed},
	})
	if err != nil {
		return "", err
	}

	stats, err := s.loadStats(ctx, s.db, h.ID, now)
	if err != nil {
		return "", err
	}
	text := s.composer.Reply(ctx, compose.ReplyRequest{
		Stats:        stats,
		History:      history,
		Message:      body,
		IsCompletion: reply.IsCompletion,
	})

	err = db.AppendEntry(ctx, s.db, &habit.ConversationEntry{
		HabitID:   h.ID,
		UserID:    u.ID,
		Role:      habit.RoleAssistant,
		Message:   text,
		Timestamp: now.Unix(),
		Context:   map[string]any{"type": "reply", "stats": stats},
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// correlate finds the reminder and habit an inbound message answers: the user's
// open conversation, else the latest reminder sent to their phone, else their
// first running habit with no reminder. A nil habit means nothing matched.
func (s *Service) correlate(ctx context.Context, u *habit.User) (*habit.Reminder, *habit.Habit, error) {
	var reminder *habit.Reminder
	if u.OpenReminderID != nil {
		r, err := db.GetReminder(ctx, s.db, *u.OpenReminderID)
		switch {
		case err == nil:
			reminder = r
		case !errors.Is(err, errors.ErrNotFound):
			return nil, nil, err
		}
	}
	if reminder == nil {
		r, err := db.LatestReminderForPhone(ctx, s.db, u.PhoneNumber)
		switch {
		case err == nil:
			reminder = r
		case !errors.Is(err, errors.ErrNotFound):
			return nil, nil, err
		}
	}

	if reminder != nil {
		h, err := db.GetHabit(ctx, s.db, reminder.HabitID)
		if err != nil {
			return nil, nil, err
		}
		return reminder, h, nil
	}

	h, err := db.FirstRunningHabit(ctx, s.db, u.ID)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return nil, h, nil
}

// closeWithAnswer closes the reminder and records today's completion in one transaction.
func (s *Service) closeWithAnswer(ctx context.Context, u *habit.User, h *habit.Habit, r *habit.Reminder,
	reply habit.Reply, body string, now time.Time) error {
	response := habit.ResponseNotCompleted
	if reply.Completed {
		response = habit.ResponseCompleted
	}

	note := body
	if reply.Note != "" {
		note = reply.Note
	}
	c := &habit.Completion{
		HabitID:     h.ID,
		UserID:      u.ID,
		Completed:   reply.Completed,
		Day:         habit.Day(now),
		CompletedAt: now.Unix(),
		Note:        &note,
	}
	if mood, ok := habit.DetectMood(body); ok {
		c.Mood = &mood
	}
	if level, ok := habit.DetectDifficulty(body); ok {
		c.Difficulty = &level
	}

	return s.db.InTx(ctx, func(tx *db.Tx) error {
		if r != nil {
			closed, err := db.MarkResponded(ctx, tx, r.ID, response)
			if err != nil {
				return err
			}
			if !closed {
				s.logger.Debug("reminder already closed, answer recorded without it",
					zap.String("reminder_id", r.ID),
					zap.String("status", string(r.Status)))
			}
		}
		if err := db.ClearOpenReminder(ctx, tx, u.ID); err != nil {
			return err
		}
		if _, _, err := s.record(ctx, tx, c, now); err != nil {
			return err
		}
		return db.UpdateLastCheckin(ctx, tx, h.ID, now.Unix())
	})
}
