package ops

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/nudge/internal/db"
	"github.com/hpungsan/nudge/internal/errors"
	"github.com/hpungsan/nudge/internal/habit"
)

// RecordInput contains parameters for recording a completion.
type RecordInput struct {
	HabitID string `json:"habit_id"`

	// UserID defaults to the habit's owner; a mismatch is rejected
	UserID string `json:"user_id,omitempty"`

	// Day is a YYYY-MM-DD date or RFC 3339 timestamp, truncated to its UTC date.
	// Empty means today.
	Day string `json:"day,omitempty"`

	Completed  bool    `json:"completed"`
	Mood       *string `json:"mood,omitempty"`
	Difficulty *int    `json:"difficulty,omitempty"`
	Note       *string `json:"note,omitempty"`
}

// RecordOutput contains the result of recording a completion.
type RecordOutput struct {
	Completion habit.Completion `json:"completion"`
	Created    bool             `json:"created"`
	Stats      habit.Stats      `json:"stats"`

	// Insights lists insights generated by this record, if it crossed an interval
	Insights []habit.Insight `json:"insights,omitempty"`
}

var validMoods = map[string]bool{
	habit.MoodPositive: true,
	habit.MoodNeutral:  true,
	habit.MoodNegative: true,
}

// RecordCompletion upserts the completion for (habit, day). Recording the same day
// again overwrites it; the habit never has two rows for one day.
func (s *Service) RecordCompletion(ctx context.Context, input RecordInput) (*RecordOutput, error) {
	if input.HabitID == "" {
		return nil, errors.NewInvalidRequest("habit_id is required")
	}
	if input.Difficulty != nil && (*input.Difficulty < 1 || *input.Difficulty > 5) {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("difficulty must be between 1 and 5, got %d", *input.Difficulty))
	}
	if input.Mood != nil && !validMoods[*input.Mood] {
		return nil, errors.NewInvalidRequest("mood must be one of: positive, neutral, negative")
	}

	now := s.now()
	day, err := normalizeDay(input.Day, now)
	if err != nil {
		return nil, err
	}

	h, err := db.GetHabit(ctx, s.db, input.HabitID)
	if err != nil {
		return nil, err
	}
	if input.UserID != "" && input.UserID != h.UserID {
		return nil, errors.NewInvalidRequest("habit does not belong to user")
	}

	c := &habit.Completion{
		HabitID:     h.ID,
		UserID:      h.UserID,
		Completed:   input.Completed,
		Day:         day,
		CompletedAt: now.Unix(),
		Mood:        input.Mood,
		Difficulty:  input.Difficulty,
		Note:        input.Note,
	}

	var out RecordOutput
	err = s.db.InTx(ctx, func(tx *db.Tx) error {
		created, insights, err := s.record(ctx, tx, c, now)
		if err != nil {
			return err
		}
		out.Created = created
		out.Insights = insights
		return nil
	})
	if err != nil {
		return nil, err
	}

	out.Completion = *c
	out.Stats, err = s.loadStats(ctx, s.db, h.ID, now)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// record upserts c and runs the insight trigger whenever the total after the
// write is a multiple of the insight interval. Overwrites count, so a changed
// day regenerates the batch.
func (s *Service) record(ctx context.Context, q db.Queryer, c *habit.Completion, now time.Time) (bool, []habit.Insight, error) {
	created, err := db.UpsertCompletion(ctx, q, c)
	if err != nil {
		return false, nil, err
	}
	s.logger.Info("completion recorded",
		zap.String("habit_id", c.HabitID),
		zap.String("day", c.Day),
		zap.Bool("completed", c.Completed),
		zap.Bool("created", created))

	total, err := db.CountCompletions(ctx, q, c.HabitID)
	if err != nil {
		return false, nil, err
	}
	if !habit.ShouldTriggerInsights(total) {
		return created, nil, nil
	}
	insights, err := s.generateInsights(ctx, q, c.HabitID, c.UserID, now)
	if err != nil {
		return false, nil, err
	}
	return created, insights, nil
}

// normalizeDay accepts a date or timestamp and returns its UTC date.
func normalizeDay(raw string, now time.Time) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return habit.Day(now), nil
	}
	if t, err := habit.ParseDay(raw); err == nil {
		return habit.Day(t), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return habit.Day(t), nil
	}
	return "", errors.NewInvalidRequest(fmt.Sprintf("invalid day %q: want YYYY-MM-DD or RFC 3339", raw))
}
