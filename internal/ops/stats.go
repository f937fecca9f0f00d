package ops

import (
	"context"

	"github.com/hpungsan/nudge/internal/db"
	"github.com/hpungsan/nudge/internal/errors"
	"github.com/hpungsan/nudge/internal/habit"
)

// StatsInput contains parameters for reading habit stats.
type StatsInput struct {
	HabitID string `json:"habit_id"`
}

// StatsOutput contains a habit and its derived stats.
type StatsOutput struct {
	HabitID string      `json:"habit_id"`
	Name    string      `json:"name"`
	Cadence string      `json:"cadence"`
	Running bool        `json:"running"`
	Stats   habit.Stats `json:"stats"`
}

// Stats computes streak, completion rate and recent mood/difficulty for a habit.
func (s *Service) Stats(ctx context.Context, input StatsInput) (*StatsOutput, error) {
	h, err := s.getHabit(ctx, input.HabitID)
	if err != nil {
		return nil, err
	}
	stats, err := s.loadStats(ctx, s.db, h.ID, s.now())
	if err != nil {
		return nil, err
	}
	return &StatsOutput{
		HabitID: h.ID,
		Name:    h.Name,
		Cadence: string(habit.NormalizeCadence(h.Cadence)),
		Running: h.Running,
		Stats:   stats,
	}, nil
}

// InsightsInput contains parameters for listing insights.
type InsightsInput struct {
	HabitID string `json:"habit_id"`

	// IncludeExpired also returns insights past their valid_until
	IncludeExpired bool `json:"include_expired,omitempty"`
}

// InsightsOutput contains a habit's insights, newest first.
type InsightsOutput struct {
	HabitID  string          `json:"habit_id"`
	Insights []habit.Insight `json:"insights"`
}

// Insights lists a habit's insights. By default only currently valid ones.
func (s *Service) Insights(ctx context.Context, input InsightsInput) (*InsightsOutput, error) {
	h, err := s.getHabit(ctx, input.HabitID)
	if err != nil {
		return nil, err
	}
	var validAt int64
	if !input.IncludeExpired {
		validAt = s.now().Unix()
	}
	insights, err := db.ListInsights(ctx, s.db, h.ID, validAt)
	if err != nil {
		return nil, err
	}
	if insights == nil {
		insights = []habit.Insight{}
	}
	return &InsightsOutput{HabitID: h.ID, Insights: insights}, nil
}

const (
	DefaultConversationLimit = 20
	MaxConversationLimit     = 200
)

// ConversationInput contains parameters for reading the conversation log.
type ConversationInput struct {
	HabitID string `json:"habit_id"`
	Limit   int    `json:"limit,omitempty"`
}

// ConversationOutput contains the most recent entries in chronological order.
type ConversationOutput struct {
	HabitID string                    `json:"habit_id"`
	Entries []habit.ConversationEntry `json:"entries"`
}

// Conversation returns the habit's most recent conversation entries.
func (s *Service) Conversation(ctx context.Context, input ConversationInput) (*ConversationOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultConversationLimit
	}
	if limit > MaxConversationLimit {
		return nil, errors.NewInvalidRequest("limit exceeds maximum of 200")
	}
	h, err := s.getHabit(ctx, input.HabitID)
	if err != nil {
		return nil, err
	}
	entries, err := db.RecentEntries(ctx, s.db, h.ID, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []habit.ConversationEntry{}
	}
	return &ConversationOutput{HabitID: h.ID, Entries: entries}, nil
}

func (s *Service) getHabit(ctx context.Context, id string) (*habit.Habit, error) {
	if id == "" {
		return nil, errors.NewInvalidRequest("habit_id is required")
	}
	return db.GetHabit(ctx, s.db, id)
}
