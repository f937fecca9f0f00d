package ops

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/nudge/internal/db"
	"github.com/hpungsan/nudge/internal/habit"
)

// generateInsights summarizes the last InsightInterval completions and stores
// one insight per classification result.
func (s *Service) generateInsights(ctx context.Context, q db.Queryer, habitID, userID string, now time.Time) ([]habit.Insight, error) {
	recent, err := db.ListCompletions(ctx, q, habitID, habit.InsightInterval)
	if err != nil {
		return nil, err
	}
	summary := habit.Summarize(recent)
	items := habit.Classify(summary).Items()

	insights := make([]habit.Insight, 0, len(items))
	for _, item := range items {
		in := habit.Insight{
			HabitID:        habitID,
			UserID:         userID,
			Type:           item.Type,
			Text:           item.Text,
			RelevanceScore: InsightRelevance,
			ValidUntil:     now.Add(InsightTTL).Unix(),
			CreatedAt:      now.Unix(),
			Metadata: map[string]any{
				"source":             "weekly_analysis",
				"completed_days":     summary.CompletedDays,
				"average_difficulty": summary.AverageDifficulty,
			},
		}
		if err := db.InsertInsight(ctx, q, &in); err != nil {
			return nil, err
		}
		insights = append(insights, in)
	}

	s.logger.Info("insights generated",
		zap.String("habit_id", habitID),
		zap.Int("count", len(insights)),
		zap.Int("completed_days", summary.CompletedDays))
	return insights, nil
}

// storeFollowUpInsight keeps the follow-up text as a short-lived insight.
func (s *Service) storeFollowUpInsight(ctx context.Context, q db.Queryer, r *habit.Reminder, text string, now time.Time) error {
	return db.InsertInsight(ctx, q, &habit.Insight{
		HabitID:        r.HabitID,
		UserID:         r.UserID,
		Type:           habit.InsightFollowUp,
		Text:           text,
		RelevanceScore: InsightRelevance,
		ValidUntil:     now.Add(FollowUpInsightTTL).Unix(),
		CreatedAt:      now.Unix(),
		Metadata:       map[string]any{"source": "follow_up", "reminder_id": r.ID},
	})
}
