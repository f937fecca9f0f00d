package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/hpungsan/nudge/internal/db"
	"github.com/hpungsan/nudge/internal/habit"
)

// reportCompletions is how many recent days the report lists.
const reportCompletions = 14

// ReportOutput is a Markdown digest of one habit.
type ReportOutput struct {
	HabitID  string `json:"habit_id"`
	Name     string `json:"name"`
	Markdown string `json:"markdown"`
}

// Report renders a habit's stats, recent completions and valid insights as Markdown.
func (s *Service) Report(ctx context.Context, input StatsInput) (*ReportOutput, error) {
	h, err := s.getHabit(ctx, input.HabitID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	completions, err := db.ListCompletions(ctx, s.db, h.ID, 0)
	if err != nil {
		return nil, err
	}
	insights, err := db.ListInsights(ctx, s.db, h.ID, now.Unix())
	if err != nil {
		return nil, err
	}
	stats := habit.ComputeStats(completions, now)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", h.Name)
	if h.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", h.Description)
	}
	fmt.Fprintf(&b, "*%s at %s (%s)*\n\n", habit.NormalizeCadence(h.Cadence), h.ReminderTime, zoneName(h.Timezone))

	b.WriteString("## Stats\n\n")
	b.WriteString("| Streak | Completion rate | Completed | Recorded | Recent mood | Recent difficulty |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %.1f%% | %d | %d | %s | %s |\n\n",
		stats.Streak, stats.CompletionRate, stats.SuccessfulCompletions, stats.TotalCompletions,
		dash(stats.RecentMood), intDash(stats.RecentDifficulty))

	b.WriteString("## Recent days\n\n")
	if len(completions) == 0 {
		b.WriteString("No check-ins recorded yet.\n\n")
	}
	for i, c := range completions {
		if i == reportCompletions {
			break
		}
		mark := "✗"
		if c.Completed {
			mark = "✓"
		}
		fmt.Fprintf(&b, "- **%s** %s", c.Day, mark)
		if c.Note != nil && *c.Note != "" {
			fmt.Fprintf(&b, " %s", *c.Note)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(insights) > 0 {
		b.WriteString("## Insights\n\n")
		for _, in := range insights {
			fmt.Fprintf(&b, "- *%s*: %s\n", in.Type, in.Text)
		}
	}

	return &ReportOutput{HabitID: h.ID, Name: h.Name, Markdown: b.String()}, nil
}

func zoneName(tz string) string {
	if tz == "" {
		return "UTC"
	}
	return tz
}

func dash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func intDash(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}
