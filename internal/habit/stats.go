package habit

import (
	"cmp"
	"slices"
	"time"

	"github.com/samber/lo"
)

// DayLayout is the storage format for completion days.
const DayLayout = "2006-01-02"

// Day truncates t to its UTC calendar date. Completion identity is the UTC day
// regardless of the habit's own timezone.
func Day(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// ParseDay parses a DayLayout string as midnight UTC.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DayLayout, s, time.UTC)
}

// Stats summarizes a habit's completion history.
type Stats struct {
	TotalCompletions      int     `json:"total_completions"`
	SuccessfulCompletions int     `json:"successful_completions"`
	CompletionRate        float64 `json:"completion_rate"`
	Streak                int     `json:"streak"`
	RecentMood            *string `json:"recent_mood,omitempty"`
	RecentDifficulty      *int    `json:"recent_difficulty,omitempty"`
}

// SortRecentFirst orders completions by day, newest first, breaking ties by write time.
func SortRecentFirst(completions []Completion) {
	slices.SortStableFunc(completions, func(a, b Completion) int {
		if c := cmp.Compare(b.Day, a.Day); c != 0 {
			return c
		}
		return cmp.Compare(b.CompletedAt, a.CompletedAt)
	})
}

// ComputeStats derives stats from a habit's full completion history.
// The input is not modified.
func ComputeStats(completions []Completion, now time.Time) Stats {
	sorted := slices.Clone(completions)
	SortRecentFirst(sorted)

	total := len(sorted)
	successful := lo.CountBy(sorted, func(c Completion) bool { return c.Completed })

	stats := Stats{
		TotalCompletions:      total,
		SuccessfulCompletions: successful,
		CompletionRate:        CompletionRate(successful, total),
		Streak:                streakSorted(sorted, now),
	}
	if total > 0 {
		stats.RecentMood = sorted[0].Mood
		stats.RecentDifficulty = sorted[0].Difficulty
	}
	return stats
}

// CompletionRate returns successful/total as a percentage, 0 for an empty history.
func CompletionRate(successful, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(successful) / float64(total) * 100
}

// Streak counts consecutive completed days ending today (UTC).
// A missing or not-completed day ends the streak; a habit not yet done today has streak 0.
func Streak(completions []Completion, now time.Time) int {
	sorted := slices.Clone(completions)
	SortRecentFirst(sorted)
	return streakSorted(sorted, now)
}

func streakSorted(sorted []Completion, now time.Time) int {
	today := now.UTC().Truncate(24 * time.Hour)
	streak := 0
	for _, c := range sorted {
		want := today.AddDate(0, 0, -streak).Format(DayLayout)
		if !c.Completed || c.Day != want {
			break
		}
		streak++
	}
	return streak
}
