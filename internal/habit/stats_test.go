package habit

import (
	"math"
	"testing"
	"time"
)

var statsNow = time.Date(2024, 5, 20, 15, 30, 0, 0, time.UTC)

func dayBack(n int) string {
	return statsNow.AddDate(0, 0, -n).Format(DayLayout)
}

func completion(daysBack int, completed bool) Completion {
	return Completion{Day: dayBack(daysBack), Completed: completed, CompletedAt: statsNow.AddDate(0, 0, -daysBack).Unix()}
}

func TestStreak(t *testing.T) {
	tests := []struct {
		name        string
		completions []Completion
		want        int
	}{
		{"empty", nil, 0},
		{"today only", []Completion{completion(0, true)}, 1},
		{"today and yesterday", []Completion{completion(0, true), completion(1, true)}, 2},
		{
			"three days then gap",
			[]Completion{completion(0, true), completion(1, true), completion(2, true), completion(4, true)},
			3,
		},
		{
			"three days then not completed",
			[]Completion{completion(0, true), completion(1, true), completion(2, true), completion(3, false)},
			3,
		},
		{"not done today", []Completion{completion(1, true), completion(2, true)}, 0},
		{"today not completed", []Completion{completion(0, false), completion(1, true)}, 0},
		{
			"unordered input",
			[]Completion{completion(2, true), completion(0, true), completion(1, true)},
			3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Streak(tt.completions, statsNow); got != tt.want {
				t.Errorf("Streak() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStreak_UsesUTCDay(t *testing.T) {
	// 23:30 in New York on May 19 is already May 20 in UTC.
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	now := time.Date(2024, 5, 19, 23, 30, 0, 0, ny)
	completions := []Completion{{Day: "2024-05-20", Completed: true}}

	if got := Streak(completions, now); got != 1 {
		t.Errorf("Streak() = %d, want 1", got)
	}
}

func TestCompletionRate(t *testing.T) {
	if got := CompletionRate(0, 0); got != 0 {
		t.Errorf("CompletionRate(0, 0) = %v, want 0", got)
	}
	if got := CompletionRate(3, 4); got != 75 {
		t.Errorf("CompletionRate(3, 4) = %v, want 75", got)
	}
	if got := CompletionRate(1, 3); math.Abs(got-33.333) > 0.01 {
		t.Errorf("CompletionRate(1, 3) = %v, want ~33.33", got)
	}
}

func TestComputeStats(t *testing.T) {
	mood := MoodPositive
	difficulty := 2
	latest := completion(0, true)
	latest.Mood = &mood
	latest.Difficulty = &difficulty

	completions := []Completion{completion(2, false), latest, completion(1, true), completion(3, true)}
	stats := ComputeStats(completions, statsNow)

	if stats.TotalCompletions != 4 {
		t.Errorf("TotalCompletions = %d, want 4", stats.TotalCompletions)
	}
	if stats.SuccessfulCompletions != 3 {
		t.Errorf("SuccessfulCompletions = %d, want 3", stats.SuccessfulCompletions)
	}
	if stats.CompletionRate != 75 {
		t.Errorf("CompletionRate = %v, want 75", stats.CompletionRate)
	}
	if stats.Streak != 2 {
		t.Errorf("Streak = %d, want 2", stats.Streak)
	}
	if stats.RecentMood == nil || *stats.RecentMood != MoodPositive {
		t.Errorf("RecentMood = %v, want %q", stats.RecentMood, MoodPositive)
	}
	if stats.RecentDifficulty == nil || *stats.RecentDifficulty != 2 {
		t.Errorf("RecentDifficulty = %v, want 2", stats.RecentDifficulty)
	}

	// Input order is untouched.
	if completions[0].Day != dayBack(2) {
		t.Error("ComputeStats reordered its input")
	}
}

func TestComputeStats_Empty(t *testing.T) {
	stats := ComputeStats(nil, statsNow)
	if stats.TotalCompletions != 0 || stats.CompletionRate != 0 || stats.Streak != 0 {
		t.Errorf("ComputeStats(nil) = %+v, want zero", stats)
	}
	if stats.RecentMood != nil || stats.RecentDifficulty != nil {
		t.Error("recent mood/difficulty should be nil for empty history")
	}
}

func TestDay(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	// 23:58 PST on Jan 3 is Jan 4 in UTC.
	if got := Day(time.Date(2024, 1, 3, 23, 58, 0, 0, la)); got != "2024-01-04" {
		t.Errorf("Day() = %q, want 2024-01-04", got)
	}
	if got := Day(time.Date(2024, 1, 4, 0, 1, 0, 0, time.UTC)); got != "2024-01-04" {
		t.Errorf("Day() = %q, want 2024-01-04", got)
	}
}
