package habit

import (
	"github.com/samber/lo"
)

// InsightInterval is the completion count between insight runs.
const InsightInterval = 7

// midpointDifficulty stands in for completions without a difficulty.
const midpointDifficulty = 3

// ShouldTriggerInsights reports whether a history of total completions is due an insight run.
func ShouldTriggerInsights(total int) bool {
	return total > 0 && total%InsightInterval == 0
}

// WeeklySummary aggregates the most recent completions.
type WeeklySummary struct {
	CompletedDays     int      `json:"completed_days"`
	AverageDifficulty float64  `json:"average_difficulty"`
	CommonMood        string   `json:"common_mood,omitempty"`
	Notes             []string `json:"notes,omitempty"`
}

// Summarize aggregates completions ordered newest first.
func Summarize(recent []Completion) WeeklySummary {
	s := WeeklySummary{
		CompletedDays:     lo.CountBy(recent, func(c Completion) bool { return c.Completed }),
		AverageDifficulty: midpointDifficulty,
		CommonMood:        commonMood(recent),
		Notes: lo.FilterMap(recent, func(c Completion, _ int) (string, bool) {
			return lo.FromPtr(c.Note), c.Note != nil && *c.Note != ""
		}),
	}
	if len(recent) > 0 {
		sum := lo.SumBy(recent, func(c Completion) int {
			if c.Difficulty == nil {
				return midpointDifficulty
			}
			return *c.Difficulty
		})
		s.AverageDifficulty = float64(sum) / float64(len(recent))
	}
	return s
}

// commonMood returns the most frequent mood; ties go to the mood seen first.
func commonMood(recent []Completion) string {
	counts := map[string]int{}
	var order []string
	for _, c := range recent {
		if c.Mood == nil || *c.Mood == "" {
			continue
		}
		if counts[*c.Mood] == 0 {
			order = append(order, *c.Mood)
		}
		counts[*c.Mood]++
	}
	best := ""
	for _, m := range order {
		if counts[m] > counts[best] {
			best = m
		}
	}
	return best
}

// InsightSet is the rule-based classification of a WeeklySummary.
type InsightSet struct {
	Strengths   []string `json:"strengths"`
	Weaknesses  []string `json:"weaknesses"`
	Suggestions []string `json:"suggestions"`
}

// Classify applies the fixed weekly thresholds.
func Classify(s WeeklySummary) InsightSet {
	var set InsightSet

	if s.CompletedDays >= 5 {
		set.Strengths = append(set.Strengths, "Strong consistency in habit completion")
	}
	if s.AverageDifficulty < 3 {
		set.Strengths = append(set.Strengths, "Finding the habit manageable and sustainable")
	}
	if s.CommonMood == MoodPositive {
		set.Strengths = append(set.Strengths, "Maintaining a positive attitude towards the habit")
	}

	if s.CompletedDays < 4 {
		set.Weaknesses = append(set.Weaknesses, "Struggling with consistent habit completion")
		set.Suggestions = append(set.Suggestions, "Try breaking down the habit into smaller, more manageable steps")
	}
	if s.AverageDifficulty > 4 {
		set.Weaknesses = append(set.Weaknesses, "Finding the habit challenging to maintain")
		set.Suggestions = append(set.Suggestions, "Consider adjusting the habit's difficulty level or seeking additional support")
	}
	if s.CommonMood == MoodNegative {
		set.Weaknesses = append(set.Weaknesses, "Experiencing difficulty maintaining motivation")
		set.Suggestions = append(set.Suggestions, "Focus on celebrating small wins and tracking progress visually")
	}

	return set
}

// TypedInsight pairs an insight text with its type.
type TypedInsight struct {
	Type InsightType
	Text string
}

// Items flattens the set in strength, weakness, suggestion order.
func (s InsightSet) Items() []TypedInsight {
	items := make([]TypedInsight, 0, len(s.Strengths)+len(s.Weaknesses)+len(s.Suggestions))
	for _, t := range s.Strengths {
		items = append(items, TypedInsight{Type: InsightStrength, Text: t})
	}
	for _, t := range s.Weaknesses {
		items = append(items, TypedInsight{Type: InsightWeakness, Text: t})
	}
	for _, t := range s.Suggestions {
		items = append(items, TypedInsight{Type: InsightSuggestion, Text: t})
	}
	return items
}
