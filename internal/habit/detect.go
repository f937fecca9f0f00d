package habit

import "strings"

// Mood values recorded on completions.
const (
	MoodPositive = "positive"
	MoodNeutral  = "neutral"
	MoodNegative = "negative"
)

type indicator[T any] struct {
	phrase string
	value  T
}

// moodIndicators are checked in order; the first hit wins.
var moodIndicators = []indicator[string]{
	{"happy", MoodPositive}, {"great", MoodPositive}, {"awesome", MoodPositive},
	{"good", MoodPositive}, {"excited", MoodPositive}, {"😊", MoodPositive}, {"😃", MoodPositive},
	{"okay", MoodNeutral}, {"fine", MoodNeutral}, {"alright", MoodNeutral},
	{"normal", MoodNeutral}, {"😐", MoodNeutral},
	{"tired", MoodNegative}, {"difficult", MoodNegative}, {"hard", MoodNegative},
	{"struggling", MoodNegative}, {"bad", MoodNegative}, {"😞", MoodNegative}, {"😕", MoodNegative},
}

// difficultyIndicators list multi-word phrases ahead of the single words they contain,
// so "very hard" scores 5 rather than matching "hard".
var difficultyIndicators = []indicator[int]{
	{"very easy", 1}, {"super easy", 1}, {"no problem", 1},
	{"very hard", 5}, {"very difficult", 5},
	{"easy", 2}, {"simple", 2},
	{"moderate", 3}, {"okay", 3}, {"alright", 3},
	{"hard", 4}, {"difficult", 4}, {"challenging", 4},
	{"impossible", 5}, {"struggling", 5},
}

// DetectMood guesses a mood from free text. ok is false when nothing matched.
func DetectMood(message string) (mood string, ok bool) {
	return detect(moodIndicators, message)
}

// DetectDifficulty guesses a 1-5 difficulty from free text. ok is false when nothing matched.
// Phrases win over the words inside them, so "very hard" is 5 and "very easy" is 1;
// a level-by-level scan from 1 to 5 would report 4 for "very hard".
func DetectDifficulty(message string) (level int, ok bool) {
	return detect(difficultyIndicators, message)
}

func detect[T any](indicators []indicator[T], message string) (T, bool) {
	lower := strings.ToLower(message)
	for _, ind := range indicators {
		if strings.Contains(lower, ind.phrase) {
			return ind.value, true
		}
	}
	var zero T
	return zero, false
}
